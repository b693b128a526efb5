package domain

import (
	"github.com/shopspring/decimal"
)

// PositionStatus es la clasificación final de una posición en un reporte.
type PositionStatus string

const (
	StatusOpen    PositionStatus = "OPEN"    // sin resolución y con shares
	StatusClosed  PositionStatus = "CLOSED"  // plana por trading, sin resolución
	StatusSettled PositionStatus = "SETTLED" // mercado resuelto: cerrada aunque queden shares
)

// PositionPnL es el registro de P&L por posición.
// Unrealized.Valid=false significa "desconocido" (falta precio), nunca cero.
type PositionPnL struct {
	Wallet           Wallet
	ConditionID      ConditionID
	OutcomeIndex     int
	Status           PositionStatus
	Quantity         decimal.Decimal
	AvgCost          decimal.Decimal
	TradingRealized  decimal.Decimal
	SettlementPnL    decimal.Decimal
	Realized         decimal.Decimal
	Unrealized       decimal.NullDecimal
	MarkPrice        decimal.NullDecimal
	FeesPaid         decimal.Decimal
	FillCount        int
	HasResolution    bool
	HasPrice         bool
	PriceStale       bool
	ResolutionSource string
}

// Key devuelve la clave de posición del registro.
func (p PositionPnL) Key() PositionKey {
	return PositionKey{Wallet: p.Wallet, ConditionID: p.ConditionID, OutcomeIndex: p.OutcomeIndex}
}

// CoverageGrade resume cuánto del total está respaldado por datos.
// Un total PARTIAL o LOW nunca debe presentarse como uno FULL.
type CoverageGrade string

const (
	CoverageFull    CoverageGrade = "FULL"
	CoveragePartial CoverageGrade = "PARTIAL"
	CoverageLow     CoverageGrade = "LOW"
)

// WalletSummary es el agregado de P&L de una wallet con sus métricas de cobertura.
type WalletSummary struct {
	Wallet     Wallet
	Realized   decimal.Decimal
	Unrealized decimal.Decimal // suma de las posiciones con precio conocido
	Total      decimal.Decimal
	FeesPaid   decimal.Decimal

	TradeCount     int
	MarketCount    int
	PositionCount  int
	OpenPositions  int
	OpenPriced     int
	OpenUnpriced   int
	MarketsSettled int
	RejectedFills  int

	PriceCoverage      float64 // open con precio / open (1 si no hay open)
	ResolutionCoverage float64 // mercados resueltos / mercados operados
	Grade              CoverageGrade
}

// UnrealizedComplete indica si el unrealized cubre todas las posiciones abiertas.
func (s WalletSummary) UnrealizedComplete() bool {
	return s.OpenUnpriced == 0
}

// ReconciliationClass es el veredicto de una reconciliación.
type ReconciliationClass string

const (
	ReconcileMatch       ReconciliationClass = "MATCH"
	ReconcileDivergent   ReconciliationClass = "DIVERGENT"
	ReconcileNoReference ReconciliationClass = "NO_REFERENCE"
)

// ReferencePnL es la cifra externa contra la que se reconcilia una wallet.
type ReferencePnL struct {
	Wallet Wallet
	Total  decimal.Decimal
	Source string
}

// ReconciliationReport compara el total calculado con la referencia externa.
type ReconciliationReport struct {
	Wallet         Wallet
	Computed       decimal.Decimal
	Reference      decimal.NullDecimal
	AbsDiff        decimal.NullDecimal
	PctDiff        decimal.NullDecimal // indefinido si la referencia es cero
	Classification ReconciliationClass
	Grade          CoverageGrade
	Source         string
}
