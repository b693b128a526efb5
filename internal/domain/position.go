package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PositionState es el estado de la máquina de una posición durante el replay.
// CLOSED es un punto de cruce transitorio, no un estado absorbente: un fill
// posterior puede reabrir la posición en cualquier dirección.
type PositionState string

const (
	StateEmpty     PositionState = "EMPTY"
	StateOpenLong  PositionState = "OPEN_LONG"
	StateOpenShort PositionState = "OPEN_SHORT"
	StateClosed    PositionState = "CLOSED"
)

// Position es el estado contable de una tupla (wallet, mercado, outcome).
// Es estado derivado: se reconstruye íntegramente reproduciendo los fills.
type Position struct {
	Key         PositionKey
	Quantity    decimal.Decimal // con signo: + long, - short
	CostBasis   decimal.Decimal // |Quantity| × coste medio, acumulado sin redondeo
	RealizedPnL decimal.Decimal // trading realizado neto de fees
	FeesPaid    decimal.Decimal
	FirstFillAt time.Time
	LastFillAt  time.Time
	FillCount   int
	State       PositionState
}

// NewPosition devuelve una posición vacía para la clave dada.
func NewPosition(key PositionKey) Position {
	return Position{
		Key:         key,
		Quantity:    decimal.Zero,
		CostBasis:   decimal.Zero,
		RealizedPnL: decimal.Zero,
		FeesPaid:    decimal.Zero,
		State:       StateEmpty,
	}
}

// IsFlat devuelve true si la posición no tiene exposición.
func (p Position) IsFlat() bool {
	return p.Quantity.IsZero()
}

// AvgCost devuelve el coste medio por share de la cantidad abierta.
// Para una posición plana devuelve cero.
func (p Position) AvgCost() decimal.Decimal {
	if p.Quantity.IsZero() {
		return decimal.Zero
	}
	return p.CostBasis.Div(p.Quantity.Abs())
}

// PnLEventKind clasifica un evento de P&L realizado.
type PnLEventKind string

const (
	EventClose   PnLEventKind = "CLOSE"   // cierre parcial o total
	EventReverse PnLEventKind = "REVERSE" // cierre total + apertura en sentido contrario
	EventFee     PnLEventKind = "FEE"     // fill que abre/aumenta pero paga fee
)

// PnLEvent es el P&L realizado por un fill. Amount ya descuenta la fee del fill.
type PnLEvent struct {
	FillID    string
	Kind      PnLEventKind
	ClosedQty decimal.Decimal
	Price     decimal.Decimal
	AvgCost   decimal.Decimal
	Fee       decimal.Decimal
	Amount    decimal.Decimal
	Timestamp time.Time
}
