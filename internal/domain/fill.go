package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Side es la dirección de un fill desde el punto de vista de la wallet.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// ParseSide acepta "BUY"/"SELL" en cualquier capitalización.
// Devuelve false si el valor está vacío o no es reconocible.
func ParseSide(s string) (Side, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BUY", "B":
		return SideBuy, true
	case "SELL", "S":
		return SideSell, true
	}
	return "", false
}

// Sign devuelve +1 para BUY y -1 para SELL.
func (s Side) Sign() int {
	if s == SideSell {
		return -1
	}
	return 1
}

// Confidence es la confianza con la que se conoce la dirección de un fill.
type Confidence int

const (
	ConfidenceNone Confidence = iota
	ConfidenceLow
	ConfidenceMedium
	ConfidenceHigh
	ConfidenceExplicit // el side venía informado por la fuente
)

func (c Confidence) String() string {
	switch c {
	case ConfidenceLow:
		return "LOW"
	case ConfidenceMedium:
		return "MEDIUM"
	case ConfidenceHigh:
		return "HIGH"
	case ConfidenceExplicit:
		return "EXPLICIT"
	default:
		return "NONE"
	}
}

// ParseConfidence convierte el valor de config ("low", "medium", "high").
func ParseConfidence(s string) (Confidence, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "LOW":
		return ConfidenceLow, nil
	case "MEDIUM":
		return ConfidenceMedium, nil
	case "HIGH":
		return ConfidenceHigh, nil
	case "EXPLICIT":
		return ConfidenceExplicit, nil
	}
	return ConfidenceNone, fmt.Errorf("unknown confidence %q", s)
}

// AssetKind distingue las patas de una transacción: efectivo (USDC) o token de outcome.
type AssetKind string

const (
	AssetUSDC  AssetKind = "USDC"
	AssetToken AssetKind = "TOKEN"
)

// TransferLeg es una transferencia dentro de la transacción que generó el fill.
// Amount tiene signo desde la wallet: positivo entra, negativo sale.
type TransferLeg struct {
	Counterparty string
	Asset        AssetKind
	Amount       decimal.Decimal
}

// RawFill es una fila sin validar tal como llega de una fuente de ledger.
// Ningún campo es confiable hasta pasar por el loader.
type RawFill struct {
	ID             string // trade id de la fuente; NO es único por transacción
	TxHash         string
	Wallet         string
	MarketID       string // cualquier formato: con/sin 0x, mayúsculas, etc.
	OutcomeIndex   int
	Side           string // puede venir vacío
	SideUnreliable bool   // la fuente marca el side como no confiable
	Shares         decimal.Decimal
	Price          decimal.Decimal
	Fee            decimal.Decimal
	Value          decimal.NullDecimal // notional USDC si la fuente lo informa
	Timestamp      time.Time
	IngestSeq      int64 // orden de ingestión; mayor = más reciente
	Transfers      []TransferLeg
}

// Fill es un fill canónico: identificadores normalizados, side conocido y
// valores validados. Es inmutable una vez construido por el loader.
type Fill struct {
	ID           string
	SourceID     string
	TxHash       string
	Wallet       Wallet
	ConditionID  ConditionID
	OutcomeIndex int
	Side         Side
	Shares       decimal.Decimal
	Price        decimal.Decimal
	Fee          decimal.Decimal
	Value        decimal.Decimal
	Timestamp    time.Time
	IngestSeq    int64
	Confidence   Confidence
}

// SignedShares devuelve +shares para BUY y -shares para SELL.
func (f Fill) SignedShares() decimal.Decimal {
	if f.Side == SideSell {
		return f.Shares.Neg()
	}
	return f.Shares
}

// Key devuelve la clave de posición del fill.
func (f Fill) Key() PositionKey {
	return PositionKey{Wallet: f.Wallet, ConditionID: f.ConditionID, OutcomeIndex: f.OutcomeIndex}
}

// PositionKey identifica una posición: (wallet, mercado, outcome).
type PositionKey struct {
	Wallet       Wallet
	ConditionID  ConditionID
	OutcomeIndex int
}

func (k PositionKey) String() string {
	return fmt.Sprintf("%s/%s/%d", k.Wallet, k.ConditionID, k.OutcomeIndex)
}

// Less ordena claves de forma determinista (wallet, mercado, outcome).
func (k PositionKey) Less(o PositionKey) bool {
	if k.Wallet != o.Wallet {
		return k.Wallet < o.Wallet
	}
	if k.ConditionID != o.ConditionID {
		return k.ConditionID < o.ConditionID
	}
	return k.OutcomeIndex < o.OutcomeIndex
}
