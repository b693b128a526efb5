package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ResolutionConfidence resume el acuerdo entre fuentes de resolución.
type ResolutionConfidence string

const (
	ResolutionAgreed   ResolutionConfidence = "AGREED"        // todas las fuentes válidas coinciden
	ResolutionSingle   ResolutionConfidence = "SINGLE_SOURCE" // una sola fuente válida
	ResolutionConflict ResolutionConfidence = "CONFLICT"      // fuentes válidas discrepan; gana la precedencia
)

// Resolution es el resultado de liquidación de un mercado (semántica CTF).
// Los índices de outcome son siempre 0-based.
type Resolution struct {
	ConditionID       ConditionID
	WinningIndex      int
	PayoutNumerators  []int64
	PayoutDenominator int64
	ResolvedAt        time.Time
	Source            string
	Confidence        ResolutionConfidence
}

// Valid indica si el vector de payout es usable. Un denominador <= 0, un
// vector vacío, negativo o todo-cero equivale a "no resuelto", nunca a
// "todos pierden".
func (r Resolution) Valid() bool {
	if r.PayoutDenominator <= 0 || len(r.PayoutNumerators) == 0 {
		return false
	}
	var sum int64
	for _, n := range r.PayoutNumerators {
		if n < 0 {
			return false
		}
		sum += n
	}
	return sum > 0
}

// Payout devuelve numerador y denominador del outcome dado como decimales.
// ok=false si la resolución no es válida o el índice cae fuera del vector.
func (r Resolution) Payout(outcome int) (num, den decimal.Decimal, ok bool) {
	if !r.Valid() || outcome < 0 || outcome >= len(r.PayoutNumerators) {
		return decimal.Zero, decimal.Zero, false
	}
	return decimal.NewFromInt(r.PayoutNumerators[outcome]), decimal.NewFromInt(r.PayoutDenominator), true
}

// SamePayout compara dos resoluciones por su fracción de payout por outcome.
func (r Resolution) SamePayout(o Resolution) bool {
	if len(r.PayoutNumerators) != len(o.PayoutNumerators) {
		return false
	}
	for i := range r.PayoutNumerators {
		// n1/d1 == n2/d2  <=>  n1*d2 == n2*d1
		if r.PayoutNumerators[i]*o.PayoutDenominator != o.PayoutNumerators[i]*r.PayoutDenominator {
			return false
		}
	}
	return true
}

// ResolutionCandidate es lo que una fuente afirma sobre un mercado, sin validar.
// IndexBase indica si WinningIndex viene en base 1 (p. ej. arrays de ClickHouse).
type ResolutionCandidate struct {
	MarketID          string
	WinningIndex      int // < 0 si la fuente no lo informa
	PayoutNumerators  []int64
	PayoutDenominator int64
	IndexBase         int
	ResolvedAt        time.Time
	Source            string
}

// Price es la cotización actual de un outcome. Bid/Ask/Mid son opcionales.
type Price struct {
	ConditionID  ConditionID
	OutcomeIndex int
	Bid          decimal.NullDecimal
	Ask          decimal.NullDecimal
	Mid          decimal.NullDecimal
	ObservedAt   time.Time
	Source       string
}

// Mark devuelve el precio de marcado: mid, o (bid+ask)/2, o el único lado presente.
func (p Price) Mark() (decimal.Decimal, bool) {
	switch {
	case p.Mid.Valid:
		return p.Mid.Decimal, true
	case p.Bid.Valid && p.Ask.Valid:
		return p.Bid.Decimal.Add(p.Ask.Decimal).Div(decimal.NewFromInt(2)), true
	case p.Bid.Valid:
		return p.Bid.Decimal, true
	case p.Ask.Valid:
		return p.Ask.Decimal, true
	}
	return decimal.Zero, false
}

// PriceKey identifica una cotización por (mercado, outcome).
type PriceKey struct {
	ConditionID  ConditionID
	OutcomeIndex int
}
