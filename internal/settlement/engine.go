// Package settlement convierte una posición reproducida en su registro final de
// P&L aplicando la resolución del mercado o, si sigue abierto, el precio actual.
package settlement

import (
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polypnl/internal/domain"
)

// Config controla la valoración de posiciones abiertas.
type Config struct {
	// MaxPriceAge descarta cotizaciones más viejas que AsOf-MaxPriceAge.
	// Cero desactiva el control de frescura.
	MaxPriceAge time.Duration
	// AsOf es el instante de referencia del snapshot.
	AsOf time.Time
}

// Engine liquida posiciones. No tiene estado mutable: es seguro desde varias goroutines.
type Engine struct {
	cfg Config
}

// New crea un Engine.
func New(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Settle produce el PositionPnL de una posición.
//
//   - Con resolución válida: SETTLED. settlement = qty × num/den − coste firmado,
//     sumado al realizado de trading. No queda unrealized.
//   - Sin resolución y con shares: OPEN. Unrealized = qty × (mark − avg) sólo
//     si hay un precio fresco; si no, desconocido.
//   - Sin resolución y plana: CLOSED.
//
// res y price pueden ser nil.
func (e *Engine) Settle(pos domain.Position, res *domain.Resolution, price *domain.Price) domain.PositionPnL {
	out := domain.PositionPnL{
		Wallet:          pos.Key.Wallet,
		ConditionID:     pos.Key.ConditionID,
		OutcomeIndex:    pos.Key.OutcomeIndex,
		Quantity:        pos.Quantity,
		AvgCost:         pos.AvgCost(),
		TradingRealized: pos.RealizedPnL,
		SettlementPnL:   decimal.Zero,
		Realized:        pos.RealizedPnL,
		FeesPaid:        pos.FeesPaid,
		FillCount:       pos.FillCount,
	}

	if res != nil {
		num, den, ok := res.Payout(pos.Key.OutcomeIndex)
		if ok {
			// qty × num/den − sign(qty) × costBasis; con costBasis = |qty| × avg
			// esto es qty × (num/den − avg) sin pasar por el promedio redondeado.
			signedCost := pos.CostBasis
			if pos.Quantity.IsNegative() {
				signedCost = signedCost.Neg()
			}
			settlement := pos.Quantity.Mul(num).Div(den).Sub(signedCost)

			out.Status = domain.StatusSettled
			out.HasResolution = true
			out.ResolutionSource = res.Source
			out.SettlementPnL = settlement
			out.Realized = pos.RealizedPnL.Add(settlement)
			return out
		}
		if res.Valid() {
			slog.Warn("outcome index outside payout vector, treating market as unresolved",
				"condition_id", pos.Key.ConditionID.Short(),
				"outcome", pos.Key.OutcomeIndex,
				"payouts", len(res.PayoutNumerators),
			)
		}
	}

	if pos.IsFlat() {
		out.Status = domain.StatusClosed
		return out
	}

	out.Status = domain.StatusOpen
	if price == nil {
		return out
	}
	mark, ok := price.Mark()
	if !ok {
		return out
	}
	out.HasPrice = true
	out.MarkPrice = decimal.NewNullDecimal(mark)
	if e.stale(price.ObservedAt) {
		out.PriceStale = true
		return out
	}

	signedCost := pos.CostBasis
	if pos.Quantity.IsNegative() {
		signedCost = signedCost.Neg()
	}
	out.Unrealized = decimal.NewNullDecimal(pos.Quantity.Mul(mark).Sub(signedCost))
	return out
}

func (e *Engine) stale(observed time.Time) bool {
	if e.cfg.MaxPriceAge <= 0 || e.cfg.AsOf.IsZero() {
		return false
	}
	if observed.IsZero() {
		return true
	}
	return e.cfg.AsOf.Sub(observed) > e.cfg.MaxPriceAge
}
