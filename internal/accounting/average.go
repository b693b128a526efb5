package accounting

import (
	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polypnl/internal/domain"
)

// averageBook aplica coste medio ponderado.
//
// El coste base se guarda como total (|qty| × coste medio) y no como precio
// medio redondeado: en un cierre total se retira exactamente el coste que
// queda, así la suma del P&L realizado de una posición que vuelve a cero es
// ingresos − costes − fees sin residuo de redondeo.
type averageBook struct {
	ledgerState
}

func (b *averageBook) Apply(f domain.Fill) (*domain.PnLEvent, error) {
	skip, err := b.admit(f)
	if err != nil || skip {
		return nil, err
	}

	p := &b.pos
	qty := f.SignedShares()
	notional := f.Shares.Mul(f.Price)

	// Abrir desde plano o aumentar en la misma dirección.
	if p.Quantity.IsZero() || sameDirection(p.Quantity, qty) {
		p.Quantity = p.Quantity.Add(qty)
		p.CostBasis = p.CostBasis.Add(notional)
		return b.settle(f, "", decimal.Zero, decimal.Zero, decimal.Zero), nil
	}

	open := p.Quantity.Abs()
	sign := decimal.NewFromInt(int64(p.Quantity.Sign()))
	avg := p.AvgCost()

	// Cierre parcial o total: el coste medio de lo que queda no cambia.
	if f.Shares.LessThanOrEqual(open) {
		removed := p.CostBasis
		if f.Shares.LessThan(open) {
			removed = p.CostBasis.Mul(f.Shares).Div(open)
		}
		gross := notional.Sub(removed).Mul(sign)
		p.Quantity = p.Quantity.Add(qty)
		p.CostBasis = p.CostBasis.Sub(removed)
		return b.settle(f, domain.EventClose, f.Shares, gross, avg), nil
	}

	// Cierre total + reversión: se realiza toda la posición y el resto abre
	// en sentido contrario al precio del fill.
	gross := open.Mul(f.Price).Sub(p.CostBasis).Mul(sign)
	remaining := f.Shares.Sub(open)
	p.Quantity = remaining.Mul(decimal.NewFromInt(int64(f.Side.Sign())))
	p.CostBasis = remaining.Mul(f.Price)
	return b.settle(f, domain.EventReverse, open, gross, avg), nil
}
