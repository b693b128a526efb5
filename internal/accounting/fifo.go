package accounting

import (
	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polypnl/internal/domain"
)

type lot struct {
	qty   decimal.Decimal // siempre positivo
	price decimal.Decimal
}

// fifoBook consume lotes en orden de apertura. Todas las operaciones son
// multiplicaciones y sumas, así que el P&L es exacto sin divisiones.
type fifoBook struct {
	ledgerState
	lots []lot
}

func (b *fifoBook) Apply(f domain.Fill) (*domain.PnLEvent, error) {
	skip, err := b.admit(f)
	if err != nil || skip {
		return nil, err
	}

	p := &b.pos
	qty := f.SignedShares()

	if p.Quantity.IsZero() || sameDirection(p.Quantity, qty) {
		b.lots = append(b.lots, lot{qty: f.Shares, price: f.Price})
		p.Quantity = p.Quantity.Add(qty)
		p.CostBasis = p.CostBasis.Add(f.Shares.Mul(f.Price))
		return b.settle(f, "", decimal.Zero, decimal.Zero, decimal.Zero), nil
	}

	sign := decimal.NewFromInt(int64(p.Quantity.Sign()))
	open := p.Quantity.Abs()
	remaining := f.Shares
	closed := decimal.Zero
	removed := decimal.Zero

	for len(b.lots) > 0 && remaining.IsPositive() {
		l := &b.lots[0]
		take := decimal.Min(l.qty, remaining)
		closed = closed.Add(take)
		removed = removed.Add(take.Mul(l.price))
		remaining = remaining.Sub(take)
		l.qty = l.qty.Sub(take)
		if l.qty.IsZero() {
			b.lots = b.lots[1:]
		}
	}

	gross := closed.Mul(f.Price).Sub(removed).Mul(sign)
	avg := removed.Div(closed)
	p.CostBasis = p.CostBasis.Sub(removed)

	if remaining.IsPositive() {
		// Reversión: el sobrante abre un lote nuevo en sentido contrario.
		b.lots = append(b.lots[:0], lot{qty: remaining, price: f.Price})
		p.Quantity = remaining.Mul(decimal.NewFromInt(int64(f.Side.Sign())))
		p.CostBasis = remaining.Mul(f.Price)
		return b.settle(f, domain.EventReverse, open, gross, avg), nil
	}

	p.Quantity = p.Quantity.Add(qty)
	return b.settle(f, domain.EventClose, closed, gross, avg), nil
}
