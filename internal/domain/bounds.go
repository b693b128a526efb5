package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// PriceBounds acota los precios válidos de un fill. Los mercados binarios
// cotizan en [0,1], pero los límites son configurables para estructuras de
// reward no binarias. Un límite con Valid=false no se aplica.
type PriceBounds struct {
	Min decimal.NullDecimal
	Max decimal.NullDecimal
}

// ProbabilityBounds devuelve los límites [0,1] de un mercado binario.
func ProbabilityBounds() PriceBounds {
	return PriceBounds{
		Min: decimal.NewNullDecimal(decimal.Zero),
		Max: decimal.NewNullDecimal(decimal.NewFromInt(1)),
	}
}

// Check devuelve ErrDataIntegrity si el precio cae fuera de los límites.
// Un precio negativo es siempre inválido.
func (b PriceBounds) Check(price decimal.Decimal) error {
	if price.IsNegative() {
		return fmt.Errorf("%w: negative price %s", ErrDataIntegrity, price)
	}
	if b.Min.Valid && price.LessThan(b.Min.Decimal) {
		return fmt.Errorf("%w: price %s below %s", ErrDataIntegrity, price, b.Min.Decimal)
	}
	if b.Max.Valid && price.GreaterThan(b.Max.Decimal) {
		return fmt.Errorf("%w: price %s above %s", ErrDataIntegrity, price, b.Max.Decimal)
	}
	return nil
}
