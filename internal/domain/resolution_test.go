package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestResolution_Valid(t *testing.T) {
	assert.True(t, Resolution{PayoutNumerators: []int64{1, 0}, PayoutDenominator: 1}.Valid())
	assert.True(t, Resolution{PayoutNumerators: []int64{1, 1}, PayoutDenominator: 2}.Valid())

	// Placeholders malformados equivalen a "no resuelto"
	assert.False(t, Resolution{PayoutNumerators: []int64{1, 0}, PayoutDenominator: 0}.Valid())
	assert.False(t, Resolution{PayoutNumerators: nil, PayoutDenominator: 1}.Valid())
	assert.False(t, Resolution{PayoutNumerators: []int64{0, 0}, PayoutDenominator: 1}.Valid())
	assert.False(t, Resolution{PayoutNumerators: []int64{-1, 2}, PayoutDenominator: 1}.Valid())
}

func TestResolution_Payout(t *testing.T) {
	r := Resolution{PayoutNumerators: []int64{0, 1}, PayoutDenominator: 1}

	num, den, ok := r.Payout(1)
	assert.True(t, ok)
	assert.True(t, num.Equal(decimal.NewFromInt(1)))
	assert.True(t, den.Equal(decimal.NewFromInt(1)))

	_, _, ok = r.Payout(2)
	assert.False(t, ok)
}

func TestResolution_SamePayout(t *testing.T) {
	a := Resolution{PayoutNumerators: []int64{1, 0}, PayoutDenominator: 1}
	b := Resolution{PayoutNumerators: []int64{1000000, 0}, PayoutDenominator: 1000000}
	c := Resolution{PayoutNumerators: []int64{0, 1}, PayoutDenominator: 1}
	assert.True(t, a.SamePayout(b))
	assert.False(t, a.SamePayout(c))
}

func TestPrice_Mark(t *testing.T) {
	d := decimal.RequireFromString
	p := Price{
		Bid: decimal.NewNullDecimal(d("0.40")),
		Ask: decimal.NewNullDecimal(d("0.44")),
	}
	mark, ok := p.Mark()
	assert.True(t, ok)
	assert.True(t, mark.Equal(d("0.42")))

	p.Mid = decimal.NewNullDecimal(d("0.5"))
	mark, _ = p.Mark()
	assert.True(t, mark.Equal(d("0.5")))

	_, ok = Price{}.Mark()
	assert.False(t, ok)
}
