package settlement_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polypnl/internal/domain"
	"github.com/alejandrodnm/polypnl/internal/settlement"
)

var (
	key = domain.PositionKey{
		Wallet:       domain.MustWallet("0x3333333333333333333333333333333333333333"),
		ConditionID:  domain.MustConditionID("bb00000000000000000000000000000000000000000000000000000000000001"),
		OutcomeIndex: 0,
	}
	asOf = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func position(qty, cost, realized string) domain.Position {
	p := domain.NewPosition(key)
	p.Quantity = d(qty)
	p.CostBasis = d(cost)
	p.RealizedPnL = d(realized)
	p.FillCount = 1
	return p
}

func yesWins() *domain.Resolution {
	return &domain.Resolution{
		ConditionID:       key.ConditionID,
		WinningIndex:      0,
		PayoutNumerators:  []int64{1, 0},
		PayoutDenominator: 1,
		Source:            "onchain",
	}
}

func TestSettle_WinnerPaysOneMinusCost(t *testing.T) {
	e := settlement.New(settlement.Config{})
	out := e.Settle(position("100", "37", "0"), yesWins(), nil)

	assert.Equal(t, domain.StatusSettled, out.Status)
	assert.True(t, d("63").Equal(out.SettlementPnL), out.SettlementPnL.String())
	assert.True(t, d("63").Equal(out.Realized))
	assert.False(t, out.Unrealized.Valid)
	assert.Equal(t, "onchain", out.ResolutionSource)
}

func TestSettle_LoserLosesCost(t *testing.T) {
	p := position("100", "37", "0")
	p.Key.OutcomeIndex = 1
	out := settlement.New(settlement.Config{}).Settle(p, yesWins(), nil)
	assert.True(t, d("-37").Equal(out.SettlementPnL))
}

func TestSettle_ShortOnWinner(t *testing.T) {
	// short 10 vendido a 0.3: debe pagar 1 por share
	out := settlement.New(settlement.Config{}).Settle(position("-10", "3", "0"), yesWins(), nil)
	assert.True(t, d("-7").Equal(out.SettlementPnL), out.SettlementPnL.String())
}

func TestSettle_ResolutionClosesEvenWithPrice(t *testing.T) {
	price := &domain.Price{Mid: decimal.NewNullDecimal(d("0.99")), ObservedAt: asOf}
	out := settlement.New(settlement.Config{}).Settle(position("50", "30", "10"), yesWins(), price)

	assert.Equal(t, domain.StatusSettled, out.Status)
	assert.False(t, out.Unrealized.Valid)
	assert.True(t, d("30").Equal(out.Realized), out.Realized.String())
	assert.True(t, d("10").Equal(out.TradingRealized))
}

func TestSettle_OpenWithoutPriceIsUnknown(t *testing.T) {
	out := settlement.New(settlement.Config{}).Settle(position("10", "4", "0"), nil, nil)
	assert.Equal(t, domain.StatusOpen, out.Status)
	assert.False(t, out.Unrealized.Valid)
	assert.False(t, out.HasPrice)
}

func TestSettle_OpenMarkedToMarket(t *testing.T) {
	price := &domain.Price{
		Bid:        decimal.NewNullDecimal(d("0.50")),
		Ask:        decimal.NewNullDecimal(d("0.60")),
		ObservedAt: asOf.Add(-time.Minute),
	}
	e := settlement.New(settlement.Config{MaxPriceAge: time.Hour, AsOf: asOf})
	out := e.Settle(position("10", "4", "0"), nil, price)

	require.True(t, out.Unrealized.Valid)
	// 10 × 0.55 − 4
	assert.True(t, d("1.5").Equal(out.Unrealized.Decimal), out.Unrealized.Decimal.String())
	assert.True(t, d("0.55").Equal(out.MarkPrice.Decimal))
}

func TestSettle_StalePriceIsUnknown(t *testing.T) {
	price := &domain.Price{Mid: decimal.NewNullDecimal(d("0.5")), ObservedAt: asOf.Add(-48 * time.Hour)}
	e := settlement.New(settlement.Config{MaxPriceAge: time.Hour, AsOf: asOf})
	out := e.Settle(position("10", "4", "0"), nil, price)

	assert.True(t, out.PriceStale)
	assert.False(t, out.Unrealized.Valid)
}

func TestSettle_FlatUnresolvedIsClosed(t *testing.T) {
	out := settlement.New(settlement.Config{}).Settle(position("0", "0", "2.5"), nil, nil)
	assert.Equal(t, domain.StatusClosed, out.Status)
	assert.True(t, d("2.5").Equal(out.Realized))
}

func TestSettle_OutcomeOutsidePayoutVectorIsUnresolved(t *testing.T) {
	p := position("10", "4", "0")
	p.Key.OutcomeIndex = 5
	out := settlement.New(settlement.Config{}).Settle(p, yesWins(), nil)
	assert.Equal(t, domain.StatusOpen, out.Status)
	assert.False(t, out.HasResolution)
}
