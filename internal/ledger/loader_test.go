package ledger_test

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polypnl/internal/domain"
	"github.com/alejandrodnm/polypnl/internal/ledger"
)

const (
	wallet = "0x1111111111111111111111111111111111111111"
	market = "c0ffee00000000000000000000000000000000000000000000000000000000aa"
	txHash = "0xfeed"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func raw(id string, side string, shares, price string, at time.Time) domain.RawFill {
	return domain.RawFill{
		ID:        id,
		TxHash:    txHash,
		Wallet:    wallet,
		MarketID:  "0x" + market,
		Side:      side,
		Shares:    d(shares),
		Price:     d(price),
		Timestamp: at,
	}
}

func TestLoad_MultiFillTransactionSurvivesDedup(t *testing.T) {
	// 11 fills de la misma transacción y timestamp, con tamaños distintos:
	// todos son legítimos y deben sobrevivir.
	sizes := []string{"99.99", "264", "5", "0.25272", "150", "3.9", "3.9", "3.9", "4.056", "4.54272", "25.62534"}
	prices := []string{"0.50", "0.50", "0.50", "0.50", "0.50", "0.51", "0.52", "0.53", "0.50", "0.50", "0.50"}

	var raws []domain.RawFill
	for i, s := range sizes {
		// mismo "trade id" para todos: la fuente no lo garantiza único
		raws = append(raws, raw("trade-1", "BUY", s, prices[i], t0))
	}

	res := ledger.NewLoader(ledger.DefaultConfig()).Load(raws)

	assert.Equal(t, 11, res.Accepted)
	assert.Equal(t, 0, res.Duplicates)
	assert.Empty(t, res.Rejects)
	require.Len(t, res.Groups, 1)
	for _, fills := range res.Groups {
		assert.Len(t, fills, 11)
	}
}

func TestLoad_ExactDuplicatesRemovedKeepingLatestIngest(t *testing.T) {
	a := raw("x", "BUY", "10", "0.4", t0)
	a.IngestSeq = 1
	b := a
	b.IngestSeq = 7
	b.ID = "x-reingested"
	c := raw("y", "BUY", "12", "0.4", t0)

	res := ledger.NewLoader(ledger.DefaultConfig()).Load([]domain.RawFill{a, b, c})

	assert.Equal(t, 1, res.Duplicates)
	assert.Equal(t, 2, res.Accepted)

	for _, fills := range res.Groups {
		require.Len(t, fills, 2)
		var kept domain.Fill
		for _, f := range fills {
			if f.Shares.Equal(d("10")) {
				kept = f
			}
		}
		assert.Equal(t, int64(7), kept.IngestSeq)
		assert.Equal(t, "x-reingested", kept.SourceID)
	}
}

func TestLoad_IdentifierFormatsGroupTogether(t *testing.T) {
	a := raw("a", "BUY", "10", "0.4", t0)
	b := raw("b", "SELL", "5", "0.5", t0.Add(time.Minute))
	b.MarketID = strings.ToUpper(market) // 64 chars sin prefijo
	b.Wallet = strings.ToUpper(wallet[2:])

	res := ledger.NewLoader(ledger.DefaultConfig()).Load([]domain.RawFill{b, a})

	require.Len(t, res.Groups, 1)
	keys := res.Keys()
	fills := res.Groups[keys[0]]
	require.Len(t, fills, 2)
	// ordenados por tiempo aunque la entrada venga desordenada
	assert.Equal(t, "a", fills[0].SourceID)
	assert.Equal(t, "b", fills[1].SourceID)
	assert.Equal(t, domain.MustConditionID(market), keys[0].ConditionID)
}

func TestLoad_Quarantine(t *testing.T) {
	missing := raw("m", "BUY", "1", "0.5", t0)
	missing.MarketID = "0x" + strings.Repeat("0", 64)

	badPrice := raw("p", "BUY", "1", "1.2", t0)
	negPrice := raw("n", "BUY", "1", "-0.1", t0)
	negShares := raw("s", "BUY", "-3", "0.5", t0)
	noSide := raw("u", "", "1", "0.5", t0)

	res := ledger.NewLoader(ledger.DefaultConfig()).Load([]domain.RawFill{missing, badPrice, negPrice, negShares, noSide})

	require.Len(t, res.Rejects, 5)
	reasons := map[string]domain.RejectReason{}
	for _, r := range res.Rejects {
		reasons[r.Raw.ID] = r.Reason
	}
	assert.Equal(t, domain.RejectMissingIdentifier, reasons["m"])
	assert.Equal(t, domain.RejectDataIntegrity, reasons["p"])
	assert.Equal(t, domain.RejectDataIntegrity, reasons["n"])
	assert.Equal(t, domain.RejectDataIntegrity, reasons["s"])
	assert.Equal(t, domain.RejectAmbiguousDirection, reasons["u"])
	assert.Empty(t, res.Groups)
}

func TestLoad_ConfigurablePriceBounds(t *testing.T) {
	cfg := ledger.DefaultConfig()
	cfg.Bounds = domain.PriceBounds{} // sin límites: estructuras no binarias
	res := ledger.NewLoader(cfg).Load([]domain.RawFill{raw("p", "BUY", "1", "2.5", t0)})
	assert.Empty(t, res.Rejects)
	assert.Equal(t, 1, res.Accepted)
}

func TestLoad_ZeroQuantityPassesThrough(t *testing.T) {
	res := ledger.NewLoader(ledger.DefaultConfig()).Load([]domain.RawFill{raw("z", "BUY", "0", "0.5", t0)})
	assert.Empty(t, res.Rejects)
	assert.Equal(t, 1, res.ZeroQuantity)
}

func TestLoad_SideInferredFromTransfers(t *testing.T) {
	buy := raw("i", "", "10", "0.4", t0)
	buy.Transfers = []domain.TransferLeg{
		{Counterparty: "0xexchange", Asset: domain.AssetUSDC, Amount: d("-4")},
		{Counterparty: "0xexchange", Asset: domain.AssetToken, Amount: d("10")},
	}
	unreliable := raw("j", "BUY", "10", "0.6", t0.Add(time.Second))
	unreliable.SideUnreliable = true
	unreliable.Transfers = []domain.TransferLeg{
		{Counterparty: "0xexchange", Asset: domain.AssetUSDC, Amount: d("6")},
		{Counterparty: "0xexchange", Asset: domain.AssetToken, Amount: d("-10")},
	}

	res := ledger.NewLoader(ledger.DefaultConfig()).Load([]domain.RawFill{buy, unreliable})
	require.Empty(t, res.Rejects)

	for _, fills := range res.Groups {
		require.Len(t, fills, 2)
		assert.Equal(t, domain.SideBuy, fills[0].Side)
		assert.Equal(t, domain.ConfidenceHigh, fills[0].Confidence)
		assert.Equal(t, domain.SideSell, fills[1].Side)
	}
}

func TestLoad_LowConfidenceInferenceRejected(t *testing.T) {
	f := raw("k", "", "10", "0.4", t0)
	f.Transfers = []domain.TransferLeg{
		{Counterparty: "0xa", Asset: domain.AssetUSDC, Amount: d("-2")},
		{Counterparty: "0xb", Asset: domain.AssetUSDC, Amount: d("-2")},
		{Counterparty: "0xc", Asset: domain.AssetToken, Amount: d("10")},
	}

	res := ledger.NewLoader(ledger.DefaultConfig()).Load([]domain.RawFill{f})
	require.Len(t, res.Rejects, 1)
	assert.Equal(t, domain.RejectAmbiguousDirection, res.Rejects[0].Reason)

	cfg := ledger.DefaultConfig()
	cfg.MinConfidence = domain.ConfidenceMedium
	res = ledger.NewLoader(cfg).Load([]domain.RawFill{f})
	assert.Empty(t, res.Rejects)
}

func TestInferSide(t *testing.T) {
	side, conf := ledger.InferSide(nil)
	assert.Equal(t, domain.Side(""), side)
	assert.Equal(t, domain.ConfidenceNone, conf)

	side, conf = ledger.InferSide([]domain.TransferLeg{
		{Asset: domain.AssetUSDC, Amount: d("-1")},
		{Asset: domain.AssetToken, Amount: d("2")},
	})
	assert.Equal(t, domain.SideBuy, side)
	assert.Equal(t, domain.ConfidenceLow, conf)
}
