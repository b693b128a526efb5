package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polypnl/internal/domain"
)

// Los importes viajan como strings decimales; null significa desconocido.

type snapshotJSON struct {
	ID          string    `json:"id"`
	Label       string    `json:"label,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	AsOf        time.Time `json:"as_of"`
	Wallets     []string  `json:"wallets"`
	Fills       int       `json:"fills"`
	Resolutions int       `json:"resolutions"`
	Prices      int       `json:"prices"`
}

func toSnapshotJSON(s domain.SnapshotInfo) snapshotJSON {
	wallets := s.Wallets
	if wallets == nil {
		wallets = []string{}
	}
	return snapshotJSON{
		ID:          s.ID,
		Label:       s.Label,
		CreatedAt:   s.CreatedAt,
		AsOf:        s.AsOf,
		Wallets:     wallets,
		Fills:       s.Fills,
		Resolutions: s.Resolutions,
		Prices:      s.Prices,
	}
}

type walletJSON struct {
	RunID          string      `json:"run_id"`
	SnapshotID     string      `json:"snapshot_id"`
	ComputedAt     time.Time   `json:"computed_at"`
	Method         string      `json:"method"`
	Summary        summaryJSON `json:"summary"`
	Reconciliation *reportJSON `json:"reconciliation,omitempty"`
}

type summaryJSON struct {
	Wallet             string          `json:"wallet"`
	Realized           decimal.Decimal `json:"realized"`
	Unrealized         decimal.Decimal `json:"unrealized"`
	UnrealizedComplete bool            `json:"unrealized_complete"`
	Total              decimal.Decimal `json:"total"`
	FeesPaid           decimal.Decimal `json:"fees_paid"`
	TradeCount         int             `json:"trade_count"`
	MarketCount        int             `json:"market_count"`
	PositionCount      int             `json:"position_count"`
	OpenPositions      int             `json:"open_positions"`
	OpenUnpriced       int             `json:"open_unpriced"`
	MarketsSettled     int             `json:"markets_settled"`
	RejectedFills      int             `json:"rejected_fills"`
	PriceCoverage      float64         `json:"price_coverage"`
	ResolutionCoverage float64         `json:"resolution_coverage"`
	Grade              string          `json:"grade"`
}

func toSummaryJSON(s domain.WalletSummary) summaryJSON {
	return summaryJSON{
		Wallet:             s.Wallet.String(),
		Realized:           s.Realized,
		Unrealized:         s.Unrealized,
		UnrealizedComplete: s.UnrealizedComplete(),
		Total:              s.Total,
		FeesPaid:           s.FeesPaid,
		TradeCount:         s.TradeCount,
		MarketCount:        s.MarketCount,
		PositionCount:      s.PositionCount,
		OpenPositions:      s.OpenPositions,
		OpenUnpriced:       s.OpenUnpriced,
		MarketsSettled:     s.MarketsSettled,
		RejectedFills:      s.RejectedFills,
		PriceCoverage:      s.PriceCoverage,
		ResolutionCoverage: s.ResolutionCoverage,
		Grade:              string(s.Grade),
	}
}

type reportJSON struct {
	Computed       decimal.Decimal     `json:"computed"`
	Reference      decimal.NullDecimal `json:"reference"`
	AbsDiff        decimal.NullDecimal `json:"abs_diff"`
	PctDiff        decimal.NullDecimal `json:"pct_diff"`
	Classification string              `json:"classification"`
	Source         string              `json:"source,omitempty"`
}

func toReportJSON(r domain.ReconciliationReport) reportJSON {
	return reportJSON{
		Computed:       r.Computed,
		Reference:      r.Reference,
		AbsDiff:        r.AbsDiff,
		PctDiff:        r.PctDiff,
		Classification: string(r.Classification),
		Source:         r.Source,
	}
}

type positionJSON struct {
	ConditionID      string              `json:"condition_id"`
	OutcomeIndex     int                 `json:"outcome_index"`
	Status           string              `json:"status"`
	Quantity         decimal.Decimal     `json:"quantity"`
	AvgCost          decimal.Decimal     `json:"avg_cost"`
	TradingRealized  decimal.Decimal     `json:"trading_realized"`
	SettlementPnL    decimal.Decimal     `json:"settlement_pnl"`
	Realized         decimal.Decimal     `json:"realized"`
	Unrealized       decimal.NullDecimal `json:"unrealized"`
	MarkPrice        decimal.NullDecimal `json:"mark_price"`
	PriceStale       bool                `json:"price_stale,omitempty"`
	FeesPaid         decimal.Decimal     `json:"fees_paid"`
	FillCount        int                 `json:"fill_count"`
	ResolutionSource string              `json:"resolution_source,omitempty"`
}

func toPositionJSON(p domain.PositionPnL) positionJSON {
	return positionJSON{
		ConditionID:      p.ConditionID.Hex(),
		OutcomeIndex:     p.OutcomeIndex,
		Status:           string(p.Status),
		Quantity:         p.Quantity,
		AvgCost:          p.AvgCost,
		TradingRealized:  p.TradingRealized,
		SettlementPnL:    p.SettlementPnL,
		Realized:         p.Realized,
		Unrealized:       p.Unrealized,
		MarkPrice:        p.MarkPrice,
		PriceStale:       p.PriceStale,
		FeesPaid:         p.FeesPaid,
		FillCount:        p.FillCount,
		ResolutionSource: p.ResolutionSource,
	}
}
