// Package aggregate suma los registros por posición en resúmenes por wallet.
package aggregate

import (
	"log/slog"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polypnl/internal/domain"
)

// DefaultLowCoverage es la cobertura de precios bajo la cual un total es LOW.
const DefaultLowCoverage = 0.8

// Config controla la asignación del grado de cobertura.
type Config struct {
	LowCoverage float64
}

// Aggregator construye WalletSummary a partir de PositionPnL.
type Aggregator struct {
	cfg Config
}

// New crea un Aggregator. Un umbral fuera de (0,1] usa DefaultLowCoverage.
func New(cfg Config) *Aggregator {
	if cfg.LowCoverage <= 0 || cfg.LowCoverage > 1 {
		cfg.LowCoverage = DefaultLowCoverage
	}
	return &Aggregator{cfg: cfg}
}

// Wallets agrega por wallet. Las posiciones con unrealized desconocido no
// suman cero: quedan fuera del total y bajan la cobertura. Los rechazos se
// atribuyen a su wallet si ésta es normalizable. El resultado va ordenado por wallet.
func (a *Aggregator) Wallets(positions []domain.PositionPnL, rejects []domain.RejectedFill) []domain.WalletSummary {
	type acc struct {
		sum     domain.WalletSummary
		markets map[domain.ConditionID]struct{}
		settled map[domain.ConditionID]struct{}
	}
	byWallet := make(map[domain.Wallet]*acc)
	get := func(w domain.Wallet) *acc {
		if x, ok := byWallet[w]; ok {
			return x
		}
		x := &acc{
			sum: domain.WalletSummary{
				Wallet:     w,
				Realized:   decimal.Zero,
				Unrealized: decimal.Zero,
				Total:      decimal.Zero,
				FeesPaid:   decimal.Zero,
			},
			markets: make(map[domain.ConditionID]struct{}),
			settled: make(map[domain.ConditionID]struct{}),
		}
		byWallet[w] = x
		return x
	}

	for _, p := range positions {
		x := get(p.Wallet)
		s := &x.sum
		s.PositionCount++
		s.TradeCount += p.FillCount
		s.Realized = s.Realized.Add(p.Realized)
		s.FeesPaid = s.FeesPaid.Add(p.FeesPaid)
		x.markets[p.ConditionID] = struct{}{}

		switch p.Status {
		case domain.StatusSettled:
			x.settled[p.ConditionID] = struct{}{}
		case domain.StatusOpen:
			s.OpenPositions++
			if p.Unrealized.Valid {
				s.OpenPriced++
				s.Unrealized = s.Unrealized.Add(p.Unrealized.Decimal)
			} else {
				s.OpenUnpriced++
			}
		}
	}

	for _, r := range rejects {
		w, err := domain.NormalizeWallet(r.Raw.Wallet)
		if err != nil {
			// sin wallet no hay resumen donde contarlo; RunResult.UnattributedRejects lo expone
			slog.Debug("reject without attributable wallet",
				"id", r.Raw.ID,
				"wallet", r.Raw.Wallet,
				"reason", r.Reason,
			)
			continue
		}
		get(w).sum.RejectedFills++
	}

	out := make([]domain.WalletSummary, 0, len(byWallet))
	for _, x := range byWallet {
		s := x.sum
		s.MarketCount = len(x.markets)
		s.MarketsSettled = len(x.settled)
		s.Total = s.Realized.Add(s.Unrealized)

		s.PriceCoverage = 1
		if s.OpenPositions > 0 {
			s.PriceCoverage = float64(s.OpenPriced) / float64(s.OpenPositions)
		}
		s.ResolutionCoverage = 0
		if s.MarketCount > 0 {
			s.ResolutionCoverage = float64(s.MarketsSettled) / float64(s.MarketCount)
		}
		s.Grade = a.grade(s)
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Wallet < out[j].Wallet })
	return out
}

func (a *Aggregator) grade(s domain.WalletSummary) domain.CoverageGrade {
	switch {
	case s.PriceCoverage < a.cfg.LowCoverage:
		return domain.CoverageLow
	case s.OpenUnpriced > 0 || s.RejectedFills > 0:
		return domain.CoveragePartial
	}
	return domain.CoverageFull
}
