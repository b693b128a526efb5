package polymarket

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/alejandrodnm/polypnl/internal/domain"
)

const gammaConditionMax = 20

// fetchGammaResolutions consulta Gamma en batches de condition ids y devuelve
// candidatos de los mercados cerrados con outcomePrices finales.
func (c *Client) fetchGammaResolutions(ctx context.Context, ids []domain.ConditionID) ([]domain.ResolutionCandidate, error) {
	var out []domain.ResolutionCandidate
	failed := 0

	for i := 0; i < len(ids); i += gammaConditionMax {
		end := min(i+gammaConditionMax, len(ids))

		q := url.Values{}
		for _, id := range ids[i:end] {
			q.Add("condition_ids", id.Hex())
		}
		q.Set("closed", "true")
		q.Set("limit", fmt.Sprint(gammaConditionMax))

		var resp []gammaMarket
		if err := c.get(ctx, c.gammaLimiter, "gamma_markets", c.gammaBase+"/markets?"+q.Encode(), &resp); err != nil {
			failed++
			slog.Debug("gamma batch failed, skipping",
				"batch", fmt.Sprintf("%d-%d", i, end),
				"err", err,
			)
			continue
		}

		for _, gm := range resp {
			if cand, ok := mapGammaResolution(gm); ok {
				out = append(out, cand)
			}
		}
	}

	if failed > 0 && len(out) == 0 {
		return nil, fmt.Errorf("gamma.fetchGammaResolutions: %d batches failed", failed)
	}
	return out, nil
}
