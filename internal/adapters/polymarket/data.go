package polymarket

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/alejandrodnm/polypnl/internal/domain"
)

const (
	tradesPerPage  = 500
	tradesMaxPages = 200
)

// FetchFills obtiene todos los fills de una wallet de la Data API pública,
// paginando por offset hasta agotar resultados. Las filas con números
// ilegibles se descartan con un warning; el resto de la validación es del loader.
func (c *Client) FetchFills(ctx context.Context, wallet string) ([]domain.RawFill, error) {
	var all []domain.RawFill
	skipped := 0

	for page := 0; page < tradesMaxPages; page++ {
		q := url.Values{}
		q.Set("user", wallet)
		q.Set("limit", fmt.Sprint(tradesPerPage))
		q.Set("offset", fmt.Sprint(page*tradesPerPage))
		q.Set("takerOnly", "false")

		var resp []dataTrade
		if err := c.get(ctx, c.dataLimiter, "data_trades", c.dataBase+"/trades?"+q.Encode(), &resp); err != nil {
			return nil, fmt.Errorf("data-api.FetchFills: %w", err)
		}
		if len(resp) == 0 {
			break
		}

		for _, t := range resp {
			f, err := mapDataTrade(t)
			if err != nil {
				skipped++
				slog.Warn("unreadable trade skipped", "tx", t.TransactionHash, "err", err)
				continue
			}
			all = append(all, f)
		}

		slog.Debug("fetched trades page",
			"wallet", wallet,
			"page", page,
			"count", len(resp),
			"total", len(all),
		)

		if len(resp) < tradesPerPage {
			break
		}
	}

	slog.Info("wallet fills fetched", "wallet", wallet, "fills", len(all), "skipped", skipped)
	return all, nil
}
