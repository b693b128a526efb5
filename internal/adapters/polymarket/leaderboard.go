package polymarket

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/alejandrodnm/polypnl/internal/domain"
)

// FetchReference obtiene el P&L total publicado por el leaderboard de
// Polymarket para la wallet (ventana "all").
func (c *Client) FetchReference(ctx context.Context, wallet domain.Wallet) (domain.ReferencePnL, bool, error) {
	q := url.Values{}
	q.Set("window", "all")
	q.Set("limit", "1")
	q.Set("address", wallet.String())

	var resp []profitEntry
	err := c.get(ctx, c.dataLimiter, "lb_profit", c.lbBase+"/profit?"+q.Encode(), &resp)
	if errors.Is(err, errNotFound) {
		return domain.ReferencePnL{}, false, nil
	}
	if err != nil {
		return domain.ReferencePnL{}, false, fmt.Errorf("leaderboard.FetchReference: %w", err)
	}

	for _, e := range resp {
		if !strings.EqualFold(e.ProxyWallet, wallet.String()) {
			continue
		}
		amount, ok := parseDecimal(e.Amount)
		if !ok {
			return domain.ReferencePnL{}, false, nil
		}
		return domain.ReferencePnL{Wallet: wallet, Total: amount, Source: "leaderboard"}, true, nil
	}
	return domain.ReferencePnL{}, false, nil
}
