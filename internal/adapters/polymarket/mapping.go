package polymarket

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polypnl/internal/domain"
)

// payoutScale es el denominador con el que se expresan los payouts derivados
// de precios decimales (USDC tiene 6 decimales).
const payoutScale = 1_000_000

// mapDataTrade convierte un trade de la Data API a RawFill. La Data API no
// informa fees: van a cero.
func mapDataTrade(t dataTrade) (domain.RawFill, error) {
	size, err := decimal.NewFromString(t.Size.String())
	if err != nil {
		return domain.RawFill{}, fmt.Errorf("size %q: %w", t.Size, err)
	}
	price, err := decimal.NewFromString(t.Price.String())
	if err != nil {
		return domain.RawFill{}, fmt.Errorf("price %q: %w", t.Price, err)
	}
	return domain.RawFill{
		ID:           fmt.Sprintf("%s:%s:%s", t.TransactionHash, t.Asset, t.Timestamp),
		TxHash:       t.TransactionHash,
		Wallet:       t.ProxyWallet,
		MarketID:     t.ConditionID,
		OutcomeIndex: t.OutcomeIndex,
		Side:         t.Side,
		Shares:       size,
		Price:        price,
		Fee:          decimal.Zero,
		Timestamp:    parseTradeTimestamp(t.Timestamp),
	}, nil
}

// mapCLOBResolution deriva un candidato de los flags winner del CLOB. Sólo
// mercados cerrados con exactamente un ganador.
func mapCLOBResolution(m clobMarket) (domain.ResolutionCandidate, bool) {
	if !m.Closed || len(m.Tokens) == 0 {
		return domain.ResolutionCandidate{}, false
	}
	nums := make([]int64, len(m.Tokens))
	winner := -1
	for i, t := range m.Tokens {
		if t.Winner {
			if winner >= 0 {
				return domain.ResolutionCandidate{}, false
			}
			winner = i
			nums[i] = 1
		}
	}
	if winner < 0 {
		return domain.ResolutionCandidate{}, false
	}
	return domain.ResolutionCandidate{
		MarketID:          m.ConditionID,
		WinningIndex:      winner,
		PayoutNumerators:  nums,
		PayoutDenominator: 1,
		ResolvedAt:        parseISODate(m.EndDateISO),
		Source:            "clob",
	}, true
}

// mapGammaResolution convierte outcomePrices de un mercado cerrado en un
// vector de payout. Con umaResolutionStatus "resolved" se acepta cualquier
// vector que sume 1 (p. ej. 50/50); sin estado UMA sólo un vector 0/1 puro.
// Un mercado cerrado al trading pero aún sin liquidar no produce candidato.
func mapGammaResolution(m gammaMarket) (domain.ResolutionCandidate, bool) {
	if !m.Closed {
		return domain.ResolutionCandidate{}, false
	}
	settled := m.UMAResolutionStatus == "resolved"
	if !settled && m.UMAResolutionStatus != "" {
		return domain.ResolutionCandidate{}, false
	}
	var raw []string
	if err := json.Unmarshal([]byte(m.OutcomePrices), &raw); err != nil || len(raw) == 0 {
		return domain.ResolutionCandidate{}, false
	}

	scale := decimal.NewFromInt(payoutScale)
	nums := make([]int64, len(raw))
	sum := decimal.Zero
	for i, s := range raw {
		p, err := decimal.NewFromString(strings.TrimSpace(s))
		if err != nil || p.IsNegative() {
			return domain.ResolutionCandidate{}, false
		}
		if !settled && !p.IsZero() && !p.Equal(decimal.NewFromInt(1)) {
			return domain.ResolutionCandidate{}, false
		}
		scaled := p.Mul(scale)
		if !scaled.Equal(scaled.Truncate(0)) {
			return domain.ResolutionCandidate{}, false
		}
		nums[i] = scaled.IntPart()
		sum = sum.Add(p)
	}
	if !sum.Equal(decimal.NewFromInt(1)) {
		return domain.ResolutionCandidate{}, false
	}
	return domain.ResolutionCandidate{
		MarketID:          m.ConditionID,
		WinningIndex:      -1,
		PayoutNumerators:  nums,
		PayoutDenominator: payoutScale,
		ResolvedAt:        parseISODate(m.ClosedTime),
		Source:            "gamma",
	}, true
}

// parseDecimal convierte un json.Number a decimal; ok=false si falta o es inválido.
func parseDecimal(n json.Number) (decimal.Decimal, bool) {
	if n == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(n.String())
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

func parseTradeTimestamp(n json.Number) time.Time {
	s := n.String()
	// unix en segundos o milisegundos
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
		if sec > 1e12 {
			return time.Unix(sec/1000, (sec%1000)*int64(time.Millisecond)).UTC()
		}
		return time.Unix(sec, 0).UTC()
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		sec := int64(f)
		nsec := int64((f - float64(sec)) * 1e9)
		return time.Unix(sec, nsec).UTC()
	}
	return parseISODate(s)
}

// parseISODate prueba los formatos que usa Polymarket; zero time si ninguno encaja.
func parseISODate(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{
		time.RFC3339Nano, time.RFC3339,
		"2006-01-02T15:04:05.000Z", "2006-01-02 15:04:05-07", "2006-01-02",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
