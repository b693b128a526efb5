// Package reconcile compara los totales calculados contra una cifra de
// referencia externa y actúa como gate de regresión.
package reconcile

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polypnl/internal/domain"
)

// ErrDivergence lo devuelve Gate cuando alguna wallet diverge.
var ErrDivergence = errors.New("reconciliation divergence")

// Config fija las tolerancias. Una wallet es MATCH si la diferencia absoluta
// cabe en AbsTolerance o la relativa (fracción, 0.01 = 1%) en PctTolerance.
type Config struct {
	AbsTolerance     decimal.Decimal
	PctTolerance     decimal.Decimal
	RequireReference bool // Gate falla también ante NO_REFERENCE
}

// DefaultConfig: 1 USDC o 1%.
func DefaultConfig() Config {
	return Config{
		AbsTolerance: decimal.NewFromInt(1),
		PctTolerance: decimal.RequireFromString("0.01"),
	}
}

// Reporter produce ReconciliationReport.
type Reporter struct {
	cfg Config
}

// NewReporter crea un Reporter.
func NewReporter(cfg Config) *Reporter {
	return &Reporter{cfg: cfg}
}

// Compare clasifica una wallet. ref nil produce NO_REFERENCE.
func (r *Reporter) Compare(s domain.WalletSummary, ref *domain.ReferencePnL) domain.ReconciliationReport {
	rep := domain.ReconciliationReport{
		Wallet:         s.Wallet,
		Computed:       s.Total,
		Classification: domain.ReconcileNoReference,
		Grade:          s.Grade,
	}
	if ref == nil {
		return rep
	}

	diff := s.Total.Sub(ref.Total).Abs()
	rep.Source = ref.Source
	rep.Reference = decimal.NewNullDecimal(ref.Total)
	rep.AbsDiff = decimal.NewNullDecimal(diff)

	match := diff.LessThanOrEqual(r.cfg.AbsTolerance)
	if !ref.Total.IsZero() {
		pct := diff.Div(ref.Total.Abs())
		rep.PctDiff = decimal.NewNullDecimal(pct)
		match = match || pct.LessThanOrEqual(r.cfg.PctTolerance)
	}

	rep.Classification = domain.ReconcileDivergent
	if match {
		rep.Classification = domain.ReconcileMatch
	}
	return rep
}

// CompareAll reconcilia cada resumen con su referencia (si existe).
func (r *Reporter) CompareAll(summaries []domain.WalletSummary, refs []domain.ReferencePnL) []domain.ReconciliationReport {
	byWallet := make(map[domain.Wallet]domain.ReferencePnL, len(refs))
	for _, ref := range refs {
		byWallet[ref.Wallet] = ref
	}
	out := make([]domain.ReconciliationReport, 0, len(summaries))
	for _, s := range summaries {
		if ref, ok := byWallet[s.Wallet]; ok {
			out = append(out, r.Compare(s, &ref))
			continue
		}
		out = append(out, r.Compare(s, nil))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Wallet < out[j].Wallet })
	return out
}

// Gate devuelve ErrDivergence si algún reporte diverge.
func (r *Reporter) Gate(reports []domain.ReconciliationReport) error {
	var bad []string
	for _, rep := range reports {
		switch rep.Classification {
		case domain.ReconcileDivergent:
			bad = append(bad, fmt.Sprintf("%s (computed %s, reference %s)",
				rep.Wallet, rep.Computed.StringFixed(2), rep.Reference.Decimal.StringFixed(2)))
		case domain.ReconcileNoReference:
			if r.cfg.RequireReference {
				bad = append(bad, fmt.Sprintf("%s (no reference)", rep.Wallet))
			}
		}
	}
	if len(bad) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %d of %d wallets: %s", ErrDivergence, len(bad), len(reports), strings.Join(bad, "; "))
}

// Summary cuenta reportes por clasificación.
func Summary(reports []domain.ReconciliationReport) map[domain.ReconciliationClass]int {
	out := make(map[domain.ReconciliationClass]int, 3)
	for _, rep := range reports {
		out[rep.Classification]++
	}
	return out
}
