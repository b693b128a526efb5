package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polypnl/internal/domain"
)

// maxRejectsListed limita el listado de cuarentena en consola; el total siempre se imprime.
const maxRejectsListed = 20

// Console implementa ports.Notifier.
type Console struct {
	out       io.Writer
	positions bool
}

// NewConsole crea un notificador que escribe a stdout.
// positions=true añade la tabla por posición.
func NewConsole(positions bool) *Console {
	return &Console{out: os.Stdout, positions: positions}
}

// NewConsoleWriter crea un notificador para tests.
func NewConsoleWriter(w io.Writer, positions bool) *Console {
	return &Console{out: w, positions: positions}
}

// Notify imprime resúmenes, posiciones, reconciliación y rechazos de una pasada.
func (c *Console) Notify(_ context.Context, run domain.RunResult) error {
	now := time.Now().Format("15:04:05")
	if len(run.Summaries) == 0 {
		fmt.Fprintf(c.out, "[%s] run %s: no wallets with fills\n", now, shortID(run.RunID))
		c.printRejects(run)
		return nil
	}

	fmt.Fprintf(c.out, "\n[%s] run %s on snapshot %s (%s) | %d wallets, %d positions, %d fills, %d rejected\n",
		now, shortID(run.RunID), shortID(run.SnapshotID), run.Method,
		len(run.Summaries), len(run.Positions), run.Accepted, len(run.Rejects))

	c.printSummaries(run.Summaries)
	if c.positions {
		c.printPositions(run.Positions)
	}
	if len(run.Reports) > 0 {
		c.printReconciliation(run.Reports)
	}
	c.printRejects(run)
	return nil
}

func (c *Console) printSummaries(summaries []domain.WalletSummary) {
	table := tablewriter.NewWriter(c.out)
	table.Header("Wallet", "Realized", "Unrealized", "Total", "Fees", "Trades", "Mkts", "Open", "Priced", "Settled", "Rej", "Grade")

	partial := false
	for _, s := range summaries {
		unrealized := usd(s.Unrealized)
		if !s.UnrealizedComplete() {
			unrealized += "*"
			partial = true
		}
		table.Append(
			s.Wallet.Short(),
			usd(s.Realized),
			unrealized,
			totalLabel(s),
			usd(s.FeesPaid),
			fmt.Sprintf("%d", s.TradeCount),
			fmt.Sprintf("%d", s.MarketCount),
			fmt.Sprintf("%d", s.OpenPositions),
			fmt.Sprintf("%.0f%%", s.PriceCoverage*100),
			fmt.Sprintf("%d", s.MarketsSettled),
			fmt.Sprintf("%d", s.RejectedFills),
			string(s.Grade),
		)
	}
	table.Render()

	if partial {
		fmt.Fprintln(c.out, "  * unrealized excludes open positions without a usable price")
	}
	fmt.Fprintln(c.out, "  Grade: FULL = all data present | PARTIAL = unpriced positions or rejected fills | LOW = price coverage below threshold")
}

func (c *Console) printPositions(positions []domain.PositionPnL) {
	if len(positions) == 0 {
		return
	}
	fmt.Fprintln(c.out, "\n=== POSITIONS ===")

	table := tablewriter.NewWriter(c.out)
	table.Header("Wallet", "Market", "Out", "Status", "Qty", "AvgCost", "Trading", "Settlement", "Unrealized", "Mark", "Source")
	for _, p := range positions {
		mark := "-"
		if p.MarkPrice.Valid {
			mark = p.MarkPrice.Decimal.StringFixed(4)
		}
		if p.PriceStale {
			mark = "stale"
		}
		table.Append(
			p.Wallet.Short(),
			p.ConditionID.Short(),
			fmt.Sprintf("%d", p.OutcomeIndex),
			string(p.Status),
			p.Quantity.String(),
			p.AvgCost.StringFixed(4),
			usd(p.TradingRealized),
			usd(p.SettlementPnL),
			nullUSD(p.Unrealized),
			mark,
			orDash(p.ResolutionSource),
		)
	}
	table.Render()
}

func (c *Console) printReconciliation(reports []domain.ReconciliationReport) {
	fmt.Fprintln(c.out, "\n=== RECONCILIATION ===")

	table := tablewriter.NewWriter(c.out)
	table.Header("Wallet", "Computed", "Reference", "Abs diff", "Pct diff", "Result", "Grade")

	counts := make(map[domain.ReconciliationClass]int)
	for _, r := range reports {
		counts[r.Classification]++
		pctLabel := "n/a"
		if r.PctDiff.Valid {
			pctLabel = r.PctDiff.Decimal.Mul(decimal.NewFromInt(100)).StringFixed(2) + "%"
		}
		table.Append(
			r.Wallet.Short(),
			usd(r.Computed),
			nullUSD(r.Reference),
			nullUSD(r.AbsDiff),
			pctLabel,
			string(r.Classification),
			string(r.Grade),
		)
	}
	table.Render()

	fmt.Fprintf(c.out, "  MATCH:%d DIVERGENT:%d NO_REFERENCE:%d\n",
		counts[domain.ReconcileMatch], counts[domain.ReconcileDivergent], counts[domain.ReconcileNoReference])
}

func (c *Console) printRejects(run domain.RunResult) {
	rejects := run.Rejects
	if len(rejects) == 0 {
		return
	}

	byReason := make(map[domain.RejectReason]int)
	for _, r := range rejects {
		byReason[r.Reason]++
	}
	reasons := make([]string, 0, len(byReason))
	for r, n := range byReason {
		reasons = append(reasons, fmt.Sprintf("%s:%d", r, n))
	}
	sort.Strings(reasons)

	fmt.Fprintf(c.out, "\n=== QUARANTINE (%d fills) %s ===\n", len(rejects), strings.Join(reasons, " "))
	if n := run.UnattributedRejects(); n > 0 {
		fmt.Fprintf(c.out, "  %d fills without a valid wallet are not counted in any summary\n", n)
	}
	for i, r := range rejects {
		if i >= maxRejectsListed {
			fmt.Fprintf(c.out, "  ... %d more\n", len(rejects)-maxRejectsListed)
			break
		}
		fmt.Fprintf(c.out, "  %-20s tx %-14s %-20s %v\n",
			truncate(r.Raw.ID, 20), truncate(r.Raw.TxHash, 14), r.Reason, r.Err)
	}
}

// PrintSnapshots lista las cabeceras de snapshots guardados.
func (c *Console) PrintSnapshots(infos []domain.SnapshotInfo) {
	if len(infos) == 0 {
		fmt.Fprintln(c.out, "no snapshots stored")
		return
	}
	table := tablewriter.NewWriter(c.out)
	table.Header("ID", "Label", "Created", "As of", "Wallets", "Fills", "Resolutions", "Prices")
	for _, s := range infos {
		table.Append(
			s.ID,
			orDash(s.Label),
			s.CreatedAt.Format("2006-01-02 15:04"),
			s.AsOf.Format("2006-01-02 15:04"),
			fmt.Sprintf("%d", len(s.Wallets)),
			fmt.Sprintf("%d", s.Fills),
			fmt.Sprintf("%d", s.Resolutions),
			fmt.Sprintf("%d", s.Prices),
		)
	}
	table.Render()
}

// --- helpers ---

// totalLabel nunca deja que un total incompleto parezca uno completo.
func totalLabel(s domain.WalletSummary) string {
	if s.Grade == domain.CoverageFull {
		return usd(s.Total)
	}
	return fmt.Sprintf("%s (%s)", usd(s.Total), s.Grade)
}

func usd(d decimal.Decimal) string {
	if d.IsNegative() {
		return "-$" + d.Neg().StringFixed(2)
	}
	return "$" + d.StringFixed(2)
}

func nullUSD(d decimal.NullDecimal) string {
	if !d.Valid {
		return "unknown"
	}
	return usd(d.Decimal)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
