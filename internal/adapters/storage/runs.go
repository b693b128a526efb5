package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/alejandrodnm/polypnl/internal/domain"
)

// SaveRun persiste una pasada completa. Una pasada ya guardada no se reescribe.
func (s *SQLiteStorage) SaveRun(ctx context.Context, run domain.RunResult) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.SaveRun: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs (id, snapshot_id, computed_at, method, accepted, duplicates) VALUES (?, ?, ?, ?, ?, ?)`,
		run.RunID, run.SnapshotID, toNanos(run.ComputedAt), run.Method, run.Accepted, run.Duplicates,
	); err != nil {
		return fmt.Errorf("storage.SaveRun: insert run: %w", err)
	}

	if err := insertSummaries(ctx, tx, run.RunID, run.Summaries); err != nil {
		return fmt.Errorf("storage.SaveRun: %w", err)
	}
	if err := insertPositions(ctx, tx, run.RunID, run.Positions); err != nil {
		return fmt.Errorf("storage.SaveRun: %w", err)
	}
	if err := insertReports(ctx, tx, run.RunID, run.Reports); err != nil {
		return fmt.Errorf("storage.SaveRun: %w", err)
	}
	if err := insertRejects(ctx, tx, run.RunID, run.Rejects); err != nil {
		return fmt.Errorf("storage.SaveRun: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.SaveRun: commit: %w", err)
	}
	return nil
}

func insertSummaries(ctx context.Context, tx *sql.Tx, runID string, sums []domain.WalletSummary) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO run_summaries
			(run_id, wallet, realized, unrealized, total, fees_paid, trade_count, market_count,
			 position_count, open_positions, open_priced, open_unpriced, markets_settled,
			 rejected_fills, price_coverage, resolution_coverage, grade)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare summaries: %w", err)
	}
	defer stmt.Close()

	for _, w := range sums {
		if _, err := stmt.ExecContext(ctx,
			runID, w.Wallet.String(), w.Realized, w.Unrealized, w.Total, w.FeesPaid,
			w.TradeCount, w.MarketCount, w.PositionCount, w.OpenPositions, w.OpenPriced,
			w.OpenUnpriced, w.MarketsSettled, w.RejectedFills, w.PriceCoverage,
			w.ResolutionCoverage, string(w.Grade),
		); err != nil {
			return fmt.Errorf("insert summary %s: %w", w.Wallet, err)
		}
	}
	return nil
}

func insertPositions(ctx context.Context, tx *sql.Tx, runID string, positions []domain.PositionPnL) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO run_positions
			(run_id, wallet, condition_id, outcome_index, status, quantity, avg_cost,
			 trading_realized, settlement_pnl, realized, unrealized, mark_price, fees_paid,
			 fill_count, has_resolution, has_price, price_stale, resolution_source)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare positions: %w", err)
	}
	defer stmt.Close()

	for _, p := range positions {
		if _, err := stmt.ExecContext(ctx,
			runID, p.Wallet.String(), p.ConditionID.String(), p.OutcomeIndex, string(p.Status),
			p.Quantity, p.AvgCost, p.TradingRealized, p.SettlementPnL, p.Realized,
			p.Unrealized, p.MarkPrice, p.FeesPaid, p.FillCount,
			boolInt(p.HasResolution), boolInt(p.HasPrice), boolInt(p.PriceStale), p.ResolutionSource,
		); err != nil {
			return fmt.Errorf("insert position %s: %w", p.Key(), err)
		}
	}
	return nil
}

func insertReports(ctx context.Context, tx *sql.Tx, runID string, reports []domain.ReconciliationReport) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO run_reports
			(run_id, wallet, computed, reference, abs_diff, pct_diff, classification, grade, source)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare reports: %w", err)
	}
	defer stmt.Close()

	for _, r := range reports {
		if _, err := stmt.ExecContext(ctx,
			runID, r.Wallet.String(), r.Computed, r.Reference, r.AbsDiff, r.PctDiff,
			string(r.Classification), string(r.Grade), r.Source,
		); err != nil {
			return fmt.Errorf("insert report %s: %w", r.Wallet, err)
		}
	}
	return nil
}

func insertRejects(ctx context.Context, tx *sql.Tx, runID string, rejects []domain.RejectedFill) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO run_rejects (run_id, seq, source_id, tx_hash, wallet, market_id, reason, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare rejects: %w", err)
	}
	defer stmt.Close()

	for i, r := range rejects {
		msg := ""
		if r.Err != nil {
			msg = r.Err.Error()
		}
		if _, err := stmt.ExecContext(ctx,
			runID, i, r.Raw.ID, r.Raw.TxHash, r.Raw.Wallet, r.Raw.MarketID, string(r.Reason), msg,
		); err != nil {
			return fmt.Errorf("insert reject %d: %w", i, err)
		}
	}
	return nil
}

// GetRun carga una pasada. Los rechazos se devuelven con su motivo y el texto
// del error original; el payload crudo completo vive en el snapshot.
func (s *SQLiteStorage) GetRun(ctx context.Context, runID string) (domain.RunResult, error) {
	var (
		run      domain.RunResult
		computed int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, snapshot_id, computed_at, method, accepted, duplicates FROM runs WHERE id = ?`, runID,
	).Scan(&run.RunID, &run.SnapshotID, &computed, &run.Method, &run.Accepted, &run.Duplicates)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.RunResult{}, fmt.Errorf("storage.GetRun %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return domain.RunResult{}, fmt.Errorf("storage.GetRun: %w", err)
	}
	run.ComputedAt = fromNanos(computed)

	if run.Summaries, err = s.loadSummaries(ctx, runID); err != nil {
		return domain.RunResult{}, fmt.Errorf("storage.GetRun: %w", err)
	}
	if run.Positions, err = s.loadPositions(ctx, runID); err != nil {
		return domain.RunResult{}, fmt.Errorf("storage.GetRun: %w", err)
	}
	if run.Reports, err = s.loadReports(ctx, runID); err != nil {
		return domain.RunResult{}, fmt.Errorf("storage.GetRun: %w", err)
	}
	if run.Rejects, err = s.loadRejects(ctx, runID); err != nil {
		return domain.RunResult{}, fmt.Errorf("storage.GetRun: %w", err)
	}
	return run, nil
}

// LatestRun devuelve la pasada más reciente sobre el snapshot.
func (s *SQLiteStorage) LatestRun(ctx context.Context, snapshotID string) (domain.RunResult, error) {
	var runID string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM runs WHERE snapshot_id = ? ORDER BY computed_at DESC, id DESC LIMIT 1`, snapshotID,
	).Scan(&runID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.RunResult{}, fmt.Errorf("storage.LatestRun %s: %w", snapshotID, ErrNotFound)
	}
	if err != nil {
		return domain.RunResult{}, fmt.Errorf("storage.LatestRun: %w", err)
	}
	return s.GetRun(ctx, runID)
}

func (s *SQLiteStorage) loadSummaries(ctx context.Context, runID string) ([]domain.WalletSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT wallet, realized, unrealized, total, fees_paid, trade_count, market_count,
			position_count, open_positions, open_priced, open_unpriced, markets_settled,
			rejected_fills, price_coverage, resolution_coverage, grade
		FROM run_summaries WHERE run_id = ? ORDER BY wallet`, runID)
	if err != nil {
		return nil, fmt.Errorf("query summaries: %w", err)
	}
	defer rows.Close()

	var out []domain.WalletSummary
	for rows.Next() {
		var (
			w      domain.WalletSummary
			wallet string
			grade  string
		)
		if err := rows.Scan(&wallet, &w.Realized, &w.Unrealized, &w.Total, &w.FeesPaid,
			&w.TradeCount, &w.MarketCount, &w.PositionCount, &w.OpenPositions, &w.OpenPriced,
			&w.OpenUnpriced, &w.MarketsSettled, &w.RejectedFills, &w.PriceCoverage,
			&w.ResolutionCoverage, &grade); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		w.Wallet = domain.Wallet(wallet)
		w.Grade = domain.CoverageGrade(grade)
		out = append(out, w)
	}
	return out, rows.Err()
}

func (s *SQLiteStorage) loadPositions(ctx context.Context, runID string) ([]domain.PositionPnL, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT wallet, condition_id, outcome_index, status, quantity, avg_cost, trading_realized,
			settlement_pnl, realized, unrealized, mark_price, fees_paid, fill_count,
			has_resolution, has_price, price_stale, resolution_source
		FROM run_positions WHERE run_id = ? ORDER BY wallet, condition_id, outcome_index`, runID)
	if err != nil {
		return nil, fmt.Errorf("query positions: %w", err)
	}
	defer rows.Close()

	var out []domain.PositionPnL
	for rows.Next() {
		var (
			p                       domain.PositionPnL
			wallet, cid, status     string
			hasRes, hasPrice, stale int
		)
		if err := rows.Scan(&wallet, &cid, &p.OutcomeIndex, &status, &p.Quantity, &p.AvgCost,
			&p.TradingRealized, &p.SettlementPnL, &p.Realized, &p.Unrealized, &p.MarkPrice,
			&p.FeesPaid, &p.FillCount, &hasRes, &hasPrice, &stale, &p.ResolutionSource); err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		p.Wallet = domain.Wallet(wallet)
		p.ConditionID = domain.ConditionID(cid)
		p.Status = domain.PositionStatus(status)
		p.HasResolution = hasRes == 1
		p.HasPrice = hasPrice == 1
		p.PriceStale = stale == 1
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLiteStorage) loadReports(ctx context.Context, runID string) ([]domain.ReconciliationReport, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT wallet, computed, reference, abs_diff, pct_diff, classification, grade, source
		FROM run_reports WHERE run_id = ? ORDER BY wallet`, runID)
	if err != nil {
		return nil, fmt.Errorf("query reports: %w", err)
	}
	defer rows.Close()

	var out []domain.ReconciliationReport
	for rows.Next() {
		var (
			r                    domain.ReconciliationReport
			wallet, class, grade string
		)
		if err := rows.Scan(&wallet, &r.Computed, &r.Reference, &r.AbsDiff, &r.PctDiff,
			&class, &grade, &r.Source); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		r.Wallet = domain.Wallet(wallet)
		r.Classification = domain.ReconciliationClass(class)
		r.Grade = domain.CoverageGrade(grade)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStorage) loadRejects(ctx context.Context, runID string) ([]domain.RejectedFill, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source_id, tx_hash, wallet, market_id, reason, error
		FROM run_rejects WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("query rejects: %w", err)
	}
	defer rows.Close()

	var out []domain.RejectedFill
	for rows.Next() {
		var (
			r           domain.RejectedFill
			reason, msg string
		)
		if err := rows.Scan(&r.Raw.ID, &r.Raw.TxHash, &r.Raw.Wallet, &r.Raw.MarketID, &reason, &msg); err != nil {
			return nil, fmt.Errorf("scan reject: %w", err)
		}
		r.Reason = domain.RejectReason(reason)
		if msg != "" {
			r.Err = errors.New(msg)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
