package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/alejandrodnm/polypnl/internal/domain"
)

// SaveSnapshot congela un snapshot completo en una transacción. Los snapshots
// son inmutables: un id repetido devuelve ErrSnapshotExists.
func (s *SQLiteStorage) SaveSnapshot(ctx context.Context, snap domain.Snapshot) error {
	if snap.ID == "" {
		return fmt.Errorf("storage.SaveSnapshot: empty snapshot id")
	}
	wallets, err := json.Marshal(snap.Wallets)
	if err != nil {
		return fmt.Errorf("storage.SaveSnapshot: marshal wallets: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.SaveSnapshot: begin tx: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM snapshots WHERE id = ?`, snap.ID).Scan(&exists); err != nil {
		return fmt.Errorf("storage.SaveSnapshot: check id: %w", err)
	}
	if exists > 0 {
		return fmt.Errorf("storage.SaveSnapshot %s: %w", snap.ID, ErrSnapshotExists)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO snapshots (id, label, created_at, as_of, wallets) VALUES (?, ?, ?, ?, ?)`,
		snap.ID, snap.Label, toNanos(snap.CreatedAt), toNanos(snap.AsOf), string(wallets),
	); err != nil {
		return fmt.Errorf("storage.SaveSnapshot: insert snapshot: %w", err)
	}

	if err := insertFills(ctx, tx, snap.ID, snap.Fills); err != nil {
		return fmt.Errorf("storage.SaveSnapshot: %w", err)
	}
	if err := insertResolutions(ctx, tx, snap.ID, snap.Resolutions); err != nil {
		return fmt.Errorf("storage.SaveSnapshot: %w", err)
	}
	if err := insertPrices(ctx, tx, snap.ID, snap.Prices); err != nil {
		return fmt.Errorf("storage.SaveSnapshot: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.SaveSnapshot: commit: %w", err)
	}
	return nil
}

func insertFills(ctx context.Context, tx *sql.Tx, snapshotID string, fills []domain.RawFill) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO snapshot_fills
			(snapshot_id, seq, source_id, tx_hash, wallet, market_id, outcome_index, side,
			 side_unreliable, shares, price, fee, value, ts, ingest_seq, transfers)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare fills: %w", err)
	}
	defer stmt.Close()

	for i, f := range fills {
		transfers, err := json.Marshal(f.Transfers)
		if err != nil {
			return fmt.Errorf("marshal transfers of fill %s: %w", f.ID, err)
		}
		if _, err := stmt.ExecContext(ctx,
			snapshotID, i, f.ID, f.TxHash, f.Wallet, f.MarketID, f.OutcomeIndex, f.Side,
			boolInt(f.SideUnreliable), f.Shares, f.Price, f.Fee, f.Value,
			toNanos(f.Timestamp), f.IngestSeq, string(transfers),
		); err != nil {
			return fmt.Errorf("insert fill %d: %w", i, err)
		}
	}
	return nil
}

func insertResolutions(ctx context.Context, tx *sql.Tx, snapshotID string, cands []domain.ResolutionCandidate) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO snapshot_resolutions
			(snapshot_id, seq, market_id, winning_index, numerators, denominator, index_base, resolved_at, source)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare resolutions: %w", err)
	}
	defer stmt.Close()

	for i, c := range cands {
		nums, err := json.Marshal(c.PayoutNumerators)
		if err != nil {
			return fmt.Errorf("marshal numerators: %w", err)
		}
		if _, err := stmt.ExecContext(ctx,
			snapshotID, i, c.MarketID, c.WinningIndex, string(nums), c.PayoutDenominator,
			c.IndexBase, toNanos(c.ResolvedAt), c.Source,
		); err != nil {
			return fmt.Errorf("insert resolution %d: %w", i, err)
		}
	}
	return nil
}

func insertPrices(ctx context.Context, tx *sql.Tx, snapshotID string, prices []domain.Price) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO snapshot_prices
			(snapshot_id, seq, condition_id, outcome_index, bid, ask, mid, observed_at, source)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare prices: %w", err)
	}
	defer stmt.Close()

	for i, p := range prices {
		if _, err := stmt.ExecContext(ctx,
			snapshotID, i, p.ConditionID.String(), p.OutcomeIndex, p.Bid, p.Ask, p.Mid,
			toNanos(p.ObservedAt), p.Source,
		); err != nil {
			return fmt.Errorf("insert price %d: %w", i, err)
		}
	}
	return nil
}

// GetSnapshot carga un snapshot con su payload en el orden en que se guardó.
func (s *SQLiteStorage) GetSnapshot(ctx context.Context, id string) (domain.Snapshot, error) {
	info, err := s.snapshotInfo(ctx, id)
	if err != nil {
		return domain.Snapshot{}, err
	}
	snap := domain.Snapshot{
		ID:        info.ID,
		Label:     info.Label,
		CreatedAt: info.CreatedAt,
		AsOf:      info.AsOf,
		Wallets:   info.Wallets,
	}

	if snap.Fills, err = s.loadFills(ctx, id); err != nil {
		return domain.Snapshot{}, fmt.Errorf("storage.GetSnapshot: %w", err)
	}
	if snap.Resolutions, err = s.loadResolutions(ctx, id); err != nil {
		return domain.Snapshot{}, fmt.Errorf("storage.GetSnapshot: %w", err)
	}
	if snap.Prices, err = s.loadPrices(ctx, id); err != nil {
		return domain.Snapshot{}, fmt.Errorf("storage.GetSnapshot: %w", err)
	}
	return snap, nil
}

// ListSnapshots devuelve las cabeceras, más reciente primero.
func (s *SQLiteStorage) ListSnapshots(ctx context.Context) ([]domain.SnapshotInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.label, s.created_at, s.as_of, s.wallets,
			(SELECT COUNT(*) FROM snapshot_fills f WHERE f.snapshot_id = s.id),
			(SELECT COUNT(*) FROM snapshot_resolutions r WHERE r.snapshot_id = s.id),
			(SELECT COUNT(*) FROM snapshot_prices p WHERE p.snapshot_id = s.id)
		FROM snapshots s
		ORDER BY s.created_at DESC, s.id`)
	if err != nil {
		return nil, fmt.Errorf("storage.ListSnapshots: %w", err)
	}
	defer rows.Close()

	var out []domain.SnapshotInfo
	for rows.Next() {
		info, err := scanInfo(rows)
		if err != nil {
			return nil, fmt.Errorf("storage.ListSnapshots: %w", err)
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

func (s *SQLiteStorage) snapshotInfo(ctx context.Context, id string) (domain.SnapshotInfo, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT s.id, s.label, s.created_at, s.as_of, s.wallets,
			(SELECT COUNT(*) FROM snapshot_fills f WHERE f.snapshot_id = s.id),
			(SELECT COUNT(*) FROM snapshot_resolutions r WHERE r.snapshot_id = s.id),
			(SELECT COUNT(*) FROM snapshot_prices p WHERE p.snapshot_id = s.id)
		FROM snapshots s WHERE s.id = ?`, id)
	info, err := scanInfo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.SnapshotInfo{}, fmt.Errorf("storage.GetSnapshot %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return domain.SnapshotInfo{}, fmt.Errorf("storage.GetSnapshot: %w", err)
	}
	return info, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanInfo(row scanner) (domain.SnapshotInfo, error) {
	var (
		info          domain.SnapshotInfo
		created, asOf int64
		wallets       string
	)
	if err := row.Scan(&info.ID, &info.Label, &created, &asOf, &wallets,
		&info.Fills, &info.Resolutions, &info.Prices); err != nil {
		return domain.SnapshotInfo{}, err
	}
	info.CreatedAt = fromNanos(created)
	info.AsOf = fromNanos(asOf)
	if err := json.Unmarshal([]byte(wallets), &info.Wallets); err != nil {
		return domain.SnapshotInfo{}, fmt.Errorf("unmarshal wallets: %w", err)
	}
	return info, nil
}

func (s *SQLiteStorage) loadFills(ctx context.Context, id string) ([]domain.RawFill, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source_id, tx_hash, wallet, market_id, outcome_index, side, side_unreliable,
			shares, price, fee, value, ts, ingest_seq, transfers
		FROM snapshot_fills WHERE snapshot_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("query fills: %w", err)
	}
	defer rows.Close()

	var out []domain.RawFill
	for rows.Next() {
		var (
			f          domain.RawFill
			unreliable int
			ts         int64
			transfers  string
		)
		if err := rows.Scan(&f.ID, &f.TxHash, &f.Wallet, &f.MarketID, &f.OutcomeIndex, &f.Side,
			&unreliable, &f.Shares, &f.Price, &f.Fee, &f.Value, &ts, &f.IngestSeq, &transfers); err != nil {
			return nil, fmt.Errorf("scan fill: %w", err)
		}
		f.SideUnreliable = unreliable == 1
		f.Timestamp = fromNanos(ts)
		if err := json.Unmarshal([]byte(transfers), &f.Transfers); err != nil {
			return nil, fmt.Errorf("unmarshal transfers: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *SQLiteStorage) loadResolutions(ctx context.Context, id string) ([]domain.ResolutionCandidate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT market_id, winning_index, numerators, denominator, index_base, resolved_at, source
		FROM snapshot_resolutions WHERE snapshot_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("query resolutions: %w", err)
	}
	defer rows.Close()

	var out []domain.ResolutionCandidate
	for rows.Next() {
		var (
			c        domain.ResolutionCandidate
			nums     string
			resolved int64
		)
		if err := rows.Scan(&c.MarketID, &c.WinningIndex, &nums, &c.PayoutDenominator,
			&c.IndexBase, &resolved, &c.Source); err != nil {
			return nil, fmt.Errorf("scan resolution: %w", err)
		}
		if err := json.Unmarshal([]byte(nums), &c.PayoutNumerators); err != nil {
			return nil, fmt.Errorf("unmarshal numerators: %w", err)
		}
		c.ResolvedAt = fromNanos(resolved)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLiteStorage) loadPrices(ctx context.Context, id string) ([]domain.Price, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT condition_id, outcome_index, bid, ask, mid, observed_at, source
		FROM snapshot_prices WHERE snapshot_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("query prices: %w", err)
	}
	defer rows.Close()

	var out []domain.Price
	for rows.Next() {
		var (
			p        domain.Price
			cid      string
			observed int64
		)
		if err := rows.Scan(&cid, &p.OutcomeIndex, &p.Bid, &p.Ask, &p.Mid, &observed, &p.Source); err != nil {
			return nil, fmt.Errorf("scan price: %w", err)
		}
		p.ConditionID = domain.ConditionID(cid)
		p.ObservedAt = fromNanos(observed)
		out = append(out, p)
	}
	return out, rows.Err()
}
