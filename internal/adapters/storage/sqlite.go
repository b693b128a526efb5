package storage

// sqlite.go — snapshots inmutables, resultados de pasadas y checkpoints.
//
// Estrategia:
//   - `snapshots` + `snapshot_*`: sólo INSERT. Un snapshot congelado no se
//     actualiza ni se borra; recalcularlo debe dar siempre lo mismo.
//   - `runs` + `run_*`: una fila por pasada con sus resúmenes, posiciones,
//     reportes y rechazos, para comparar pasadas entre sí.
//   - `checkpoints`: progreso del backfill por (job, etapa, clave). Prune
//     automático al arrancar de checkpoints con más de 30 días.
//   - Decimales como TEXT (exactos); instantes como INTEGER en nanosegundos
//     UTC, porque la clave de dedup usa el timestamp a resolución completa.

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/alejandrodnm/polypnl/internal/ports"
)

const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
    id         TEXT PRIMARY KEY,
    label      TEXT    NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL,
    as_of      INTEGER NOT NULL,
    wallets    TEXT    NOT NULL DEFAULT '[]'
);

CREATE TABLE IF NOT EXISTS snapshot_fills (
    snapshot_id     TEXT    NOT NULL REFERENCES snapshots(id),
    seq             INTEGER NOT NULL,
    source_id       TEXT    NOT NULL DEFAULT '',
    tx_hash         TEXT    NOT NULL DEFAULT '',
    wallet          TEXT    NOT NULL DEFAULT '',
    market_id       TEXT    NOT NULL DEFAULT '',
    outcome_index   INTEGER NOT NULL DEFAULT 0,
    side            TEXT    NOT NULL DEFAULT '',
    side_unreliable INTEGER NOT NULL DEFAULT 0,
    shares          TEXT    NOT NULL,
    price           TEXT    NOT NULL,
    fee             TEXT    NOT NULL,
    value           TEXT,
    ts              INTEGER NOT NULL,
    ingest_seq      INTEGER NOT NULL DEFAULT 0,
    transfers       TEXT    NOT NULL DEFAULT '[]',
    PRIMARY KEY (snapshot_id, seq)
);

CREATE TABLE IF NOT EXISTS snapshot_resolutions (
    snapshot_id   TEXT    NOT NULL REFERENCES snapshots(id),
    seq           INTEGER NOT NULL,
    market_id     TEXT    NOT NULL,
    winning_index INTEGER NOT NULL,
    numerators    TEXT    NOT NULL,
    denominator   INTEGER NOT NULL,
    index_base    INTEGER NOT NULL DEFAULT 0,
    resolved_at   INTEGER NOT NULL DEFAULT 0,
    source        TEXT    NOT NULL,
    PRIMARY KEY (snapshot_id, seq)
);

CREATE TABLE IF NOT EXISTS snapshot_prices (
    snapshot_id   TEXT    NOT NULL REFERENCES snapshots(id),
    seq           INTEGER NOT NULL,
    condition_id  TEXT    NOT NULL,
    outcome_index INTEGER NOT NULL,
    bid           TEXT,
    ask           TEXT,
    mid           TEXT,
    observed_at   INTEGER NOT NULL DEFAULT 0,
    source        TEXT    NOT NULL DEFAULT '',
    PRIMARY KEY (snapshot_id, seq)
);

CREATE TABLE IF NOT EXISTS runs (
    id          TEXT PRIMARY KEY,
    snapshot_id TEXT    NOT NULL REFERENCES snapshots(id),
    computed_at INTEGER NOT NULL,
    method      TEXT    NOT NULL,
    accepted    INTEGER NOT NULL DEFAULT 0,
    duplicates  INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS run_summaries (
    run_id              TEXT    NOT NULL REFERENCES runs(id),
    wallet              TEXT    NOT NULL,
    realized            TEXT    NOT NULL,
    unrealized          TEXT    NOT NULL,
    total               TEXT    NOT NULL,
    fees_paid           TEXT    NOT NULL,
    trade_count         INTEGER NOT NULL,
    market_count        INTEGER NOT NULL,
    position_count      INTEGER NOT NULL,
    open_positions      INTEGER NOT NULL,
    open_priced         INTEGER NOT NULL,
    open_unpriced       INTEGER NOT NULL,
    markets_settled     INTEGER NOT NULL,
    rejected_fills      INTEGER NOT NULL,
    price_coverage      REAL    NOT NULL,
    resolution_coverage REAL    NOT NULL,
    grade               TEXT    NOT NULL,
    PRIMARY KEY (run_id, wallet)
);

CREATE TABLE IF NOT EXISTS run_positions (
    run_id            TEXT    NOT NULL REFERENCES runs(id),
    wallet            TEXT    NOT NULL,
    condition_id      TEXT    NOT NULL,
    outcome_index     INTEGER NOT NULL,
    status            TEXT    NOT NULL,
    quantity          TEXT    NOT NULL,
    avg_cost          TEXT    NOT NULL,
    trading_realized  TEXT    NOT NULL,
    settlement_pnl    TEXT    NOT NULL,
    realized          TEXT    NOT NULL,
    unrealized        TEXT,
    mark_price        TEXT,
    fees_paid         TEXT    NOT NULL,
    fill_count        INTEGER NOT NULL,
    has_resolution    INTEGER NOT NULL,
    has_price         INTEGER NOT NULL,
    price_stale       INTEGER NOT NULL,
    resolution_source TEXT    NOT NULL DEFAULT '',
    PRIMARY KEY (run_id, wallet, condition_id, outcome_index)
);

CREATE TABLE IF NOT EXISTS run_reports (
    run_id         TEXT NOT NULL REFERENCES runs(id),
    wallet         TEXT NOT NULL,
    computed       TEXT NOT NULL,
    reference      TEXT,
    abs_diff       TEXT,
    pct_diff       TEXT,
    classification TEXT NOT NULL,
    grade          TEXT NOT NULL,
    source         TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (run_id, wallet)
);

CREATE TABLE IF NOT EXISTS run_rejects (
    run_id    TEXT    NOT NULL REFERENCES runs(id),
    seq       INTEGER NOT NULL,
    source_id TEXT    NOT NULL DEFAULT '',
    tx_hash   TEXT    NOT NULL DEFAULT '',
    wallet    TEXT    NOT NULL DEFAULT '',
    market_id TEXT    NOT NULL DEFAULT '',
    reason    TEXT    NOT NULL,
    error     TEXT    NOT NULL DEFAULT '',
    PRIMARY KEY (run_id, seq)
);

CREATE TABLE IF NOT EXISTS checkpoints (
    job        TEXT    NOT NULL,
    stage      TEXT    NOT NULL,
    key        TEXT    NOT NULL,
    value      TEXT    NOT NULL,
    updated_at INTEGER NOT NULL,
    PRIMARY KEY (job, stage, key)
);

CREATE INDEX IF NOT EXISTS idx_runs_snapshot  ON runs(snapshot_id, computed_at DESC);
CREATE INDEX IF NOT EXISTS idx_snapshots_at   ON snapshots(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_positions_wall ON run_positions(run_id, wallet);
`

const retentionCheckpoints = 30 * 24 * time.Hour

// ErrNotFound lo devuelven los Get cuando el id no existe.
var ErrNotFound = ports.ErrNotFound

// ErrSnapshotExists lo devuelve SaveSnapshot si el id ya está congelado.
var ErrSnapshotExists = errors.New("snapshot already exists")

// SQLiteStorage implementa ports.SnapshotStore y ports.CheckpointStore
// usando SQLite (pure Go, sin CGo).
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage abre (o crea) la base de datos en la ruta dada, aplica el
// schema y limpia checkpoints antiguos.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: apply schema: %w", err)
	}

	s := &SQLiteStorage{db: db}
	s.pruneOld(context.Background())
	return s, nil
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// Checkpoint devuelve el valor guardado o "" si la etapa no se completó.
func (s *SQLiteStorage) Checkpoint(ctx context.Context, job, stage, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM checkpoints WHERE job = ? AND stage = ? AND key = ?`,
		job, stage, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("storage.Checkpoint: %w", err)
	}
	return value, nil
}

// SaveCheckpoint registra (o actualiza) el progreso de una etapa.
func (s *SQLiteStorage) SaveCheckpoint(ctx context.Context, job, stage, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (job, stage, key, value, updated_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(job, stage, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		job, stage, key, value, time.Now().UTC().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("storage.SaveCheckpoint: %w", err)
	}
	return nil
}

// pruneOld elimina checkpoints viejos para mantener la DB ligera.
func (s *SQLiteStorage) pruneOld(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-retentionCheckpoints).UnixNano()
	s.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE updated_at < ?`, cutoff)
}

func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
