// Package postgres lee el ledger de fills y las resoluciones on-chain desde
// una réplica Postgres (Supabase o el indexer propio).
//
// Los importes se leen como ::TEXT y se parsean a decimal: nunca pasan por
// float64. Los índices de outcome de market_resolutions vienen en base 1,
// como los escribe el rollup.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polypnl/internal/domain"
	"github.com/alejandrodnm/polypnl/internal/resolution"
)

const queryTimeout = 30 * time.Second

// Schema es el DDL mínimo que espera el adaptador. Migrate lo aplica en
// entornos de desarrollo; en producción lo gestiona el indexer.
const Schema = `
CREATE TABLE IF NOT EXISTS fills (
    id              TEXT        NOT NULL,
    tx_hash         TEXT        NOT NULL,
    wallet          TEXT        NOT NULL,
    condition_id    TEXT        NOT NULL,
    outcome_index   INTEGER     NOT NULL,
    side            TEXT,
    side_unreliable BOOLEAN     NOT NULL DEFAULT FALSE,
    shares          NUMERIC     NOT NULL,
    price           NUMERIC     NOT NULL,
    fee             NUMERIC     NOT NULL DEFAULT 0,
    usdc_value      NUMERIC,
    transfers       JSONB,
    block_time      TIMESTAMPTZ NOT NULL,
    ingest_seq      BIGSERIAL
);
CREATE INDEX IF NOT EXISTS idx_fills_wallet ON fills (lower(wallet));

CREATE TABLE IF NOT EXISTS market_resolutions (
    condition_id       TEXT        NOT NULL,
    winning_index      INTEGER,
    payout_numerators  BIGINT[]    NOT NULL,
    payout_denominator BIGINT      NOT NULL,
    resolved_at        TIMESTAMPTZ,
    source             TEXT        NOT NULL DEFAULT 'rollup'
);
CREATE INDEX IF NOT EXISTS idx_market_resolutions_cid ON market_resolutions (condition_id);
`

// Source implementa ports.FillSource y ports.ResolutionSource sobre pgx.
type Source struct {
	db *pgxpool.Pool
}

// New crea la fuente sobre un pool ya abierto.
func New(db *pgxpool.Pool) *Source {
	return &Source{db: db}
}

// Open abre un pool contra dsn y comprueba la conexión.
func Open(ctx context.Context, dsn string) (*Source, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres.Open: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres.Open: ping: %w", err)
	}
	return &Source{db: pool}, nil
}

// Migrate aplica Schema.
func (s *Source) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("postgres.Migrate: %w", err)
	}
	return nil
}

// Pool expone el pool subyacente.
func (s *Source) Pool() *pgxpool.Pool { return s.db }

// Close cierra el pool.
func (s *Source) Close() {
	s.db.Close()
}

// FetchFills devuelve los fills crudos de la wallet en orden de ingestión.
// Los identificadores se pasan tal cual: normalizar es cosa del loader.
func (s *Source) FetchFills(ctx context.Context, wallet string) ([]domain.RawFill, error) {
	w, err := domain.NormalizeWallet(wallet)
	if err != nil {
		return nil, fmt.Errorf("postgres.FetchFills: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := s.db.Query(ctx, `
		SELECT id, tx_hash, wallet, condition_id, outcome_index,
		       COALESCE(side, ''), side_unreliable,
		       shares::TEXT, price::TEXT, fee::TEXT, usdc_value::TEXT,
		       transfers, block_time, ingest_seq
		FROM fills
		WHERE lower(wallet) IN ($1, $2)
		ORDER BY ingest_seq`,
		w.String(), w.String()[2:],
	)
	if err != nil {
		return nil, fmt.Errorf("postgres.FetchFills: query: %w", err)
	}
	defer rows.Close()

	var out []domain.RawFill
	for rows.Next() {
		var (
			raw                domain.RawFill
			shares, price, fee string
			value              *string
			transfers          []byte
		)
		if err := rows.Scan(
			&raw.ID, &raw.TxHash, &raw.Wallet, &raw.MarketID, &raw.OutcomeIndex,
			&raw.Side, &raw.SideUnreliable,
			&shares, &price, &fee, &value,
			&transfers, &raw.Timestamp, &raw.IngestSeq,
		); err != nil {
			return nil, fmt.Errorf("postgres.FetchFills: scan: %w", err)
		}
		if raw.Shares, err = decimal.NewFromString(shares); err != nil {
			return nil, fmt.Errorf("postgres.FetchFills: fill %s shares: %w", raw.ID, err)
		}
		if raw.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("postgres.FetchFills: fill %s price: %w", raw.ID, err)
		}
		if raw.Fee, err = decimal.NewFromString(fee); err != nil {
			return nil, fmt.Errorf("postgres.FetchFills: fill %s fee: %w", raw.ID, err)
		}
		if value != nil {
			v, err := decimal.NewFromString(*value)
			if err != nil {
				return nil, fmt.Errorf("postgres.FetchFills: fill %s value: %w", raw.ID, err)
			}
			raw.Value = decimal.NewNullDecimal(v)
		}
		if raw.Transfers, err = DecodeTransfers(transfers); err != nil {
			return nil, fmt.Errorf("postgres.FetchFills: fill %s: %w", raw.ID, err)
		}
		out = append(out, raw)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres.FetchFills: rows: %w", err)
	}

	slog.Debug("fills loaded from postgres", "wallet", w.Short(), "rows", len(out))
	return out, nil
}

// FetchResolutions devuelve las resoluciones on-chain de los mercados dados.
// condition_id se compara sin prefijo y en minúsculas, sea cual sea el formato guardado.
func (s *Source) FetchResolutions(ctx context.Context, ids []domain.ConditionID) ([]domain.ResolutionCandidate, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = id.String()
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := s.db.Query(ctx, `
		SELECT condition_id, winning_index, payout_numerators, payout_denominator,
		       resolved_at, source
		FROM market_resolutions
		WHERE lower(regexp_replace(trim(condition_id), '^0x', '', 'i')) = ANY($1)`,
		keys,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres.FetchResolutions: query: %w", err)
	}

	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.ResolutionCandidate, error) {
		var (
			c          domain.ResolutionCandidate
			winning    *int32
			resolvedAt *time.Time
		)
		if err := row.Scan(&c.MarketID, &winning, &c.PayoutNumerators, &c.PayoutDenominator, &resolvedAt, &c.Source); err != nil {
			return c, err
		}
		c.IndexBase = 1
		c.WinningIndex = -1
		if winning != nil {
			c.WinningIndex = int(*winning)
		}
		if resolvedAt != nil {
			c.ResolvedAt = resolvedAt.UTC()
		}
		if c.Source == "" {
			c.Source = resolution.SourceRollup
		}
		return c, nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres.FetchResolutions: %w", err)
	}

	slog.Debug("resolutions loaded from postgres", "markets", len(ids), "candidates", len(out))
	return out, nil
}

type transferJSON struct {
	Counterparty string          `json:"counterparty"`
	Asset        string          `json:"asset"`
	Amount       decimal.Decimal `json:"amount"`
}

// DecodeTransfers parsea la columna JSONB de patas de la transacción.
// NULL o vacío devuelve nil.
func DecodeTransfers(b []byte) ([]domain.TransferLeg, error) {
	if len(b) == 0 || string(b) == "null" {
		return nil, nil
	}
	var rows []transferJSON
	if err := json.Unmarshal(b, &rows); err != nil {
		return nil, fmt.Errorf("decode transfers: %w", err)
	}
	legs := make([]domain.TransferLeg, 0, len(rows))
	for _, r := range rows {
		asset := domain.AssetToken
		if r.Asset == string(domain.AssetUSDC) || r.Asset == "usdc" {
			asset = domain.AssetUSDC
		}
		legs = append(legs, domain.TransferLeg{Counterparty: r.Counterparty, Asset: asset, Amount: r.Amount})
	}
	return legs, nil
}
