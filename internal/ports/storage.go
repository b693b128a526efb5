package ports

import (
	"context"
	"errors"

	"github.com/alejandrodnm/polypnl/internal/domain"
)

// ErrNotFound lo devuelven los Get de un SnapshotStore cuando el id no existe.
var ErrNotFound = errors.New("not found")

// SnapshotStore persiste snapshots inmutables y los resultados de cada pasada.
type SnapshotStore interface {
	// SaveSnapshot congela un snapshot. Un ID ya existente es un error:
	// los snapshots no se sobrescriben.
	SaveSnapshot(ctx context.Context, snap domain.Snapshot) error
	GetSnapshot(ctx context.Context, id string) (domain.Snapshot, error)
	ListSnapshots(ctx context.Context) ([]domain.SnapshotInfo, error)

	// SaveRun persiste resúmenes, posiciones y reportes de una pasada.
	SaveRun(ctx context.Context, run domain.RunResult) error
	GetRun(ctx context.Context, runID string) (domain.RunResult, error)
	// LatestRun devuelve la última pasada calculada sobre el snapshot.
	LatestRun(ctx context.Context, snapshotID string) (domain.RunResult, error)

	// Close cierra la conexión a la base de datos limpiamente.
	Close() error
}

// CheckpointStore guarda el progreso de un backfill para poder reanudarlo.
type CheckpointStore interface {
	// Checkpoint devuelve el estado guardado de una etapa ("" si no existe).
	Checkpoint(ctx context.Context, job, stage, key string) (string, error)
	SaveCheckpoint(ctx context.Context, job, stage, key, value string) error
}
