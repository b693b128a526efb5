package domain

import "time"

// Snapshot es la entrada inmutable de una pasada de cálculo: fills, resoluciones
// y precios congelados bajo un ID. Recalcular el mismo snapshot produce
// exactamente el mismo resultado.
type Snapshot struct {
	ID          string
	Label       string
	CreatedAt   time.Time
	AsOf        time.Time // instante de referencia para la frescura de precios
	Wallets     []string
	Fills       []RawFill
	Resolutions []ResolutionCandidate
	Prices      []Price
}

// SnapshotInfo es la cabecera de un snapshot, sin payload.
type SnapshotInfo struct {
	ID          string
	Label       string
	CreatedAt   time.Time
	AsOf        time.Time
	Wallets     []string
	Fills       int
	Resolutions int
	Prices      int
}

// Info devuelve la cabecera del snapshot.
func (s Snapshot) Info() SnapshotInfo {
	return SnapshotInfo{
		ID:          s.ID,
		Label:       s.Label,
		CreatedAt:   s.CreatedAt,
		AsOf:        s.AsOf,
		Wallets:     s.Wallets,
		Fills:       len(s.Fills),
		Resolutions: len(s.Resolutions),
		Prices:      len(s.Prices),
	}
}

// RunResult es el resultado de una pasada de cálculo sobre un snapshot.
type RunResult struct {
	RunID      string
	SnapshotID string
	ComputedAt time.Time
	Method     string
	Positions  []PositionPnL
	Summaries  []WalletSummary
	Rejects    []RejectedFill
	Accepted   int
	Duplicates int
	Reports    []ReconciliationReport
}

// UnattributedRejects cuenta los rechazos cuya wallet no se puede normalizar:
// están en Rejects pero ningún WalletSummary los incluye.
func (r RunResult) UnattributedRejects() int {
	n := 0
	for _, rej := range r.Rejects {
		if _, err := NormalizeWallet(rej.Raw.Wallet); err != nil {
			n++
		}
	}
	return n
}
