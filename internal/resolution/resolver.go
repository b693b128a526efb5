// Package resolution fusiona las resoluciones de mercado de varias fuentes en
// un snapshot inmutable consultable por condition id.
package resolution

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/alejandrodnm/polypnl/internal/domain"
)

// Nombres de fuente conocidos, en orden de precedencia por defecto.
const (
	SourceOnChain = "onchain" // eventos ConditionResolution del CTF
	SourceCLOB    = "clob"    // tokens[].winner del CLOB
	SourceGamma   = "gamma"   // outcomePrices de mercados cerrados en Gamma
	SourceRollup  = "rollup"  // agregados del warehouse
)

// DefaultPrecedence es el orden en que se confía en las fuentes.
var DefaultPrecedence = []string{SourceOnChain, SourceCLOB, SourceGamma, SourceRollup}

// ErrInvalidPayout marca un candidato cuyo vector de payout no es usable.
var ErrInvalidPayout = errors.New("invalid payout vector")

// Stats resume cómo se construyó el resolver.
type Stats struct {
	Candidates   int
	Resolved     int // mercados con al menos un candidato válido
	Invalid      int // candidatos descartados por payout malformado
	Unidentified int // candidatos con condition id no normalizable
	Conflicts    int // mercados donde fuentes válidas discrepan
}

// Resolver responde "¿cómo se resolvió este mercado?" sobre un snapshot fijo.
// Se construye una vez por pasada y no se modifica: lectores concurrentes
// no necesitan locks.
type Resolver struct {
	byID  map[domain.ConditionID]domain.Resolution
	stats Stats
}

// NewResolver valida y fusiona los candidatos. Para cada mercado gana el
// candidato válido de mayor precedencia; las fuentes que no aparecen en
// precedence van detrás, ordenadas por nombre.
func NewResolver(candidates []domain.ResolutionCandidate, precedence []string) *Resolver {
	if len(precedence) == 0 {
		precedence = DefaultPrecedence
	}
	rank := make(map[string]int, len(precedence))
	for i, s := range precedence {
		rank[s] = i
	}
	rankOf := func(source string) int {
		if r, ok := rank[source]; ok {
			return r
		}
		return len(precedence)
	}

	r := &Resolver{byID: make(map[domain.ConditionID]domain.Resolution)}
	r.stats.Candidates = len(candidates)

	valid := make(map[domain.ConditionID][]domain.Resolution)
	for _, c := range candidates {
		res, err := Normalize(c)
		switch {
		case errors.Is(err, domain.ErrMissingIdentifier):
			r.stats.Unidentified++
			slog.Debug("resolution candidate without usable id", "market", c.MarketID, "source", c.Source)
			continue
		case err != nil:
			r.stats.Invalid++
			slog.Debug("resolution candidate discarded", "market", c.MarketID, "source", c.Source, "err", err)
			continue
		}
		valid[res.ConditionID] = append(valid[res.ConditionID], res)
	}

	for id, list := range valid {
		sort.SliceStable(list, func(i, j int) bool {
			ri, rj := rankOf(list[i].Source), rankOf(list[j].Source)
			if ri != rj {
				return ri < rj
			}
			if list[i].Source != list[j].Source {
				return list[i].Source < list[j].Source
			}
			return list[i].ResolvedAt.After(list[j].ResolvedAt)
		})

		best := list[0]
		best.Confidence = agreement(list)
		if best.Confidence == domain.ResolutionConflict {
			r.stats.Conflicts++
			slog.Warn("resolution sources disagree",
				"condition_id", id.Short(),
				"winner_source", best.Source,
				"candidates", len(list),
			)
		}
		r.byID[id] = best
	}
	r.stats.Resolved = len(r.byID)
	return r
}

// Resolve devuelve la resolución válida del mercado, o false si no está resuelto.
func (r *Resolver) Resolve(id domain.ConditionID) (domain.Resolution, bool) {
	res, ok := r.byID[id]
	return res, ok
}

// Len devuelve el número de mercados resueltos.
func (r *Resolver) Len() int { return len(r.byID) }

// Stats devuelve las estadísticas de construcción.
func (r *Resolver) Stats() Stats { return r.stats }

// Normalize convierte un candidato a una Resolution 0-based y validada.
// Un vector de payout malformado devuelve ErrInvalidPayout: el mercado cuenta
// como no resuelto, nunca como resuelto a cero.
func Normalize(c domain.ResolutionCandidate) (domain.Resolution, error) {
	id, err := domain.NormalizeConditionID(c.MarketID)
	if err != nil {
		return domain.Resolution{}, err
	}

	res := domain.Resolution{
		ConditionID:       id,
		WinningIndex:      c.WinningIndex,
		PayoutNumerators:  append([]int64(nil), c.PayoutNumerators...),
		PayoutDenominator: c.PayoutDenominator,
		ResolvedAt:        c.ResolvedAt,
		Source:            c.Source,
	}
	if !res.Valid() {
		return domain.Resolution{}, fmt.Errorf("%w: numerators=%v denominator=%d",
			ErrInvalidPayout, c.PayoutNumerators, c.PayoutDenominator)
	}

	if c.IndexBase == 1 && res.WinningIndex >= 0 {
		res.WinningIndex-- // 1-based en origen; 0 pasa a -1 y se deriva abajo
	}
	derived := winnerFromPayouts(res.PayoutNumerators)
	if res.WinningIndex < 0 || res.WinningIndex >= len(res.PayoutNumerators) ||
		res.PayoutNumerators[res.WinningIndex] == 0 {
		res.WinningIndex = derived
	}
	return res, nil
}

// winnerFromPayouts devuelve el índice con mayor numerador, o -1 si hay empate
// (p. ej. un mercado resuelto 50/50).
func winnerFromPayouts(nums []int64) int {
	best, idx, tie := int64(-1), -1, false
	for i, n := range nums {
		switch {
		case n > best:
			best, idx, tie = n, i, false
		case n == best:
			tie = true
		}
	}
	if tie {
		return -1
	}
	return idx
}

func agreement(list []domain.Resolution) domain.ResolutionConfidence {
	if len(list) == 1 {
		return domain.ResolutionSingle
	}
	for _, other := range list[1:] {
		if !list[0].SamePayout(other) {
			return domain.ResolutionConflict
		}
	}
	return domain.ResolutionAgreed
}
