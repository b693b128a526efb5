package ledger

// loader.go — frontera de ingestión.
//
// Es el único sitio donde se normalizan identificadores y se deduplica: lo que
// sale de aquí son fills canónicos agrupados por (wallet, mercado, outcome) y
// ordenados en el tiempo. Lo que no se puede normalizar va a cuarentena con
// su motivo; nunca se une contra un id placeholder.

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polypnl/internal/domain"
)

// Config controla las reglas de normalización del loader.
type Config struct {
	Bounds        domain.PriceBounds
	MinConfidence domain.Confidence // confianza mínima para aceptar un side inferido
}

// DefaultConfig devuelve las reglas de un mercado binario.
func DefaultConfig() Config {
	return Config{
		Bounds:        domain.ProbabilityBounds(),
		MinConfidence: domain.ConfidenceHigh,
	}
}

// Result es la salida del loader.
type Result struct {
	Groups       map[domain.PositionKey][]domain.Fill
	Rejects      []domain.RejectedFill
	Accepted     int
	Duplicates   int
	ZeroQuantity int
}

// Keys devuelve las claves de grupo en orden determinista.
func (r Result) Keys() []domain.PositionKey {
	keys := make([]domain.PositionKey, 0, len(r.Groups))
	for k := range r.Groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	return keys
}

// Loader normaliza, valida, deduplica y agrupa fills crudos.
type Loader struct {
	cfg Config
}

// NewLoader crea un Loader con la configuración dada.
func NewLoader(cfg Config) *Loader {
	if cfg.MinConfidence == domain.ConfidenceNone {
		cfg.MinConfidence = domain.ConfidenceHigh
	}
	return &Loader{cfg: cfg}
}

// Load procesa un lote de fills crudos. Los rechazos no abortan el lote.
func (l *Loader) Load(raws []domain.RawFill) Result {
	res := Result{Groups: make(map[domain.PositionKey][]domain.Fill)}

	fills := make([]domain.Fill, 0, len(raws))
	for _, raw := range raws {
		f, err := l.Normalize(raw)
		if err != nil {
			rej := domain.RejectedFill{Raw: raw, Reason: domain.ReasonFor(err), Err: err}
			res.Rejects = append(res.Rejects, rej)
			slog.Debug("fill quarantined",
				"id", raw.ID,
				"tx", raw.TxHash,
				"reason", rej.Reason,
				"err", err,
			)
			continue
		}
		if f.Shares.IsZero() {
			res.ZeroQuantity++
		}
		fills = append(fills, f)
	}

	fills, res.Duplicates = Dedup(fills)
	res.Accepted = len(fills)

	for _, f := range fills {
		k := f.Key()
		res.Groups[k] = append(res.Groups[k], f)
	}
	for _, group := range res.Groups {
		SortFills(group)
	}

	slog.Debug("ledger loaded",
		"raw", len(raws),
		"accepted", res.Accepted,
		"duplicates", res.Duplicates,
		"rejected", len(res.Rejects),
		"zero_quantity", res.ZeroQuantity,
		"groups", len(res.Groups),
	)
	return res
}

// Normalize convierte un fill crudo en canónico o devuelve el error de cuarentena.
func (l *Loader) Normalize(raw domain.RawFill) (domain.Fill, error) {
	wallet, err := domain.NormalizeWallet(raw.Wallet)
	if err != nil {
		return domain.Fill{}, err
	}
	conditionID, err := domain.NormalizeConditionID(raw.MarketID)
	if err != nil {
		return domain.Fill{}, err
	}
	if raw.OutcomeIndex < 0 {
		return domain.Fill{}, fmt.Errorf("%w: negative outcome index %d", domain.ErrDataIntegrity, raw.OutcomeIndex)
	}
	if raw.Timestamp.IsZero() {
		return domain.Fill{}, fmt.Errorf("%w: missing timestamp", domain.ErrDataIntegrity)
	}
	if raw.Shares.IsNegative() {
		return domain.Fill{}, fmt.Errorf("%w: negative shares %s", domain.ErrDataIntegrity, raw.Shares)
	}
	if raw.Fee.IsNegative() {
		return domain.Fill{}, fmt.Errorf("%w: negative fee %s", domain.ErrDataIntegrity, raw.Fee)
	}
	if err := l.cfg.Bounds.Check(raw.Price); err != nil {
		return domain.Fill{}, err
	}

	side, confidence, err := l.resolveSide(raw)
	if err != nil {
		return domain.Fill{}, err
	}

	value := raw.Shares.Mul(raw.Price)
	if raw.Value.Valid {
		value = raw.Value.Decimal
	}

	f := domain.Fill{
		SourceID:     raw.ID,
		TxHash:       raw.TxHash,
		Wallet:       wallet,
		ConditionID:  conditionID,
		OutcomeIndex: raw.OutcomeIndex,
		Side:         side,
		Shares:       raw.Shares,
		Price:        raw.Price,
		Fee:          orZero(raw.Fee),
		Value:        value,
		Timestamp:    raw.Timestamp.UTC(),
		IngestSeq:    raw.IngestSeq,
		Confidence:   confidence,
	}
	f.ID = FillID(f)
	return f, nil
}

// resolveSide usa el side explícito si es confiable; si no, lo infiere de las
// patas de la transacción. Nunca aplica un default silencioso.
func (l *Loader) resolveSide(raw domain.RawFill) (domain.Side, domain.Confidence, error) {
	if !raw.SideUnreliable {
		if side, ok := domain.ParseSide(raw.Side); ok {
			return side, domain.ConfidenceExplicit, nil
		}
	}

	side, confidence := InferSide(raw.Transfers)
	if side == "" {
		return "", domain.ConfidenceNone, fmt.Errorf("%w: no explicit side and transfer legs are inconclusive",
			domain.ErrAmbiguousDirection)
	}
	if confidence < l.cfg.MinConfidence {
		return "", confidence, fmt.Errorf("%w: inferred %s with %s confidence, need %s",
			domain.ErrAmbiguousDirection, side, confidence, l.cfg.MinConfidence)
	}
	return side, confidence, nil
}

// SortFills ordena un grupo por timestamp; empates por orden de ingestión y luego ID.
func SortFills(fills []domain.Fill) {
	sort.SliceStable(fills, func(i, j int) bool {
		a, b := fills[i], fills[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		if a.IngestSeq != b.IngestSeq {
			return a.IngestSeq < b.IngestSeq
		}
		return a.ID < b.ID
	})
}

// orZero normaliza un decimal sin inicializar (valor cero de la struct).
func orZero(d decimal.Decimal) decimal.Decimal {
	if d.IsZero() {
		return decimal.Zero
	}
	return d
}
