// Package accounting reproduce la secuencia de fills de una posición y
// mantiene su estado contable: cantidad neta, coste base y P&L realizado.
//
// El método base es coste medio. FIFO por lotes está disponible como
// alternativa más estricta: cambia el momento en que se realiza el P&L en
// cierres parciales, así que el método es siempre una opción de config.
package accounting

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polypnl/internal/domain"
)

// Method es el método de coste base.
type Method string

const (
	AverageCost Method = "average_cost"
	FIFO        Method = "fifo"
)

// ParseMethod convierte el valor de config; vacío equivale a AverageCost.
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "average_cost", "avg", "average":
		return AverageCost, nil
	case "fifo":
		return FIFO, nil
	}
	return "", fmt.Errorf("accounting: unknown method %q", s)
}

// Config controla el accountant.
type Config struct {
	Method Method
	Bounds domain.PriceBounds
}

// DefaultConfig devuelve coste medio con límites de mercado binario.
func DefaultConfig() Config {
	return Config{Method: AverageCost, Bounds: domain.ProbabilityBounds()}
}

// Book es el estado contable incremental de una única posición.
type Book interface {
	// Apply procesa un fill. Devuelve el evento realizado si el fill reduce,
	// revierte o paga fee; nil si solo abre/aumenta sin fee o es un no-op.
	Apply(f domain.Fill) (*domain.PnLEvent, error)
	// Position devuelve una copia del estado actual.
	Position() domain.Position
}

// Rejected es un fill que el accountant no pudo aplicar.
type Rejected struct {
	Fill domain.Fill
	Err  error
}

// Result es la salida de un replay.
type Result struct {
	Position domain.Position
	Events   []domain.PnLEvent
	Rejected []Rejected
}

// RealizedFromEvents suma los eventos; coincide con Position.RealizedPnL.
func (r Result) RealizedFromEvents() decimal.Decimal {
	total := decimal.Zero
	for _, e := range r.Events {
		total = total.Add(e.Amount)
	}
	return total
}

// Accountant crea books y reproduce secuencias de fills. No tiene estado
// mutable propio: es seguro usarlo desde varios workers a la vez.
type Accountant struct {
	cfg Config
}

// New crea un Accountant.
func New(cfg Config) *Accountant {
	if cfg.Method == "" {
		cfg.Method = AverageCost
	}
	return &Accountant{cfg: cfg}
}

// Method devuelve el método configurado.
func (a *Accountant) Method() Method { return a.cfg.Method }

// NewBook crea un book vacío para la clave dada.
func (a *Accountant) NewBook(key domain.PositionKey) Book {
	base := ledgerState{pos: domain.NewPosition(key), bounds: a.cfg.Bounds}
	if a.cfg.Method == FIFO {
		return &fifoBook{ledgerState: base}
	}
	return &averageBook{ledgerState: base}
}

// Replay reproduce la secuencia ordenada de fills de UNA posición.
// Es determinista: la misma secuencia produce siempre la misma posición y eventos.
// Los fills que violan invariantes de dominio se devuelven en Rejected y no
// alteran el estado; error solo si la secuencia está vacía o mezcla posiciones.
func (a *Accountant) Replay(fills []domain.Fill) (Result, error) {
	if len(fills) == 0 {
		return Result{}, fmt.Errorf("accounting.Replay: empty fill sequence")
	}
	key := fills[0].Key()
	book := a.NewBook(key)

	var res Result
	for _, f := range fills {
		if f.Key() != key {
			return Result{}, fmt.Errorf("accounting.Replay: fill %s belongs to %s, not %s", f.ID, f.Key(), key)
		}
		ev, err := book.Apply(f)
		if err != nil {
			res.Rejected = append(res.Rejected, Rejected{Fill: f, Err: err})
			continue
		}
		if ev != nil {
			res.Events = append(res.Events, *ev)
		}
	}
	res.Position = book.Position()
	return res, nil
}

// ledgerState es la parte común a ambos métodos: validación, contadores y fees.
type ledgerState struct {
	pos    domain.Position
	bounds domain.PriceBounds
}

func (s *ledgerState) Position() domain.Position { return s.pos }

// admit valida el fill y actualiza contadores. skip=true para fills de cantidad cero.
func (s *ledgerState) admit(f domain.Fill) (skip bool, err error) {
	if f.Key() != s.pos.Key {
		return false, fmt.Errorf("%w: fill %s for %s applied to %s", domain.ErrDataIntegrity, f.ID, f.Key(), s.pos.Key)
	}
	if f.Shares.IsNegative() {
		return false, fmt.Errorf("%w: negative shares %s", domain.ErrDataIntegrity, f.Shares)
	}
	if f.Shares.IsZero() {
		slog.Debug("zero quantity fill ignored", "fill", f.ID, "position", s.pos.Key.String())
		return true, nil
	}
	if err := s.bounds.Check(f.Price); err != nil {
		return false, err
	}
	if !s.pos.LastFillAt.IsZero() && f.Timestamp.Before(s.pos.LastFillAt) {
		return false, fmt.Errorf("%w: fill %s at %s precedes last fill %s",
			domain.ErrDataIntegrity, f.ID, f.Timestamp, s.pos.LastFillAt)
	}

	if s.pos.FillCount == 0 {
		s.pos.FirstFillAt = f.Timestamp
	}
	s.pos.LastFillAt = f.Timestamp
	s.pos.FillCount++
	s.pos.FeesPaid = s.pos.FeesPaid.Add(f.Fee)
	return false, nil
}

// settle registra el P&L bruto de un cierre (o solo la fee) y actualiza el estado.
func (s *ledgerState) settle(f domain.Fill, kind domain.PnLEventKind, closed, gross, avg decimal.Decimal) *domain.PnLEvent {
	defer s.refreshState()

	if kind == "" {
		if f.Fee.IsZero() {
			return nil
		}
		kind = domain.EventFee
	}
	amount := gross.Sub(f.Fee)
	s.pos.RealizedPnL = s.pos.RealizedPnL.Add(amount)
	return &domain.PnLEvent{
		FillID:    f.ID,
		Kind:      kind,
		ClosedQty: closed,
		Price:     f.Price,
		AvgCost:   avg,
		Fee:       f.Fee,
		Amount:    amount,
		Timestamp: f.Timestamp,
	}
}

func (s *ledgerState) refreshState() {
	switch s.pos.Quantity.Sign() {
	case 1:
		s.pos.State = domain.StateOpenLong
	case -1:
		s.pos.State = domain.StateOpenShort
	default:
		if s.pos.FillCount > 0 {
			s.pos.State = domain.StateClosed
		}
	}
}

func sameDirection(a, b decimal.Decimal) bool {
	return a.Sign() == b.Sign()
}
