package domain

import (
	"errors"
	"fmt"
)

// Taxonomía de errores de ingestión. Un fill rechazado se pone en cuarentena
// con su RejectReason; nunca aborta el batch completo.
var (
	ErrDataIntegrity      = errors.New("data integrity")
	ErrMissingIdentifier  = errors.New("missing identifier")
	ErrAmbiguousDirection = errors.New("ambiguous direction")
)

// RejectReason es el código de cuarentena de un fill.
type RejectReason string

const (
	RejectDataIntegrity      RejectReason = "DATA_INTEGRITY"
	RejectMissingIdentifier  RejectReason = "MISSING_IDENTIFIER"
	RejectAmbiguousDirection RejectReason = "AMBIGUOUS_DIRECTION"
)

// ReasonFor mapea un error de ingestión a su código de cuarentena.
func ReasonFor(err error) RejectReason {
	switch {
	case errors.Is(err, ErrMissingIdentifier):
		return RejectMissingIdentifier
	case errors.Is(err, ErrAmbiguousDirection):
		return RejectAmbiguousDirection
	default:
		return RejectDataIntegrity
	}
}

// RejectedFill es un fill en cuarentena junto con el motivo.
type RejectedFill struct {
	Raw    RawFill
	Reason RejectReason
	Err    error
}

// Error implementa error para poder propagar el rechazo con contexto.
func (r RejectedFill) Error() string {
	return fmt.Sprintf("fill %s (tx %s) rejected: %s: %v", r.Raw.ID, r.Raw.TxHash, r.Reason, r.Err)
}

func (r RejectedFill) Unwrap() error { return r.Err }
