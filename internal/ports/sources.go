package ports

import (
	"context"

	"github.com/alejandrodnm/polypnl/internal/domain"
)

// FillSource obtiene el historial de fills de una wallet.
type FillSource interface {
	// FetchFills devuelve los fills crudos de la wallet, sin normalizar ni
	// deduplicar: eso lo hace el loader.
	FetchFills(ctx context.Context, wallet string) ([]domain.RawFill, error)
}

// ResolutionSource obtiene lo que una fuente afirma sobre la resolución de mercados.
type ResolutionSource interface {
	// FetchResolutions devuelve candidatos para los mercados dados. Los
	// mercados abiertos simplemente no aparecen.
	FetchResolutions(ctx context.Context, ids []domain.ConditionID) ([]domain.ResolutionCandidate, error)
}

// PriceOracle obtiene cotizaciones actuales de outcomes.
type PriceOracle interface {
	// FetchPrices devuelve una cotización por outcome cotizado. Un outcome
	// sin cotización no aparece: nunca se devuelve precio cero como relleno.
	FetchPrices(ctx context.Context, ids []domain.ConditionID) ([]domain.Price, error)
}

// ReferenceSource obtiene la cifra de P&L externa de una wallet.
type ReferenceSource interface {
	// FetchReference devuelve ok=false si la fuente no conoce la wallet.
	FetchReference(ctx context.Context, wallet domain.Wallet) (ref domain.ReferencePnL, ok bool, err error)
}
