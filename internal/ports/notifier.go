package ports

import (
	"context"

	"github.com/alejandrodnm/polypnl/internal/domain"
)

// Notifier presenta el resultado de una pasada al usuario.
type Notifier interface {
	// Notify muestra resúmenes, reconciliación y rechazos. En la
	// implementación de consola imprime tablas formateadas.
	Notify(ctx context.Context, run domain.RunResult) error
}
