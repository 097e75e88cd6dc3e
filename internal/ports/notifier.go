package ports

import (
	"context"

	"github.com/alejandrodnm/polyagent/internal/domain"
)

// Reporter presenta el resultado de cada ciclo al operador.
type Reporter interface {
	// ReportCycle imprime el resumen de un ciclo terminado.
	ReportCycle(ctx context.Context, summary domain.CycleSummary, health domain.HealthReport) error

	// ReportDeath imprime el resumen final cuando el agente muere.
	ReportDeath(ctx context.Context, health domain.HealthReport) error
}
