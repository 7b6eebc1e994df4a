package ports

import (
	"context"
	"errors"
	"time"

	"github.com/alejandrodnm/pickbot/internal/domain"
)

// ErrUnavailable señala que un feed no tiene datos para la petición. Los
// llamantes lo tratan como un salto, nunca como fallo del ciclo.
var ErrUnavailable = errors.New("feed data unavailable")

// EventCatalog lista los próximos eventos de un deporte.
type EventCatalog interface {
	// ListUpcomingEvents devuelve los eventos que empiezan dentro de la
	// ventana desde ahora.
	ListUpcomingEvents(ctx context.Context, sport string, window time.Duration) ([]domain.CandidateEvent, error)
}

// QuoteFeed devuelve las cotizaciones de mercado de un evento.
type QuoteFeed interface {
	GetQuotes(ctx context.Context, ev domain.CandidateEvent) ([]domain.Quote, error)
}

// ResultFeed devuelve los resultados finalizados en un rango de fechas.
type ResultFeed interface {
	GetFinalResults(ctx context.Context, from, to time.Time) ([]domain.SettlementResult, error)
}

// EnrichmentFeed devuelve forma reciente y datos situacionales de un evento.
// Puede devolver ErrUnavailable; el scorer degrada con elegancia.
type EnrichmentFeed interface {
	GetEnrichment(ctx context.Context, ev domain.CandidateEvent) (domain.Enrichment, error)
}
