package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/pickbot/internal/domain"
)

// PickStore persiste los picks y rastrea el pick vigente por (scope, día).
// Los picks son historial de auditoría: nunca se borran, solo se desplazan
// como pick vigente o transicionan a un estado terminal.
type PickStore interface {
	// PublishPick guarda el pick y lo convierte en el vigente de su
	// (scope, día) en una transacción.
	PublishPick(ctx context.Context, p domain.Pick) error

	// CurrentPick devuelve el pick vigente del scope y día, o nil.
	CurrentPick(ctx context.Context, scope domain.Scope, day string) (*domain.Pick, error)

	// PendingPicks devuelve los picks pendientes cuyo evento empezó antes del
	// instante dado, candidatos a settlement.
	PendingPicks(ctx context.Context, startedBefore time.Time) ([]domain.Pick, error)

	// Settle transiciona un pick pendiente a un estado terminal. Devuelve
	// false cuando el pick ya estaba liquidado; la reentrada es un no-op.
	Settle(ctx context.Context, id string, status domain.PickStatus, winAmount float64, settledAt time.Time) (bool, error)

	// Close libera el almacenamiento subyacente.
	Close() error
}

// StabilityStore guarda los registros de lock por evento del guard, con TTL.
type StabilityStore interface {
	// GetRecord devuelve el registro de la clave de evento, o nil.
	GetRecord(ctx context.Context, eventKey string) (*domain.StabilityRecord, error)

	// PutRecord inserta o reemplaza el registro.
	PutRecord(ctx context.Context, rec domain.StabilityRecord) error

	// DeleteRecord evicta el registro; una clave ausente no es error.
	DeleteRecord(ctx context.Context, eventKey string) error

	// Records devuelve todos los registros vivos, para stats y barridos de
	// expiración.
	Records(ctx context.Context) ([]domain.StabilityRecord, error)
}
