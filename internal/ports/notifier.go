package ports

import (
	"context"

	"github.com/alejandrodnm/pickbot/internal/domain"
)

// Notifier publica la salida del engine en la superficie que esté cableada.
type Notifier interface {
	// PickPublished se llama una vez por cada pick recién bloqueado.
	PickPublished(ctx context.Context, p domain.Pick) error

	// PicksSettled se llama tras un ciclo de settlement con los picks que
	// alcanzaron estado terminal en él.
	PicksSettled(ctx context.Context, picks []domain.Pick) error
}
