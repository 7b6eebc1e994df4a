// Package stability decide si una recomendación bloqueada puede recalcularse.
// El guard es lo que impide que un pick publicado oscile cada pocos minutos
// con el ruido de los feeds: aquí la corrección es estabilidad, no precisión.
package stability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/pickbot/internal/clock"
	"github.com/alejandrodnm/pickbot/internal/domain"
	"github.com/alejandrodnm/pickbot/internal/ports"
)

var (
	// ErrRegenerationRejected significa que el lock sigue fresco y ningún
	// disparador se activó; el llamante debe reutilizar el pick existente.
	// Nunca llega al usuario.
	ErrRegenerationRejected = errors.New("stability: regeneration rejected, lock still fresh")

	// ErrParticipantsUnknown significa que faltan los insumos mínimos para un
	// primer lock (ambos titulares). El candidato se salta.
	ErrParticipantsUnknown = errors.New("stability: starting participants not confirmed")
)

const (
	// DefaultRefreshAfter fuerza un recálculo cuando el lock alcanza esta edad.
	DefaultRefreshAfter = 4 * time.Hour
	// DefaultRetention es cuánto vive un registro antes de evictarse y
	// tratarse como ausente.
	DefaultRetention = 24 * time.Hour
)

// Guard es la máquina de estados de lock por evento:
//
//	unlocked → locked(participants-confirmed) → locked(lineups-posted) → expired
//
// Admisión y evicción operan contra el store inyectado, de modo que un
// respaldo durable mantiene la máquina coherente entre reinicios.
type Guard struct {
	store        ports.StabilityStore
	clk          clock.Clock
	refreshAfter time.Duration
	retention    time.Duration
}

// New crea un Guard con las ventanas estándar de refresco y retención.
func New(store ports.StabilityStore, clk clock.Clock) *Guard {
	return &Guard{
		store:        store,
		clk:          clk,
		refreshAfter: DefaultRefreshAfter,
		retention:    DefaultRetention,
	}
}

// NewWithWindows crea un Guard con ventanas a medida, para tests y ajuste.
func NewWithWindows(store ports.StabilityStore, clk clock.Clock, refreshAfter, retention time.Duration) *Guard {
	return &Guard{store: store, clk: clk, refreshAfter: refreshAfter, retention: retention}
}

// Admit decide si puede proceder un nuevo cálculo para el evento y, en tal
// caso, bajo qué motivo de lock. Las reglas de admisión, en orden:
//
//	(a) sin registro vivo y ambos titulares confirmados → primer lock; si las
//	    alineaciones ya estaban publicadas el motivo es lineups-posted
//	    directamente, para que la siguiente pasada no lo lea como transición
//	(b) registro en participants-confirmed y alineaciones recién disponibles → lineups-posted
//	(c) el lock supera la ventana de refresco → refresco forzado
//	(d) override manual → siempre admitido
//
// Cualquier otro caso se rechaza y el llamante reutiliza el pick bloqueado.
func (g *Guard) Admit(ctx context.Context, ev domain.CandidateEvent, manual bool) (domain.LockReason, error) {
	rec, err := g.liveRecord(ctx, ev.Key())
	if err != nil {
		return "", fmt.Errorf("stability.Admit: %w", err)
	}

	if manual {
		return domain.LockManual, nil
	}

	if rec == nil {
		if !ev.ParticipantsConfirmed() {
			return "", ErrParticipantsUnknown
		}
		if ev.LineupsPosted() {
			return domain.LockLineupsPosted, nil
		}
		return domain.LockParticipantsConfirmed, nil
	}

	if rec.Reason == domain.LockParticipantsConfirmed && ev.LineupsPosted() {
		return domain.LockLineupsPosted, nil
	}

	if rec.Age(g.clk.Now()) > g.refreshAfter {
		slog.Debug("stability: forcing refresh",
			"event", ev.Key(),
			"age", rec.Age(g.clk.Now()).Round(time.Minute),
		)
		return rec.Reason, nil
	}

	return "", ErrRegenerationRejected
}

// Commit registra que un cálculo admitido bajo reason se publicó con la nota
// dada. El LockedAt original sobrevive a las readmisiones; UpdatedAt reinicia
// la ventana de permanencia.
func (g *Guard) Commit(ctx context.Context, eventKey string, grade domain.Grade, reason domain.LockReason) error {
	now := g.clk.Now()
	rec := domain.StabilityRecord{
		EventKey:  eventKey,
		Grade:     grade,
		Reason:    reason,
		LockedAt:  now,
		UpdatedAt: now,
	}

	if prev, err := g.liveRecord(ctx, eventKey); err == nil && prev != nil {
		rec.LockedAt = prev.LockedAt
	}

	if err := g.store.PutRecord(ctx, rec); err != nil {
		return fmt.Errorf("stability.Commit: %w", err)
	}
	return nil
}

// Release evicta el registro de un evento cuyo pick ya no está activo.
func (g *Guard) Release(ctx context.Context, eventKey string) error {
	if err := g.store.DeleteRecord(ctx, eventKey); err != nil {
		return fmt.Errorf("stability.Release: %w", err)
	}
	return nil
}

// Stats barre los registros expirados y devuelve el recuento vivo con una
// distribución de edades para observabilidad.
func (g *Guard) Stats(ctx context.Context) (domain.StabilityStats, error) {
	recs, err := g.store.Records(ctx)
	if err != nil {
		return domain.StabilityStats{}, fmt.Errorf("stability.Stats: %w", err)
	}

	now := g.clk.Now()
	var stats domain.StabilityStats
	for _, rec := range recs {
		if rec.Age(now) > g.retention {
			_ = g.store.DeleteRecord(ctx, rec.EventKey)
			continue
		}
		stats.Count++
		switch age := rec.Age(now); {
		case age < time.Hour:
			stats.Under1h++
		case age < 4*time.Hour:
			stats.Under4h++
		default:
			stats.Over4h++
		}
	}
	return stats, nil
}

// liveRecord obtiene el registro, evictándolo antes si superó la ventana de
// retención. Un registro expirado es ausente a efectos de admisión.
func (g *Guard) liveRecord(ctx context.Context, eventKey string) (*domain.StabilityRecord, error) {
	rec, err := g.store.GetRecord(ctx, eventKey)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}
	if rec.Age(g.clk.Now()) > g.retention {
		if err := g.store.DeleteRecord(ctx, eventKey); err != nil {
			slog.Warn("stability: failed to evict expired record", "event", eventKey, "err", err)
		}
		return nil, nil
	}
	return rec, nil
}
