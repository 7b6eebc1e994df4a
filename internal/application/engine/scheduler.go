package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alejandrodnm/pickbot/internal/clock"
	"github.com/alejandrodnm/pickbot/internal/domain"
)

// Scheduler conduce el engine con dos disparadores: un checkpoint diario de
// generación consciente de zona horaria y un poll a intervalo fijo que
// detecta que el evento de un pick bloqueado ha empezado y fuerza la
// regeneración. Ambos corren en un solo bucle, así que la regeneración es
// totalmente secuencial y dos picks del mismo scope y día no pueden competir
// desde un mismo proceso.
type Scheduler struct {
	engine *Engine
	clk    clock.Clock

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	lastDay string // último día con checkpoint completado, en hora local del engine
}

// NewScheduler crea un Scheduler para el engine. La config del engine aporta
// la hora del checkpoint, la zona horaria y el intervalo de poll.
func NewScheduler(e *Engine) *Scheduler {
	return &Scheduler{engine: e, clk: e.clk}
}

// Start lanza el bucle de planificación. Retorna de inmediato; Stop (o
// cancelar ctx) apaga el bucle sin timers colgando ni picks a medio escribir.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		return // ya en marcha
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	slog.Info("scheduler starting",
		"checkpoint", checkpointLabel(s.engine.cfg),
		"tz", s.engine.cfg.Location.String(),
		"poll_interval", s.engine.cfg.PollInterval,
	)

	done := s.done
	go func() {
		defer close(done)
		s.loop(ctx)
	}()
}

// Stop cancela el bucle y espera a que termine el tick en vuelo.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Scheduler) loop(ctx context.Context) {
	// Primer tick inmediato: un reinicio no debe esperar un intervalo de
	// poll entero para recuperar sus picks.
	s.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler stopped")
			return
		case <-s.clk.After(s.engine.cfg.PollInterval):
			s.tick(ctx)
		}
	}
}

// tick ejecuta el checkpoint diario si toca, luego el poll de inicio de
// eventos, luego una pasada de settlement. Estrictamente secuencial.
func (s *Scheduler) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if s.checkpointDue() {
		s.runCheckpoint(ctx)
	}
	s.runEventPoll(ctx)
	s.runSettlement(ctx)
}

// checkpointDue indica si el checkpoint diario debe dispararse: la hora local
// superó la configurada y aún no se completó hoy.
func (s *Scheduler) checkpointDue() bool {
	cfg := s.engine.cfg
	now := s.clk.Now().In(cfg.Location)
	day := domain.DayKey(now, cfg.Location)
	if day == s.lastDay {
		return false
	}
	at := time.Date(now.Year(), now.Month(), now.Day(), cfg.CheckpointHour, cfg.CheckpointMin, 0, 0, cfg.Location)
	return !now.Before(at)
}

func (s *Scheduler) runCheckpoint(ctx context.Context) {
	day := domain.DayKey(s.clk.Now(), s.engine.cfg.Location)
	slog.Info("scheduler: daily checkpoint", "day", day)

	// lastDay solo se estampa cuando todos los scopes generaron sin error:
	// ante un corte transitorio del feed el checkpoint reintenta en el
	// siguiente poll en vez de dejar un scope sin pick hasta mañana. Un pool
	// vacío es nil sin error y cuenta como completado.
	ok := true
	for _, scope := range domain.Scopes {
		if _, err := s.engine.GenerateToday(ctx, scope); err != nil {
			slog.Error("scheduler: checkpoint generation failed", "scope", scope, "err", err)
			ok = false
		}
	}
	if ok {
		s.lastDay = day
	}
}

// runEventPoll regenera cualquier scope cuyo pick bloqueado tenga su evento
// empezado o terminado, excluyendo ese evento del nuevo pool de candidatos.
func (s *Scheduler) runEventPoll(ctx context.Context) {
	now := s.clk.Now()
	day := domain.DayKey(now, s.engine.cfg.Location)

	for _, scope := range domain.Scopes {
		current, err := s.engine.picks.CurrentPick(ctx, scope, day)
		if err != nil {
			slog.Warn("scheduler: poll read failed", "scope", scope, "err", err)
			continue
		}
		if current == nil || current.Settled() || !now.After(current.EventStartTime) {
			continue
		}

		slog.Info("scheduler: locked pick's event started, rotating",
			"scope", scope,
			"selection", current.Selection,
			"started_at", current.EventStartTime,
		)

		exclude := map[string]bool{current.EventKey: true}
		if _, err := s.engine.generate(ctx, scope, exclude, false); err != nil {
			slog.Error("scheduler: rotation failed", "scope", scope, "err", err)
		}
	}
}

// runSettlement liquida los picks pendientes contra la ventana reciente de
// resultados.
func (s *Scheduler) runSettlement(ctx context.Context) {
	now := s.clk.Now()
	n, err := s.engine.GradePending(ctx, now.Add(-s.engine.cfg.SettleLookback), now)
	if err != nil {
		slog.Warn("scheduler: settlement cycle failed", "err", err)
		return
	}
	if n > 0 {
		slog.Info("scheduler: settlement cycle complete", "settled", n)
	}
}

func checkpointLabel(cfg Config) string {
	return time.Date(0, 1, 1, cfg.CheckpointHour, cfg.CheckpointMin, 0, 0, time.UTC).Format("15:04")
}
