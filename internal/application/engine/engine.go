// Package engine es el dueño del ciclo de vida del pick: selección de
// candidatos, bloqueo de nota, rotación por tiempo y settlement.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/pickbot/internal/application/stability"
	"github.com/alejandrodnm/pickbot/internal/clock"
	"github.com/alejandrodnm/pickbot/internal/domain"
	"github.com/alejandrodnm/pickbot/internal/ports"
)

// Config controla el comportamiento de selección del engine.
type Config struct {
	Sport          string
	Window         time.Duration // hasta dónde llega el pool de candidatos
	Location       *time.Location
	MinGrade       domain.Grade // por debajo el pick se marca low-quality
	Units          float64      // stake de referencia por pick
	CheckpointHour int          // checkpoint diario de generación, hora local
	CheckpointMin  int
	PollInterval   time.Duration // cadencia del poll de inicio de eventos
	SettleLookback time.Duration // ventana de resultados por ciclo de settlement
	MissWarnAfter  int           // fallos de matching consecutivos antes de avisar
}

// DefaultConfig devuelve los valores de producción.
func DefaultConfig() Config {
	return Config{
		Sport:          "baseball_mlb",
		Window:         36 * time.Hour,
		Location:       time.UTC,
		MinGrade:       "B+",
		Units:          1.0,
		CheckpointHour: 7,
		PollInterval:   30 * time.Minute,
		SettleLookback: 48 * time.Hour,
		MissWarnAfter:  5,
	}
}

// Engine cablea el scorer de factores, el calculador de nota, el guard de
// estabilidad y el store de picks en el ciclo de vida del pick. Todo el
// trabajo de selección dentro de una llamada es secuencial: score → nota →
// guard → publicación, candidato a candidato.
type Engine struct {
	cfg      Config
	catalog  ports.EventCatalog
	quotes   ports.QuoteFeed
	enrich   ports.EnrichmentFeed
	results  ports.ResultFeed
	picks    ports.PickStore
	guard    *stability.Guard
	scorer   *domain.Scorer
	notifier ports.Notifier
	clk      clock.Clock

	mu         sync.Mutex
	missCounts map[string]int // pick id → fallos de matching consecutivos
}

// New crea un Engine con todos los colaboradores inyectados.
func New(
	cfg Config,
	catalog ports.EventCatalog,
	quotes ports.QuoteFeed,
	enrich ports.EnrichmentFeed,
	results ports.ResultFeed,
	picks ports.PickStore,
	guard *stability.Guard,
	scorer *domain.Scorer,
	notifier ports.Notifier,
	clk clock.Clock,
) *Engine {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Engine{
		cfg:        cfg,
		catalog:    catalog,
		quotes:     quotes,
		enrich:     enrich,
		results:    results,
		picks:      picks,
		guard:      guard,
		scorer:     scorer,
		notifier:   notifier,
		clk:        clk,
		missCounts: make(map[string]int),
	}
}

// GenerateToday produce o refresca el pick del scope para el día en curso.
// Devuelve nil sin error cuando el pool de candidatos está vacío.
func (e *Engine) GenerateToday(ctx context.Context, scope domain.Scope) (*domain.Pick, error) {
	return e.generate(ctx, scope, nil, false)
}

// ForceRotate regenera el pick del scope de inmediato, saltándose el
// checkpoint diario. El cálculo sigue pasando por el guard de estabilidad,
// bajo la regla de override manual.
func (e *Engine) ForceRotate(ctx context.Context, scope domain.Scope) (*domain.Pick, error) {
	return e.generate(ctx, scope, nil, true)
}

// CurrentPick devuelve el pick del scope para hoy, o nil.
func (e *Engine) CurrentPick(ctx context.Context, scope domain.Scope) (*domain.Pick, error) {
	day := domain.DayKey(e.clk.Now(), e.cfg.Location)
	p, err := e.picks.CurrentPick(ctx, scope, day)
	if err != nil {
		return nil, fmt.Errorf("engine.CurrentPick: %w", err)
	}
	return p, nil
}

// StabilityStats expone el recuento de registros del guard y su distribución
// de edades.
func (e *Engine) StabilityStats(ctx context.Context) (domain.StabilityStats, error) {
	return e.guard.Stats(ctx)
}

// scoredCandidate empareja un evento con su mejor cotización puntuada.
type scoredCandidate struct {
	event  domain.CandidateEvent
	quote  domain.Quote
	scores domain.FactorScoreSet
	grade  domain.Grade
	sum    float64
}

// generate ejecuta una pasada completa de selección para un scope.
// extraExclude elimina claves de evento que el llamante ya sabe muertas (un
// evento recién empezado durante la rotación); manual marca un override del
// guard.
func (e *Engine) generate(ctx context.Context, scope domain.Scope, extraExclude map[string]bool, manual bool) (*domain.Pick, error) {
	now := e.clk.Now()
	day := domain.DayKey(now, e.cfg.Location)

	current, err := e.picks.CurrentPick(ctx, scope, day)
	if err != nil {
		return nil, fmt.Errorf("engine.generate: load current pick: %w", err)
	}

	events, err := e.catalog.ListUpcomingEvents(ctx, e.cfg.Sport, e.cfg.Window)
	if err != nil {
		// Feed inalcanzable: el pick bloqueado previo sigue siendo válido en
		// lugar de borrarse. Mejor rancio que nada.
		if current != nil {
			slog.Warn("engine: catalog unreachable, keeping locked pick",
				"scope", scope, "err", err)
			return current, nil
		}
		return nil, fmt.Errorf("engine.generate: list events: %w", err)
	}

	exclude := e.exclusions(ctx, scope, day, extraExclude)

	// La ventana de permanencia protege al pick vigente, no solo a su evento:
	// antes de mirar al resto del pool, el propio evento del pick vigente
	// tiene que readmitir la regeneración. Si el guard la rechaza, un evento
	// ajeno que se vuelva admisible a mitad de ventana no desplaza al pick.
	if held, ok := e.holdCurrent(ctx, current, events, exclude, now, manual); ok {
		return held, nil
	}

	yesterdaySelection := e.yesterdaySelection(ctx, scope, now)

	candidates := e.scoreCandidates(ctx, events, now, exclude)
	if len(candidates) == 0 {
		slog.Warn("engine: no scoreable candidates", "scope", scope, "pool", len(events))
		if current != nil {
			return current, nil
		}
		return nil, nil
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].sum > candidates[j].sum })

	ordered := applyDiversity(candidates, yesterdaySelection)

	// Dos niveles: primero los candidatos que alcanzan la nota mínima, el
	// resto solo como fallback cuando nada aceptable pudo admitirse.
	var acceptable, belowMin []scoredCandidate
	for _, c := range ordered {
		if c.grade.AtLeast(e.cfg.MinGrade) {
			acceptable = append(acceptable, c)
		} else {
			belowMin = append(belowMin, c)
		}
	}

	for tier, list := range [][]scoredCandidate{acceptable, belowMin} {
		lowQuality := tier == 1
		for _, c := range list {
			reason, err := e.guard.Admit(ctx, c.event, manual)
			switch {
			case errors.Is(err, stability.ErrParticipantsUnknown):
				continue
			case errors.Is(err, stability.ErrRegenerationRejected):
				if current != nil && current.EventKey == c.event.Key() {
					return current, nil
				}
				continue
			case err != nil:
				return nil, fmt.Errorf("engine.generate: guard: %w", err)
			}

			if lowQuality {
				slog.Warn("engine: no candidate meets minimum grade, publishing best available",
					"scope", scope,
					"grade", c.grade,
					"min_grade", e.cfg.MinGrade,
				)
			}

			pick, err := e.publish(ctx, scope, day, c, reason, lowQuality, current)
			if err != nil {
				return nil, err
			}
			return pick, nil
		}
	}

	// Todos los candidatos estaban bloqueados en otro sitio o sin titulares.
	if current != nil {
		return current, nil
	}
	slog.Warn("engine: no eligible candidate admitted", "scope", scope)
	return nil, nil
}

// holdCurrent consulta al guard por el evento del pick vigente antes del
// rescan del pool. Devuelve (pick, true) cuando el pick debe mantenerse tal
// cual; (nil, false) cuando procede la selección completa, sea porque no hay
// pick vigente, su evento desapareció o empezó, fue excluido, o el guard
// admitió la regeneración.
func (e *Engine) holdCurrent(ctx context.Context, current *domain.Pick, events []domain.CandidateEvent, exclude map[string]bool, now time.Time, manual bool) (*domain.Pick, bool) {
	if current == nil || current.Settled() || exclude[current.EventKey] {
		return nil, false
	}
	for _, ev := range events {
		if ev.Key() != current.EventKey {
			continue
		}
		if ev.Started(now) {
			return nil, false
		}
		_, err := e.guard.Admit(ctx, ev, manual)
		switch {
		case errors.Is(err, stability.ErrRegenerationRejected),
			errors.Is(err, stability.ErrParticipantsUnknown):
			return current, true
		case err != nil:
			slog.Warn("engine: guard check on current pick failed, keeping it",
				"event", current.EventKey, "err", err)
			return current, true
		}
		return nil, false
	}
	return nil, false
}

// publish construye el pick bloqueado, lo escribe como pick vigente del
// scope, confirma el registro de estabilidad y notifica. La escritura en el
// store es el último paso, atómica por pick.
func (e *Engine) publish(ctx context.Context, scope domain.Scope, day string, c scoredCandidate, reason domain.LockReason, lowQuality bool, prev *domain.Pick) (*domain.Pick, error) {
	now := e.clk.Now()
	pick := domain.Pick{
		ID:             uuid.NewString(),
		Scope:          scope,
		Day:            day,
		EventKey:       c.event.Key(),
		EventID:        c.event.EventID,
		Sport:          c.event.Sport,
		HomeTeam:       c.event.HomeTeam,
		AwayTeam:       c.event.AwayTeam,
		Selection:      c.quote.Selection,
		MarketType:     c.quote.MarketType,
		Price:          c.quote.Price,
		Line:           c.quote.Line,
		Units:          e.cfg.Units,
		Scores:         c.scores,
		Grade:          c.grade,
		Confidence:     c.sum,
		Rationale:      buildRationale(c),
		LowQuality:     lowQuality,
		Status:         domain.StatusPending,
		LockedAt:       now,
		LockReason:     reason,
		EventStartTime: c.event.StartTime,
		CreatedAt:      now,
	}

	if err := e.picks.PublishPick(ctx, pick); err != nil {
		return nil, fmt.Errorf("engine.publish: %w", err)
	}
	if err := e.guard.Commit(ctx, pick.EventKey, pick.Grade, reason); err != nil {
		return nil, fmt.Errorf("engine.publish: %w", err)
	}
	// El evento del pick desplazado ya no respalda un pick activo.
	if prev != nil && prev.EventKey != pick.EventKey {
		if err := e.guard.Release(ctx, prev.EventKey); err != nil {
			slog.Warn("engine: failed to release stale stability record",
				"event", prev.EventKey, "err", err)
		}
	}

	slog.Info("engine: pick locked",
		"scope", scope,
		"day", day,
		"selection", pick.Selection,
		"market", pick.MarketType,
		"price", pick.Price,
		"grade", pick.Grade,
		"reason", reason,
		"low_quality", lowQuality,
	)

	if e.notifier != nil {
		if err := e.notifier.PickPublished(ctx, pick); err != nil {
			slog.Warn("engine: notifier error", "err", err)
		}
	}
	return &pick, nil
}

// scoreCandidates pasa el scorer de factores por cada evento usable. Los
// fallos quedan contenidos por candidato: una cotización ausente o un
// enriquecimiento que falla salta o degrada ese evento, nunca el ciclo.
func (e *Engine) scoreCandidates(ctx context.Context, events []domain.CandidateEvent, now time.Time, exclude map[string]bool) []scoredCandidate {
	var out []scoredCandidate
	for _, ev := range events {
		if ev.Started(now) || exclude[ev.Key()] {
			continue
		}
		if exclude[teamKey(ev.HomeTeam)] || exclude[teamKey(ev.AwayTeam)] {
			continue
		}

		if len(ev.Quotes) == 0 {
			quotes, err := e.quotes.GetQuotes(ctx, ev)
			if err != nil {
				slog.Debug("engine: quotes unavailable, skipping candidate",
					"event", ev.Key(), "err", err)
				continue
			}
			ev.Quotes = quotes
		}
		if len(ev.Quotes) == 0 {
			continue
		}

		en, err := e.enrich.GetEnrichment(ctx, ev)
		if err != nil && !errors.Is(err, ports.ErrUnavailable) {
			slog.Debug("engine: enrichment fetch failed, scoring with defaults",
				"event", ev.Key(), "err", err)
			en = domain.Enrichment{}
		}

		best, ok := e.bestQuote(ev, en)
		if !ok {
			continue
		}
		out = append(out, best)
	}
	return out
}

// bestQuote puntúa cada cotización del evento y se queda con la más fuerte.
func (e *Engine) bestQuote(ev domain.CandidateEvent, en domain.Enrichment) (scoredCandidate, bool) {
	var best scoredCandidate
	found := false
	for _, q := range ev.Quotes {
		scores := e.scorer.Score(ev, q, en)
		grade, sum := domain.ComputeGrade(scores)
		if !found || sum > best.sum {
			best = scoredCandidate{event: ev, quote: q, scores: scores, grade: grade, sum: sum}
			found = true
		}
	}
	return best, found
}

// exclusions construye el conjunto de exclusión por scope: las claves que
// aporta el llamante más, para el scope secundario, todo evento que comparta
// participante con el pick vivo del otro scope. Selecciones correlacionadas
// anulan el sentido de tener dos picks.
func (e *Engine) exclusions(ctx context.Context, scope domain.Scope, day string, extra map[string]bool) map[string]bool {
	exclude := make(map[string]bool, len(extra))
	for k := range extra {
		exclude[k] = true
	}
	if scope != domain.ScopePremium {
		return exclude
	}

	other, err := e.picks.CurrentPick(ctx, domain.ScopeGeneral, day)
	if err != nil || other == nil || other.Settled() {
		return exclude
	}
	exclude[other.EventKey] = true
	exclude[teamKey(other.HomeTeam)] = true
	exclude[teamKey(other.AwayTeam)] = true
	return exclude
}

// teamKey da espacio de nombres a un participante dentro del conjunto de
// exclusión, junto a claves de evento planas.
func teamKey(team string) string {
	return "team:" + domain.NormalizeTeam(team)
}

// yesterdaySelection devuelve la selección bloqueada para el scope el día
// natural anterior, para la regla de diversidad entre días adyacentes.
func (e *Engine) yesterdaySelection(ctx context.Context, scope domain.Scope, now time.Time) string {
	yesterday := domain.DayKey(now.AddDate(0, 0, -1), e.cfg.Location)
	p, err := e.picks.CurrentPick(ctx, scope, yesterday)
	if err != nil || p == nil {
		return ""
	}
	return p.Selection
}

// applyDiversity relega al final del orden a los candidatos que repiten la
// selección de ayer. Siguen siendo elegibles: sin alternativas la regla cede
// antes que no publicar nada.
func applyDiversity(candidates []scoredCandidate, yesterdaySelection string) []scoredCandidate {
	if yesterdaySelection == "" {
		return candidates
	}
	prev := domain.NormalizeTeam(yesterdaySelection)
	fresh := make([]scoredCandidate, 0, len(candidates))
	var repeats []scoredCandidate
	for _, c := range candidates {
		if domain.NormalizeTeam(c.quote.Selection) == prev {
			repeats = append(repeats, c)
			continue
		}
		fresh = append(fresh, c)
	}
	return append(fresh, repeats...)
}

// buildRationale redacta la justificación legible que se bloquea con el
// pick. Abre con los dos factores más fuertes.
func buildRationale(c scoredCandidate) string {
	type factor struct {
		name  string
		score float64
	}
	factors := []factor{
		{"offensive production", c.scores.Offense},
		{"matchup strength", c.scores.Matchup},
		{"situational edge", c.scores.Situational},
		{"recent momentum", c.scores.Momentum},
		{"market inefficiency", c.scores.MarketEdge},
	}
	sort.Slice(factors, func(i, j int) bool { return factors[i].score > factors[j].score })

	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s", c.quote.Selection, c.quote.MarketType)
	if c.quote.MarketType != domain.MarketMoneyline {
		fmt.Fprintf(&b, " %+.1f", c.quote.Line)
	}
	fmt.Fprintf(&b, " %+d) graded %s on %.1f.", c.quote.Price, c.grade, c.sum)
	fmt.Fprintf(&b, " Driven by %s (%.0f) and %s (%.0f)",
		factors[0].name, factors[0].score, factors[1].name, factors[1].score)
	fmt.Fprintf(&b, "; model confidence %.0f.", c.scores.Confidence)
	return b.String()
}
