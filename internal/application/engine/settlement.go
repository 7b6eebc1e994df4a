package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/pickbot/internal/domain"
)

// GradePending reconcilia los resultados finalizados en [from, to] contra los
// picks pendientes cuyo evento ya empezó, y devuelve cuántos se liquidaron.
//
// Un pick sin resultado que case simplemente sigue pendiente y se reintenta
// en el siguiente ciclo; solo los fallos repetidos salen a la superficie,
// como aviso operacional. Repetir sobre picks ya liquidados es un no-op.
func (e *Engine) GradePending(ctx context.Context, from, to time.Time) (int, error) {
	results, err := e.results.GetFinalResults(ctx, from, to)
	if err != nil {
		return 0, fmt.Errorf("engine.GradePending: fetch results: %w", err)
	}

	pending, err := e.picks.PendingPicks(ctx, e.clk.Now())
	if err != nil {
		return 0, fmt.Errorf("engine.GradePending: load pending picks: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	index := buildResultIndex(results)

	settled := 0
	var settledPicks []domain.Pick
	for _, p := range pending {
		result, strategy, ok := index.match(p)
		if !ok {
			e.recordMiss(p)
			continue
		}
		e.clearMiss(p.ID)

		status, winAmount := domain.GradePick(p, result)
		applied, err := e.picks.Settle(ctx, p.ID, status, winAmount, e.clk.Now())
		if err != nil {
			// Contenido por pick: una escritura mala no aborta el resto.
			slog.Warn("engine: settle failed", "pick", p.ID, "err", err)
			continue
		}
		if !applied {
			// Ya terminal; reentrada idempotente.
			continue
		}

		if err := e.guard.Release(ctx, p.EventKey); err != nil {
			slog.Warn("engine: failed to release settled stability record",
				"event", p.EventKey, "err", err)
		}

		slog.Info("engine: pick settled",
			"pick", p.ID,
			"scope", p.Scope,
			"selection", p.Selection,
			"status", status,
			"win_amount", fmt.Sprintf("%.4f", winAmount),
			"match_strategy", strategy,
			"score", fmt.Sprintf("%d-%d", result.HomeScore, result.AwayScore),
		)

		p.Status = status
		p.WinAmount = winAmount
		settledPicks = append(settledPicks, p)
		settled++
	}

	if len(settledPicks) > 0 && e.notifier != nil {
		if err := e.notifier.PicksSettled(ctx, settledPicks); err != nil {
			slog.Warn("engine: notifier error", "err", err)
		}
	}

	return settled, nil
}

// resultIndex guarda una ventana de resultados indexada por las tres
// estrategias de matching, aplicadas en orden: identificador exacto del feed,
// par de participantes, clave combinada canónica. Los fallbacks existen
// porque el feed de resultados identifica los eventos con independencia del
// catálogo.
type resultIndex struct {
	byEventID map[string]domain.SettlementResult
	byPair    map[string]domain.SettlementResult
	byKey     map[string]domain.SettlementResult
}

func buildResultIndex(results []domain.SettlementResult) resultIndex {
	idx := resultIndex{
		byEventID: make(map[string]domain.SettlementResult, len(results)),
		byPair:    make(map[string]domain.SettlementResult, len(results)),
		byKey:     make(map[string]domain.SettlementResult, len(results)),
	}
	for _, r := range results {
		if r.EventID != "" {
			idx.byEventID[r.EventID] = r
		}
		idx.byPair[r.PairKey()] = r
		idx.byKey[r.Key()] = r
	}
	return idx
}

func (idx resultIndex) match(p domain.Pick) (domain.SettlementResult, string, bool) {
	if r, ok := idx.byEventID[p.EventID]; ok && p.EventID != "" {
		return r, "event-id", true
	}
	if r, ok := idx.byPair[p.PairKey()]; ok {
		return r, "participant-pair", true
	}
	if r, ok := idx.byKey[p.EventKey]; ok {
		return r, "combined-key", true
	}
	return domain.SettlementResult{}, "", false
}

// recordMiss cuenta los fallos de matching consecutivos por pick y avisa al
// cruzar el umbral. El matching diferido es lo esperado; el fallo persistente
// es una señal operacional.
func (e *Engine) recordMiss(p domain.Pick) {
	e.mu.Lock()
	e.missCounts[p.ID]++
	misses := e.missCounts[p.ID]
	e.mu.Unlock()

	if misses == e.cfg.MissWarnAfter {
		slog.Warn("engine: pick unmatched across consecutive settlement cycles",
			"pick", p.ID,
			"event", p.EventKey,
			"misses", misses,
		)
	}
}

func (e *Engine) clearMiss(id string) {
	e.mu.Lock()
	delete(e.missCounts, id)
	e.mu.Unlock()
}
