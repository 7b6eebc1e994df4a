package feeds

import (
	"context"
	"time"

	"github.com/alejandrodnm/pickbot/internal/domain"
	"github.com/alejandrodnm/pickbot/internal/ports"
)

// Fixtures es un feed en proceso que sirve una jornada enlatada pequeña, para
// -dry-run y desarrollo local. Los eventos empiezan relativos al instante de
// construcción, así un dry run siempre tiene un pool con pinta de vivo.
type Fixtures struct {
	now time.Time
}

// NewFixtures crea un feed de fixtures anclado en now.
func NewFixtures(now time.Time) *Fixtures {
	return &Fixtures{now: now}
}

func (f *Fixtures) slate() []domain.CandidateEvent {
	lineups := f.now.Add(-30 * time.Minute)
	return []domain.CandidateEvent{
		{
			EventID:     "fx-001",
			Sport:       "baseball_mlb",
			HomeTeam:    "Atlanta Braves",
			AwayTeam:    "Miami Marlins",
			StartTime:   f.now.Add(6 * time.Hour),
			Venue:       "Truist Park",
			HomeStarter: "S. Strider",
			AwayStarter: "J. Cabrera",
			LineupsAt:   &lineups,
			Quotes: []domain.Quote{
				{MarketType: domain.MarketMoneyline, Selection: "Atlanta Braves", Price: -145},
				{MarketType: domain.MarketSpread, Selection: "Atlanta Braves", Price: -110, Line: -1.5},
				{MarketType: domain.MarketTotal, Selection: "over", Price: -105, Line: 8.5},
			},
		},
		{
			EventID:     "fx-002",
			Sport:       "baseball_mlb",
			HomeTeam:    "San Diego Padres",
			AwayTeam:    "Los Angeles Dodgers",
			StartTime:   f.now.Add(9 * time.Hour),
			Venue:       "Petco Park",
			HomeStarter: "Y. Darvish",
			AwayStarter: "T. Glasnow",
			Quotes: []domain.Quote{
				{MarketType: domain.MarketMoneyline, Selection: "Los Angeles Dodgers", Price: -120},
				{MarketType: domain.MarketTotal, Selection: "under", Price: -110, Line: 7.5},
			},
		},
		{
			EventID:   "fx-003",
			Sport:     "baseball_mlb",
			HomeTeam:  "Chicago Cubs",
			AwayTeam:  "Cincinnati Reds",
			StartTime: f.now.Add(7 * time.Hour),
			Venue:     "Wrigley Field",
			// sin titulares confirmados: el guard debe saltárselo
			Quotes: []domain.Quote{
				{MarketType: domain.MarketMoneyline, Selection: "Chicago Cubs", Price: +115},
			},
		},
	}
}

// ListUpcomingEvents implementa ports.EventCatalog.
func (f *Fixtures) ListUpcomingEvents(_ context.Context, sport string, _ time.Duration) ([]domain.CandidateEvent, error) {
	var out []domain.CandidateEvent
	for _, ev := range f.slate() {
		if ev.Sport == sport {
			out = append(out, ev)
		}
	}
	return out, nil
}

// GetQuotes implementa ports.QuoteFeed.
func (f *Fixtures) GetQuotes(_ context.Context, ev domain.CandidateEvent) ([]domain.Quote, error) {
	for _, fx := range f.slate() {
		if fx.EventID == ev.EventID {
			return fx.Quotes, nil
		}
	}
	return nil, ports.ErrUnavailable
}

// GetFinalResults implementa ports.ResultFeed. La jornada de fixtures nunca
// termina, así los ciclos de settlement en dry-run son no-ops limpios.
func (f *Fixtures) GetFinalResults(_ context.Context, _, _ time.Time) ([]domain.SettlementResult, error) {
	return nil, nil
}

// GetEnrichment implementa ports.EnrichmentFeed con forma estática y un hueco
// a propósito (fx-002 no trae venue factor) para ejercitar el camino de los
// neutros.
func (f *Fixtures) GetEnrichment(_ context.Context, ev domain.CandidateEvent) (domain.Enrichment, error) {
	edge := 0.35
	venue := 1.04
	switch ev.EventID {
	case "fx-001":
		return domain.Enrichment{
			HomeForm:    &domain.TeamForm{WinPctLast10: 0.7, ScoringMargin: 1.8, Streak: 4},
			AwayForm:    &domain.TeamForm{WinPctLast10: 0.3, ScoringMargin: -1.2, Streak: -2},
			StarterEdge: &edge,
			VenueFactor: &venue,
		}, nil
	case "fx-002":
		return domain.Enrichment{
			HomeForm: &domain.TeamForm{WinPctLast10: 0.5, ScoringMargin: 0.2, Streak: 1},
			AwayForm: &domain.TeamForm{WinPctLast10: 0.6, ScoringMargin: 0.9, Streak: 2},
		}, nil
	default:
		return domain.Enrichment{}, ports.ErrUnavailable
	}
}
