// Package feeds implementa los puertos de feed colaboradores contra una API
// JSON de datos deportivos, más un feed local de fixtures para dry runs.
package feeds

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/alejandrodnm/pickbot/internal/domain"
	"github.com/alejandrodnm/pickbot/internal/ports"
)

const (
	// Límites bien por debajo de los topes documentados del proveedor; los
	// endpoints de catálogo y marcadores son baratos, los por evento se
	// abren en abanico.
	catalogRatePerSec  = 5
	perEventRatePerSec = 20

	maxRetries    = 3
	baseRetryWait = 500 * time.Millisecond
)

// Client es el cliente HTTP de los feeds de catálogo de eventos,
// cotizaciones, resultados y enriquecimiento, con rate limiting y reintentos.
type Client struct {
	http           *http.Client
	base           string
	apiKey         string
	catalogLimiter *rate.Limiter
	eventLimiter   *rate.Limiter
}

// NewClient crea un Client para la URL base y API key dadas.
func NewClient(base, apiKey string) *Client {
	return &Client{
		http:           &http.Client{Timeout: 10 * time.Second},
		base:           base,
		apiKey:         apiKey,
		catalogLimiter: rate.NewLimiter(catalogRatePerSec, 2),
		eventLimiter:   rate.NewLimiter(perEventRatePerSec, 10),
	}
}

type apiEvent struct {
	ID          string     `json:"id"`
	Sport       string     `json:"sport_key"`
	HomeTeam    string     `json:"home_team"`
	AwayTeam    string     `json:"away_team"`
	Commence    time.Time  `json:"commence_time"`
	Venue       string     `json:"venue"`
	HomeStarter string     `json:"home_starter"`
	AwayStarter string     `json:"away_starter"`
	LineupsAt   *time.Time `json:"lineups_posted_at"`
}

type apiQuote struct {
	Market    string  `json:"market"`
	Selection string  `json:"selection"`
	Price     int     `json:"price"`
	Line      float64 `json:"line"`
}

type apiScore struct {
	ID        string    `json:"id"`
	Sport     string    `json:"sport_key"`
	HomeTeam  string    `json:"home_team"`
	AwayTeam  string    `json:"away_team"`
	HomeScore int       `json:"home_score"`
	AwayScore int       `json:"away_score"`
	Commence  time.Time `json:"commence_time"`
	Completed bool      `json:"completed"`
}

type apiEnrichment struct {
	HomeForm    *apiForm `json:"home_form"`
	AwayForm    *apiForm `json:"away_form"`
	StarterEdge *float64 `json:"starter_edge"`
	VenueFactor *float64 `json:"venue_factor"`
}

type apiForm struct {
	WinPctLast10  float64 `json:"win_pct_last_10"`
	ScoringMargin float64 `json:"scoring_margin"`
	Streak        int     `json:"streak"`
}

// ListUpcomingEvents implementa ports.EventCatalog.
func (c *Client) ListUpcomingEvents(ctx context.Context, sport string, window time.Duration) ([]domain.CandidateEvent, error) {
	u := fmt.Sprintf("%s/v1/events?sport=%s&hours=%d",
		c.base, url.QueryEscape(sport), int(window.Hours()))

	var raw []apiEvent
	if err := c.get(ctx, c.catalogLimiter, u, &raw); err != nil {
		return nil, fmt.Errorf("feeds.ListUpcomingEvents: %w", err)
	}

	events := make([]domain.CandidateEvent, 0, len(raw))
	for _, e := range raw {
		events = append(events, domain.CandidateEvent{
			EventID:     e.ID,
			Sport:       e.Sport,
			HomeTeam:    e.HomeTeam,
			AwayTeam:    e.AwayTeam,
			StartTime:   e.Commence,
			Venue:       e.Venue,
			HomeStarter: e.HomeStarter,
			AwayStarter: e.AwayStarter,
			LineupsAt:   e.LineupsAt,
		})
	}
	return events, nil
}

// GetQuotes implementa ports.QuoteFeed.
func (c *Client) GetQuotes(ctx context.Context, ev domain.CandidateEvent) ([]domain.Quote, error) {
	u := fmt.Sprintf("%s/v1/events/%s/odds", c.base, url.PathEscape(ev.EventID))

	var raw []apiQuote
	if err := c.get(ctx, c.eventLimiter, u, &raw); err != nil {
		return nil, fmt.Errorf("feeds.GetQuotes: %w", err)
	}

	quotes := make([]domain.Quote, 0, len(raw))
	for _, q := range raw {
		quotes = append(quotes, domain.Quote{
			MarketType: domain.MarketType(q.Market),
			Selection:  q.Selection,
			Price:      q.Price,
			Line:       q.Line,
		})
	}
	return quotes, nil
}

// GetFinalResults implementa ports.ResultFeed. Solo se devuelven eventos
// completados; un marcador en juego no le sirve al settlement.
func (c *Client) GetFinalResults(ctx context.Context, from, to time.Time) ([]domain.SettlementResult, error) {
	u := fmt.Sprintf("%s/v1/scores?from=%s&to=%s",
		c.base,
		url.QueryEscape(from.UTC().Format(time.RFC3339)),
		url.QueryEscape(to.UTC().Format(time.RFC3339)))

	var raw []apiScore
	if err := c.get(ctx, c.catalogLimiter, u, &raw); err != nil {
		return nil, fmt.Errorf("feeds.GetFinalResults: %w", err)
	}

	results := make([]domain.SettlementResult, 0, len(raw))
	for _, s := range raw {
		if !s.Completed {
			continue
		}
		results = append(results, domain.SettlementResult{
			EventID:   s.ID,
			Sport:     s.Sport,
			HomeTeam:  s.HomeTeam,
			AwayTeam:  s.AwayTeam,
			HomeScore: s.HomeScore,
			AwayScore: s.AwayScore,
			StartTime: s.Commence,
		})
	}
	return results, nil
}

// GetEnrichment implementa ports.EnrichmentFeed. Un 404 del proveedor
// significa que no hay datos para este evento y se traduce a
// ports.ErrUnavailable.
func (c *Client) GetEnrichment(ctx context.Context, ev domain.CandidateEvent) (domain.Enrichment, error) {
	u := fmt.Sprintf("%s/v1/events/%s/enrichment", c.base, url.PathEscape(ev.EventID))

	var raw apiEnrichment
	if err := c.get(ctx, c.eventLimiter, u, &raw); err != nil {
		if errors.Is(err, errNotFound) {
			return domain.Enrichment{}, ports.ErrUnavailable
		}
		return domain.Enrichment{}, fmt.Errorf("feeds.GetEnrichment: %w", err)
	}

	en := domain.Enrichment{
		StarterEdge: raw.StarterEdge,
		VenueFactor: raw.VenueFactor,
	}
	if raw.HomeForm != nil {
		en.HomeForm = &domain.TeamForm{
			WinPctLast10:  raw.HomeForm.WinPctLast10,
			ScoringMargin: raw.HomeForm.ScoringMargin,
			Streak:        raw.HomeForm.Streak,
		}
	}
	if raw.AwayForm != nil {
		en.AwayForm = &domain.TeamForm{
			WinPctLast10:  raw.AwayForm.WinPctLast10,
			ScoringMargin: raw.AwayForm.ScoringMargin,
			Streak:        raw.AwayForm.Streak,
		}
	}
	return en, nil
}

// get hace un GET con rate limiting y reintentos.
func (c *Client) get(ctx context.Context, limiter *rate.Limiter, u string, out any) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")
		if c.apiKey != "" {
			req.Header.Set("X-Api-Key", c.apiKey)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			if attempt == maxRetries {
				return fmt.Errorf("request failed after %d retries: %w", maxRetries, err)
			}
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode == http.StatusNotFound {
			resp.Body.Close()
			return errNotFound
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			resp.Body.Close()
			slog.Warn("feeds: rate limited by API", "attempt", attempt+1)
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode >= 500 {
			resp.Body.Close()
			if attempt == maxRetries {
				return fmt.Errorf("server error %d after %d retries", resp.StatusCode, maxRetries)
			}
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()
			return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, body)
		}

		err = json.NewDecoder(resp.Body).Decode(out)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
	return fmt.Errorf("giving up after %d attempts", maxRetries+1)
}

// sleep espera con backoff exponencial más jitter, respetando ctx.
func (c *Client) sleep(ctx context.Context, attempt int) {
	wait := baseRetryWait * time.Duration(1<<attempt)
	wait += time.Duration(rand.Int63n(int64(wait / 2)))
	select {
	case <-ctx.Done():
	case <-time.After(wait):
	}
}

var errNotFound = errors.New("not found")
