package feeds

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/pickbot/internal/domain"
	"github.com/alejandrodnm/pickbot/internal/ports"
)

func TestListUpcomingEvents(t *testing.T) {
	var gotKey, gotQuery atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey.Store(r.Header.Get("X-Api-Key"))
		gotQuery.Store(r.URL.RawQuery)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{
				"id": "e-1", "sport_key": "baseball_mlb",
				"home_team": "Atlanta Braves", "away_team": "Miami Marlins",
				"commence_time": "2026-08-28T23:10:00Z", "venue": "Truist Park",
				"home_starter": "S. Strider", "away_starter": "J. Cabrera",
				"lineups_posted_at": "2026-08-28T21:00:00Z"
			},
			{
				"id": "e-2", "sport_key": "baseball_mlb",
				"home_team": "Chicago Cubs", "away_team": "Cincinnati Reds",
				"commence_time": "2026-08-29T00:05:00Z"
			}
		]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret")
	events, err := c.ListUpcomingEvents(context.Background(), "baseball_mlb", 36*time.Hour)
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, "secret", gotKey.Load())
	assert.Equal(t, "sport=baseball_mlb&hours=36", gotQuery.Load())

	assert.Equal(t, "e-1", events[0].EventID)
	assert.Equal(t, "Atlanta Braves", events[0].HomeTeam)
	assert.True(t, events[0].ParticipantsConfirmed())
	assert.True(t, events[0].LineupsPosted())
	assert.False(t, events[1].ParticipantsConfirmed())
}

func TestGetQuotes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/events/e-1/odds", r.URL.Path)
		w.Write([]byte(`[
			{"market": "moneyline", "selection": "Atlanta Braves", "price": -145},
			{"market": "total", "selection": "over", "price": -105, "line": 8.5}
		]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	quotes, err := c.GetQuotes(context.Background(), domain.CandidateEvent{EventID: "e-1"})
	require.NoError(t, err)
	require.Len(t, quotes, 2)
	assert.Equal(t, domain.MarketMoneyline, quotes[0].MarketType)
	assert.Equal(t, -145, quotes[0].Price)
	assert.Equal(t, 8.5, quotes[1].Line)
}

func TestGetFinalResults_SkipsIncomplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			{
				"id": "e-1", "sport_key": "baseball_mlb",
				"home_team": "Atlanta Braves", "away_team": "Miami Marlins",
				"home_score": 5, "away_score": 3,
				"commence_time": "2026-08-28T23:10:00Z", "completed": true
			},
			{
				"id": "e-2", "sport_key": "baseball_mlb",
				"home_team": "Chicago Cubs", "away_team": "Cincinnati Reds",
				"home_score": 1, "away_score": 1,
				"commence_time": "2026-08-29T00:05:00Z", "completed": false
			}
		]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	now := time.Now()
	results, err := c.GetFinalResults(context.Background(), now.Add(-48*time.Hour), now)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "e-1", results[0].EventID)
	assert.Equal(t, 5, results[0].HomeScore)
}

func TestGetEnrichment_NotFoundMapsToUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	_, err := c.GetEnrichment(context.Background(), domain.CandidateEvent{EventID: "e-1"})
	assert.ErrorIs(t, err, ports.ErrUnavailable)
}

func TestGetEnrichment_PartialData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"home_form": {"win_pct_last_10": 0.7, "scoring_margin": 1.8, "streak": 4},
			"starter_edge": 0.35
		}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	en, err := c.GetEnrichment(context.Background(), domain.CandidateEvent{EventID: "e-1"})
	require.NoError(t, err)

	require.NotNil(t, en.HomeForm)
	assert.Equal(t, 0.7, en.HomeForm.WinPctLast10)
	require.NotNil(t, en.StarterEdge)
	assert.Equal(t, 0.35, *en.StarterEdge)
	assert.Nil(t, en.AwayForm)
	assert.Nil(t, en.VenueFactor)
	assert.Equal(t, 2, en.MissingCount())
}

func TestGet_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	_, err := c.ListUpcomingEvents(context.Background(), "baseball_mlb", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestGet_GivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	_, err := c.ListUpcomingEvents(context.Background(), "baseball_mlb", time.Hour)
	assert.Error(t, err)
	assert.Equal(t, int32(maxRetries+1), calls.Load())
}

func TestGet_ClientErrorDoesNotRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error": "bad key"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "wrong")
	_, err := c.ListUpcomingEvents(context.Background(), "baseball_mlb", time.Hour)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Equal(t, int32(1), calls.Load())
}

// --- fixtures ---

func TestFixtures_Slate(t *testing.T) {
	now := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	fx := NewFixtures(now)
	ctx := context.Background()

	events, err := fx.ListUpcomingEvents(ctx, "baseball_mlb", 36*time.Hour)
	require.NoError(t, err)
	require.Len(t, events, 3)

	for _, ev := range events {
		assert.False(t, ev.Started(now), "fixture events must be upcoming")
	}

	// One event is deliberately missing starters for the guard path.
	var unconfirmed int
	for _, ev := range events {
		if !ev.ParticipantsConfirmed() {
			unconfirmed++
		}
	}
	assert.Equal(t, 1, unconfirmed)

	other, err := fx.ListUpcomingEvents(ctx, "basketball_nba", 36*time.Hour)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestFixtures_QuotesAndEnrichment(t *testing.T) {
	fx := NewFixtures(time.Now())
	ctx := context.Background()

	quotes, err := fx.GetQuotes(ctx, domain.CandidateEvent{EventID: "fx-001"})
	require.NoError(t, err)
	assert.Len(t, quotes, 3)

	_, err = fx.GetQuotes(ctx, domain.CandidateEvent{EventID: "nope"})
	assert.ErrorIs(t, err, ports.ErrUnavailable)

	full, err := fx.GetEnrichment(ctx, domain.CandidateEvent{EventID: "fx-001"})
	require.NoError(t, err)
	assert.Equal(t, 0, full.MissingCount())

	partial, err := fx.GetEnrichment(ctx, domain.CandidateEvent{EventID: "fx-002"})
	require.NoError(t, err)
	assert.Equal(t, 2, partial.MissingCount())

	_, err = fx.GetEnrichment(ctx, domain.CandidateEvent{EventID: "fx-003"})
	assert.ErrorIs(t, err, ports.ErrUnavailable)

	results, err := fx.GetFinalResults(ctx, time.Now().Add(-time.Hour), time.Now())
	require.NoError(t, err)
	assert.Empty(t, results)
}
