package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/pickbot/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func samplePick(id string) domain.Pick {
	start := time.Date(2026, 8, 28, 23, 10, 0, 0, time.UTC)
	return domain.Pick{
		ID:         id,
		Scope:      domain.ScopeGeneral,
		Day:        "2026-08-28",
		EventKey:   "baseball_mlb|miamimarlins@atlantabraves|2026-08-28",
		EventID:    "cat-1234",
		Sport:      "baseball_mlb",
		HomeTeam:   "Atlanta Braves",
		AwayTeam:   "Miami Marlins",
		Selection:  "Atlanta Braves",
		MarketType: domain.MarketMoneyline,
		Price:      -145,
		Units:      1.5,
		Scores: domain.FactorScoreSet{
			Offense: 81.3, Matchup: 74.0, Situational: 61.5,
			Momentum: 77.2, MarketEdge: 66.8, Confidence: 88.1,
		},
		Grade:          "B+",
		Confidence:     74.6,
		Rationale:      "Atlanta Braves (moneyline -145) graded B+ on 74.6.",
		Status:         domain.StatusPending,
		LockedAt:       start.Add(-8 * time.Hour),
		LockReason:     domain.LockLineupsPosted,
		EventStartTime: start,
		CreatedAt:      start.Add(-8 * time.Hour),
	}
}

func TestPublishAndCurrentPick_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := samplePick("p-1")

	require.NoError(t, s.PublishPick(ctx, p))

	got, err := s.CurrentPick(ctx, domain.ScopeGeneral, "2026-08-28")
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, p, *got)
}

func TestCurrentPick_MissingReturnsNil(t *testing.T) {
	s := newTestStore(t)

	got, err := s.CurrentPick(context.Background(), domain.ScopeGeneral, "2026-08-28")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCurrentPick_ScopedPerDay(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	general := samplePick("p-gen")
	premium := samplePick("p-prem")
	premium.Scope = domain.ScopePremium
	require.NoError(t, s.PublishPick(ctx, general))
	require.NoError(t, s.PublishPick(ctx, premium))

	got, err := s.CurrentPick(ctx, domain.ScopePremium, "2026-08-28")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "p-prem", got.ID)

	got, err = s.CurrentPick(ctx, domain.ScopeGeneral, "2026-08-29")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestPublishPick_RotationReplacesCurrentKeepsHistory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := samplePick("p-1")
	require.NoError(t, s.PublishPick(ctx, first))

	second := samplePick("p-2")
	second.EventKey = "baseball_mlb|cincinnatireds@chicagocubs|2026-08-28"
	second.Selection = "Chicago Cubs"
	require.NoError(t, s.PublishPick(ctx, second))

	// The slot now points at the replacement.
	got, err := s.CurrentPick(ctx, domain.ScopeGeneral, "2026-08-28")
	require.NoError(t, err)
	assert.Equal(t, "p-2", got.ID)

	// The rotated-out pick survives as pending history.
	pending, err := s.PendingPicks(ctx, first.EventStartTime.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, pending, 2)
}

func TestPublishPick_DuplicateIDFails(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.PublishPick(ctx, samplePick("p-1")))
	assert.Error(t, s.PublishPick(ctx, samplePick("p-1")))
}

func TestPendingPicks_FiltersByStartCutoff(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	started := samplePick("p-started")
	future := samplePick("p-future")
	future.Scope = domain.ScopePremium
	future.EventStartTime = started.EventStartTime.Add(12 * time.Hour)
	require.NoError(t, s.PublishPick(ctx, started))
	require.NoError(t, s.PublishPick(ctx, future))

	pending, err := s.PendingPicks(ctx, started.EventStartTime.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "p-started", pending[0].ID)
}

func TestPendingPicks_ExcludesSettled(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := samplePick("p-1")
	require.NoError(t, s.PublishPick(ctx, p))

	applied, err := s.Settle(ctx, p.ID, domain.StatusWin, 1.03, p.EventStartTime.Add(3*time.Hour))
	require.NoError(t, err)
	require.True(t, applied)

	pending, err := s.PendingPicks(ctx, p.EventStartTime.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestSettle_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := samplePick("p-1")
	require.NoError(t, s.PublishPick(ctx, p))
	settledAt := p.EventStartTime.Add(3 * time.Hour)

	applied, err := s.Settle(ctx, p.ID, domain.StatusWin, 1.03, settledAt)
	require.NoError(t, err)
	assert.True(t, applied)

	// Second settle is rejected and changes nothing.
	applied, err = s.Settle(ctx, p.ID, domain.StatusLoss, -1.5, settledAt.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, applied)

	got, err := s.CurrentPick(ctx, domain.ScopeGeneral, "2026-08-28")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusWin, got.Status)
	assert.InDelta(t, 1.03, got.WinAmount, 0.0001)
	require.NotNil(t, got.SettledAt)
	assert.Equal(t, settledAt, *got.SettledAt)
}

func TestSettle_UnknownPick(t *testing.T) {
	s := newTestStore(t)

	applied, err := s.Settle(context.Background(), "nope", domain.StatusWin, 1.0, time.Now())
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestStabilityRecords_CRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

	rec := domain.StabilityRecord{
		EventKey:  "baseball_mlb|miamimarlins@atlantabraves|2026-08-28",
		Grade:     "B+",
		Reason:    domain.LockParticipantsConfirmed,
		LockedAt:  now,
		UpdatedAt: now,
	}
	require.NoError(t, s.PutRecord(ctx, rec))

	got, err := s.GetRecord(ctx, rec.EventKey)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, rec, *got)

	// Upsert replaces in place.
	rec.Grade = "A-"
	rec.Reason = domain.LockLineupsPosted
	rec.UpdatedAt = now.Add(time.Hour)
	require.NoError(t, s.PutRecord(ctx, rec))

	got, err = s.GetRecord(ctx, rec.EventKey)
	require.NoError(t, err)
	assert.Equal(t, rec, *got)

	all, err := s.Records(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, s.DeleteRecord(ctx, rec.EventKey))
	got, err = s.GetRecord(ctx, rec.EventKey)
	require.NoError(t, err)
	assert.Nil(t, got)

	// Deleting again is not an error.
	require.NoError(t, s.DeleteRecord(ctx, rec.EventKey))
}

func TestTimeFormat_FixedWidthComparable(t *testing.T) {
	// Second-precision RFC3339 is fixed width, so the SQL string comparison
	// in PendingPicks is chronological.
	a := fmtTime(time.Date(2026, 8, 28, 9, 0, 0, 123456789, time.UTC))
	b := fmtTime(time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC))
	assert.Len(t, a, len(b))
	assert.Less(t, a, b)

	// Non-UTC inputs normalize.
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	local := time.Date(2026, 8, 28, 5, 0, 0, 0, ny)
	assert.Equal(t, "2026-08-28T09:00:00Z", fmtTime(local))
	assert.Equal(t, local.UTC(), parseTime(fmtTime(local)))
}
