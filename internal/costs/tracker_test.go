package costs

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synthesis-kb/synthesis/internal/store"
)

// testClock is a mutable, race-safe time source.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock(t time.Time) *testClock {
	return &testClock{t: t}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

// newTestTracker wires a tracker to an in-memory store with an
// injectable clock, started before any test mutation can race it.
func newTestTracker(t *testing.T, budget string, clock *testClock) (*Tracker, *store.SQLiteStore) {
	t.Helper()

	s, err := store.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	tr := &Tracker{
		store:   s,
		budget:  decimal.RequireFromString(budget),
		events:  make(chan *store.UsageRecord, 64),
		flushCh: make(chan chan struct{}),
		done:    make(chan struct{}),
		now:     clock.Now,
	}
	tr.wg.Add(1)
	go tr.run()
	t.Cleanup(func() { _ = tr.Close() })
	return tr, s
}

var trackerNow = time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)

func TestTracker_TrackComputesAndPersistsCost(t *testing.T) {
	// Given a tracker with no budget configured
	clock := newTestClock(trackerNow)
	tr, _ := newTestTracker(t, "0", clock)

	// When a million openai tokens are recorded
	tr.RecordUsage("openai", "text-embedding-3-large", OpEmbedding, 1_000_000)
	require.NoError(t, tr.Sync(context.Background()))

	// Then the summary shows the priced spend and breakdown
	summary, err := tr.Summary(context.Background())
	require.NoError(t, err)
	assert.True(t, summary.MonthToDateUSD.Equal(decimal.RequireFromString("0.13")),
		"got %s", summary.MonthToDateUSD)
	require.Len(t, summary.Breakdown, 1)
	assert.Equal(t, "openai", summary.Breakdown[0].Provider)
	assert.Equal(t, OpEmbedding, summary.Breakdown[0].Operation)
	assert.Equal(t, int64(1_000_000), summary.Breakdown[0].Tokens)
	assert.Equal(t, 1, summary.Breakdown[0].Requests)
	assert.False(t, summary.FallbackActive)
}

func TestTracker_PerRequestRerankCost(t *testing.T) {
	clock := newTestClock(trackerNow)
	tr, _ := newTestTracker(t, "0", clock)

	// When a rerank call is recorded with no token count
	tr.RecordUsage("cohere", "rerank-english-v3.0", OpRerank, 0)
	require.NoError(t, tr.Sync(context.Background()))

	summary, err := tr.Summary(context.Background())
	require.NoError(t, err)
	assert.True(t, summary.MonthToDateUSD.Equal(decimal.RequireFromString("0.002")),
		"got %s", summary.MonthToDateUSD)
}

func TestTracker_WarningAtEightyPercent(t *testing.T) {
	// Given a $1.00 monthly budget
	clock := newTestClock(trackerNow)
	tr, _ := newTestTracker(t, "1.00", clock)

	// When spend crosses 80% but not 100%
	tr.Track(&store.UsageRecord{
		Provider:  "openai",
		Operation: OpEmbedding,
		CostUSD:   decimal.RequireFromString("0.85"),
	})
	require.NoError(t, tr.Sync(context.Background()))

	// Then a warning is emitted without engaging fallback
	alerts, err := tr.Alerts(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, store.AlertWarning, alerts[0].Kind)
	assert.False(t, tr.FallbackActive())
}

func TestTracker_LimitReachedEngagesFallback(t *testing.T) {
	// Given a $1.00 monthly budget
	clock := newTestClock(trackerNow)
	tr, _ := newTestTracker(t, "1.00", clock)

	// When a single event blows through the budget
	tr.Track(&store.UsageRecord{
		Provider:  "openai",
		Operation: OpEmbedding,
		CostUSD:   decimal.RequireFromString("1.10"),
	})
	require.NoError(t, tr.Sync(context.Background()))

	// Then the limit alert fires and the gate engages
	alerts, err := tr.Alerts(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, store.AlertLimitReached, alerts[0].Kind)
	assert.True(t, tr.FallbackActive())
}

func TestTracker_AlertDeduplicated(t *testing.T) {
	// Given an unacknowledged warning
	clock := newTestClock(trackerNow)
	tr, _ := newTestTracker(t, "1.00", clock)

	tr.Track(&store.UsageRecord{Provider: "openai", Operation: OpEmbedding, CostUSD: decimal.RequireFromString("0.85")})
	require.NoError(t, tr.Sync(context.Background()))

	// When spend stays in the warning band and evaluation reruns
	tr.Track(&store.UsageRecord{Provider: "openai", Operation: OpEmbedding, CostUSD: decimal.RequireFromString("0.02")})
	require.NoError(t, tr.Sync(context.Background()))

	// Then no second warning appears within the 24h window
	alerts, err := tr.Alerts(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, alerts, 1)
}

func TestTracker_AcknowledgeReArmsAlerting(t *testing.T) {
	// Given a warning that the operator acknowledges
	clock := newTestClock(trackerNow)
	tr, _ := newTestTracker(t, "1.00", clock)

	tr.Track(&store.UsageRecord{Provider: "openai", Operation: OpEmbedding, CostUSD: decimal.RequireFromString("0.85")})
	require.NoError(t, tr.Sync(context.Background()))

	alerts, err := tr.Alerts(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	require.NoError(t, tr.Acknowledge(context.Background(), alerts[0].ID))

	// When the threshold is still crossed on the next evaluation
	require.NoError(t, tr.Sync(context.Background()))

	// Then a fresh warning is emitted
	alerts, err = tr.Alerts(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, alerts, 2)
}

func TestTracker_ClearFallback(t *testing.T) {
	clock := newTestClock(trackerNow)
	tr, _ := newTestTracker(t, "1.00", clock)

	tr.Track(&store.UsageRecord{Provider: "openai", Operation: OpEmbedding, CostUSD: decimal.RequireFromString("2.00")})
	require.NoError(t, tr.Sync(context.Background()))
	require.True(t, tr.FallbackActive())

	// When the operator clears the gate
	tr.ClearFallback()

	// Then paid providers are allowed again
	assert.False(t, tr.FallbackActive())
}

func TestTracker_MonthRolloverClearsFallback(t *testing.T) {
	// Given fallback engaged in March
	clock := newTestClock(trackerNow)
	tr, _ := newTestTracker(t, "1.00", clock)

	tr.Track(&store.UsageRecord{Provider: "openai", Operation: OpEmbedding, CostUSD: decimal.RequireFromString("1.50")})
	require.NoError(t, tr.Sync(context.Background()))
	require.True(t, tr.FallbackActive())

	// When April begins
	clock.Set(time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC))

	// Then the gate clears itself
	assert.False(t, tr.FallbackActive())
}

func TestTracker_StartupReEvaluatesSpend(t *testing.T) {
	// Given a store that already holds an over-budget month
	s, err := store.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.InsertUsage(context.Background(), &store.UsageRecord{
		Provider:  "openai",
		Operation: OpEmbedding,
		Requests:  1,
		CostUSD:   decimal.RequireFromString("1.50"),
		CreatedAt: time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC),
	}))

	clock := newTestClock(trackerNow)
	tr := &Tracker{
		store:   s,
		budget:  decimal.RequireFromString("1.00"),
		events:  make(chan *store.UsageRecord, 64),
		flushCh: make(chan chan struct{}),
		done:    make(chan struct{}),
		now:     clock.Now,
	}
	tr.wg.Add(1)
	go tr.run()
	t.Cleanup(func() { _ = tr.Close() })

	// When the tracker finishes its startup evaluation
	require.NoError(t, tr.Sync(context.Background()))

	// Then the process restarts already gated
	assert.True(t, tr.FallbackActive())
}

func TestTracker_History(t *testing.T) {
	// Given usage spread over three days
	clock := newTestClock(trackerNow)
	tr, s := newTestTracker(t, "0", clock)

	for day, cost := range map[int]string{13: "0.10", 14: "0.20", 15: "0.30"} {
		require.NoError(t, s.InsertUsage(context.Background(), &store.UsageRecord{
			Provider:  "openai",
			Operation: OpEmbedding,
			Requests:  1,
			CostUSD:   decimal.RequireFromString(cost),
			CreatedAt: time.Date(2026, time.March, day, 10, 0, 0, 0, time.UTC),
		}))
	}

	// When asking for the last 3 days
	history, err := tr.History(context.Background(), 3)
	require.NoError(t, err)

	// Then each day appears oldest first
	require.Len(t, history, 3)
	assert.Equal(t, "2026-03-13", history[0].Date)
	assert.Equal(t, "2026-03-15", history[2].Date)
	assert.True(t, history[2].Total.Equal(decimal.RequireFromString("0.30")),
		"got %s", history[2].Total)
}

func TestTracker_TrackAfterCloseIsNoop(t *testing.T) {
	clock := newTestClock(trackerNow)
	tr, _ := newTestTracker(t, "0", clock)

	require.NoError(t, tr.Close())

	// Tracking and syncing after close must not panic or hang
	tr.RecordUsage("openai", "text-embedding-3-large", OpEmbedding, 100)
	assert.NoError(t, tr.Sync(context.Background()))
	assert.NoError(t, tr.Close())
}
