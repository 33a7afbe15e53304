package costs

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/synthesis-kb/synthesis/internal/store"
)

const (
	// DefaultBufferSize bounds the in-memory event queue.
	DefaultBufferSize = 256

	// evalDebounce limits how often budget thresholds are re-checked
	// on the hot tracking path.
	evalDebounce = 1 * time.Second

	// alertDedupWindow suppresses repeat alerts of the same kind while
	// an unacknowledged one from this window exists.
	alertDedupWindow = 24 * time.Hour

	persistTimeout = 5 * time.Second
)

var warnRatio = decimal.RequireFromString("0.8")

// Store is the persistence surface the tracker needs.
type Store interface {
	InsertUsage(ctx context.Context, u *store.UsageRecord) error
	SpendBetween(ctx context.Context, from, to time.Time) (decimal.Decimal, error)
	DailySpends(ctx context.Context, from, to time.Time) ([]store.DailySpend, error)
	UsageBreakdown(ctx context.Context, from, to time.Time) ([]store.SpendBreakdown, error)
	InsertAlert(ctx context.Context, a *store.BudgetAlert) error
	RecentAlerts(ctx context.Context, limit int) ([]*store.BudgetAlert, error)
	HasUnacknowledgedAlertSince(ctx context.Context, kind store.AlertKind, since time.Time) (bool, error)
	AcknowledgeAlert(ctx context.Context, id int64) error
}

// Config configures the tracker.
type Config struct {
	// MonthlyBudgetUSD is the spending limit. Zero disables budget
	// alerts and the fallback gate.
	MonthlyBudgetUSD decimal.Decimal

	// BufferSize bounds the event queue; overflow drops events.
	BufferSize int
}

// Tracker records API usage asynchronously and evaluates the monthly
// budget after inserts. Track never blocks the caller.
type Tracker struct {
	store  Store
	budget decimal.Decimal

	events  chan *store.UsageRecord
	flushCh chan chan struct{}
	done    chan struct{}
	wg      sync.WaitGroup
	closed  atomic.Bool

	fallback      atomic.Bool
	fallbackMonth atomic.Int64
	lastEval      atomic.Int64

	// now is replaceable in tests.
	now func() time.Time
}

// NewTracker starts the flush goroutine. The current month's spend is
// re-evaluated immediately so a restart inside an exhausted month comes
// back up in fallback mode.
func NewTracker(s Store, cfg Config) *Tracker {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultBufferSize
	}

	t := &Tracker{
		store:   s,
		budget:  cfg.MonthlyBudgetUSD,
		events:  make(chan *store.UsageRecord, cfg.BufferSize),
		flushCh: make(chan chan struct{}),
		done:    make(chan struct{}),
		now:     time.Now,
	}

	t.wg.Add(1)
	go t.run()
	return t
}

// Track queues a usage record. The cost is computed from the pricing
// table when the record carries none. Never blocks; overflow drops the
// event with a warning.
func (t *Tracker) Track(rec *store.UsageRecord) {
	if t.closed.Load() {
		return
	}
	if rec.Requests <= 0 {
		rec.Requests = 1
	}
	if rec.CostUSD.IsZero() {
		rec.CostUSD = CostOf(rec.Provider, rec.Model, rec.Tokens, rec.Requests)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = t.now().UTC()
	}

	select {
	case t.events <- rec:
	default:
		slog.Warn("usage event dropped, buffer full",
			"provider", rec.Provider,
			"operation", rec.Operation)
	}
}

// RecordUsage implements the recorder interface used by the embedding
// router and provider clients.
func (t *Tracker) RecordUsage(provider, model, operation string, tokens int64) {
	t.Track(&store.UsageRecord{
		Provider:  provider,
		Model:     model,
		Operation: operation,
		Tokens:    tokens,
	})
}

// FallbackActive reports whether the budget gate is engaged. The flag
// clears itself when the calendar month rolls over.
func (t *Tracker) FallbackActive() bool {
	if !t.fallback.Load() {
		return false
	}
	if monthIndex(t.now().UTC()) != t.fallbackMonth.Load() {
		t.fallback.Store(false)
		slog.Info("budget fallback cleared by month rollover")
		return false
	}
	return true
}

// ClearFallback manually disengages the budget gate.
func (t *Tracker) ClearFallback() {
	t.fallback.Store(false)
}

// Sync drains queued events and forces a budget evaluation. Intended
// for shutdown paths and tests.
func (t *Tracker) Sync(ctx context.Context) error {
	if t.closed.Load() {
		return nil
	}
	reply := make(chan struct{})
	select {
	case t.flushCh <- reply:
	case <-ctx.Done():
		return ctx.Err()
	case <-t.done:
		return nil
	}
	select {
	case <-reply:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close drains the queue and stops the flush goroutine.
func (t *Tracker) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	close(t.done)
	t.wg.Wait()
	return nil
}

func (t *Tracker) run() {
	defer t.wg.Done()

	// Restart inside an exhausted month must come back up gated.
	t.evaluate(true)

	for {
		select {
		case rec := <-t.events:
			t.persist(rec)
		case reply := <-t.flushCh:
			t.drain()
			t.evaluate(true)
			close(reply)
		case <-t.done:
			t.drain()
			return
		}
	}
}

func (t *Tracker) drain() {
	for {
		select {
		case rec := <-t.events:
			t.persist(rec)
		default:
			return
		}
	}
}

func (t *Tracker) persist(rec *store.UsageRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := t.store.InsertUsage(ctx, rec); err != nil {
		slog.Error("failed to persist usage record",
			"provider", rec.Provider,
			"operation", rec.Operation,
			"error", err)
		return
	}

	t.evaluate(false)
}

// evaluate checks the monthly spend against the thresholds. Debounced
// unless forced.
func (t *Tracker) evaluate(force bool) {
	if t.budget.LessThanOrEqual(decimal.Zero) {
		return
	}

	nowNanos := t.now().UnixNano()
	last := t.lastEval.Load()
	if !force && nowNanos-last < int64(evalDebounce) {
		return
	}
	if !t.lastEval.CompareAndSwap(last, nowNanos) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	now := t.now().UTC()
	monthStart, monthEnd := monthBounds(now)
	spend, err := t.store.SpendBetween(ctx, monthStart, monthEnd)
	if err != nil {
		slog.Error("budget evaluation failed", "error", err)
		return
	}

	switch {
	case spend.GreaterThanOrEqual(t.budget):
		if !t.fallback.Load() {
			slog.Warn("monthly budget exhausted, engaging local fallback",
				"spend_usd", spend.StringFixed(2),
				"budget_usd", t.budget.StringFixed(2))
		}
		t.fallbackMonth.Store(monthIndex(now))
		t.fallback.Store(true)
		t.emitAlert(ctx, store.AlertLimitReached,
			"monthly spend $"+spend.StringFixed(2)+" has reached the $"+t.budget.StringFixed(2)+" budget, paid providers disabled")

	case spend.GreaterThanOrEqual(t.budget.Mul(warnRatio)):
		t.emitAlert(ctx, store.AlertWarning,
			"monthly spend $"+spend.StringFixed(2)+" has reached 80% of the $"+t.budget.StringFixed(2)+" budget")
	}
}

// emitAlert inserts an alert unless an unacknowledged one of the same
// kind exists within the dedup window.
func (t *Tracker) emitAlert(ctx context.Context, kind store.AlertKind, message string) {
	since := t.now().UTC().Add(-alertDedupWindow)
	exists, err := t.store.HasUnacknowledgedAlertSince(ctx, kind, since)
	if err != nil {
		slog.Error("alert dedup check failed", "kind", kind, "error", err)
		return
	}
	if exists {
		return
	}

	alert := &store.BudgetAlert{Kind: kind, Message: message, CreatedAt: t.now().UTC()}
	if err := t.store.InsertAlert(ctx, alert); err != nil {
		slog.Error("failed to persist budget alert", "kind", kind, "error", err)
		return
	}
	slog.Warn("budget_alert", "kind", kind, "message", message)
}

// Summary is the month-to-date spending report.
type Summary struct {
	MonthToDateUSD decimal.Decimal        `json:"month_to_date_usd"`
	BudgetUSD      decimal.Decimal        `json:"budget_usd"`
	BudgetUsedPct  float64                `json:"budget_used_pct"`
	FallbackActive bool                   `json:"fallback_active"`
	Breakdown      []store.SpendBreakdown `json:"breakdown"`
}

// Summary reports the current month's spend, budget usage, and the
// per-provider/operation breakdown.
func (t *Tracker) Summary(ctx context.Context) (*Summary, error) {
	monthStart, monthEnd := monthBounds(t.now().UTC())

	spend, err := t.store.SpendBetween(ctx, monthStart, monthEnd)
	if err != nil {
		return nil, err
	}
	breakdown, err := t.store.UsageBreakdown(ctx, monthStart, monthEnd)
	if err != nil {
		return nil, err
	}

	pct := 0.0
	if t.budget.GreaterThan(decimal.Zero) {
		pct = spend.Div(t.budget).Mul(decimal.NewFromInt(100)).InexactFloat64()
	}

	return &Summary{
		MonthToDateUSD: spend,
		BudgetUSD:      t.budget,
		BudgetUsedPct:  pct,
		FallbackActive: t.FallbackActive(),
		Breakdown:      breakdown,
	}, nil
}

// History returns daily totals for the last n days, oldest first.
func (t *Tracker) History(ctx context.Context, days int) ([]store.DailySpend, error) {
	if days <= 0 {
		days = 30
	}
	now := t.now().UTC()
	to := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
	from := to.AddDate(0, 0, -days)
	return t.store.DailySpends(ctx, from, to)
}

// Alerts returns the most recent budget alerts.
func (t *Tracker) Alerts(ctx context.Context, limit int) ([]*store.BudgetAlert, error) {
	if limit <= 0 {
		limit = 20
	}
	return t.store.RecentAlerts(ctx, limit)
}

// Acknowledge marks an alert as handled, re-arming its dedup window.
func (t *Tracker) Acknowledge(ctx context.Context, id int64) error {
	return t.store.AcknowledgeAlert(ctx, id)
}

func monthBounds(now time.Time) (time.Time, time.Time) {
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}

func monthIndex(now time.Time) int64 {
	return int64(now.Year())*12 + int64(now.Month()) - 1
}
