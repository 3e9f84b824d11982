package tracker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/JeyaBa1aB/alpha-insights-sub000/internal/analytics"
	"github.com/JeyaBa1aB/alpha-insights-sub000/internal/models"
)

const testRollover = "0 0 0 * * *"

type fakeStore struct {
	mu       sync.Mutex
	holdings []models.Holding
	alerts   []models.PriceAlert
	cash     float64
	marked   []int64
}

func (f *fakeStore) ListHoldings(_ context.Context, userID string) ([]models.Holding, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Holding, 0)
	for _, h := range f.holdings {
		if h.UserID == userID {
			out = append(out, h)
		}
	}
	return out, nil
}

func (f *fakeStore) CreateHolding(_ context.Context, h models.Holding) (models.Holding, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h.ID = int64(len(f.holdings) + 1)
	f.holdings = append(f.holdings, h)
	return h, nil
}

func (f *fakeStore) DeleteHolding(context.Context, int64) error { return nil }

func (f *fakeStore) CashBalance(context.Context, string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cash, nil
}

func (f *fakeStore) SetCashBalance(_ context.Context, _ string, balance float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cash = balance
	return nil
}

func (f *fakeStore) ListAlerts(_ context.Context, userID string) ([]models.PriceAlert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.PriceAlert, 0)
	for _, a := range f.alerts {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeStore) ListActiveAlerts(ctx context.Context, userID string) ([]models.PriceAlert, error) {
	all, _ := f.ListAlerts(ctx, userID)
	out := make([]models.PriceAlert, 0)
	for _, a := range all {
		if a.Active() {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeStore) CreateAlert(_ context.Context, a models.PriceAlert) (models.PriceAlert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a.ID = int64(len(f.alerts) + 1)
	a.Enabled = true
	f.alerts = append(f.alerts, a)
	return a, nil
}

func (f *fakeStore) DeleteAlert(context.Context, int64) error  { return nil }
func (f *fakeStore) DisableAlert(context.Context, int64) error { return nil }

func (f *fakeStore) MarkAlertTriggered(_ context.Context, id int64, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marked = append(f.marked, id)
	for i := range f.alerts {
		if f.alerts[i].ID == id {
			f.alerts[i].Triggered = true
			f.alerts[i].TriggeredAt = &at
		}
	}
	return nil
}

func (f *fakeStore) markedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.marked)
}

type dispatched struct {
	UserID  string
	Type    models.EventType
	Payload any
}

type fakeDispatcher struct {
	mu       sync.Mutex
	events   []dispatched
	sessions int
}

func (f *fakeDispatcher) Dispatch(userID string, eventType models.EventType, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, dispatched{UserID: userID, Type: eventType, Payload: payload})
}

func (f *fakeDispatcher) SessionCount(string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions
}

func (f *fakeDispatcher) snapshot() []dispatched {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]dispatched, len(f.events))
	copy(out, f.events)
	return out
}

func newTestTracker(t *testing.T, st *fakeStore, hub *fakeDispatcher) *Tracker {
	t.Helper()
	trk, err := New(st, hub, analytics.NewAnalyzer(0.02, 30), 10*time.Millisecond, testRollover, WithFeedSeed(42))
	if err != nil {
		t.Fatalf("new tracker: %v", err)
	}
	t.Cleanup(trk.Stop)
	return trk
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestTickCycleDispatchesPairedUpdate(t *testing.T) {
	st := &fakeStore{
		holdings: []models.Holding{{ID: 1, UserID: "u1", Symbol: "AAPL", Quantity: 10, AvgCost: 150}},
	}
	hub := &fakeDispatcher{sessions: 1}
	trk := newTestTracker(t, st, hub)

	if err := trk.Ensure(context.Background(), "u1"); err != nil {
		t.Fatalf("ensure: %v", err)
	}

	waitFor(t, "a portfolio update", func() bool {
		for _, ev := range hub.snapshot() {
			if ev.Type == models.EventPortfolioUpdate {
				return true
			}
		}
		return false
	})

	var update models.PortfolioUpdate
	for _, ev := range hub.snapshot() {
		if ev.Type == models.EventPortfolioUpdate {
			var ok bool
			update, ok = ev.Payload.(models.PortfolioUpdate)
			if !ok {
				t.Fatalf("payload type %T, want models.PortfolioUpdate", ev.Payload)
			}
			break
		}
	}

	if update.Snapshot.TotalValue <= 0 {
		t.Errorf("snapshot total = %v, want > 0", update.Snapshot.TotalValue)
	}
	if len(update.Allocation.Allocation) == 0 {
		t.Errorf("allocation missing from paired update")
	}
	if update.Risk.RiskLevel == "" {
		t.Errorf("risk metrics missing from paired update")
	}
}

func TestAlertEventFollowsPortfolioUpdate(t *testing.T) {
	st := &fakeStore{
		holdings: []models.Holding{{ID: 1, UserID: "u1", Symbol: "AAPL", Quantity: 1, AvgCost: 100}},
		alerts: []models.PriceAlert{{
			ID: 1, UserID: "u1", Symbol: "AAPL",
			Condition: models.AlertAbove, TargetPrice: 1, Enabled: true,
		}},
	}
	hub := &fakeDispatcher{sessions: 1}
	trk := newTestTracker(t, st, hub)

	if err := trk.Ensure(context.Background(), "u1"); err != nil {
		t.Fatalf("ensure: %v", err)
	}

	waitFor(t, "an alert event", func() bool {
		for _, ev := range hub.snapshot() {
			if ev.Type == models.EventPriceAlert {
				return true
			}
		}
		return false
	})

	events := hub.snapshot()
	alertIdx, updateIdx := -1, -1
	alertCount := 0
	for i, ev := range events {
		switch ev.Type {
		case models.EventPriceAlert:
			alertCount++
			if alertIdx == -1 {
				alertIdx = i
			}
		case models.EventPortfolioUpdate:
			if updateIdx == -1 {
				updateIdx = i
			}
		}
	}
	if alertCount != 1 {
		t.Errorf("alert dispatched %d times, want exactly 1", alertCount)
	}
	if updateIdx == -1 || updateIdx > alertIdx {
		t.Errorf("alert event arrived before any portfolio update")
	}

	ev, ok := events[alertIdx].Payload.(models.TriggerEvent)
	if !ok {
		t.Fatalf("alert payload type %T, want models.TriggerEvent", events[alertIdx].Payload)
	}
	if ev.AlertID != 1 || ev.Symbol != "AAPL" {
		t.Errorf("unexpected trigger event: %+v", ev)
	}
}

func TestEnsureIsIdempotent(t *testing.T) {
	st := &fakeStore{holdings: []models.Holding{{ID: 1, UserID: "u1", Symbol: "AAPL", Quantity: 1, AvgCost: 100}}}
	hub := &fakeDispatcher{sessions: 1}
	trk := newTestTracker(t, st, hub)

	ctx := context.Background()
	if err := trk.Ensure(ctx, "u1"); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if err := trk.Ensure(ctx, "u1"); err != nil {
		t.Fatalf("second ensure: %v", err)
	}
	if got := trk.ActiveFeeds(); got != 1 {
		t.Errorf("active feeds = %d, want 1", got)
	}
}

func TestReleaseStopsFeedWhenNoSessions(t *testing.T) {
	st := &fakeStore{holdings: []models.Holding{{ID: 1, UserID: "u1", Symbol: "AAPL", Quantity: 1, AvgCost: 100}}}
	hub := &fakeDispatcher{}
	trk := newTestTracker(t, st, hub)

	if err := trk.Ensure(context.Background(), "u1"); err != nil {
		t.Fatalf("ensure: %v", err)
	}

	hub.mu.Lock()
	hub.sessions = 1
	hub.mu.Unlock()
	trk.Release("u1")
	if got := trk.ActiveFeeds(); got != 1 {
		t.Errorf("release with a live session stopped the feed")
	}

	hub.mu.Lock()
	hub.sessions = 0
	hub.mu.Unlock()
	trk.Release("u1")
	if got := trk.ActiveFeeds(); got != 0 {
		t.Errorf("active feeds = %d after release, want 0", got)
	}
}

func TestSnapshotWithoutFeedUsesBasePrices(t *testing.T) {
	st := &fakeStore{holdings: []models.Holding{{ID: 1, UserID: "u1", Symbol: "AAPL", Quantity: 2, AvgCost: 100}}}
	hub := &fakeDispatcher{}
	trk := newTestTracker(t, st, hub)

	snap, err := trk.Snapshot(context.Background(), "u1")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	// 2 × 175.50 base price.
	if snap.TotalValue != 351.00 {
		t.Errorf("total value = %v, want 351.00", snap.TotalValue)
	}
	if snap.DayChange != 0 {
		t.Errorf("day change = %v, want 0 at base prices", snap.DayChange)
	}
}

func TestAnalyticsWithoutFeed(t *testing.T) {
	st := &fakeStore{holdings: []models.Holding{
		{ID: 1, UserID: "u1", Symbol: "AAPL", Quantity: 2, AvgCost: 100},
		{ID: 2, UserID: "u1", Symbol: "JNJ", Quantity: 1, AvgCost: 150},
	}}
	hub := &fakeDispatcher{}
	trk := newTestTracker(t, st, hub)

	allocation, risk, err := trk.Analytics(context.Background(), "u1")
	if err != nil {
		t.Fatalf("analytics: %v", err)
	}
	if len(allocation.Allocation) != 2 {
		t.Errorf("sectors = %d, want 2 (Technology, Healthcare)", len(allocation.Allocation))
	}
	if risk.RiskLevel == "" {
		t.Errorf("risk level missing")
	}
}

func TestValidSymbol(t *testing.T) {
	st := &fakeStore{holdings: []models.Holding{{ID: 1, UserID: "u1", Symbol: "ZZZZ", Quantity: 1, AvgCost: 10}}}
	hub := &fakeDispatcher{}
	trk := newTestTracker(t, st, hub)
	ctx := context.Background()

	ok, err := trk.ValidSymbol(ctx, "u1", "AAPL")
	if err != nil || !ok {
		t.Errorf("known symbol rejected (ok=%v, err=%v)", ok, err)
	}
	ok, err = trk.ValidSymbol(ctx, "u1", "ZZZZ")
	if err != nil || !ok {
		t.Errorf("held symbol rejected (ok=%v, err=%v)", ok, err)
	}
	ok, err = trk.ValidSymbol(ctx, "u1", "QQQQ")
	if err != nil || ok {
		t.Errorf("unknown symbol accepted (ok=%v, err=%v)", ok, err)
	}
}

func TestStaleSymbolFlaggedAndValuedAtLastPrice(t *testing.T) {
	st := &fakeStore{holdings: []models.Holding{{ID: 1, UserID: "u1", Symbol: "AAPL", Quantity: 2, AvgCost: 100}}}
	hub := &fakeDispatcher{}
	trk := newTestTracker(t, st, hub)

	// The tick for AAPL is a full second old against a 10ms interval,
	// far past the 2x cutoff.
	state := &userState{
		prices:    map[string]float64{"AAPL": 170},
		lastTick:  map[string]time.Time{"AAPL": time.Now().UTC().Add(-time.Second)},
		prevClose: map[string]float64{"AAPL": 175.50},
	}

	update, err := trk.recompute(context.Background(), "u1", state, false)
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}

	snap := update.Snapshot
	if len(snap.StaleSymbols) != 1 || snap.StaleSymbols[0] != "AAPL" {
		t.Errorf("stale symbols = %v, want [AAPL]", snap.StaleSymbols)
	}
	// Still valued at the last-known price, not dropped.
	if snap.TotalValue != 340.00 {
		t.Errorf("total value = %v, want 340.00 at last-known price", snap.TotalValue)
	}
	if len(snap.IncompleteSymbols) != 0 {
		t.Errorf("stale symbol misreported as incomplete: %v", snap.IncompleteSymbols)
	}
}

func TestFreshTickIsNotStale(t *testing.T) {
	st := &fakeStore{holdings: []models.Holding{{ID: 1, UserID: "u1", Symbol: "AAPL", Quantity: 2, AvgCost: 100}}}
	hub := &fakeDispatcher{}
	trk := newTestTracker(t, st, hub)

	state := &userState{
		prices:    map[string]float64{"AAPL": 170},
		lastTick:  map[string]time.Time{"AAPL": time.Now().UTC()},
		prevClose: map[string]float64{"AAPL": 175.50},
	}

	update, err := trk.recompute(context.Background(), "u1", state, false)
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if len(update.Snapshot.StaleSymbols) != 0 {
		t.Errorf("fresh symbol flagged stale: %v", update.Snapshot.StaleSymbols)
	}
}

func TestTriggeredCountSurvivesFeedRestart(t *testing.T) {
	st := &fakeStore{
		holdings: []models.Holding{{ID: 1, UserID: "u1", Symbol: "AAPL", Quantity: 1, AvgCost: 100}},
		alerts: []models.PriceAlert{{
			ID: 1, UserID: "u1", Symbol: "AAPL",
			Condition: models.AlertAbove, TargetPrice: 1, Enabled: true,
		}},
	}
	hub := &fakeDispatcher{sessions: 1}
	trk := newTestTracker(t, st, hub)

	ctx := context.Background()
	if err := trk.Ensure(ctx, "u1"); err != nil {
		t.Fatalf("ensure: %v", err)
	}

	waitFor(t, "the alert to trigger and persist", func() bool {
		return st.markedCount() == 1 && trk.Stats().TriggeredAlerts == 1
	})

	if err := trk.Refresh(ctx, "u1"); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if got := trk.Stats().TriggeredAlerts; got != 1 {
		t.Errorf("triggered count = %d after restart, want 1", got)
	}

	hub.mu.Lock()
	hub.sessions = 0
	hub.mu.Unlock()
	trk.Release("u1")
	if got := trk.Stats().TriggeredAlerts; got != 1 {
		t.Errorf("triggered count = %d after teardown, want 1", got)
	}
}

func TestStatsAggregatesAcrossUsers(t *testing.T) {
	st := &fakeStore{
		holdings: []models.Holding{
			{ID: 1, UserID: "u1", Symbol: "AAPL", Quantity: 1, AvgCost: 100},
			{ID: 2, UserID: "u2", Symbol: "TSLA", Quantity: 1, AvgCost: 200},
		},
		alerts: []models.PriceAlert{
			{ID: 1, UserID: "u1", Symbol: "AAPL", Condition: models.AlertBelow, TargetPrice: 1, Enabled: true},
			{ID: 2, UserID: "u2", Symbol: "TSLA", Condition: models.AlertBelow, TargetPrice: 1, Enabled: true},
		},
	}
	hub := &fakeDispatcher{sessions: 1}
	trk := newTestTracker(t, st, hub)

	ctx := context.Background()
	if err := trk.Ensure(ctx, "u1"); err != nil {
		t.Fatalf("ensure u1: %v", err)
	}
	if err := trk.Ensure(ctx, "u2"); err != nil {
		t.Fatalf("ensure u2: %v", err)
	}

	stats := trk.Stats()
	if stats.ActiveAlerts != 2 {
		t.Errorf("active alerts = %d, want 2", stats.ActiveAlerts)
	}
	if trk.ActiveFeeds() != 2 {
		t.Errorf("active feeds = %d, want 2", trk.ActiveFeeds())
	}
}

func TestAlertRemovedFromRunningFeed(t *testing.T) {
	st := &fakeStore{
		holdings: []models.Holding{{ID: 1, UserID: "u1", Symbol: "AAPL", Quantity: 1, AvgCost: 100}},
		alerts: []models.PriceAlert{{
			ID: 1, UserID: "u1", Symbol: "AAPL",
			Condition: models.AlertBelow, TargetPrice: 1, Enabled: true,
		}},
	}
	hub := &fakeDispatcher{sessions: 1}
	trk := newTestTracker(t, st, hub)

	if err := trk.Ensure(context.Background(), "u1"); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	trk.AlertRemoved("u1", 1)

	if stats := trk.Stats(); stats.ActiveAlerts != 0 {
		t.Errorf("active alerts = %d after removal, want 0", stats.ActiveAlerts)
	}
	// Removing for a user with no feed is a no-op.
	trk.AlertRemoved("ghost", 99)
}
