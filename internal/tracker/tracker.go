package tracker

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/JeyaBa1aB/alpha-insights-sub000/internal/alerts"
	"github.com/JeyaBa1aB/alpha-insights-sub000/internal/analytics"
	"github.com/JeyaBa1aB/alpha-insights-sub000/internal/feed"
	"github.com/JeyaBa1aB/alpha-insights-sub000/internal/models"
	"github.com/JeyaBa1aB/alpha-insights-sub000/internal/store"
	"github.com/JeyaBa1aB/alpha-insights-sub000/internal/valuation"
)

// Dispatcher is the slice of the realtime hub the tracker needs.
type Dispatcher interface {
	Dispatch(userID string, eventType models.EventType, payload any)
	SessionCount(userID string) int
}

// Tracker owns one tick cycle per active user: feed tick, valuation,
// analytics, alert evaluation, dispatch — in that order, on a single
// goroutine per user, so a client never observes a partial
// recomputation or risk numbers from a stale snapshot.
type Tracker struct {
	store    store.Store
	hub      Dispatcher
	analyzer *analytics.Analyzer
	interval time.Duration
	seed     int64 // 0 means time-seeded feeds

	cron *cron.Cron

	mu        sync.Mutex
	users     map[string]*userFeed
	triggered int64 // cumulative across feed restarts
}

type userFeed struct {
	gen    *feed.Generator
	engine *alerts.Engine
	cancel context.CancelFunc
	done   chan struct{}
	state  *userState
}

// userState is the mutable market view for one user, shared between the
// tick goroutine, on-demand API reads, and the close-rollover job.
type userState struct {
	mu        sync.Mutex
	prices    map[string]float64
	lastTick  map[string]time.Time
	prevClose map[string]float64
	values    []float64 // trailing total-value series, oldest first
}

// Option customizes a Tracker.
type Option func(*Tracker)

// WithFeedSeed makes every user feed reproducible, for tests.
func WithFeedSeed(seed int64) Option {
	return func(t *Tracker) { t.seed = seed }
}

func New(st store.Store, hub Dispatcher, analyzer *analytics.Analyzer, interval time.Duration, rolloverCron string, opts ...Option) (*Tracker, error) {
	t := &Tracker{
		store:    st,
		hub:      hub,
		analyzer: analyzer,
		interval: interval,
		cron:     cron.New(cron.WithSeconds()),
		users:    make(map[string]*userFeed),
	}
	for _, opt := range opts {
		opt(t)
	}
	if _, err := t.cron.AddFunc(rolloverCron, t.rolloverCloses); err != nil {
		return nil, fmt.Errorf("register close rollover: %w", err)
	}
	t.cron.Start()
	return t, nil
}

// Stop cancels every user feed and the rollover schedule.
func (t *Tracker) Stop() {
	t.cron.Stop()

	t.mu.Lock()
	feeds := make([]*userFeed, 0, len(t.users))
	for _, uf := range t.users {
		feeds = append(feeds, uf)
	}
	t.users = make(map[string]*userFeed)
	t.mu.Unlock()

	for _, uf := range feeds {
		uf.cancel()
		<-uf.done
	}
	log.Printf("tracker stopped")
}

// Ensure starts the user's feed if it is not already running. The
// symbol set is the union of held and watched symbols; the alert
// working set is reconciled from the store at start.
func (t *Tracker) Ensure(ctx context.Context, userID string) error {
	t.mu.Lock()
	if _, running := t.users[userID]; running {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	symbols, err := t.userSymbols(ctx, userID)
	if err != nil {
		return err
	}
	active, err := t.store.ListActiveAlerts(ctx, userID)
	if err != nil {
		return fmt.Errorf("load active alerts: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, running := t.users[userID]; running {
		return nil
	}

	state := &userState{
		prices:    make(map[string]float64, len(symbols)),
		lastTick:  make(map[string]time.Time, len(symbols)),
		prevClose: make(map[string]float64, len(symbols)),
	}
	// Seed at base prices so reads between feed start and the first
	// tick still value every tracked symbol.
	for _, s := range symbols {
		state.prices[s] = feed.BasePrice(s)
		state.prevClose[s] = feed.BasePrice(s)
	}

	engine := alerts.NewEngine(t.store)
	engine.Load(active)

	opts := []feed.Option{}
	if t.seed != 0 {
		opts = append(opts, feed.WithSeed(t.seed))
	}
	gen := feed.NewGenerator(t.interval, opts...)

	feedCtx, cancel := context.WithCancel(context.Background())
	uf := &userFeed{
		gen:    gen,
		engine: engine,
		cancel: cancel,
		done:   make(chan struct{}),
		state:  state,
	}
	t.users[userID] = uf

	ticks := gen.Start(feedCtx, symbols)
	go t.run(userID, uf, ticks)
	log.Printf("feed started for user %s (%d symbols)", userID, len(symbols))
	return nil
}

// Release stops the user's feed if no session remains connected.
func (t *Tracker) Release(userID string) {
	if t.hub.SessionCount(userID) > 0 {
		return
	}

	t.mu.Lock()
	uf, ok := t.users[userID]
	if ok {
		delete(t.users, userID)
	}
	t.mu.Unlock()
	if !ok {
		return
	}

	uf.cancel()
	<-uf.done
	log.Printf("feed stopped for user %s", userID)
}

// Refresh restarts a running feed so its symbol set picks up holding or
// alert changes. A user with no running feed is left alone.
func (t *Tracker) Refresh(ctx context.Context, userID string) error {
	t.mu.Lock()
	uf, running := t.users[userID]
	if running {
		delete(t.users, userID)
	}
	t.mu.Unlock()
	if !running {
		return nil
	}

	uf.cancel()
	<-uf.done
	return t.Ensure(ctx, userID)
}

func (t *Tracker) run(userID string, uf *userFeed, ticks <-chan models.PriceTick) {
	defer close(uf.done)
	for tick := range ticks {
		uf.state.mu.Lock()
		uf.state.prices[tick.Symbol] = tick.Price
		uf.state.lastTick[tick.Symbol] = tick.Timestamp
		uf.state.mu.Unlock()

		t.cycle(userID, uf, tick)
	}
}

// cycle runs one complete tick cycle. The valuation snapshot and the
// analytics computed from it travel in a single portfolio_update so
// they are delivered together or not at all.
func (t *Tracker) cycle(userID string, uf *userFeed, tick models.PriceTick) {
	ctx, cancelRead := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelRead()

	update, err := t.recompute(ctx, userID, uf.state, true)
	if err != nil {
		log.Printf("tick cycle for user %s: %v", userID, err)
		return
	}

	events := uf.engine.OnTick(tick)
	if len(events) > 0 {
		t.mu.Lock()
		t.triggered += int64(len(events))
		t.mu.Unlock()
	}

	t.hub.Dispatch(userID, models.EventPortfolioUpdate, update)
	for _, ev := range events {
		t.hub.Dispatch(userID, models.EventPriceAlert, ev)
	}
}

// recompute builds the paired snapshot + analytics view. When record is
// true the total value is appended to the trailing series; on-demand
// API reads pass false so they do not distort the return distribution.
func (t *Tracker) recompute(ctx context.Context, userID string, state *userState, record bool) (models.PortfolioUpdate, error) {
	holdings, err := t.store.ListHoldings(ctx, userID)
	if err != nil {
		return models.PortfolioUpdate{}, fmt.Errorf("list holdings: %w", err)
	}
	cash, err := t.store.CashBalance(ctx, userID)
	if err != nil {
		return models.PortfolioUpdate{}, fmt.Errorf("cash balance: %w", err)
	}

	now := time.Now().UTC()
	staleCutoff := now.Add(-2 * t.interval)

	state.mu.Lock()
	prices := make(map[string]float64, len(state.prices))
	for k, v := range state.prices {
		prices[k] = v
	}
	prevClose := make(map[string]float64, len(state.prevClose))
	for k, v := range state.prevClose {
		prevClose[k] = v
	}
	var stale []string
	for _, h := range holdings {
		if at, ok := state.lastTick[h.Symbol]; ok && at.Before(staleCutoff) {
			stale = append(stale, h.Symbol)
		}
	}
	state.mu.Unlock()

	snapshot := valuation.Stamp(valuation.Compute(holdings, prices, prevClose, cash), now)
	snapshot.StaleSymbols = stale

	state.mu.Lock()
	if record {
		state.values = append(state.values, snapshot.TotalValue)
		if max := t.analyzer.Window() + 1; len(state.values) > max {
			state.values = state.values[len(state.values)-max:]
		}
	}
	values := make([]float64, len(state.values))
	copy(values, state.values)
	state.mu.Unlock()

	allocation := t.analyzer.Allocation(snapshot.Positions, now)
	risk := t.analyzer.Risk(values, allocation.DiversificationScore, now)

	return models.PortfolioUpdate{
		Snapshot:   snapshot,
		Allocation: allocation,
		Risk:       risk,
	}, nil
}

// Snapshot serves the on-demand read path. A user with no running feed
// is valued at base prices, which also serve as previous close.
func (t *Tracker) Snapshot(ctx context.Context, userID string) (models.PortfolioSnapshot, error) {
	update, err := t.view(ctx, userID)
	if err != nil {
		return models.PortfolioSnapshot{}, err
	}
	return update.Snapshot, nil
}

// Analytics serves the on-demand risk and allocation read path.
func (t *Tracker) Analytics(ctx context.Context, userID string) (models.AllocationView, models.RiskMetrics, error) {
	update, err := t.view(ctx, userID)
	if err != nil {
		return models.AllocationView{}, models.RiskMetrics{}, err
	}
	return update.Allocation, update.Risk, nil
}

// Update returns the paired snapshot and analytics view, the same shape
// a tick cycle dispatches.
func (t *Tracker) Update(ctx context.Context, userID string) (models.PortfolioUpdate, error) {
	return t.view(ctx, userID)
}

func (t *Tracker) view(ctx context.Context, userID string) (models.PortfolioUpdate, error) {
	t.mu.Lock()
	uf, running := t.users[userID]
	t.mu.Unlock()

	if running {
		return t.recompute(ctx, userID, uf.state, false)
	}

	holdings, err := t.store.ListHoldings(ctx, userID)
	if err != nil {
		return models.PortfolioUpdate{}, fmt.Errorf("list holdings: %w", err)
	}
	state := &userState{
		prices:    make(map[string]float64, len(holdings)),
		lastTick:  make(map[string]time.Time),
		prevClose: make(map[string]float64, len(holdings)),
	}
	for _, h := range holdings {
		state.prices[h.Symbol] = feed.BasePrice(h.Symbol)
		state.prevClose[h.Symbol] = feed.BasePrice(h.Symbol)
	}
	return t.recompute(ctx, userID, state, false)
}

// AlertCreated folds a freshly stored alert into the owning user's
// working set and widens the feed if the symbol is new.
func (t *Tracker) AlertCreated(ctx context.Context, alert models.PriceAlert) error {
	t.mu.Lock()
	uf, running := t.users[alert.UserID]
	t.mu.Unlock()
	if !running {
		return nil
	}

	uf.state.mu.Lock()
	_, tracked := uf.state.prevClose[alert.Symbol]
	uf.state.mu.Unlock()

	uf.engine.Add(alert)
	if !tracked {
		return t.Refresh(ctx, alert.UserID)
	}
	return nil
}

// AlertRemoved drops an alert from the owning user's working set.
func (t *Tracker) AlertRemoved(userID string, id int64) {
	t.mu.Lock()
	uf, running := t.users[userID]
	t.mu.Unlock()
	if running {
		uf.engine.Remove(id)
	}
}

// ValidSymbol reports whether a symbol is acceptable for a new alert:
// either it has a base price or the user already holds it.
func (t *Tracker) ValidSymbol(ctx context.Context, userID, symbol string) (bool, error) {
	if feed.KnownSymbol(symbol) {
		return true, nil
	}
	holdings, err := t.store.ListHoldings(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("list holdings: %w", err)
	}
	for _, h := range holdings {
		if h.Symbol == symbol {
			return true, nil
		}
	}
	return false, nil
}

// Stats aggregates alert-engine counters across running users. The
// triggered count is the tracker's own cumulative total, so it survives
// feed restarts and teardowns.
func (t *Tracker) Stats() alerts.Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := alerts.Stats{TriggeredAlerts: t.triggered}
	for _, uf := range t.users {
		s := uf.engine.Stats()
		out.ActiveAlerts += s.ActiveAlerts
		out.TrackedSymbols += s.TrackedSymbols
	}
	return out
}

// ActiveFeeds reports how many user feeds are running.
func (t *Tracker) ActiveFeeds() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.users)
}

// rolloverCloses promotes every running user's current prices to
// previous close. Scheduled daily so day-change resets at the boundary.
func (t *Tracker) rolloverCloses() {
	t.mu.Lock()
	states := make([]*userState, 0, len(t.users))
	for _, uf := range t.users {
		states = append(states, uf.state)
	}
	t.mu.Unlock()

	for _, state := range states {
		state.mu.Lock()
		for symbol, price := range state.prices {
			state.prevClose[symbol] = price
		}
		state.mu.Unlock()
	}
	log.Printf("previous closes rolled over for %d feeds", len(states))
}

func (t *Tracker) userSymbols(ctx context.Context, userID string) ([]string, error) {
	holdings, err := t.store.ListHoldings(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list holdings: %w", err)
	}
	watched, err := t.store.ListActiveAlerts(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list active alerts: %w", err)
	}

	seen := make(map[string]bool)
	symbols := make([]string, 0, len(holdings)+len(watched))
	for _, h := range holdings {
		if !seen[h.Symbol] {
			seen[h.Symbol] = true
			symbols = append(symbols, h.Symbol)
		}
	}
	for _, a := range watched {
		if !seen[a.Symbol] {
			seen[a.Symbol] = true
			symbols = append(symbols, a.Symbol)
		}
	}
	return symbols, nil
}
