package alerts

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JeyaBa1aB/alpha-insights-sub000/internal/models"
)

// TriggerStore is the slice of the backing store the engine needs to
// persist a trigger. The write is fire-and-forget: the in-memory
// working set is the immediate source of truth for eligibility.
type TriggerStore interface {
	MarkAlertTriggered(ctx context.Context, id int64, triggeredAt time.Time) error
}

// Engine keeps the working set of active alerts indexed by symbol and
// evaluates it on every tick. An alert fires at most once: it is
// removed from the working set in the same critical section that emits
// its event, so concurrent ticks for the same symbol cannot double-fire
// it and a concurrently removed alert cannot fire after removal.
type Engine struct {
	store TriggerStore

	mu        sync.Mutex
	bySymbol  map[string]map[int64]models.PriceAlert
	byID      map[int64]string // alert id -> symbol
	triggered int64
}

func NewEngine(store TriggerStore) *Engine {
	return &Engine{
		store:    store,
		bySymbol: make(map[string]map[int64]models.PriceAlert),
		byID:     make(map[int64]string),
	}
}

// Load reconciles a batch of alerts into the working set, typically the
// store's active alerts for a user whose feed is starting. Inactive
// alerts are skipped.
func (e *Engine) Load(alerts []models.PriceAlert) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, a := range alerts {
		if a.Active() {
			e.addLocked(a)
		}
	}
}

// Add inserts a newly created alert into the working set.
func (e *Engine) Add(alert models.PriceAlert) {
	if !alert.Active() {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.addLocked(alert)
}

func (e *Engine) addLocked(alert models.PriceAlert) {
	if _, ok := e.byID[alert.ID]; ok {
		return
	}
	set, ok := e.bySymbol[alert.Symbol]
	if !ok {
		set = make(map[int64]models.PriceAlert)
		e.bySymbol[alert.Symbol] = set
	}
	set[alert.ID] = alert
	e.byID[alert.ID] = alert.Symbol
}

// Remove drops an alert from the working set. Safe to call for ids the
// engine never held (already triggered, disabled, or another user's).
func (e *Engine) Remove(id int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.removeLocked(id)
}

// Disable is Remove under a name matching the alert lifecycle: the row
// survives in the store, the watch just stops being evaluated.
func (e *Engine) Disable(id int64) {
	e.Remove(id)
}

func (e *Engine) removeLocked(id int64) {
	symbol, ok := e.byID[id]
	if !ok {
		return
	}
	delete(e.byID, id)
	if set, ok := e.bySymbol[symbol]; ok {
		delete(set, id)
		if len(set) == 0 {
			delete(e.bySymbol, symbol)
		}
	}
}

// OnTick evaluates every watch for the tick's symbol and returns the
// trigger events for watches that crossed their threshold. Each fired
// watch leaves the working set atomically; the store write happens
// asynchronously so a slow disk never stalls the tick cycle.
func (e *Engine) OnTick(tick models.PriceTick) []models.TriggerEvent {
	e.mu.Lock()
	var fired []models.PriceAlert
	for id, alert := range e.bySymbol[tick.Symbol] {
		if crossed(alert, tick.Price) {
			fired = append(fired, alert)
			e.removeLocked(id)
			e.triggered++
		}
	}
	e.mu.Unlock()

	if len(fired) == 0 {
		return nil
	}

	events := make([]models.TriggerEvent, 0, len(fired))
	for _, alert := range fired {
		events = append(events, models.TriggerEvent{
			EventID:     uuid.NewString(),
			AlertID:     alert.ID,
			UserID:      alert.UserID,
			Symbol:      alert.Symbol,
			Condition:   alert.Condition,
			TargetPrice: alert.TargetPrice,
			Price:       tick.Price,
			Message: fmt.Sprintf("%s is now $%.2f (%s $%.2f)",
				alert.Symbol, tick.Price, alert.Condition, alert.TargetPrice),
			Timestamp: tick.Timestamp,
		})

		go func(id int64, at time.Time) {
			if err := e.store.MarkAlertTriggered(context.Background(), id, at); err != nil {
				log.Printf("mark alert %d triggered: %v", id, err)
			}
		}(alert.ID, tick.Timestamp)
	}
	return events
}

func crossed(alert models.PriceAlert, price float64) bool {
	switch alert.Condition {
	case models.AlertAbove:
		return price >= alert.TargetPrice
	case models.AlertBelow:
		return price <= alert.TargetPrice
	default:
		return false
	}
}

// Stats reports working-set counters for the health surface.
type Stats struct {
	ActiveAlerts    int   `json:"active_alerts"`
	TrackedSymbols  int   `json:"tracked_symbols"`
	TriggeredAlerts int64 `json:"triggered_alerts"`
}

func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Stats{
		ActiveAlerts:    len(e.byID),
		TrackedSymbols:  len(e.bySymbol),
		TriggeredAlerts: e.triggered,
	}
}
