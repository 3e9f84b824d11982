package alerts

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/JeyaBa1aB/alpha-insights-sub000/internal/models"
)

type fakeTriggerStore struct {
	mu     sync.Mutex
	marked []int64
}

func (f *fakeTriggerStore) MarkAlertTriggered(_ context.Context, id int64, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marked = append(f.marked, id)
	return nil
}

func tick(symbol string, price float64) models.PriceTick {
	return models.PriceTick{Symbol: symbol, Price: price, Timestamp: time.Now().UTC()}
}

func TestAlertFiresOnceBelowThreshold(t *testing.T) {
	e := NewEngine(&fakeTriggerStore{})
	e.Add(models.PriceAlert{
		ID:          1,
		UserID:      "u1",
		Symbol:      "TSLA",
		Condition:   models.AlertBelow,
		TargetPrice: 180,
		Enabled:     true,
	})

	events := e.OnTick(tick("TSLA", 179.99))
	if len(events) != 1 {
		t.Fatalf("expected 1 trigger event, got %d", len(events))
	}
	ev := events[0]
	if ev.AlertID != 1 || ev.Symbol != "TSLA" || ev.Price != 179.99 {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if ev.EventID == "" || ev.Message == "" {
		t.Fatalf("event missing id or message: %+v", ev)
	}

	// A later qualifying tick must not re-fire the alert.
	if events := e.OnTick(tick("TSLA", 175.00)); len(events) != 0 {
		t.Fatalf("triggered alert re-fired: %+v", events)
	}
}

func TestAlertAtMostOnceOverTickSequence(t *testing.T) {
	e := NewEngine(&fakeTriggerStore{})
	e.Add(models.PriceAlert{
		ID: 2, UserID: "u1", Symbol: "AAPL",
		Condition: models.AlertAbove, TargetPrice: 150, Enabled: true,
	})

	total := 0
	for _, price := range []float64{149, 151, 160, 170, 150, 155} {
		total += len(e.OnTick(tick("AAPL", price)))
	}
	if total != 1 {
		t.Fatalf("alert fired %d times, want exactly 1", total)
	}
}

func TestAlertBoundaryIsInclusive(t *testing.T) {
	e := NewEngine(&fakeTriggerStore{})
	e.Add(models.PriceAlert{
		ID: 3, UserID: "u1", Symbol: "AAPL",
		Condition: models.AlertAbove, TargetPrice: 150, Enabled: true,
	})

	if events := e.OnTick(tick("AAPL", 150.00)); len(events) != 1 {
		t.Fatalf("price equal to target should fire, got %d events", len(events))
	}
}

func TestRemovedAlertNeverFires(t *testing.T) {
	e := NewEngine(&fakeTriggerStore{})
	e.Add(models.PriceAlert{
		ID: 4, UserID: "u1", Symbol: "NVDA",
		Condition: models.AlertAbove, TargetPrice: 400, Enabled: true,
	})
	e.Remove(4)

	if events := e.OnTick(tick("NVDA", 500)); len(events) != 0 {
		t.Fatalf("removed alert fired: %+v", events)
	}
}

func TestDisabledAlertIgnoresTicks(t *testing.T) {
	e := NewEngine(&fakeTriggerStore{})
	e.Add(models.PriceAlert{
		ID: 5, UserID: "u1", Symbol: "NVDA",
		Condition: models.AlertBelow, TargetPrice: 500, Enabled: true,
	})
	e.Disable(5)

	if events := e.OnTick(tick("NVDA", 450)); len(events) != 0 {
		t.Fatalf("disabled alert fired: %+v", events)
	}
}

func TestLoadSkipsInactiveAlerts(t *testing.T) {
	e := NewEngine(&fakeTriggerStore{})
	e.Load([]models.PriceAlert{
		{ID: 6, Symbol: "AAPL", Condition: models.AlertAbove, TargetPrice: 1, Enabled: true, Triggered: true},
		{ID: 7, Symbol: "AAPL", Condition: models.AlertAbove, TargetPrice: 1, Enabled: false},
		{ID: 8, Symbol: "AAPL", Condition: models.AlertAbove, TargetPrice: 1, Enabled: true},
	})

	events := e.OnTick(tick("AAPL", 100))
	if len(events) != 1 || events[0].AlertID != 8 {
		t.Fatalf("expected only the active alert to fire, got %+v", events)
	}
}

func TestTriggerPersistedAsynchronously(t *testing.T) {
	fs := &fakeTriggerStore{}
	e := NewEngine(fs)
	e.Add(models.PriceAlert{
		ID: 9, UserID: "u1", Symbol: "KO",
		Condition: models.AlertAbove, TargetPrice: 50, Enabled: true,
	})
	e.OnTick(tick("KO", 60))

	deadline := time.Now().Add(2 * time.Second)
	for {
		fs.mu.Lock()
		n := len(fs.marked)
		fs.mu.Unlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("trigger was never persisted")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestConcurrentTicksFireExactlyOnce(t *testing.T) {
	e := NewEngine(&fakeTriggerStore{})
	e.Add(models.PriceAlert{
		ID: 10, UserID: "u1", Symbol: "META",
		Condition: models.AlertAbove, TargetPrice: 300, Enabled: true,
	})

	var wg sync.WaitGroup
	var mu sync.Mutex
	total := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n := len(e.OnTick(tick("META", 310)))
			mu.Lock()
			total += n
			mu.Unlock()
		}()
	}
	wg.Wait()

	if total != 1 {
		t.Fatalf("alert fired %d times under concurrent ticks, want 1", total)
	}
}

func TestConcurrentAddAndTickDoesNotRace(t *testing.T) {
	e := NewEngine(&fakeTriggerStore{})

	var wg sync.WaitGroup
	for i := int64(0); i < 50; i++ {
		wg.Add(2)
		go func(id int64) {
			defer wg.Done()
			e.Add(models.PriceAlert{
				ID: id, UserID: "u1", Symbol: "JPM",
				Condition: models.AlertBelow, TargetPrice: 100, Enabled: true,
			})
		}(i)
		go func() {
			defer wg.Done()
			e.OnTick(tick("JPM", 200))
		}()
	}
	wg.Wait()

	stats := e.Stats()
	if stats.ActiveAlerts != 50 {
		t.Fatalf("active alerts = %d, want 50 (price never crossed)", stats.ActiveAlerts)
	}
}

func TestStats(t *testing.T) {
	e := NewEngine(&fakeTriggerStore{})
	e.Add(models.PriceAlert{ID: 11, Symbol: "AAPL", Condition: models.AlertAbove, TargetPrice: 100, Enabled: true})
	e.Add(models.PriceAlert{ID: 12, Symbol: "TSLA", Condition: models.AlertBelow, TargetPrice: 100, Enabled: true})

	stats := e.Stats()
	if stats.ActiveAlerts != 2 || stats.TrackedSymbols != 2 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	e.OnTick(tick("AAPL", 150))
	stats = e.Stats()
	if stats.ActiveAlerts != 1 || stats.TriggeredAlerts != 1 {
		t.Fatalf("unexpected stats after trigger: %+v", stats)
	}
}
