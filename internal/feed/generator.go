package feed

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/JeyaBa1aB/alpha-insights-sub000/internal/models"
)

// basePrices anchors the random walk per symbol. Symbols without an
// entry start at defaultBasePrice.
var basePrices = map[string]float64{
	"AAPL":  175.50,
	"MSFT":  415.80,
	"GOOGL": 2650.00,
	"AMZN":  3200.00,
	"TSLA":  240.10,
	"NVDA":  450.25,
	"META":  320.75,
	"JPM":   145.60,
	"JNJ":   162.30,
	"PG":    155.40,
	"KO":    58.90,
	"WMT":   165.20,
	"V":     245.80,
	"MA":    410.30,
	"UNH":   520.40,
	"HD":    330.50,
	"DIS":   95.20,
	"NFLX":  485.60,
	"ADBE":  580.30,
	"CRM":   220.40,
}

const (
	defaultBasePrice = 100.00
	maxStepPct       = 0.02 // each tick moves at most ±2% of the running price
	priceFloor       = 0.01
)

// BasePrice returns the anchor price for a symbol.
func BasePrice(symbol string) float64 {
	if p, ok := basePrices[strings.ToUpper(strings.TrimSpace(symbol))]; ok {
		return p
	}
	return defaultBasePrice
}

// KnownSymbol reports whether a symbol has a dedicated base price.
func KnownSymbol(symbol string) bool {
	_, ok := basePrices[strings.ToUpper(strings.TrimSpace(symbol))]
	return ok
}

// Generator produces a continuous stream of synthetic ticks: a bounded
// multiplicative random walk anchored to the base-price table. A
// Generator is single-shot; stop it and build a fresh one to change the
// symbol set.
type Generator struct {
	interval time.Duration
	seed     int64

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// Option customizes a Generator.
type Option func(*Generator)

// WithSeed fixes the random source, making the walk reproducible.
func WithSeed(seed int64) Option {
	return func(g *Generator) { g.seed = seed }
}

func NewGenerator(interval time.Duration, opts ...Option) *Generator {
	g := &Generator{
		interval: interval,
		seed:     time.Now().UnixNano(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Start begins ticking for the given symbols and returns the tick
// stream. The stream closes when ctx is cancelled or Stop is called;
// no tick is emitted after cancellation is observed.
func (g *Generator) Start(ctx context.Context, symbols []string) <-chan models.PriceTick {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.started {
		closed := make(chan models.PriceTick)
		close(closed)
		return closed
	}
	g.started = true

	ctx, g.cancel = context.WithCancel(ctx)
	g.done = make(chan struct{})
	out := make(chan models.PriceTick)

	ordered := make([]string, 0, len(symbols))
	seen := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		ordered = append(ordered, s)
	}

	go g.run(ctx, ordered, out)
	return out
}

// Stop cancels the walk. It is safe to call more than once and blocks
// until the stream is closed.
func (g *Generator) Stop() {
	g.mu.Lock()
	cancel, done := g.cancel, g.done
	g.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (g *Generator) run(ctx context.Context, symbols []string, out chan<- models.PriceTick) {
	defer close(out)
	defer close(g.done)

	rng := rand.New(rand.NewSource(g.seed))

	prices := make(map[string]float64, len(symbols))
	volumes := make(map[string]int64, len(symbols))
	for _, s := range symbols {
		prices[s] = BasePrice(s)
		volumes[s] = 1_000_000 + rng.Int63n(9_000_001)
	}

	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	emit := func() bool {
		now := time.Now().UTC()
		for _, s := range symbols {
			step := (rng.Float64()*2 - 1) * maxStepPct
			price := prices[s] * (1 + step)
			if price < priceFloor {
				price = priceFloor
			}
			prices[s] = price
			volumes[s] += 1_000 + rng.Int63n(99_001)

			base := BasePrice(s)
			tick := models.PriceTick{
				Symbol:        s,
				Price:         price,
				Change:        price - base,
				ChangePercent: (price - base) / base * 100,
				Volume:        volumes[s],
				Timestamp:     now,
			}

			select {
			case out <- tick:
			case <-ctx.Done():
				return false
			}
		}
		return true
	}

	if !emit() {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !emit() {
				return
			}
		}
	}
}
