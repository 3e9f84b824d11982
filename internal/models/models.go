package models

import "time"

// Holding is one position in a user's portfolio. Quantity never goes
// negative; the transaction-recording path enforces that before rows
// land here.
type Holding struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"user_id"`
	Symbol    string    `json:"symbol"`
	Quantity  float64   `json:"quantity"`
	AvgCost   float64   `json:"average_cost"`
	CreatedAt time.Time `json:"created_at"`
}

// PriceTick is one simulated price observation. Ticks are ephemeral and
// never persisted by the engine.
type PriceTick struct {
	Symbol        string    `json:"symbol"`
	Price         float64   `json:"price"`
	Change        float64   `json:"change"`
	ChangePercent float64   `json:"change_percent"`
	Volume        int64     `json:"volume"`
	Timestamp     time.Time `json:"timestamp"`
}

// PositionView is one holding priced against the latest tick.
type PositionView struct {
	Symbol          string  `json:"symbol"`
	Quantity        float64 `json:"quantity"`
	AvgCost         float64 `json:"average_cost"`
	Price           float64 `json:"price"`
	MarketValue     float64 `json:"market_value"`
	CostBasis       float64 `json:"cost_basis"`
	GainLoss        float64 `json:"gain_loss"`
	GainLossPercent float64 `json:"gain_loss_percent"`
	DayChange       float64 `json:"day_change"`
}

// PortfolioSnapshot is the derived valuation of a portfolio at a point
// in time. It is always reproducible from holdings plus the latest
// prices and carries no authoritative state of its own.
type PortfolioSnapshot struct {
	TotalValue           float64        `json:"total_value"`
	DayChange            float64        `json:"day_change"`
	DayChangePercent     float64        `json:"day_change_percent"`
	TotalGainLoss        float64        `json:"total_gain_loss"`
	TotalGainLossPercent float64        `json:"total_gain_loss_percent"`
	CashBalance          float64        `json:"cash_balance"`
	Positions            []PositionView `json:"positions"`
	IncompleteSymbols    []string       `json:"incomplete_symbols,omitempty"`
	StaleSymbols         []string       `json:"stale_symbols,omitempty"`
	UpdatedAt            time.Time      `json:"updated_at"`
}

type RiskLevel string

const (
	RiskConservative   RiskLevel = "Conservative"
	RiskModerate       RiskLevel = "Moderate"
	RiskAggressive     RiskLevel = "Aggressive"
	RiskVeryAggressive RiskLevel = "Very Aggressive"
)

// RiskMetrics bundles the derived risk numbers for a portfolio.
// Percent-denominated fields are already scaled by 100.
type RiskMetrics struct {
	Beta            float64   `json:"beta"`
	Volatility      float64   `json:"volatility"`
	SharpeRatio     float64   `json:"sharpe_ratio"`
	Alpha           float64   `json:"alpha"`
	MaxDrawdown     float64   `json:"max_drawdown"`
	VaR95           float64   `json:"var_95"`
	Correlation     float64   `json:"correlation"`
	RiskScore       float64   `json:"risk_score"`
	RiskLevel       RiskLevel `json:"risk_level"`
	Recommendations []string  `json:"recommendations"`
	DataPoints      int       `json:"data_points"`
	LastUpdated     time.Time `json:"last_updated"`
}

// SectorSlice is one sector's share of the portfolio.
type SectorSlice struct {
	Value      float64 `json:"value"`
	Percentage float64 `json:"percentage"`
	Color      string  `json:"color"`
}

// AllocationView groups position values by sector.
type AllocationView struct {
	Allocation           map[string]SectorSlice `json:"allocation"`
	TotalValue           float64                `json:"total_value"`
	DiversificationScore float64                `json:"diversification_score"`
	Recommendations      []string               `json:"recommendations"`
	LastUpdated          time.Time              `json:"last_updated"`
}

// Insight is one typed callout derived from the combined allocation and
// risk views.
type Insight struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Message  string `json:"message"`
	Priority string `json:"priority"`
}

type AlertCondition string

const (
	AlertAbove AlertCondition = "above"
	AlertBelow AlertCondition = "below"
)

// PriceAlert is a user-defined threshold watch. Once triggered it never
// re-fires; a disabled triggered alert is inert but kept for history.
type PriceAlert struct {
	ID          int64          `json:"id"`
	UserID      string         `json:"user_id"`
	Symbol      string         `json:"symbol"`
	Condition   AlertCondition `json:"condition"`
	TargetPrice float64        `json:"target_price"`
	Enabled     bool           `json:"enabled"`
	Triggered   bool           `json:"triggered"`
	CreatedAt   time.Time      `json:"created_at"`
	TriggeredAt *time.Time     `json:"triggered_at,omitempty"`
}

// Active reports whether the alert is still eligible for evaluation.
func (a PriceAlert) Active() bool {
	return a.Enabled && !a.Triggered
}

// TriggerEvent is the one-time notification emitted when an alert fires.
type TriggerEvent struct {
	EventID     string         `json:"event_id"`
	AlertID     int64          `json:"alert_id"`
	UserID      string         `json:"user_id"`
	Symbol      string         `json:"symbol"`
	Condition   AlertCondition `json:"condition"`
	TargetPrice float64        `json:"target_price"`
	Price       float64        `json:"price"`
	Message     string         `json:"message"`
	Timestamp   time.Time      `json:"timestamp"`
}

type EventType string

const (
	EventPriceAlert      EventType = "price_alert"
	EventPortfolioUpdate EventType = "portfolio_update"
)

// Event is the envelope pushed over a session's websocket.
type Event struct {
	Type      EventType `json:"type"`
	Payload   any       `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// PortfolioUpdate pairs a valuation snapshot with the analytics computed
// from it. The pair is always delivered together so a client never sees
// risk numbers from an older snapshot.
type PortfolioUpdate struct {
	Snapshot   PortfolioSnapshot `json:"snapshot"`
	Allocation AllocationView    `json:"allocation"`
	Risk       RiskMetrics       `json:"risk_metrics"`
}
