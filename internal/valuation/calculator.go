package valuation

import (
	"math"
	"time"

	"github.com/JeyaBa1aB/alpha-insights-sub000/internal/models"
)

// Compute prices a set of holdings against the latest price map and
// returns a derived snapshot. It is pure: identical inputs produce
// identical output, and position order follows holding order so no map
// iteration leaks into the result.
//
// A held symbol with no price is excluded from every aggregate and
// reported in IncompleteSymbols instead of failing the computation.
// Cash is an opaque addend to total value.
func Compute(holdings []models.Holding, prices, prevClose map[string]float64, cash float64) models.PortfolioSnapshot {
	out := models.PortfolioSnapshot{
		CashBalance: round2(cash),
		Positions:   make([]models.PositionView, 0, len(holdings)),
	}

	var totalValue, totalCost, dayChange float64
	for _, h := range holdings {
		price, ok := prices[h.Symbol]
		if !ok || price <= 0 {
			out.IncompleteSymbols = append(out.IncompleteSymbols, h.Symbol)
			continue
		}

		marketValue := h.Quantity * price
		costBasis := h.Quantity * h.AvgCost
		gain := marketValue - costBasis
		gainPct := 0.0
		if costBasis > 0 {
			gainPct = gain / costBasis * 100
		}

		posDayChange := 0.0
		if prev, ok := prevClose[h.Symbol]; ok {
			posDayChange = h.Quantity * (price - prev)
		}

		out.Positions = append(out.Positions, models.PositionView{
			Symbol:          h.Symbol,
			Quantity:        h.Quantity,
			AvgCost:         h.AvgCost,
			Price:           round2(price),
			MarketValue:     round2(marketValue),
			CostBasis:       round2(costBasis),
			GainLoss:        round2(gain),
			GainLossPercent: round2(gainPct),
			DayChange:       round2(posDayChange),
		})

		totalValue += marketValue
		totalCost += costBasis
		dayChange += posDayChange
	}

	totalValue += cash
	gain := totalValue - cash - totalCost

	out.TotalValue = round2(totalValue)
	out.DayChange = round2(dayChange)
	out.TotalGainLoss = round2(gain)
	if totalCost > 0 {
		out.TotalGainLossPercent = round2(gain / totalCost * 100)
	}
	if prior := totalValue - dayChange; prior != 0 {
		out.DayChangePercent = round2(dayChange / prior * 100)
	}

	return out
}

// Stamp sets the snapshot timestamp. Kept out of Compute so the
// computation itself stays idempotent.
func Stamp(s models.PortfolioSnapshot, at time.Time) models.PortfolioSnapshot {
	s.UpdatedAt = at
	return s
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
