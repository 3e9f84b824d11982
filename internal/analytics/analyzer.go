package analytics

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/JeyaBa1aB/alpha-insights-sub000/internal/models"
)

const tradingDays = 252

// Analyzer derives allocation and risk views from valuation output.
// All methods are deterministic given identical input series; the only
// randomness in the system lives in the price feed.
type Analyzer struct {
	riskFreeRate float64
	window       int
}

func NewAnalyzer(riskFreeRate float64, window int) *Analyzer {
	return &Analyzer{riskFreeRate: riskFreeRate, window: window}
}

// Window is the trailing-return sample size the analyzer expects.
func (a *Analyzer) Window() int { return a.window }

// Allocation groups position values by sector. Percentages are rounded
// to 2 decimals and the largest sector absorbs the rounding residual so
// they always sum to 100.
func (a *Analyzer) Allocation(positions []models.PositionView, at time.Time) models.AllocationView {
	out := models.AllocationView{
		Allocation:  make(map[string]models.SectorSlice),
		LastUpdated: at,
	}
	if len(positions) == 0 {
		out.Recommendations = []string{"Start building your portfolio with diversified investments"}
		return out
	}

	sectorValues := make(map[string]float64)
	sectors := make([]string, 0)
	var total float64
	for _, p := range positions {
		sector := Sector(p.Symbol)
		if _, seen := sectorValues[sector]; !seen {
			sectors = append(sectors, sector)
		}
		sectorValues[sector] += p.MarketValue
		total += p.MarketValue
	}
	if total <= 0 {
		out.Recommendations = []string{"Start building your portfolio with diversified investments"}
		return out
	}
	sort.Strings(sectors)

	var hhi, pctSum float64
	largest := sectors[0]
	for _, sector := range sectors {
		share := sectorValues[sector] / total
		hhi += share * share
		pct := round2(share * 100)
		pctSum += pct
		out.Allocation[sector] = models.SectorSlice{
			Value:      round2(sectorValues[sector]),
			Percentage: pct,
			Color:      sectorColor(sector),
		}
		if sectorValues[sector] > sectorValues[largest] {
			largest = sector
		}
	}
	// Largest-remainder fixup keeps the percentages summing to 100.
	if residual := round2(100 - pctSum); residual != 0 {
		slice := out.Allocation[largest]
		slice.Percentage = round2(slice.Percentage + residual)
		out.Allocation[largest] = slice
	}

	out.TotalValue = round2(total)
	out.DiversificationScore = diversificationScore(hhi)
	out.Recommendations = allocationRecommendations(out.Allocation, len(sectors))
	return out
}

// diversificationScore maps sector concentration (HHI in (0,1]) onto a
// 0-10 scale where 10 is perfectly spread.
func diversificationScore(hhi float64) float64 {
	score := 10 * (1 - hhi)
	return round1(clamp(score, 0, 10))
}

func allocationRecommendations(allocation map[string]models.SectorSlice, sectorCount int) []string {
	recs := make([]string, 0)

	sectors := make([]string, 0, len(allocation))
	for sector := range allocation {
		sectors = append(sectors, sector)
	}
	sort.Strings(sectors)
	for _, sector := range sectors {
		if allocation[sector].Percentage > 40 {
			recs = append(recs, fmt.Sprintf("Consider reducing %s exposure (currently %.1f%%)", sector, allocation[sector].Percentage))
		}
	}

	if sectorCount < 3 {
		recs = append(recs, "Increase diversification by investing in more sectors")
	}

	if len(recs) == 0 {
		recs = append(recs, "Your portfolio shows good sector diversification")
	}
	return recs
}

// Risk derives the metrics bundle from the trailing portfolio-value
// series. Values must be in chronological order; diversification comes
// from the paired allocation pass so concentration feeds the risk score.
func (a *Analyzer) Risk(values []float64, diversificationScore float64, at time.Time) models.RiskMetrics {
	returns := dailyReturns(values)
	if len(returns) < 2 {
		return a.emptyRisk(at)
	}
	if len(returns) > a.window {
		returns = returns[len(returns)-a.window:]
	}
	market := benchmarkReturns(len(returns))

	meanR := mean(returns)
	stdR := stddev(returns, meanR)
	meanM := mean(market)
	stdM := stddev(market, meanM)

	beta := 1.0
	correlation := 0.0
	if stdM > 0 {
		cov := covariance(returns, market, meanR, meanM)
		beta = clamp(cov/(stdM*stdM), 0, 3)
		if stdR > 0 {
			correlation = cov / (stdR * stdM)
		}
	}

	annVol := math.Min(stdR*math.Sqrt(tradingDays), 2.0)

	sharpe := 0.0
	if annVol > 0 {
		sharpe = clamp((meanR*tradingDays-a.riskFreeRate)/annVol, -3, 3)
	}

	alpha := clamp(meanR*tradingDays-(a.riskFreeRate+beta*(meanM*tradingDays-a.riskFreeRate)), -1, 1)

	score := riskScore(annVol, beta, diversificationScore)

	return models.RiskMetrics{
		Beta:            round3(beta),
		Volatility:      round2(annVol * 100),
		SharpeRatio:     round3(sharpe),
		Alpha:           round2(alpha * 100),
		MaxDrawdown:     round2(maxDrawdown(returns) * 100),
		VaR95:           round2(valueAtRisk(returns, 0.95) * 100),
		Correlation:     round3(correlation),
		RiskScore:       score,
		RiskLevel:       riskLevel(score),
		Recommendations: riskRecommendations(annVol, beta, sharpe),
		DataPoints:      len(returns),
		LastUpdated:     at,
	}
}

// Insights derives typed callouts from the paired allocation and risk
// views: concentration warnings, high-risk warnings, and strong
// risk-adjusted performance. A balanced portfolio yields none.
func Insights(allocation models.AllocationView, risk models.RiskMetrics) []models.Insight {
	insights := make([]models.Insight, 0)

	if allocation.DiversificationScore < 5 {
		insights = append(insights, models.Insight{
			Type:     "warning",
			Title:    "Low Diversification",
			Message:  "Your portfolio is concentrated in few sectors. Consider diversifying.",
			Priority: "high",
		})
	}
	if risk.RiskScore > 7 {
		insights = append(insights, models.Insight{
			Type:     "warning",
			Title:    "High Risk Portfolio",
			Message:  "Your portfolio has high risk. Consider adding defensive positions.",
			Priority: "medium",
		})
	}
	if risk.SharpeRatio > 1 {
		insights = append(insights, models.Insight{
			Type:     "success",
			Title:    "Good Risk-Adjusted Returns",
			Message:  "Your portfolio shows strong risk-adjusted performance.",
			Priority: "low",
		})
	}
	return insights
}

// OverallScore grades the portfolio 0-100: diversification weighted 0.4,
// inverted risk score 0.3, Sharpe mapped from [-1, 1] onto [0, 100]
// weighted 0.3.
func OverallScore(allocation models.AllocationView, risk models.RiskMetrics) float64 {
	diversification := clamp(allocation.DiversificationScore, 0, 10) * 10
	inverseRisk := math.Max(0, 100-risk.RiskScore*10)
	sharpe := clamp((risk.SharpeRatio+1)*50, 0, 100)
	return round1(diversification*0.4 + inverseRisk*0.3 + sharpe*0.3)
}

func (a *Analyzer) emptyRisk(at time.Time) models.RiskMetrics {
	return models.RiskMetrics{
		Beta:            1.0,
		RiskScore:       5.0,
		RiskLevel:       riskLevel(5.0),
		Recommendations: []string{"Insufficient data for risk analysis"},
		LastUpdated:     at,
	}
}

// riskScore blends normalized volatility, beta deviation from one, and
// sector concentration into a 1-10 scale.
func riskScore(annVol, beta, diversification float64) float64 {
	volScore := math.Min(1.0, annVol/0.5)
	betaScore := math.Min(1.0, math.Abs(beta-1))
	concScore := 1 - clamp(diversification, 0, 10)/10

	blended := volScore*0.5 + betaScore*0.3 + concScore*0.2
	return round1(1 + blended*9)
}

func riskLevel(score float64) models.RiskLevel {
	switch {
	case score <= 3:
		return models.RiskConservative
	case score <= 6:
		return models.RiskModerate
	case score <= 8:
		return models.RiskAggressive
	default:
		return models.RiskVeryAggressive
	}
}

func riskRecommendations(annVol, beta, sharpe float64) []string {
	recs := make([]string, 0)

	if beta > 1.5 {
		recs = append(recs, "Your portfolio is highly sensitive to market movements. Consider adding defensive stocks.")
	} else if beta < 0.5 {
		recs = append(recs, "Your portfolio may be too conservative. Consider adding growth stocks for better returns.")
	}

	if annVol > 0.25 {
		recs = append(recs, "High volatility detected. Consider reducing position sizes and diversifying across sectors.")
	}

	if sharpe < 0 {
		recs = append(recs, "Poor risk-adjusted returns. Review your investment strategy and consider rebalancing.")
	} else if sharpe > 1.5 {
		recs = append(recs, "Excellent risk-adjusted returns! Consider maintaining your current strategy.")
	}

	if len(recs) == 0 {
		recs = append(recs, "Your portfolio shows balanced risk characteristics.")
	}
	return recs
}

// dailyReturns converts a value series into simple period returns.
func dailyReturns(values []float64) []float64 {
	if len(values) < 2 {
		return nil
	}
	out := make([]float64, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		if values[i-1] == 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, (values[i]-values[i-1])/values[i-1])
	}
	return out
}

// maxDrawdown finds the largest peak-to-trough decline of the
// cumulative value implied by the return series.
func maxDrawdown(returns []float64) float64 {
	peak := 1.0
	value := 1.0
	maxDD := 0.0
	for _, r := range returns {
		value *= 1 + r
		if value > peak {
			peak = value
			continue
		}
		if dd := (peak - value) / peak; dd > maxDD {
			maxDD = dd
		}
	}
	return math.Min(1.0, maxDD)
}

// valueAtRisk estimates the loss at the given confidence level via
// historical simulation.
func valueAtRisk(returns []float64, confidence float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	sorted := make([]float64, len(returns))
	copy(sorted, returns)
	sort.Float64s(sorted)
	idx := int((1 - confidence) * float64(len(sorted)))
	return math.Min(1.0, math.Abs(sorted[idx]))
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func stddev(xs []float64, mu float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		d := x - mu
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(xs)))
}

func covariance(xs, ys []float64, muX, muY float64) float64 {
	n := len(xs)
	if len(ys) < n {
		n = len(ys)
	}
	if n == 0 {
		return 0
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += (xs[i] - muX) * (ys[i] - muY)
	}
	return sum / float64(n)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
func round2(v float64) float64 { return math.Round(v*100) / 100 }
func round3(v float64) float64 { return math.Round(v*1000) / 1000 }
