package analytics

// sectorMap covers the commonly traded symbols; anything unmapped falls
// into the Other bucket.
var sectorMap = map[string]string{
	"AAPL":  "Technology",
	"MSFT":  "Technology",
	"GOOGL": "Technology",
	"AMZN":  "Consumer Discretionary",
	"TSLA":  "Consumer Discretionary",
	"NVDA":  "Technology",
	"META":  "Technology",
	"JPM":   "Financial Services",
	"JNJ":   "Healthcare",
	"V":     "Financial Services",
	"PG":    "Consumer Staples",
	"UNH":   "Healthcare",
	"HD":    "Consumer Discretionary",
	"MA":    "Financial Services",
	"BAC":   "Financial Services",
	"XOM":   "Energy",
	"CVX":   "Energy",
	"WMT":   "Consumer Staples",
	"KO":    "Consumer Staples",
	"PFE":   "Healthcare",
	"ABBV":  "Healthcare",
	"TMO":   "Healthcare",
	"COST":  "Consumer Staples",
	"AVGO":  "Technology",
	"NKE":   "Consumer Discretionary",
	"CRM":   "Technology",
	"NFLX":  "Communication Services",
	"ADBE":  "Technology",
	"PYPL":  "Financial Services",
	"INTC":  "Technology",
	"CMCSA": "Communication Services",
	"VZ":    "Communication Services",
	"T":     "Communication Services",
	"DIS":   "Communication Services",
	"ORCL":  "Technology",
	"IBM":   "Technology",
	"QCOM":  "Technology",
	"AMD":   "Technology",
}

const otherSector = "Other"

var sectorColors = map[string]string{
	"Technology":             "#3B82F6",
	"Healthcare":             "#10B981",
	"Financial Services":     "#F59E0B",
	"Consumer Discretionary": "#EF4444",
	"Consumer Staples":       "#8B5CF6",
	"Energy":                 "#F97316",
	"Communication Services": "#06B6D4",
	"Industrials":            "#84CC16",
	"Materials":              "#6B7280",
	"Real Estate":            "#EC4899",
	"Utilities":              "#14B8A6",
	"Other":                  "#9CA3AF",
}

// Sector maps a symbol to its sector.
func Sector(symbol string) string {
	if s, ok := sectorMap[symbol]; ok {
		return s
	}
	return otherSector
}

func sectorColor(sector string) string {
	if c, ok := sectorColors[sector]; ok {
		return c
	}
	return sectorColors[otherSector]
}
