package assistant

import (
	"sort"
	"strings"
)

// route binds an agent to the keywords that select it. Routing is a
// pure function over this table; adding an agent means adding a row.
type route struct {
	Agent    string
	Keywords []string
}

var routes = []route{
	{Agent: "portfolio", Keywords: []string{"portfolio", "allocation", "diversification", "rebalancing", "performance", "analyze", "holdings", "investment"}},
	{Agent: "research", Keywords: []string{"stock", "company", "analysis", "research", "valuation", "earnings"}},
	{Agent: "support", Keywords: []string{"help", "problem", "issue", "error", "bug", "support"}},
	{Agent: "suggestion", Keywords: []string{"suggest", "recommend", "advice", "should i", "what about"}},
	{Agent: "navigation", Keywords: []string{"where", "find", "how do i", "navigate", "locate"}},
	{Agent: "alerts", Keywords: []string{"alert", "notification", "notify", "monitor", "track price"}},
	{Agent: "education", Keywords: []string{"learn", "explain", "understand", "what is", "how does"}},
}

var greetings = []string{"hello", "hi", "hey", "thanks", "thank you", "goodbye", "bye"}

const (
	masterAgent        = "master"
	baseConfidence     = 0.8
	perKeywordBoost    = 0.05
	maxConfidence      = 0.95
	fallbackConfidence = 0.6
)

// Match is one candidate agent for a query.
type Match struct {
	Agent      string  `json:"agent"`
	Confidence float64 `json:"confidence"`
}

// Classify ranks the agents able to serve a query. Greetings and
// queries matching no keyword fall back to the master agent.
func Classify(message string) []Match {
	lower := strings.ToLower(message)

	for _, g := range greetings {
		if strings.Contains(lower, g) {
			return []Match{{Agent: masterAgent, Confidence: baseConfidence}}
		}
	}

	matches := make([]Match, 0, len(routes))
	for _, r := range routes {
		hits := 0
		for _, kw := range r.Keywords {
			if strings.Contains(lower, kw) {
				hits++
			}
		}
		if hits == 0 {
			continue
		}
		confidence := baseConfidence + float64(hits)*perKeywordBoost
		if confidence > maxConfidence {
			confidence = maxConfidence
		}
		matches = append(matches, Match{Agent: r.Agent, Confidence: confidence})
	}

	if len(matches) == 0 {
		return []Match{{Agent: masterAgent, Confidence: fallbackConfidence}}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Confidence > matches[j].Confidence
	})
	return matches
}
