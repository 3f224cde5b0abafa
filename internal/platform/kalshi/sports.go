package kalshi

import "strings"

var sportsKeywords = []string{
	"nfl", "nba", "mlb", "nhl", "soccer", "tennis", "golf", "ufc", "mma",
	"sport", "f1", "nascar", "boxing", "college football", "ncaa",
}

var sportsTitleTerms = []string{
	"wins by", "points scored", "goals scored", "passing yards", "rushing yards", "touchdown",
}

// IsSportsMarket is a keyword heuristic over category, ticker, series,
// tags and title. The API has no sports filter of its own.
func IsSportsMarket(m *KalshiMarket) bool {
	category := strings.ToLower(m.Category)
	if category == "sports" {
		return true
	}

	ticker := strings.ToUpper(m.Ticker)
	if strings.Contains(ticker, "SPORT") {
		return true
	}
	for _, k := range sportsKeywords {
		if strings.Contains(ticker, strings.ToUpper(k)) {
			return true
		}
	}

	series := strings.ToLower(m.SeriesTicker)
	for _, k := range sportsKeywords {
		if strings.Contains(series, k) || strings.Contains(category, k) {
			return true
		}
		for _, tag := range m.Tags {
			if strings.Contains(strings.ToLower(tag), k) {
				return true
			}
		}
	}

	title := strings.ToLower(m.Title)
	for _, term := range sportsTitleTerms {
		if strings.Contains(title, term) {
			return true
		}
	}
	return false
}
