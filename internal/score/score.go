// Package score rates videos on views, recency, and topical keywords,
// and maps the weighted score onto the S/A/B rank tiers.
package score

import (
	"math"
	"strings"
	"time"
)

// Core keywords signal directly relevant content, secondary keywords signal
// useful but generic formats.
var (
	CoreKeywords      = []string{"AIPCon", "Foundrycon", "Paragon", "Pipeline", "AIP", "Foundry", "Gotham", "Apollo"}
	SecondaryKeywords = []string{"Demo", "Tutorial", "Workshop", "Case Study", "Bootcamp", "How to", "Guide"}
)

// Weights of the three components, summing to 1.
const (
	WeightViews    = 0.4
	WeightRecency  = 0.3
	WeightKeywords = 0.3
)

// MatchKeywords reports whether the title or description mentions any keyword,
// and which ones.
func MatchKeywords(title, description string) (bool, []string) {
	text := strings.ToLower(title + " " + description)

	var matched []string
	for _, kw := range CoreKeywords {
		if strings.Contains(text, strings.ToLower(kw)) {
			matched = append(matched, kw)
		}
	}
	for _, kw := range SecondaryKeywords {
		if strings.Contains(text, strings.ToLower(kw)) {
			matched = append(matched, kw)
		}
	}
	return len(matched) > 0, matched
}

// ViewScore maps the view count onto tiers, which avoids a long tail of
// high-view outliers dominating the score.
func ViewScore(views int) float64 {
	switch {
	case views >= 100_000:
		return 100
	case views >= 50_000:
		return 80
	case views >= 20_000:
		return 60
	default:
		return 40
	}
}

// RecencyScore favors recent uploads. A zero time means the publish date is
// unknown and gets the neutral default.
func RecencyScore(published time.Time) float64 {
	if published.IsZero() {
		return 40
	}

	switch year := published.Year(); {
	case year >= 2025:
		return 100
	case year == 2024:
		if published.Month() >= time.July {
			return 80
		}
		return 60
	default:
		return 30
	}
}

// KeywordScore rates topical relevance: any core keyword outweighs any number
// of secondary ones.
func KeywordScore(title, description string) float64 {
	text := strings.ToLower(title + " " + description)

	for _, kw := range CoreKeywords {
		if strings.Contains(text, strings.ToLower(kw)) {
			return 100
		}
	}
	for _, kw := range SecondaryKeywords {
		if strings.Contains(text, strings.ToLower(kw)) {
			return 70
		}
	}
	return 40
}

// Score combines the components into the 0-100 total, rounded to 2 decimals.
func Score(views int, published time.Time, title, description string) float64 {
	total := ViewScore(views)*WeightViews +
		RecencyScore(published)*WeightRecency +
		KeywordScore(title, description)*WeightKeywords
	return math.Round(total*100) / 100
}

// Rank tiers.
const (
	RankS = "S"
	RankA = "A"
	RankB = "B"
)

func Rank(score float64) string {
	switch {
	case score >= 85:
		return RankS
	case score >= 70:
		return RankA
	default:
		return RankB
	}
}

// RankDescription is the long form shown on artifacts.
func RankDescription(rank string) string {
	switch rank {
	case RankS:
		return "Strategic - 战略级研究对象"
	case RankA:
		return "Active - 高参考价值"
	case RankB:
		return "Basic - 基础背景资料"
	default:
		return "Unknown"
	}
}
