package report

import (
	"sort"
	"strings"

	"github.com/opslilyhuang/videoanalysis/internal/archive"
	"github.com/opslilyhuang/videoanalysis/internal/stem"
)

var stopWords = map[string]bool{
	"的": true, "了": true, "在": true, "是": true,
	"和": true, "与": true, "或": true, "等": true,
	"a": true, "an": true, "the": true, "of": true, "in": true, "on": true,
}

// RankByQuery orders the corpus by heuristic relevance to the query: stemmed
// keyword overlap dominates, then rank tier, then views with a hard cap so a
// viral video can't outrank an actual topical match.
func RankByQuery(items []*archive.Artifact, query string) []*archive.Artifact {
	words := queryWords(query)

	scored := make([]struct {
		score int
		item  *archive.Artifact
	}, len(items))
	for i, a := range items {
		text := stem.StemLine(strings.ToLower(a.Title + " " + a.Category))

		hits := 0
		for _, w := range words {
			if strings.Contains(text, w) {
				hits++
			}
		}

		views := a.Views / 10_000
		if views > 10 {
			views = 10
		}

		scored[i].score = hits*100 + rankTiers[a.Rank]*10 + views
		scored[i].item = a
	}

	sort.SliceStable(scored, func(i, k int) bool {
		return scored[i].score > scored[k].score
	})

	out := make([]*archive.Artifact, len(scored))
	for i, s := range scored {
		out[i] = s.item
	}
	return out
}

func queryWords(query string) []string {
	seen := map[string]bool{}
	var out []string
	for _, w := range stem.StemLineWords(strings.ToLower(query)) {
		if stopWords[w] || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}
