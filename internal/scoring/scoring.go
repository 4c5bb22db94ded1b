// Package scoring computes the 0-100 importance score of an article for one
// reader's interest profile.
//
// The weights below are part of the observable contract: changing any of
// them changes feed composition and must come with updated tests.
package scoring

import (
	"strings"

	"github.com/deusflow/technews/internal/companies"
	"github.com/deusflow/technews/internal/news"
)

const (
	CategoryWeight     = 15
	KeywordWeight      = 20
	KeywordCap         = 40
	CompanyBase        = 40
	CompanyStep        = 5
	CompanyCap         = 45
	Tier1Boost         = 10
	EventBoost         = 10
	CrossSignalBonus   = 15
	MultiSourceMinSize = 3

	// Threshold gates inclusion in My Feed when the reader tracks keywords or companies.
	Threshold = 40

	MaxScore = 100
)

var fundingKeywords = []string{
	"series a", "series b", "series c", "series d", "seed round", "pre-seed",
	"funding round", "raised $", "acquisition", "acquired by", "merger", "ipo", "unicorn status",
}

var launchKeywords = []string{
	"launches", "launched today", "now available", "introduces", "unveils", "releasing",
	"general availability", "public beta", "open source",
}

// Breakdown is the per-factor result of Score, useful for debugging feeds.
type Breakdown struct {
	Category    int
	Keyword     int
	Company     int
	Tier1       int
	Event       int
	CrossSignal int
	Penalized   bool
	Boosted     bool
	Total       int
}

// Score returns the importance of a for interests, given the size of the
// cluster a belongs to (1 when unclustered).
func Score(a news.Article, interests news.UserInterests, clusterSize int) int {
	return Explain(a, interests, clusterSize).Total
}

// Explain computes Score and keeps every factor.
func Explain(a news.Article, interests news.UserInterests, clusterSize int) Breakdown {
	var b Breakdown
	text := strings.ToLower(a.Text())

	categoryMatched := interests.HasCategory(a.Category)
	if categoryMatched {
		b.Category = CategoryWeight
	}

	if n := countKeywordMatches(text, interests.Keywords); n > 0 {
		b.Keyword = min(n*KeywordWeight, KeywordCap)
	}

	// Text extraction stands in for empty stored companies, but only for
	// readers who track companies.
	var extracted []string
	extractedDone := false
	articleCompanies := func() []string {
		if len(a.Companies) > 0 || len(interests.Companies) == 0 {
			return a.Companies
		}
		if !extractedDone {
			extracted = companies.Extract(text)
			extractedDone = true
		}
		return extracted
	}

	if len(interests.Companies) > 0 {
		if m := intersectCount(articleCompanies(), interests.Companies); m > 0 {
			b.Company = min(CompanyBase+(m-1)*CompanyStep, CompanyCap)
		}
	}

	if categoryMatched {
		if companies.IsTier1(articleCompanies()) {
			b.Tier1 = Tier1Boost
		}
		if containsAny(text, fundingKeywords) || containsAny(text, launchKeywords) {
			b.Event = EventBoost
		}
	}

	score := b.Category + b.Keyword + b.Company + b.Tier1 + b.Event

	if b.Keyword > 0 && b.Company > 0 {
		b.CrossSignal = CrossSignalBonus
		score += CrossSignalBonus
	}

	if interests.HasSpecificInterests() && b.Keyword == 0 && b.Company == 0 {
		b.Penalized = true
		score = score / 2
	}

	if clusterSize >= MultiSourceMinSize {
		b.Boosted = true
		score = min(score*11/10, MaxScore)
	}

	b.Total = max(0, min(score, MaxScore))
	return b
}

// MatchesUserInterests is the cheap pre-filter applied before scoring. It
// is necessary but not sufficient for inclusion.
func MatchesUserInterests(a news.Article, interests news.UserInterests) bool {
	if !interests.HasCategory(a.Category) {
		return false
	}
	if !interests.HasSpecificInterests() {
		return true
	}
	text := strings.ToLower(a.Text())
	if countKeywordMatches(text, interests.Keywords) > 0 {
		return true
	}
	if len(interests.Companies) == 0 {
		return false
	}
	found := a.Companies
	if len(found) == 0 {
		found = companies.Extract(text)
	}
	return intersectCount(found, interests.Companies) > 0
}

// Included reports whether a scored article passes the My Feed threshold.
// Category-only readers see every category match regardless of score.
func Included(score int, interests news.UserInterests) bool {
	if !interests.HasSpecificInterests() {
		return true
	}
	return score >= Threshold
}

func countKeywordMatches(lowerText string, keywords []string) int {
	n := 0
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" && strings.Contains(lowerText, k) {
			n++
		}
	}
	return n
}

func intersectCount(have, want []string) int {
	set := make(map[string]struct{}, len(have))
	for _, h := range have {
		set[strings.ToLower(h)] = struct{}{}
	}
	n := 0
	seen := map[string]bool{}
	for _, w := range want {
		w = strings.ToLower(w)
		if _, ok := set[w]; ok && !seen[w] {
			seen[w] = true
			n++
		}
	}
	return n
}

func containsAny(text string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}
