// Package companies holds the single company-detection table shared by
// ingestion, scoring and backfill.
package companies

import (
	"regexp"
	"sort"
	"strings"
)

// TableVersion changes whenever a slug or pattern below changes, because the
// table decides user-visible feed composition.
const TableVersion = 1

type pattern struct {
	slug string
	re   *regexp.Regexp
	// RE2 has no lookahead; a match followed by one of these is ignored.
	notFollowedBy []string
}

func p(slug, expr string, notFollowedBy ...string) pattern {
	return pattern{slug: slug, re: regexp.MustCompile(`(?i)` + expr), notFollowedBy: notFollowedBy}
}

var table = []pattern{
	p("openai", `\bopenai\b|\bchatgpt\b|\bgpt-[0-9o]`),
	p("anthropic", `\banthropic\b|\bclaude\b`, " shannon", " monet", " debussy"),
	p("google", `\bgoogle\b|\bgemini\b|\balphabet\b`, " docs", " maps", " search results"),
	p("microsoft", `\bmicrosoft\b|\bcopilot\b|\bazure\b`),
	p("meta", `\bmeta\b|\bllama\b`, "-analysis", " analysis", " description", " tag"),
	p("nvidia", `\bnvidia\b`),
	p("xai", `\bxai\b|\bgrok\b`),
	p("mistral", `\bmistral\b`, " wind"),
	p("apple", `\bapple\b`, " pie", " juice", " cider", " tree", " orchard"),
	p("amazon", `\bamazon\b|\baws\b`, " rainforest", " river", " basin"),
	p("tesla", `\btesla\b`, " coil", " unit"),
	p("deepmind", `\bdeepmind\b`),
	p("huggingface", `\bhugging ?face\b`),
	p("perplexity", `\bperplexity\b`, " score", " metric", " of the"),
	p("cursor", `\bcursor\b`, " position", " movement", " blink", " key", " over"),
	p("github", `\bgithub\b`),
	p("slack", `\bslack\b`, " off", " water", " tide", " jaw"),
	p("samsung", `\bsamsung\b`),
	p("intel", `\bintel\b`, " report", " gathering", " agency", " community"),
	p("amd", `\bamd\b`),
	p("stripe", `\bstripe\b`),
	p("figma", `\bfigma\b`),
	p("vercel", `\bvercel\b`),
	p("databricks", `\bdatabricks\b`),
}

// Tier1 is the set of companies whose news is boosted inside a matching category.
var Tier1 = map[string]struct{}{
	"openai":    {},
	"anthropic": {},
	"google":    {},
	"microsoft": {},
	"meta":      {},
	"nvidia":    {},
	"xai":       {},
	"mistral":   {},
}

// Slugs returns every known company slug in table order.
func Slugs() []string {
	out := make([]string, 0, len(table))
	for _, pt := range table {
		out = append(out, pt.slug)
	}
	return out
}

// Known reports whether slug is in the table.
func Known(slug string) bool {
	for _, pt := range table {
		if pt.slug == slug {
			return true
		}
	}
	return false
}

// Extract returns the sorted slugs of every company mentioned in text.
func Extract(text string) []string {
	lower := strings.ToLower(text)
	var found []string
	for _, pt := range table {
		if pt.matches(lower) {
			found = append(found, pt.slug)
		}
	}
	sort.Strings(found)
	return found
}

// ExtractFrom applies Extract to title and summary joined by a space.
func ExtractFrom(title, summary string) []string {
	return Extract(title + " " + summary)
}

func (pt pattern) matches(lower string) bool {
	for _, loc := range pt.re.FindAllStringIndex(lower, -1) {
		if !pt.excluded(lower[loc[1]:]) {
			return true
		}
	}
	return false
}

func (pt pattern) excluded(rest string) bool {
	for _, suffix := range pt.notFollowedBy {
		if strings.HasPrefix(rest, suffix) {
			return true
		}
	}
	return false
}

// IsTier1 reports whether any slug belongs to the Tier-1 set.
func IsTier1(slugs []string) bool {
	for _, s := range slugs {
		if _, ok := Tier1[s]; ok {
			return true
		}
	}
	return false
}
