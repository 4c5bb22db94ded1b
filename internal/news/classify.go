package news

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var categoryKeywords = map[Category][]string{
	CategoryAI: {
		"ai", "artificial intelligence", "machine learning", "deep learning", "llm",
		"large language model", "neural", "gpt", "chatbot", "generative", "agi",
		"openai", "anthropic", "gemini", "claude",
	},
	CategoryStartups: {
		"startup", "funding", "series a", "series b", "series c", "seed round", "venture",
		"vc", "raised", "valuation", "acquisition", "ipo", "founder", "unicorn", "y combinator",
	},
	CategoryDev: {
		"developer", "programming", "open source", "github", "api", "sdk", "framework",
		"compiler", "rust", "golang", "python", "javascript", "typescript", "kubernetes",
		"database", "release notes", "library", "devops",
	},
	CategoryProduct: {
		"product", "launch", "feature", "app", "design", "ux", "user interface", "iphone",
		"pricing", "subscription", "rollout",
	},
	CategoryResearch: {
		"research", "paper", "study", "scientists", "arxiv", "breakthrough", "quantum",
		"space", "nasa", "physics", "biology", "experiment",
	},
}

var wordREs = map[string]*regexp.Regexp{}

func init() {
	for _, kws := range categoryKeywords {
		for _, k := range kws {
			if isShortWord(k) {
				wordREs[k] = regexp.MustCompile(`\b` + regexp.QuoteMeta(k) + `\b`)
			}
		}
	}
}

func isShortWord(k string) bool {
	return !strings.Contains(k, " ") && len(k) <= 3
}

// matchKeyword matches phrases and long words as substrings and short words
// (3 letters or fewer) on word boundaries, so "ai" does not match "said".
func matchKeyword(lower, k string) bool {
	if re, ok := wordREs[k]; ok {
		return re.MatchString(lower)
	}
	if isShortWord(k) {
		return regexp.MustCompile(`\b` + regexp.QuoteMeta(k) + `\b`).MatchString(lower)
	}
	return strings.Contains(lower, k)
}

// Classify picks the category with the most keyword hits in title and
// summary. Ties go to the earlier category in Categories. ok is false when
// nothing matched.
func Classify(title, summary string) (c Category, ok bool) {
	lower := strings.ToLower(title + " " + summary)
	best := 0
	for _, cat := range Categories {
		hits := 0
		for _, k := range categoryKeywords[cat] {
			if matchKeyword(lower, k) {
				hits++
			}
		}
		if hits > best {
			best, c = hits, cat
		}
	}
	return c, best > 0
}

const (
	minSentenceLen   = 25
	summaryTargetLen = 100
	summaryMaxLen    = 250
	summaryEllipsis  = "..."
)

// FallbackSummary extracts the first meaningful sentences of body, aiming
// for 100 to 250 characters. It is used whenever no AI provider answered.
func FallbackSummary(body string) string {
	body = strings.Join(strings.Fields(body), " ")
	if body == "" {
		return ""
	}

	var b strings.Builder
	for _, s := range splitSentences(body) {
		if utf8.RuneCountInString(s) < minSentenceLen {
			continue
		}
		n := utf8.RuneCountInString(b.String())
		if n > 0 && n+1+utf8.RuneCountInString(s) > summaryMaxLen {
			break
		}
		if n > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(s)
		if n+utf8.RuneCountInString(s) >= summaryTargetLen {
			break
		}
	}

	out := b.String()
	if out == "" || utf8.RuneCountInString(out) > summaryMaxLen {
		if out == "" {
			out = body
		}
		return Truncate(out, summaryMaxLen)
	}
	return out
}

func splitSentences(text string) []string {
	var out []string
	start := 0
	runes := []rune(text)
	for i, r := range runes {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if i+1 < len(runes) && runes[i+1] != ' ' {
			continue
		}
		if s := strings.TrimSpace(string(runes[start : i+1])); s != "" {
			out = append(out, s)
		}
		start = i + 1
	}
	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		out = append(out, s)
	}
	return out
}

// Truncate shortens s to at most max runes, cutting at a word boundary and
// appending "..." when anything was removed.
func Truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	limit := max - len(summaryEllipsis)
	if limit < 1 {
		return string(runes[:max])
	}
	cut := string(runes[:limit])
	if i := strings.LastIndex(cut, " "); i > len(cut)/2 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " ,;:") + summaryEllipsis
}
