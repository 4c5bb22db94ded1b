// Package cleaner turns feed HTML into plain text and rejects junk articles.
package cleaner

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	minTitleRunes     = 10
	minBodyRunes      = 100
	shoutingTitleSize = 20
	maxSiteSuffix     = 40
)

var (
	reScript   = regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script\s*>`)
	reStyle    = regexp.MustCompile(`(?is)<style\b[^>]*>.*?</style\s*>`)
	reBreaks   = regexp.MustCompile(`(?i)<br\s*/?>|</(?:p|div|li|h[1-6]|blockquote|tr|section|article)\s*>`)
	reTags     = regexp.MustCompile(`<[^>]*>`)
	reEntity   = regexp.MustCompile(`&(?:[a-zA-Z][a-zA-Z0-9]*|#[0-9]+|#[xX][0-9a-fA-F]+);`)
	reURL      = regexp.MustCompile(`(?i)\b(?:https?://|www\.)\S+`)
	reSpaces   = regexp.MustCompile(`[ \t\f\v\x{00A0}]+`)
	reNewlines = regexp.MustCompile(`\n{3,}`)
	reAllSpace = regexp.MustCompile(`\s+`)

	rePipeSuffix = regexp.MustCompile(`\s*\|\s*([^|]+)$`)
	reDashSuffix = regexp.MustCompile(`\s+[-–—]\s+([^|–—-]+)$`)
)

var entityReplacer = strings.NewReplacer(
	"&nbsp;", " ",
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&#39;", "'",
	"&#x27;", "'",
	"&#x2F;", "/",
)

// Each pattern removes the matched phrase and the rest of its line.
var boilerplate = compileLinePatterns(
	// ads and sponsorship
	`advertisement`,
	`\[ad\]`,
	`sponsored content`,
	`sponsored by`,
	`this post is sponsored`,
	// newsletter prompts
	`subscribe to our newsletter`,
	`sign up for our newsletter`,
	`sign up for (?:the|our) [a-z ]*newsletter`,
	`get the latest [a-z ]*in your inbox`,
	// social prompts
	`follow us on`,
	`share this article`,
	`share on (?:twitter|facebook|linkedin|x)\b`,
	`like us on facebook`,
	// cookie notices
	`we use cookies`,
	`this (?:site|website) uses cookies`,
	`cookie policy`,
	`accept (?:all )?cookies`,
	// trailers
	`read more`,
	`continue reading`,
	`read the full (?:story|article)`,
	`the post .+ appeared first on`,
	`click here to`,
	// copyright lines
	`©`,
	`\(c\) \d{4}`,
	`copyright \d{4}`,
	`all rights reserved`,
)

func compileLinePatterns(phrases ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(phrases))
	for _, p := range phrases {
		prefix := `(?im)`
		if r, _ := utf8.DecodeRuneInString(p); unicode.IsLetter(r) {
			prefix += `\b`
		}
		out = append(out, regexp.MustCompile(prefix+p+`.*$`))
	}
	return out
}

// Clean converts raw article HTML into normalised plain text.
func Clean(raw string) string {
	if raw == "" {
		return ""
	}
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = reScript.ReplaceAllString(s, "")
	s = reStyle.ReplaceAllString(s, "")
	s = reBreaks.ReplaceAllString(s, "\n")
	s = reTags.ReplaceAllString(s, "")
	s = DecodeEntities(s)
	for _, re := range boilerplate {
		s = re.ReplaceAllString(s, "")
	}
	s = reURL.ReplaceAllString(s, "")
	return normalizeWhitespace(s)
}

// CleanTitle decodes entities, drops a trailing "| Site Name" style suffix and
// collapses whitespace. It is intentionally lighter than Clean.
func CleanTitle(raw string) string {
	s := DecodeEntities(raw)
	s = strings.TrimSpace(reAllSpace.ReplaceAllString(s, " "))
	s = stripSiteSuffix(s)
	return strings.TrimSpace(reAllSpace.ReplaceAllString(s, " "))
}

func stripSiteSuffix(s string) string {
	for _, re := range []*regexp.Regexp{rePipeSuffix, reDashSuffix} {
		loc := re.FindStringSubmatchIndex(s)
		if loc == nil || loc[0] == 0 {
			continue
		}
		if utf8.RuneCountInString(s[loc[2]:loc[3]]) > maxSiteSuffix {
			continue
		}
		return s[:loc[0]]
	}
	return s
}

// DecodeEntities decodes the common HTML entities and drops any other named
// or numeric entity.
func DecodeEntities(s string) string {
	if !strings.Contains(s, "&") {
		return s
	}
	s = entityReplacer.Replace(s)
	s = reEntity.ReplaceAllStringFunc(s, func(m string) string {
		if m == "&amp;" {
			return m
		}
		return ""
	})
	return strings.ReplaceAll(s, "&amp;", "&")
}

func normalizeWhitespace(s string) string {
	s = reSpaces.ReplaceAllString(s, " ")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	s = strings.Join(lines, "\n")
	s = reNewlines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// IsValidContent reports whether an article is worth storing: a title of at
// least 10 characters, a body of at least 100, and no long all-caps title.
func IsValidContent(title, body string) bool {
	t := CleanTitle(title)
	if utf8.RuneCountInString(t) < minTitleRunes {
		return false
	}
	if utf8.RuneCountInString(Clean(body)) < minBodyRunes {
		return false
	}
	if utf8.RuneCountInString(t) > shoutingTitleSize && isShouting(t) {
		return false
	}
	return true
}

func isShouting(s string) bool {
	hasLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			hasLetter = true
			if unicode.IsLower(r) {
				return false
			}
		}
	}
	return hasLetter
}
