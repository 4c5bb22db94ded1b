package news

import (
	"sort"
	"strings"
	"time"
)

// Category is one of the closed set of canonical article categories.
type Category string

const (
	CategoryAI       Category = "ai"
	CategoryStartups Category = "startups"
	CategoryDev      Category = "dev"
	CategoryProduct  Category = "product"
	CategoryResearch Category = "research"
)

// DefaultCategory is used when neither the summarizer, the feed config nor
// the keyword classifier produced a category.
const DefaultCategory = CategoryDev

// Categories lists the canonical categories in display order.
var Categories = []Category{CategoryAI, CategoryStartups, CategoryDev, CategoryProduct, CategoryResearch}

// Older ingestion runs stored these names.
var legacyAliases = map[string]Category{
	"startup": CategoryStartups,
	"science": CategoryResearch,
	"space":   CategoryResearch,
	"design":  CategoryProduct,
}

// ParseCategory accepts canonical and legacy names, case-insensitively.
func ParseCategory(s string) (Category, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if c := Category(s); c.Valid() {
		return c, true
	}
	if c, ok := legacyAliases[s]; ok {
		return c, true
	}
	return "", false
}

// Valid reports whether c is canonical.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// StoredNames returns every name under which rows of category c may be
// stored, the canonical one first.
func (c Category) StoredNames() []string {
	var legacy []string
	for name, canonical := range legacyAliases {
		if canonical == c {
			legacy = append(legacy, name)
		}
	}
	sort.Strings(legacy)
	return append([]string{string(c)}, legacy...)
}

// Article is a persisted news item. Body is omitted from list queries.
type Article struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Summary     string    `json:"summary"`
	Body        string    `json:"body,omitempty"`
	Category    Category  `json:"category"`
	Companies   []string  `json:"companies"`
	Source      string    `json:"source"`
	SourceURL   string    `json:"sourceUrl"`
	ImageURL    string    `json:"imageUrl,omitempty"`
	PublishedAt time.Time `json:"publishedAt"`
	CreatedAt   time.Time `json:"createdAt"`

	// Filled asynchronously by enrichment, never read by scoring.
	TranslatedTitle   string `json:"translatedTitle,omitempty"`
	TranslatedSummary string `json:"translatedSummary,omitempty"`
	TranslationLang   string `json:"translationLang,omitempty"`
}

// Text is the title and summary joined by a space, the input of every
// keyword and company match.
func (a Article) Text() string {
	return a.Title + " " + a.Summary
}

// MaxKeywords bounds UserInterests.Keywords.
const MaxKeywords = 10

// UserInterests is one reader's interest profile.
type UserInterests struct {
	Categories []Category `json:"categories"`
	Keywords   []string   `json:"keywords"`
	Companies  []string   `json:"companies"`
}

// HasSpecificInterests reports whether any keyword or company is tracked.
func (u UserInterests) HasSpecificInterests() bool {
	return len(u.Keywords) > 0 || len(u.Companies) > 0
}

// HasCategory reports whether c is one of the profile's categories.
func (u UserInterests) HasCategory(c Category) bool {
	for _, uc := range u.Categories {
		if uc == c {
			return true
		}
	}
	return false
}

// Normalize maps legacy category names, lowercases company slugs, drops
// blank keywords and caps keywords at MaxKeywords.
func (u UserInterests) Normalize() UserInterests {
	var out UserInterests
	seen := map[Category]bool{}
	for _, c := range u.Categories {
		if pc, ok := ParseCategory(string(c)); ok && !seen[pc] {
			seen[pc] = true
			out.Categories = append(out.Categories, pc)
		}
	}
	for _, k := range u.Keywords {
		if k = strings.TrimSpace(k); k != "" && len(out.Keywords) < MaxKeywords {
			out.Keywords = append(out.Keywords, k)
		}
	}
	for _, c := range u.Companies {
		if c = strings.ToLower(strings.TrimSpace(c)); c != "" {
			out.Companies = append(out.Companies, c)
		}
	}
	return out
}

// ScoredArticle is an Article scored for one profile at one point in time.
type ScoredArticle struct {
	Article
	Score int `json:"score"`
}
