package companies

import (
	"reflect"
	"testing"
)

func TestExtract(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		want []string
	}{
		{"single", "OpenAI launches GPT-5", []string{"openai"}},
		{"multiple sorted", "Nvidia and Microsoft expand Azure deal", []string{"microsoft", "nvidia"}},
		{"apple pie excluded", "Grandma's apple pie recipe", nil},
		{"apple company", "Apple unveils Vision Pro 2", []string{"apple"}},
		{"apple pie then company", "apple pie at the Apple keynote", []string{"apple"}},
		{"metadata excluded", "Parsing metadata from images", nil},
		{"meta prefix word", "Meta releases Llama 4", []string{"meta"}},
		{"meta analysis excluded", "A meta-analysis of sleep studies", nil},
		{"cursor position excluded", "Fixing cursor position bugs in terminals", nil},
		{"cursor editor", "Cursor raises series C", []string{"cursor"}},
		{"slack off excluded", "Don't slack off on tests", nil},
		{"slack company", "Slack adds AI huddles", []string{"slack"}},
		{"meta tag excluded", "Add an og meta tag to every page", nil},
		{"metaverse is not meta", "The metaverse hype fades", nil},
		{"stripe plural excluded", "Zebra stripes and striped shirts", nil},
		{"stripe company", "Stripe launches stablecoin accounts", []string{"stripe"}},
		{"hugging face spaced", "Hugging Face hub outage", []string{"huggingface"}},
		{"case insensitive", "ANTHROPIC SHIPS CLAUDE", []string{"anthropic"}},
		{"empty", "", nil},
	}
	for _, tt := range tests {
		got := Extract(tt.text)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("%s: Extract(%q) = %v, want %v", tt.name, tt.text, got, tt.want)
		}
	}
}

func TestExtractFrom(t *testing.T) {
	t.Parallel()

	got := ExtractFrom("Funding news", "Mistral raised $600M")
	if !reflect.DeepEqual(got, []string{"mistral"}) {
		t.Fatalf("ExtractFrom = %v", got)
	}
}

func TestTier1(t *testing.T) {
	t.Parallel()

	if len(Tier1) != 8 {
		t.Fatalf("Tier1 size = %d, want 8", len(Tier1))
	}
	for slug := range Tier1 {
		if !Known(slug) {
			t.Errorf("tier-1 slug %q missing from table", slug)
		}
	}
	if !IsTier1([]string{"apple", "nvidia"}) {
		t.Error("expected nvidia to be tier-1")
	}
	if IsTier1([]string{"apple", "stripe"}) {
		t.Error("apple/stripe are not tier-1")
	}
}

func TestSlugsUnique(t *testing.T) {
	t.Parallel()

	seen := map[string]bool{}
	for _, s := range Slugs() {
		if seen[s] {
			t.Fatalf("duplicate slug %q", s)
		}
		seen[s] = true
	}
	if len(seen) < 20 || len(seen) > 25 {
		t.Fatalf("table has %d slugs", len(seen))
	}
}

func TestExclusionsCanFollowMatch(t *testing.T) {
	t.Parallel()

	// Patterns with exclusions end on a word boundary, so a suffix starting with a
	// word character could never be seen.
	for _, pt := range table {
		for _, suffix := range pt.notFollowedBy {
			if suffix == "" || isWordByte(suffix[0]) {
				t.Errorf("%s: exclusion %q can never follow a match", pt.slug, suffix)
			}
		}
	}
}

func isWordByte(b byte) bool {
	return b == '_' || b >= '0' && b <= '9' || b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z'
}
