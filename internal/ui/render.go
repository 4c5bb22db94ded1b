package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/deusflow/technews/internal/feed"
	"github.com/deusflow/technews/internal/metrics"
)

// RenderFeed writes the weekly feed; empty weeks are listed dimmed.
func RenderFeed(w io.Writer, weeks []feed.WeekBucket) error {
	var b strings.Builder
	total := 0
	for _, wk := range weeks {
		total += wk.TotalItems
	}
	b.WriteString(HeaderStyle.Render(fmt.Sprintf("My Feed · %d articles", total)))
	b.WriteString("\n\n")

	for _, wk := range weeks {
		if len(wk.Clusters) == 0 {
			b.WriteString(DimStyle.Render(wk.Label + " · nothing new"))
			b.WriteString("\n")
			continue
		}
		b.WriteString(SectionStyle.Render(fmt.Sprintf("%s · %d", wk.Label, wk.TotalItems)))
		b.WriteString("\n")
		for _, c := range wk.Clusters {
			rep := c.Representative
			b.WriteString(fmt.Sprintf("%s %s\n",
				ScoreStyle.Render(fmt.Sprintf("[%3d]", rep.Score)),
				TitleStyle.Render(rep.Title)))
			meta := []string{string(rep.Category), rep.PublishedAt.Format("Jan 2 15:04")}
			if rep.Source != "" {
				meta = append([]string{rep.Source}, meta...)
			}
			if len(rep.Companies) > 0 {
				meta = append(meta, strings.Join(rep.Companies, ", "))
			}
			b.WriteString("      " + SourceStyle.Render(strings.Join(meta, " · ")) + "\n")
			b.WriteString("      " + LinkStyle.Render(rep.SourceURL) + "\n")
			for _, r := range c.Related {
				b.WriteString(RelatedStyle.Render("+ "+r.Title) + "\n")
			}
		}
		b.WriteString("\n")
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// RenderRun writes a one-screen summary of an ingestion run.
func RenderRun(w io.Writer, s metrics.RunStats, sourceErrors []string) error {
	var b strings.Builder
	b.WriteString(HeaderStyle.Render("Ingestion run"))
	b.WriteString("\n")
	rows := []struct {
		name string
		n    int
	}{
		{"fetched", s.Fetched},
		{"accepted", s.Accepted},
		{"inserted", s.Inserted},
		{"duplicates", s.Duplicates},
		{"skipped (malformed)", s.SkippedMalformed},
		{"skipped (invalid)", s.SkippedInvalid},
		{"AI summaries", s.AISummaries},
		{"fallback summaries", s.AIFallbacks},
		{"telegram posts", s.TelegramPosts},
	}
	for _, r := range rows {
		b.WriteString(fmt.Sprintf("  %-20s %s\n", r.name, SuccessStyle.Render(fmt.Sprint(r.n))))
	}
	for _, e := range sourceErrors {
		b.WriteString("  " + ErrorStyle.Render("✗ "+e) + "\n")
	}
	_, err := io.WriteString(w, b.String())
	return err
}
