// Package syndication renders the RSS 2.0 feed and the Google News sitemap
// from the most recent stored articles.
package syndication

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/deusflow/technews/internal/news"
	"github.com/deusflow/technews/internal/storage"
)

const (
	RSSItems     = 50
	SitemapItems = 1000

	RSSFile     = "rss.xml"
	SitemapFile = "sitemap.xml"

	newsNS    = "http://www.google.com/schemas/sitemap-news/0.9"
	sitemapNS = "http://www.sitemaps.org/schemas/sitemap/0.9"
)

// Channel describes the publication.
type Channel struct {
	Title       string `yaml:"title"`
	Link        string `yaml:"link"`
	Description string `yaml:"description"`
	Language    string `yaml:"language"`
}

type rssDoc struct {
	XMLName xml.Name   `xml:"rss"`
	Version string     `xml:"version,attr"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title         string    `xml:"title"`
	Link          string    `xml:"link"`
	Description   string    `xml:"description"`
	Language      string    `xml:"language,omitempty"`
	LastBuildDate string    `xml:"lastBuildDate"`
	Items         []rssItem `xml:"item"`
}

type rssItem struct {
	Title       string        `xml:"title"`
	Link        string        `xml:"link"`
	GUID        rssGUID       `xml:"guid"`
	Description string        `xml:"description"`
	Category    string        `xml:"category,omitempty"`
	PubDate     string        `xml:"pubDate"`
	Enclosure   *rssEnclosure `xml:"enclosure,omitempty"`
}

type rssGUID struct {
	IsPermaLink bool   `xml:"isPermaLink,attr"`
	Value       string `xml:",chardata"`
}

type rssEnclosure struct {
	URL    string `xml:"url,attr"`
	Type   string `xml:"type,attr"`
	Length int    `xml:"length,attr"`
}

// RSS renders up to RSSItems articles, newest first.
func RSS(ch Channel, articles []news.Article, now time.Time) ([]byte, error) {
	articles = newest(articles, RSSItems)
	doc := rssDoc{
		Version: "2.0",
		Channel: rssChannel{
			Title:         ch.Title,
			Link:          ch.Link,
			Description:   ch.Description,
			Language:      ch.Language,
			LastBuildDate: now.UTC().Format(time.RFC1123Z),
		},
	}
	for _, a := range articles {
		item := rssItem{
			Title:       a.Title,
			Link:        a.SourceURL,
			GUID:        rssGUID{IsPermaLink: true, Value: a.SourceURL},
			Description: a.Summary,
			Category:    string(a.Category),
			PubDate:     a.PublishedAt.UTC().Format(time.RFC1123Z),
		}
		if a.ImageURL != "" {
			item.Enclosure = &rssEnclosure{URL: a.ImageURL, Type: imageType(a.ImageURL)}
		}
		doc.Channel.Items = append(doc.Channel.Items, item)
	}
	return marshal(doc)
}

type urlSet struct {
	XMLName xml.Name     `xml:"urlset"`
	NS      string       `xml:"xmlns,attr"`
	NewsNS  string       `xml:"xmlns:news,attr"`
	URLs    []sitemapURL `xml:"url"`
}

type sitemapURL struct {
	Loc  string      `xml:"loc"`
	News sitemapNews `xml:"news:news"`
}

type sitemapNews struct {
	Publication     publication `xml:"news:publication"`
	PublicationDate string      `xml:"news:publication_date"`
	Title           string      `xml:"news:title"`
}

type publication struct {
	Name     string `xml:"news:name"`
	Language string `xml:"news:language"`
}

// Sitemap renders up to SitemapItems articles as a Google News sitemap.
func Sitemap(ch Channel, articles []news.Article) ([]byte, error) {
	articles = newest(articles, SitemapItems)
	set := urlSet{NS: sitemapNS, NewsNS: newsNS}
	for _, a := range articles {
		set.URLs = append(set.URLs, sitemapURL{
			Loc: a.SourceURL,
			News: sitemapNews{
				Publication:     publication{Name: ch.Title, Language: ch.Language},
				PublicationDate: a.PublishedAt.UTC().Format(time.RFC3339),
				Title:           a.Title,
			},
		})
	}
	return marshal(set)
}

func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("encode xml: %w", err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// newest returns at most n articles ordered by PublishedAt descending
// without modifying the input.
func newest(articles []news.Article, n int) []news.Article {
	out := append([]news.Article(nil), articles...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].PublishedAt.After(out[j].PublishedAt) })
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func imageType(u string) string {
	switch filepath.Ext(u) {
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}

// Writer regenerates both files in Dir from a store.
type Writer struct {
	Dir     string
	Channel Channel
	store   storage.ArticleStore
	log     *slog.Logger
}

func NewWriter(dir string, ch Channel, store storage.ArticleStore, log *slog.Logger) *Writer {
	if log == nil {
		log = slog.Default()
	}
	return &Writer{Dir: dir, Channel: ch, store: store, log: log.With("component", "syndication")}
}

// Generate writes rss.xml and sitemap.xml. Each file is replaced
// atomically.
func (w *Writer) Generate(ctx context.Context, now time.Time) error {
	page, err := w.store.Query(ctx, storage.Filter{}, SitemapItems)
	if err != nil {
		return fmt.Errorf("query recent articles: %w", err)
	}
	rss, err := RSS(w.Channel, page.Items, now)
	if err != nil {
		return err
	}
	sitemap, err := Sitemap(w.Channel, page.Items)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if err := writeAtomic(filepath.Join(w.Dir, RSSFile), rss); err != nil {
		return err
	}
	if err := writeAtomic(filepath.Join(w.Dir, SitemapFile), sitemap); err != nil {
		return err
	}
	w.log.Info("syndication files written", "dir", w.Dir, "items", len(page.Items))
	return nil
}

func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}
