// Package api is the read-only HTTP interface: article timeline, My Feed,
// syndication files and monitoring.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/deusflow/technews/internal/feed"
	"github.com/deusflow/technews/internal/metrics"
	"github.com/deusflow/technews/internal/news"
	"github.com/deusflow/technews/internal/storage"
	"github.com/deusflow/technews/internal/syndication"
)

// FeedBuilder produces the weekly feed for a profile.
type FeedBuilder interface {
	MyFeed(ctx context.Context, interests news.UserInterests, now time.Time) ([]feed.WeekBucket, error)
}

type Server struct {
	store     storage.ArticleStore
	feeds     FeedBuilder
	outputDir string
	metrics   *metrics.Metrics
	now       func() time.Time
	log       *slog.Logger
}

func New(store storage.ArticleStore, feeds FeedBuilder, outputDir string, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		store:     store,
		feeds:     feeds,
		outputDir: outputDir,
		metrics:   metrics.Global,
		now:       time.Now,
		log:       log.With("component", "api"),
	}
}

// Router builds the gin engine with all routes.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/health", s.health)
	r.GET("/metrics", s.stats)
	r.GET("/rss.xml", s.file(syndication.RSSFile, "application/rss+xml; charset=utf-8"))
	r.GET("/sitemap.xml", s.file(syndication.SitemapFile, "application/xml; charset=utf-8"))

	v1 := r.Group("/api/v1")
	{
		v1.GET("/articles", s.listArticles)
		v1.GET("/feed", s.myFeedQuery)
		v1.POST("/feed", s.myFeedJSON)
	}
	return r
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

func (s *Server) listArticles(c *gin.Context) {
	cats, err := parseCategories(c.Query("category"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{err.Error()})
		return
	}
	f := storage.Filter{Categories: cats}
	if v := c.Query("cursor"); v != "" {
		cur, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, errorResponse{"cursor must be an RFC 3339 timestamp"})
			return
		}
		f.Cursor = cur
	}
	if v := c.Query("cursorUrl"); v != "" {
		if f.Cursor.IsZero() {
			c.JSON(http.StatusBadRequest, errorResponse{"cursorUrl requires cursor"})
			return
		}
		f.CursorURL = v
	}
	limit, err := parseLimit(c.Query("limit"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{err.Error()})
		return
	}

	page, err := s.store.Query(c.Request.Context(), f, limit)
	if err != nil {
		s.log.Error("query articles failed", "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse{"query failed"})
		return
	}
	if page.Items == nil {
		page.Items = []news.Article{}
	}
	c.JSON(http.StatusOK, page)
}

func (s *Server) myFeedQuery(c *gin.Context) {
	cats, err := parseCategories(c.Query("categories"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{err.Error()})
		return
	}
	s.myFeed(c, news.UserInterests{
		Categories: cats,
		Keywords:   splitList(c.Query("keywords")),
		Companies:  splitList(c.Query("companies")),
	})
}

func (s *Server) myFeedJSON(c *gin.Context) {
	var in news.UserInterests
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{"invalid interests: " + err.Error()})
		return
	}
	for _, cat := range in.Categories {
		if _, ok := news.ParseCategory(string(cat)); !ok {
			c.JSON(http.StatusBadRequest, errorResponse{fmt.Sprintf("unknown category %q", cat)})
			return
		}
	}
	s.myFeed(c, in)
}

func (s *Server) myFeed(c *gin.Context, in news.UserInterests) {
	s.metrics.IncrementFeedRequests()
	weeks, err := s.feeds.MyFeed(c.Request.Context(), in.Normalize(), s.now())
	if err != nil {
		s.log.Error("build feed failed", "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse{"feed failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"weeks": weeks})
}

func (s *Server) file(name, contentType string) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := filepath.Join(s.outputDir, name)
		data, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			c.JSON(http.StatusNotFound, errorResponse{name + " has not been generated yet"})
			return
		}
		if err != nil {
			s.log.Error("read syndication file failed", "file", path, "error", err)
			c.JSON(http.StatusInternalServerError, errorResponse{"read failed"})
			return
		}
		c.Data(http.StatusOK, contentType, data)
	}
}

func (s *Server) health(c *gin.Context) {
	ok, lastRun, lastErr := s.metrics.Healthy()
	status := http.StatusOK
	body := gin.H{"status": "ok", "last_error": lastErr}
	if !lastRun.IsZero() {
		body["last_run"] = lastRun.Format(time.RFC3339)
	}
	if !ok {
		status = http.StatusServiceUnavailable
		body["status"] = "error"
	}
	c.JSON(status, body)
}

func (s *Server) stats(c *gin.Context) {
	body := s.metrics.GetStats()
	if r, ok := s.store.(storage.StatsReporter); ok {
		counts, err := r.Stats(c.Request.Context())
		if err != nil {
			s.log.Warn("store stats failed", "error", err)
		} else {
			body["store"] = counts
		}
	}
	c.JSON(http.StatusOK, body)
}

// parseCategories reads a comma separated list; legacy names are accepted.
func parseCategories(raw string) ([]news.Category, error) {
	var out []news.Category
	for _, name := range splitList(raw) {
		cat, ok := news.ParseCategory(name)
		if !ok {
			return nil, fmt.Errorf("unknown category %q", name)
		}
		out = append(out, cat)
	}
	return out, nil
}

func parseLimit(raw string) (int, error) {
	if raw == "" {
		return storage.DefaultLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("limit must be a positive integer")
	}
	return min(n, storage.MaxLimit), nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
