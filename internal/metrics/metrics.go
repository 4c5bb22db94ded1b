package metrics

import (
	"sync"
	"time"
)

// RunStats counts what happened during one ingestion run.
type RunStats struct {
	Fetched          int `json:"fetched"`
	Accepted         int `json:"accepted"`
	Inserted         int `json:"inserted"`
	Duplicates       int `json:"duplicates"`
	SkippedMalformed int `json:"skippedMalformed"`
	SkippedInvalid   int `json:"skippedInvalid"`
	SourceErrors     int `json:"sourceErrors"`
	StoreBatchErrors int `json:"storeBatchErrors"`
	AISummaries      int `json:"aiSummaries"`
	AIFallbacks      int `json:"aiFallbacks"`
	CacheHits        int `json:"cacheHits"`
	ImagesScraped    int `json:"imagesScraped"`
	EnrichQueued     int `json:"enrichQueued"`
	EnrichDropped    int `json:"enrichDropped"`
	TelegramPosts    int `json:"telegramPosts"`
}

type Metrics struct {
	mu sync.RWMutex

	// Counters
	Runs                 int64
	ArticlesFetched      int64
	ArticlesInserted     int64
	DuplicatesFiltered   int64
	SkippedArticles      int64
	SourceErrors         int64
	StoreBatchErrors     int64
	AISummaries          int64
	AIFallbacks          int64
	SummaryCacheHits     int64
	EnrichDropped        int64
	TelegramMessagesSent int64
	FeedRequests         int64

	// Timings
	LastProcessingTime    time.Duration
	AverageProcessingTime time.Duration
	TotalProcessingTime   time.Duration

	// Status
	LastRun       RunStats
	LastRunTime   time.Time
	LastErrorTime time.Time
	LastError     string
	IsHealthy     bool
}

var Global = &Metrics{IsHealthy: true}

// RecordRun adds one finished run to the process totals.
func (m *Metrics) RecordRun(s RunStats, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Runs++
	m.ArticlesFetched += int64(s.Fetched)
	m.ArticlesInserted += int64(s.Inserted)
	m.DuplicatesFiltered += int64(s.Duplicates)
	m.SkippedArticles += int64(s.SkippedMalformed + s.SkippedInvalid)
	m.SourceErrors += int64(s.SourceErrors)
	m.StoreBatchErrors += int64(s.StoreBatchErrors)
	m.AISummaries += int64(s.AISummaries)
	m.AIFallbacks += int64(s.AIFallbacks)
	m.SummaryCacheHits += int64(s.CacheHits)
	m.EnrichDropped += int64(s.EnrichDropped)
	m.TelegramMessagesSent += int64(s.TelegramPosts)

	m.LastProcessingTime = duration
	m.TotalProcessingTime += duration
	m.AverageProcessingTime = m.TotalProcessingTime / time.Duration(m.Runs)

	m.LastRun = s
	m.LastRunTime = time.Now()
	m.IsHealthy = true
}

func (m *Metrics) IncrementFeedRequests() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FeedRequests++
}

func (m *Metrics) SetError(err string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastError = err
	m.LastErrorTime = time.Now()
	m.IsHealthy = false
}

// Healthy reports the status, last run and last error for /health.
func (m *Metrics) Healthy() (ok bool, lastRun time.Time, lastError string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.IsHealthy, m.LastRunTime, m.LastError
}

func (m *Metrics) GetStats() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]any{
		"runs":                       m.Runs,
		"articles_fetched":           m.ArticlesFetched,
		"articles_inserted":          m.ArticlesInserted,
		"duplicates_filtered":        m.DuplicatesFiltered,
		"skipped_articles":           m.SkippedArticles,
		"source_errors":              m.SourceErrors,
		"store_batch_errors":         m.StoreBatchErrors,
		"ai_summaries":               m.AISummaries,
		"ai_fallbacks":               m.AIFallbacks,
		"summary_cache_hits":         m.SummaryCacheHits,
		"enrich_dropped":             m.EnrichDropped,
		"telegram_messages_sent":     m.TelegramMessagesSent,
		"feed_requests":              m.FeedRequests,
		"last_run":                   m.LastRun,
		"last_processing_time_ms":    m.LastProcessingTime.Milliseconds(),
		"average_processing_time_ms": m.AverageProcessingTime.Milliseconds(),
		"last_run_time":              formatTime(m.LastRunTime),
		"last_error_time":            formatTime(m.LastErrorTime),
		"last_error":                 m.LastError,
		"is_healthy":                 m.IsHealthy,
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}
