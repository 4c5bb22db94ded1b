// Package enrich runs fire-and-forget work after ingestion: translations
// and company backfill. Ingestion never waits for it and never sees its
// errors.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/deusflow/technews/internal/companies"
	"github.com/deusflow/technews/internal/news"
	"github.com/deusflow/technews/internal/storage"
)

const (
	DefaultWorkers = 2
	DefaultBuffer  = 256
	taskTimeout    = time.Minute
)

// Task is one unit of enrichment.
type Task interface {
	Name() string
	Run(ctx context.Context) error
}

// Stats counts task outcomes.
type Stats struct {
	Submitted int64
	Dropped   int64
	Succeeded int64
	Failed    int64
}

// Queue is a bounded task buffer drained by a fixed set of workers.
type Queue struct {
	tasks  chan Task
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
	cancel context.CancelFunc
	log    *slog.Logger

	submitted atomic.Int64
	dropped   atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
}

// NewQueue starts workers consuming a buffer of the given size. Workers
// stop when ctx is cancelled or the queue is closed and drained.
func NewQueue(ctx context.Context, workers, buffer int, log *slog.Logger) *Queue {
	if workers < 1 {
		workers = DefaultWorkers
	}
	if buffer < 1 {
		buffer = DefaultBuffer
	}
	if log == nil {
		log = slog.Default()
	}
	ctx, cancel := context.WithCancel(ctx)
	q := &Queue{
		tasks:  make(chan Task, buffer),
		cancel: cancel,
		log:    log.With("component", "enrich"),
	}
	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx)
	}
	return q
}

// Submit enqueues t without blocking. It returns false and counts a drop
// when the buffer is full or the queue is closed.
func (q *Queue) Submit(t Task) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		q.dropped.Add(1)
		return false
	}
	select {
	case q.tasks <- t:
		q.submitted.Add(1)
		return true
	default:
		q.dropped.Add(1)
		q.log.Warn("enrichment queue full, task dropped", "task", t.Name())
		return false
	}
}

// ErrClosed is returned by SubmitWait after Close.
var ErrClosed = errors.New("enrich: queue closed")

// SubmitWait enqueues t, blocking while the buffer is full. It gives up
// when ctx ends or the queue is closed.
func (q *Queue) SubmitWait(ctx context.Context, t Task) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		q.dropped.Add(1)
		return ErrClosed
	}
	select {
	case q.tasks <- t:
		q.submitted.Add(1)
		return nil
	case <-ctx.Done():
		q.dropped.Add(1)
		return ctx.Err()
	}
}

// Close stops accepting tasks and waits for queued ones until ctx ends;
// then the remaining work is cancelled.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.tasks)
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		q.cancel()
		return nil
	case <-ctx.Done():
		q.cancel()
		<-done
		return fmt.Errorf("enrichment queue drain: %w", ctx.Err())
	}
}

func (q *Queue) Stats() Stats {
	return Stats{
		Submitted: q.submitted.Load(),
		Dropped:   q.dropped.Load(),
		Succeeded: q.succeeded.Load(),
		Failed:    q.failed.Load(),
	}
}

func (q *Queue) worker(ctx context.Context) {
	defer q.wg.Done()
	for t := range q.tasks {
		if ctx.Err() != nil {
			q.failed.Add(1)
			continue
		}
		q.run(ctx, t)
	}
}

func (q *Queue) run(ctx context.Context, t Task) {
	ctx, cancel := context.WithTimeout(ctx, taskTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			q.failed.Add(1)
			q.log.Error("enrichment task panicked", "task", t.Name(), "panic", r)
		}
	}()
	if err := t.Run(ctx); err != nil {
		q.failed.Add(1)
		q.log.Warn("enrichment task failed", "task", t.Name(), "error", err)
		return
	}
	q.succeeded.Add(1)
}

// Translator is the subset of translate.Service used here.
type Translator interface {
	Translate(ctx context.Context, text, from, to string) (string, error)
}

// TranslateTask stores a translated title and summary.
type TranslateTask struct {
	Store      storage.Enricher
	Translator Translator
	Article    news.Article
	From, To   string
}

func (t TranslateTask) Name() string { return "translate:" + t.Article.SourceURL }

func (t TranslateTask) Run(ctx context.Context) error {
	title, err := t.Translator.Translate(ctx, t.Article.Title, t.From, t.To)
	if err != nil {
		return fmt.Errorf("translate title: %w", err)
	}
	summary, err := t.Translator.Translate(ctx, t.Article.Summary, t.From, t.To)
	if err != nil {
		return fmt.Errorf("translate summary: %w", err)
	}
	return t.Store.ApplyEnrichment(ctx, t.Article.SourceURL, storage.Enrichment{
		TranslatedTitle:   title,
		TranslatedSummary: summary,
		TranslationLang:   t.To,
	})
}

// CompanyBackfillTask fills companies for an article stored without them.
type CompanyBackfillTask struct {
	Store   storage.Enricher
	Article news.Article
}

func (t CompanyBackfillTask) Name() string { return "companies:" + t.Article.SourceURL }

func (t CompanyBackfillTask) Run(ctx context.Context) error {
	found := companies.ExtractFrom(t.Article.Title, t.Article.Summary)
	if len(found) == 0 {
		return nil
	}
	return t.Store.ApplyEnrichment(ctx, t.Article.SourceURL, storage.Enrichment{Companies: found})
}

// Backfill submits a CompanyBackfillTask for up to limit stored articles
// without companies and returns how many were queued. Submission waits for
// buffer space, so limit may exceed the queue size.
func Backfill(ctx context.Context, q *Queue, store storage.Enricher, limit int) (int, error) {
	missing, err := store.MissingCompanies(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("list articles without companies: %w", err)
	}
	for i, a := range missing {
		if err := q.SubmitWait(ctx, CompanyBackfillTask{Store: store, Article: a}); err != nil {
			return i, fmt.Errorf("queue company backfill: %w", err)
		}
	}
	return len(missing), nil
}
