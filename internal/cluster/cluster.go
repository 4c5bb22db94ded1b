// Package cluster groups related articles of one week by title similarity.
package cluster

import (
	"github.com/google/uuid"

	"github.com/deusflow/technews/internal/news"
	"github.com/deusflow/technews/internal/similarity"
)

// DefaultThreshold is the title similarity an article must exceed to join a
// cluster.
const DefaultThreshold = 0.5

// Cluster is a representative item plus the items judged related to it.
type Cluster[T any] struct {
	ID             string `json:"id"`
	Representative T      `json:"representative"`
	Related        []T    `json:"related"`
}

// Size is 1 + len(Related).
func (c Cluster[T]) Size() int {
	return 1 + len(c.Related)
}

// Clusterer performs greedy single-pass clustering. Items are visited in the
// given order; the first item of a cluster stays its representative.
type Clusterer[T any] struct {
	Threshold float64
	Title     func(T) string
}

// New returns a Clusterer using DefaultThreshold when threshold is not in (0, 1].
func New[T any](threshold float64, title func(T) string) Clusterer[T] {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	return Clusterer[T]{Threshold: threshold, Title: title}
}

// Build clusters items. Each item joins the existing cluster whose
// representative title is most similar, if that similarity exceeds the
// threshold, and otherwise opens a new cluster.
func (c Clusterer[T]) Build(items []T) []Cluster[T] {
	if len(items) == 0 {
		return nil
	}

	var clusters []Cluster[T]
	var repTitles []string
	for _, item := range items {
		title := c.Title(item)
		best, bestIdx := 0.0, -1
		for i, rt := range repTitles {
			if s := similarity.Similarity(title, rt); s > best {
				best, bestIdx = s, i
			}
		}
		if bestIdx >= 0 && best > c.Threshold {
			clusters[bestIdx].Related = append(clusters[bestIdx].Related, item)
			continue
		}
		clusters = append(clusters, Cluster[T]{ID: uuid.NewString(), Representative: item})
		repTitles = append(repTitles, title)
	}
	return clusters
}

// Scored clusters scored articles with the given threshold.
func Scored(items []news.ScoredArticle, threshold float64) []Cluster[news.ScoredArticle] {
	return New(threshold, func(a news.ScoredArticle) string { return a.Title }).Build(items)
}
