// Package feed assembles the personalized, week-bucketed "My Feed".
package feed

import (
	"time"

	"github.com/deusflow/technews/internal/cluster"
	"github.com/deusflow/technews/internal/news"
	"github.com/deusflow/technews/internal/scoring"
)

// Weeks is the number of buckets Assemble always returns.
const Weeks = 12

// WeekBucket is one Monday-to-Sunday window of clustered articles.
type WeekBucket struct {
	WeekStart  time.Time                             `json:"weekStart"`
	WeekEnd    time.Time                             `json:"weekEnd"`
	Label      string                                `json:"label"`
	Clusters   []cluster.Cluster[news.ScoredArticle] `json:"clusters"`
	TotalItems int                                   `json:"totalItems"`
}

// Options tunes assembly. The zero value is valid.
type Options struct {
	// Location anchors week boundaries. Defaults to UTC.
	Location *time.Location
	// ClusterThreshold defaults to cluster.DefaultThreshold.
	ClusterThreshold float64
	// RescoreClusters recomputes each representative's score with its final
	// cluster size. Inclusion is decided before clustering either way.
	RescoreClusters bool
}

func (o Options) location() *time.Location {
	if o.Location == nil {
		return time.UTC
	}
	return o.Location
}

// WeekStart returns Monday 00:00 of the week containing t, in loc.
func WeekStart(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	offset := (int(t.Weekday()) + 6) % 7
	return time.Date(t.Year(), t.Month(), t.Day()-offset, 0, 0, 0, 0, loc)
}

// Windows returns the Weeks week ranges ending with the week of now,
// most recent first. Each end is one millisecond before the next week
// starts and is meant for display; membership is decided by weekIndex.
func Windows(now time.Time, loc *time.Location) [][2]time.Time {
	current := WeekStart(now, loc)
	out := make([][2]time.Time, Weeks)
	for i := range out {
		start := current.AddDate(0, 0, -7*i)
		out[i] = [2]time.Time{start, start.AddDate(0, 0, 7).Add(-time.Millisecond)}
	}
	return out
}

// Assemble buckets scored articles into Weeks windows, applies the score
// threshold for readers with specific interests and clusters every week.
// Articles are visited in the order given.
func Assemble(scored []news.ScoredArticle, interests news.UserInterests, now time.Time, opts Options) []WeekBucket {
	loc := opts.location()
	windows := Windows(now, loc)

	perWeek := make([][]news.ScoredArticle, Weeks)
	for _, sa := range scored {
		if !scoring.Included(sa.Score, interests) {
			continue
		}
		if i := weekIndex(windows, sa.PublishedAt); i >= 0 {
			perWeek[i] = append(perWeek[i], sa)
		}
	}

	buckets := make([]WeekBucket, Weeks)
	for i, w := range windows {
		clusters := cluster.Scored(perWeek[i], opts.ClusterThreshold)
		if clusters == nil {
			clusters = []cluster.Cluster[news.ScoredArticle]{}
		}
		total := 0
		for j := range clusters {
			if opts.RescoreClusters {
				rep := &clusters[j].Representative
				rep.Score = scoring.Score(rep.Article, interests, clusters[j].Size())
			}
			total += clusters[j].Size()
		}
		buckets[i] = WeekBucket{
			WeekStart:  w[0],
			WeekEnd:    w[1],
			Label:      label(i, w[0], w[1]),
			Clusters:   clusters,
			TotalItems: total,
		}
	}
	return buckets
}

// weekIndex returns the window containing t, treating each week as the
// half-open range [start, next Monday).
func weekIndex(windows [][2]time.Time, t time.Time) int {
	for i, w := range windows {
		if !t.Before(w[0]) && t.Before(w[0].AddDate(0, 0, 7)) {
			return i
		}
	}
	return -1
}

func label(i int, start, end time.Time) string {
	switch i {
	case 0:
		return "This Week"
	case 1:
		return "Last Week"
	default:
		return start.Format("Jan 2") + " - " + end.Format("Jan 2")
	}
}
