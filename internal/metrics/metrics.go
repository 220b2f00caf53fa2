// Package metrics computes rolling build metrics for a pipeline from a
// window of build records: success rate, duration statistics, status
// distribution, and time-bucketed trends.
//
// All computation is deterministic over the given snapshot; there is no
// clock dependence beyond the builds' own timestamps.
package metrics

import (
	"math"
	"sort"
	"time"

	"buildwatch/internal/model"
)

// BucketStats aggregates builds sharing a time bucket.
type BucketStats struct {
	Total           int     `json:"total"`
	Succeeded       int     `json:"succeeded"`
	Failed          int     `json:"failed"`
	AvgDurationSecs float64 `json:"avg_duration_seconds"`

	durSum   float64
	durCount int
}

// Snapshot is the computed metrics view for one pipeline window. It is
// derived on demand and never persisted.
type Snapshot struct {
	Total              int                     `json:"total"`
	SuccessRate        float64                 `json:"success_rate"` // 0-100, 2 decimals
	AvgDurationSecs    float64                 `json:"avg_duration_seconds"`
	MedianDurationSecs float64                 `json:"median_duration_seconds"`
	P95DurationSecs    float64                 `json:"p95_duration_seconds"`
	P99DurationSecs    float64                 `json:"p99_duration_seconds"`
	StatusDistribution map[model.Status]int    `json:"status_distribution"`
	Hourly             map[string]*BucketStats `json:"hourly,omitempty"`
	Daily              map[string]*BucketStats `json:"daily,omitempty"`
}

// Compute builds a Snapshot from the given builds. Duration statistics only
// consider builds with a recorded duration; success rate and distribution
// consider every build in the window.
func Compute(builds []model.Build) *Snapshot {
	snap := &Snapshot{
		Total:              len(builds),
		StatusDistribution: make(map[model.Status]int),
		Hourly:             make(map[string]*BucketStats),
		Daily:              make(map[string]*BucketStats),
	}

	var succeeded int
	var durations []float64
	for i := range builds {
		b := &builds[i]
		snap.StatusDistribution[b.Status]++
		if b.Status == model.StatusSuccess {
			succeeded++
		}
		if b.DurationSeconds != nil {
			durations = append(durations, *b.DurationSeconds)
		}
		addToBucket(snap.Hourly, b, "2006-01-02T15")
		addToBucket(snap.Daily, b, "2006-01-02")
	}

	if snap.Total > 0 {
		snap.SuccessRate = round2(float64(succeeded) / float64(snap.Total) * 100)
	}

	if len(durations) > 0 {
		sort.Float64s(durations)
		var sum float64
		for _, d := range durations {
			sum += d
		}
		snap.AvgDurationSecs = round2(sum / float64(len(durations)))
		snap.MedianDurationSecs = round2(percentile(durations, 0.50))
		snap.P95DurationSecs = round2(percentile(durations, 0.95))
		snap.P99DurationSecs = round2(percentile(durations, 0.99))
	}

	return snap
}

// ConsecutiveFailures counts leading failed builds ordered most-recent-first
// by started_at. Any non-failed build, including pending or cancelled, ends
// the streak.
func ConsecutiveFailures(builds []model.Build) int {
	ordered := make([]model.Build, len(builds))
	copy(ordered, builds)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].StartedAt.After(ordered[j].StartedAt)
	})

	count := 0
	for i := range ordered {
		if ordered[i].Status != model.StatusFailed {
			break
		}
		count++
	}
	return count
}

// FailureCount counts failed builds in the window.
func FailureCount(builds []model.Build) int {
	n := 0
	for i := range builds {
		if builds[i].Status == model.StatusFailed {
			n++
		}
	}
	return n
}

// percentile indexes the sorted sample at floor(n*p), clamped to the last
// element. The sample must be non-empty and sorted ascending.
func percentile(sorted []float64, p float64) float64 {
	idx := int(math.Floor(float64(len(sorted)) * p))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func addToBucket(buckets map[string]*BucketStats, b *model.Build, layout string) {
	if b.StartedAt.IsZero() {
		return
	}
	key := b.StartedAt.UTC().Format(layout)
	bucket := buckets[key]
	if bucket == nil {
		bucket = &BucketStats{}
		buckets[key] = bucket
	}
	bucket.Total++
	switch b.Status {
	case model.StatusSuccess:
		bucket.Succeeded++
	case model.StatusFailed:
		bucket.Failed++
	}
	if b.DurationSeconds != nil {
		bucket.durSum += *b.DurationSeconds
		bucket.durCount++
		bucket.AvgDurationSecs = round2(bucket.durSum / float64(bucket.durCount))
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Window bounds a build query by count and optional time range.
type Window struct {
	Limit int
	Since time.Time
}

// DefaultWindow is the trailing window used for rule evaluation.
var DefaultWindow = Window{Limit: 50}
