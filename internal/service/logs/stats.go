package logs

import (
	"context"
	"fmt"
	"time"

	"github.com/logwell/logwell/internal/domain"
)

type rangeSpec struct {
	interval time.Duration
	buckets  int
}

var timeRanges = map[string]rangeSpec{
	"15m": {interval: time.Minute, buckets: 15},
	"1h":  {interval: 5 * time.Minute, buckets: 12},
	"24h": {interval: time.Hour, buckets: 24},
	"7d":  {interval: 6 * time.Hour, buckets: 28},
}

// DefaultRange is used when no range is requested.
const DefaultRange = "24h"

// Bucket counts logs in [Timestamp, Timestamp+interval).
type Bucket struct {
	Timestamp time.Time `json:"timestamp"`
	Count     int64     `json:"count"`
}

// TimeSeries is a complete, chronologically ordered set of buckets.
type TimeSeries struct {
	Range      string   `json:"range"`
	Buckets    []Bucket `json:"buckets"`
	TotalCount int64    `json:"totalCount"`
}

// LevelSummary counts a project's logs by level.
type LevelSummary struct {
	Levels map[domain.LogLevel]int64 `json:"levels"`
	Total  int64                     `json:"total"`
}

// TimeSeries counts logs per bucket over the named range ending at the
// bucket that contains now.
func (s Service) TimeSeries(ctx context.Context, projectID, rangeName string) (TimeSeries, error) {
	if rangeName == "" {
		rangeName = DefaultRange
	}
	spec, ok := timeRanges[rangeName]
	if !ok {
		return TimeSeries{}, invalid("range", "range must be one of 15m, 1h, 24h, 7d")
	}

	end := s.now().UTC().Truncate(spec.interval).Add(spec.interval)
	start := end.Add(-time.Duration(spec.buckets) * spec.interval)

	counted, err := s.repo.CountLogsByBucket(ctx, projectID, start, end, spec.interval)
	if err != nil {
		return TimeSeries{}, fmt.Errorf("count logs by bucket: %w", err)
	}

	series := TimeSeries{Range: rangeName, Buckets: make([]Bucket, spec.buckets)}
	for i := range series.Buckets {
		series.Buckets[i].Timestamp = start.Add(time.Duration(i) * spec.interval)
	}
	for _, bucket := range counted {
		offset := bucket.Start.Sub(start)
		if offset < 0 {
			continue
		}
		idx := int(offset / spec.interval)
		if idx >= spec.buckets {
			continue
		}
		series.Buckets[idx].Count += bucket.Count
		series.TotalCount += bucket.Count
	}
	return series, nil
}

// LevelCounts reports per-level totals, with every level present.
func (s Service) LevelCounts(ctx context.Context, projectID string) (LevelSummary, error) {
	counts, err := s.repo.CountLogsByLevel(ctx, projectID)
	if err != nil {
		return LevelSummary{}, fmt.Errorf("count logs by level: %w", err)
	}
	summary := LevelSummary{Levels: make(map[domain.LogLevel]int64, len(domain.Levels))}
	for _, level := range domain.Levels {
		summary.Levels[level] = counts[level]
		summary.Total += counts[level]
	}
	return summary, nil
}
