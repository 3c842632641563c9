package lrucache

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting cache metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
//
// Implementations must be safe for concurrent use: hits and misses are
// recorded from caller goroutines, loads from workers.
type MetricsCollector interface {
	// RecordHit is called when a read is served from a resident value.
	RecordHit()

	// RecordMiss is called when a read finds no usable value.
	RecordMiss()

	// RecordLoad is called after each provider call.
	// duration is the time taken, err is nil if successful.
	RecordLoad(duration time.Duration, err error)

	// RecordEviction is called for every entry dropped from the LRU tail.
	RecordEviction()

	// RecordDispose is called after a released value was closed.
	RecordDispose(err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordHit()                      {}
func (NoopMetricsCollector) RecordMiss()                     {}
func (NoopMetricsCollector) RecordLoad(time.Duration, error) {}
func (NoopMetricsCollector) RecordEviction()                 {}
func (NoopMetricsCollector) RecordDispose(error)             {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	Hits           atomic.Int64
	Misses         atomic.Int64
	LoadCount      atomic.Int64
	LoadErrors     atomic.Int64
	LoadTotalNanos atomic.Int64
	Evictions      atomic.Int64
	Disposals      atomic.Int64
	DisposeErrors  atomic.Int64
}

// RecordHit implements MetricsCollector.
func (b *BasicMetricsCollector) RecordHit() { b.Hits.Add(1) }

// RecordMiss implements MetricsCollector.
func (b *BasicMetricsCollector) RecordMiss() { b.Misses.Add(1) }

// RecordLoad implements MetricsCollector.
func (b *BasicMetricsCollector) RecordLoad(duration time.Duration, err error) {
	b.LoadCount.Add(1)
	b.LoadTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.LoadErrors.Add(1)
	}
}

// RecordEviction implements MetricsCollector.
func (b *BasicMetricsCollector) RecordEviction() { b.Evictions.Add(1) }

// RecordDispose implements MetricsCollector.
func (b *BasicMetricsCollector) RecordDispose(err error) {
	b.Disposals.Add(1)
	if err != nil {
		b.DisposeErrors.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		Hits:          b.Hits.Load(),
		Misses:        b.Misses.Load(),
		LoadCount:     b.LoadCount.Load(),
		LoadErrors:    b.LoadErrors.Load(),
		LoadAvgNanos:  b.getAvgLoadNanos(),
		Evictions:     b.Evictions.Load(),
		Disposals:     b.Disposals.Load(),
		DisposeErrors: b.DisposeErrors.Load(),
	}
}

func (b *BasicMetricsCollector) getAvgLoadNanos() int64 {
	count := b.LoadCount.Load()
	if count == 0 {
		return 0
	}
	return b.LoadTotalNanos.Load() / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	Hits          int64
	Misses        int64
	LoadCount     int64
	LoadErrors    int64
	LoadAvgNanos  int64
	Evictions     int64
	Disposals     int64
	DisposeErrors int64
}

// HitRatio returns hits / (hits + misses), or 0 before the first read.
func (s BasicMetricsStats) HitRatio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}
