// Package metrics collects latency histograms and counters for the
// proxy's two hot paths: a cache hit (replay) and a full upstream relay.
// A cache hit records one hit observation; a cache miss increments the
// miss counter and, if the request is relayed, also records one relay
// observation.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/codahale/hdrhistogram"
)

const (
	minValueMillis = 1
	maxValueMillis = 60_000
	sigFigures     = 3
)

// Recorder is process-wide; one instance is shared by all workers.
type Recorder struct {
	mu       sync.Mutex
	relay    *hdrhistogram.Histogram
	cacheHit *hdrhistogram.Histogram

	hits   uint64
	misses uint64
}

// New returns a ready-to-use Recorder.
func New() *Recorder {
	return &Recorder{
		relay:    hdrhistogram.New(minValueMillis, maxValueMillis, sigFigures),
		cacheHit: hdrhistogram.New(minValueMillis, maxValueMillis, sigFigures),
	}
}

func clampMillis(d time.Duration) int64 {
	ms := d.Milliseconds()
	if ms < minValueMillis {
		return minValueMillis
	}
	if ms > maxValueMillis {
		return maxValueMillis
	}
	return ms
}

// ObserveRelay records the wall-clock time of one full upstream relay
// (resolve through final byte forwarded).
func (r *Recorder) ObserveRelay(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_ = r.relay.RecordValue(clampMillis(d))
}

// ObserveCacheHit records the wall-clock time of one cache-served
// response and increments the hit counter.
func (r *Recorder) ObserveCacheHit(d time.Duration) {
	atomic.AddUint64(&r.hits, 1)
	r.mu.Lock()
	defer r.mu.Unlock()
	_ = r.cacheHit.RecordValue(clampMillis(d))
}

// ObserveCacheMiss increments the miss counter.
func (r *Recorder) ObserveCacheMiss() {
	atomic.AddUint64(&r.misses, 1)
}

// Snapshot is a point-in-time read of the recorded metrics.
type Snapshot struct {
	Hits           uint64
	Misses         uint64
	RelayMeanMs    float64
	RelayP99Ms     int64
	CacheHitMeanMs float64
}

// Snapshot returns the current metrics. Safe for concurrent use.
func (r *Recorder) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Snapshot{
		Hits:           atomic.LoadUint64(&r.hits),
		Misses:         atomic.LoadUint64(&r.misses),
		RelayMeanMs:    r.relay.Mean(),
		RelayP99Ms:     r.relay.ValueAtQuantile(99),
		CacheHitMeanMs: r.cacheHit.Mean(),
	}
}
