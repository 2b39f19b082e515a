// Package metrics records chunk-level timings of a render.
package metrics

import (
	"fmt"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

const (
	// latencies are recorded in microseconds, up to one hour.
	minLatencyMicros = 1
	maxLatencyMicros = int64(time.Hour / time.Microsecond)
	sigFigs          = 3
)

// ChunkRecorder measures the round trip of every chunk, from the moment it is
// handed to a worker until its result lands in the result buffer. It is not
// safe for concurrent use.
type ChunkRecorder struct {
	hist     *hdrhistogram.Histogram
	inFlight map[int]time.Time
	now      func() time.Time
}

// NewChunkRecorder creates an empty recorder.
func NewChunkRecorder() *ChunkRecorder {
	return &ChunkRecorder{
		hist:     hdrhistogram.New(minLatencyMicros, maxLatencyMicros, sigFigs),
		inFlight: make(map[int]time.Time),
		now:      time.Now,
	}
}

// Assigned notes that the chunk starting at row start was handed out.
func (r *ChunkRecorder) Assigned(start int) {
	r.inFlight[start] = r.now()
}

// Harvested records the round trip of the chunk starting at row start.
// Starts that were never assigned are ignored.
func (r *ChunkRecorder) Harvested(start int) error {
	began, ok := r.inFlight[start]
	if !ok {
		return nil
	}
	delete(r.inFlight, start)
	micros := r.now().Sub(began).Microseconds()
	if micros < minLatencyMicros {
		micros = minLatencyMicros
	}
	if micros > maxLatencyMicros {
		micros = maxLatencyMicros
	}
	if err := r.hist.RecordValue(micros); err != nil {
		return fmt.Errorf("record latency of chunk at row %d: %w", start, err)
	}
	return nil
}

// Summary is a percentile digest of chunk round trips.
type Summary struct {
	Count int64         `json:"count"`
	Min   time.Duration `json:"min"`
	Mean  time.Duration `json:"mean"`
	P50   time.Duration `json:"p50"`
	P95   time.Duration `json:"p95"`
	P99   time.Duration `json:"p99"`
	Max   time.Duration `json:"max"`
}

// Summary returns the digest of everything recorded so far.
func (r *ChunkRecorder) Summary() Summary {
	if r.hist.TotalCount() == 0 {
		return Summary{}
	}
	us := func(v int64) time.Duration { return time.Duration(v) * time.Microsecond }
	return Summary{
		Count: r.hist.TotalCount(),
		Min:   us(r.hist.Min()),
		Mean:  time.Duration(r.hist.Mean() * float64(time.Microsecond)),
		P50:   us(r.hist.ValueAtQuantile(50)),
		P95:   us(r.hist.ValueAtQuantile(95)),
		P99:   us(r.hist.ValueAtQuantile(99)),
		Max:   us(r.hist.Max()),
	}
}
