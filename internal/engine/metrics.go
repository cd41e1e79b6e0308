package engine

import (
	"sort"
	"sync"
	"time"
)

// metricsWindow is the number of most recent per-event latency samples kept
// for percentile estimation (spec.md §6's Metrics JSON needs latency_p99_ns
// populated from real engine state, not the source's "{}" stub — spec.md §9).
const metricsWindow = 512

// Metrics accumulates hot-path latency samples and a keys-per-second rate.
// Recording is lock-protected but bounded: one append or ring-slot overwrite
// per sample. The sort over at most metricsWindow int64s happens in
// Snapshot, off the hot path.
type Metrics struct {
	mu        sync.Mutex
	samples   []int64 // nanoseconds, ring buffer
	next      int
	total     int64
	count     int64
	max       int64
	seriesAt  time.Time
	seriesCnt int64
	kps       float64
}

func newMetrics() *Metrics {
	return &Metrics{samples: make([]int64, 0, metricsWindow), seriesAt: time.Time{}}
}

// Record adds one hot-path latency sample and updates the keys-per-second
// estimate, recomputed once per rolling one-second window.
func (m *Metrics) Record(d time.Duration, now time.Time) {
	ns := d.Nanoseconds()
	m.mu.Lock()
	defer m.mu.Unlock()

	m.total += ns
	m.count++
	if ns > m.max {
		m.max = ns
	}
	if len(m.samples) < metricsWindow {
		m.samples = append(m.samples, ns)
	} else {
		m.samples[m.next] = ns
		m.next = (m.next + 1) % metricsWindow
	}

	if m.seriesAt.IsZero() {
		m.seriesAt = now
	}
	m.seriesCnt++
	if elapsed := now.Sub(m.seriesAt); elapsed >= time.Second {
		m.kps = float64(m.seriesCnt) / elapsed.Seconds()
		m.seriesCnt = 0
		m.seriesAt = now
	}
}

// Snapshot is the point-in-time rendering of Metrics for the Metrics JSON
// (spec.md §6).
type Snapshot struct {
	LatencyAvgNs    int64
	LatencyP99Ns    int64
	LatencyMaxNs    int64
	CPUUsagePercent float64
	KeysPerSecond   float64
}

// Snapshot computes the current metrics view. CPUUsagePercent is left at 0:
// sampling process CPU usage needs a platform syscall this core's Non-goals
// (spec.md §1) place outside scope; a real daemon would wire it from
// /proc/self/stat on Linux in cmd/yamyd.
func (m *Metrics) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.count == 0 {
		return Snapshot{}
	}
	avg := m.total / m.count

	sorted := make([]int64, len(m.samples))
	copy(sorted, m.samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	p99 := m.max
	if len(sorted) > 0 {
		idx := (len(sorted) * 99) / 100
		if idx >= len(sorted) {
			idx = len(sorted) - 1
		}
		p99 = sorted[idx]
	}

	return Snapshot{
		LatencyAvgNs:  avg,
		LatencyP99Ns:  p99,
		LatencyMaxNs:  m.max,
		KeysPerSecond: m.kps,
	}
}

// Reset clears every accumulated sample. No engine path calls it: a config
// switch keeps the samples already recorded.
func (m *Metrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples = m.samples[:0]
	m.next = 0
	m.total = 0
	m.count = 0
	m.max = 0
	m.kps = 0
	m.seriesCnt = 0
	m.seriesAt = time.Time{}
}
