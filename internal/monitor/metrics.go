package monitor

import (
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// SystemMetrics tracks gateway and API throughput.
type SystemMetrics struct {
	OrderLatency *LatencyHistogram
	APILatency   *LatencyHistogram

	ordersSent    atomic.Uint64
	orderFailures atomic.Uint64
	ticks         atomic.Uint64
	trades        atomic.Uint64
	alerts        atomic.Uint64
	apiRequests   atomic.Uint64
	apiErrors     atomic.Uint64

	started time.Time
}

// LatencyHistogram tracks latency samples over a sliding window.
// Stats are recomputed lazily.
type LatencyHistogram struct {
	mu          sync.Mutex
	samples     []float64
	maxSize     int
	dirty       bool
	cachedStats LatencyStats
}

// NewSystemMetrics creates a new metrics instance.
func NewSystemMetrics() *SystemMetrics {
	return &SystemMetrics{
		OrderLatency: NewLatencyHistogram(1000),
		APILatency:   NewLatencyHistogram(1000),
		started:      time.Now(),
	}
}

// NewLatencyHistogram creates a sliding window histogram.
func NewLatencyHistogram(size int) *LatencyHistogram {
	if size <= 0 {
		size = 1000
	}
	return &LatencyHistogram{
		samples: make([]float64, 0, size),
		maxSize: size,
		dirty:   true,
	}
}

// Record adds a latency sample in milliseconds.
func (h *LatencyHistogram) Record(latencyMs float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.samples) >= h.maxSize {
		h.samples = h.samples[1:]
	}
	h.samples = append(h.samples, latencyMs)
	h.dirty = true
}

// RecordDuration converts duration to ms and records.
func (h *LatencyHistogram) RecordDuration(d time.Duration) {
	h.Record(float64(d.Nanoseconds()) / 1e6)
}

// Stats returns min, max, avg, p50, p95, p99.
func (h *LatencyHistogram) Stats() LatencyStats {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.dirty {
		return h.cachedStats
	}

	n := len(h.samples)
	if n == 0 {
		h.cachedStats, h.dirty = LatencyStats{}, false
		return h.cachedStats
	}

	sorted := make([]float64, n)
	copy(sorted, h.samples)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}

	h.cachedStats = LatencyStats{
		Min:   sorted[0],
		Max:   sorted[n-1],
		Avg:   sum / float64(n),
		P50:   sorted[n/2],
		P95:   sorted[int(float64(n-1)*0.95)],
		P99:   sorted[int(float64(n-1)*0.99)],
		Count: n,
	}
	h.dirty = false
	return h.cachedStats
}

// LatencyStats holds computed latency statistics in milliseconds.
type LatencyStats struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
	P50   float64 `json:"p50"`
	P95   float64 `json:"p95"`
	P99   float64 `json:"p99"`
	Count int     `json:"count"`
}

// RecordOrder counts one placement attempt and its round trip.
func (m *SystemMetrics) RecordOrder(d time.Duration, failed bool) {
	m.ordersSent.Add(1)
	if failed {
		m.orderFailures.Add(1)
	}
	m.OrderLatency.RecordDuration(d)
}

// RecordAPI counts one HTTP request.
func (m *SystemMetrics) RecordAPI(d time.Duration, status int) {
	m.apiRequests.Add(1)
	if status >= 400 {
		m.apiErrors.Add(1)
	}
	m.APILatency.RecordDuration(d)
}

// IncrementTicks increments processed ticks counter.
func (m *SystemMetrics) IncrementTicks() { m.ticks.Add(1) }

// IncrementTrades increments derived trades counter.
func (m *SystemMetrics) IncrementTrades() { m.trades.Add(1) }

// IncrementAlerts increments raised alerts counter.
func (m *SystemMetrics) IncrementAlerts() { m.alerts.Add(1) }

// MetricsSnapshot is a point-in-time copy of SystemMetrics.
type MetricsSnapshot struct {
	OrderLatency   LatencyStats `json:"order_latency"`
	APILatency     LatencyStats `json:"api_latency"`
	OrdersSent     uint64       `json:"orders_sent"`
	OrderFailures  uint64       `json:"order_failures"`
	Ticks          uint64       `json:"ticks"`
	Trades         uint64       `json:"trades"`
	Alerts         uint64       `json:"alerts"`
	APIRequests    uint64       `json:"api_requests"`
	APIErrors      uint64       `json:"api_errors"`
	GoroutineCount int          `json:"goroutine_count"`
	HeapAlloc      uint64       `json:"heap_alloc_bytes"`
	Uptime         string       `json:"uptime"`
	Timestamp      time.Time    `json:"timestamp"`
}

// GetSnapshot returns a point-in-time metrics snapshot.
func (m *SystemMetrics) GetSnapshot() MetricsSnapshot {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return MetricsSnapshot{
		OrderLatency:   m.OrderLatency.Stats(),
		APILatency:     m.APILatency.Stats(),
		OrdersSent:     m.ordersSent.Load(),
		OrderFailures:  m.orderFailures.Load(),
		Ticks:          m.ticks.Load(),
		Trades:         m.trades.Load(),
		Alerts:         m.alerts.Load(),
		APIRequests:    m.apiRequests.Load(),
		APIErrors:      m.apiErrors.Load(),
		GoroutineCount: runtime.NumGoroutine(),
		HeapAlloc:      memStats.HeapAlloc,
		Uptime:         time.Since(m.started).Round(time.Second).String(),
		Timestamp:      time.Now(),
	}
}

// Timer helps measure operation duration.
type Timer struct {
	start     time.Time
	histogram *LatencyHistogram
}

// NewTimer creates a timer that records to the given histogram.
func NewTimer(h *LatencyHistogram) *Timer {
	return &Timer{start: time.Now(), histogram: h}
}

// Stop records elapsed time to histogram.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	if t.histogram != nil {
		t.histogram.RecordDuration(elapsed)
	}
	return elapsed
}
