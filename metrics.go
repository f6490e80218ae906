package flashkv

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/behrlich/flashkv/internal/driver"
)

// LatencyBuckets defines the request-latency histogram buckets in
// nanoseconds, covering 1us to 10s with logarithmic spacing.
var LatencyBuckets = []uint64{
	1_000,          // 1us
	10_000,         // 10us
	100_000,        // 100us
	1_000_000,      // 1ms
	10_000_000,     // 10ms
	100_000_000,    // 100ms
	1_000_000_000,  // 1s
	10_000_000_000, // 10s
}

const numLatencyBuckets = 8

// Metrics tracks per-process serving statistics across every Server
// Core: requests served, drops by reason, steals by kind, queue depth
// samples, and a request-latency histogram.
type Metrics struct {
	RequestsOK     atomic.Uint64
	RequestsFailed atomic.Uint64

	DropsTotal atomic.Uint64
	// dropsByReason is keyed by the classifier's ObserveDrop reason
	// strings, a small, append-mostly set; a plain mutex is cheap enough
	// since drops are not the hot path's common case.
	dropMu        sync.Mutex
	dropsByReason map[string]*atomic.Uint64

	PacketStealsTotal atomic.Uint64
	TaskStealsTotal   atomic.Uint64

	QueueDepthTotal atomic.Uint64
	QueueDepthCount atomic.Uint64
	MaxQueueDepth   atomic.Uint32

	TotalLatencyNs atomic.Uint64
	OpCount        atomic.Uint64

	// LatencyHistogramBuckets holds cumulative counts: bucket[i] is the
	// number of requests with latency <= LatencyBuckets[i].
	LatencyHistogramBuckets [numLatencyBuckets]atomic.Uint64

	StartTime atomic.Int64
	StopTime  atomic.Int64
}

// NewMetrics returns a Metrics instance with its start time set to now.
func NewMetrics() *Metrics {
	m := &Metrics{
		dropsByReason: make(map[string]*atomic.Uint64),
	}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordRequest records one served request's latency and outcome.
func (m *Metrics) RecordRequest(latencyNs uint64, success bool) {
	if success {
		m.RequestsOK.Add(1)
	} else {
		m.RequestsFailed.Add(1)
	}
	m.TotalLatencyNs.Add(latencyNs)
	m.OpCount.Add(1)
	for i, bucket := range LatencyBuckets {
		if latencyNs <= bucket {
			m.LatencyHistogramBuckets[i].Add(1)
		}
	}
}

// RecordDrop records one packet drop and the classifier stage that
// dropped it.
func (m *Metrics) RecordDrop(reason string) {
	m.DropsTotal.Add(1)
	m.dropMu.Lock()
	counter, ok := m.dropsByReason[reason]
	if !ok {
		counter = &atomic.Uint64{}
		m.dropsByReason[reason] = counter
	}
	m.dropMu.Unlock()
	counter.Add(1)
}

// RecordSteal records one cross-core steal of the given kind ("packet"
// or "task"), count packets/tasks at a time.
func (m *Metrics) RecordSteal(kind string, count int) {
	if count <= 0 {
		return
	}
	switch kind {
	case "packet":
		m.PacketStealsTotal.Add(uint64(count))
	case "task":
		m.TaskStealsTotal.Add(uint64(count))
	}
}

// RecordQueueDepth records one queue-depth sample for one core.
func (m *Metrics) RecordQueueDepth(depth uint32) {
	m.QueueDepthTotal.Add(uint64(depth))
	m.QueueDepthCount.Add(1)
	for {
		cur := m.MaxQueueDepth.Load()
		if depth <= cur {
			break
		}
		if m.MaxQueueDepth.CompareAndSwap(cur, depth) {
			break
		}
	}
}

// Stop marks the serving process as stopped.
func (m *Metrics) Stop() {
	m.StopTime.Store(time.Now().UnixNano())
}

// MetricsSnapshot is a point-in-time, non-atomic copy of Metrics
// suitable for logging or exposing over an admin endpoint.
type MetricsSnapshot struct {
	RequestsOK     uint64
	RequestsFailed uint64
	TotalRequests  uint64
	ErrorRate      float64

	DropsTotal    uint64
	DropsByReason map[string]uint64

	PacketStealsTotal uint64
	TaskStealsTotal   uint64

	AvgQueueDepth float64
	MaxQueueDepth uint32

	AvgLatencyNs uint64
	UptimeNs     uint64

	LatencyP50Ns  uint64
	LatencyP99Ns  uint64
	LatencyP999Ns uint64

	LatencyHistogram [numLatencyBuckets]uint64

	RequestsPerSecond float64
}

// Snapshot returns a point-in-time snapshot of m.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		RequestsOK:        m.RequestsOK.Load(),
		RequestsFailed:    m.RequestsFailed.Load(),
		DropsTotal:        m.DropsTotal.Load(),
		PacketStealsTotal: m.PacketStealsTotal.Load(),
		TaskStealsTotal:   m.TaskStealsTotal.Load(),
		MaxQueueDepth:     m.MaxQueueDepth.Load(),
	}
	snap.TotalRequests = snap.RequestsOK + snap.RequestsFailed

	m.dropMu.Lock()
	snap.DropsByReason = make(map[string]uint64, len(m.dropsByReason))
	for reason, counter := range m.dropsByReason {
		snap.DropsByReason[reason] = counter.Load()
	}
	m.dropMu.Unlock()

	depthTotal := m.QueueDepthTotal.Load()
	depthCount := m.QueueDepthCount.Load()
	if depthCount > 0 {
		snap.AvgQueueDepth = float64(depthTotal) / float64(depthCount)
	}

	totalLatencyNs := m.TotalLatencyNs.Load()
	opCount := m.OpCount.Load()
	if opCount > 0 {
		snap.AvgLatencyNs = totalLatencyNs / opCount
	}

	startTime := m.StartTime.Load()
	stopTime := m.StopTime.Load()
	if stopTime > 0 {
		snap.UptimeNs = uint64(stopTime - startTime)
	} else {
		snap.UptimeNs = uint64(time.Now().UnixNano() - startTime)
	}

	if snap.TotalRequests > 0 {
		snap.ErrorRate = float64(snap.RequestsFailed) / float64(snap.TotalRequests) * 100.0
	}
	if snap.UptimeNs > 0 {
		snap.RequestsPerSecond = float64(snap.TotalRequests) / (float64(snap.UptimeNs) / 1e9)
	}

	for i := 0; i < numLatencyBuckets; i++ {
		snap.LatencyHistogram[i] = m.LatencyHistogramBuckets[i].Load()
	}

	if opCount > 0 {
		snap.LatencyP50Ns = m.calculatePercentile(0.50)
		snap.LatencyP99Ns = m.calculatePercentile(0.99)
		snap.LatencyP999Ns = m.calculatePercentile(0.999)
	}

	return snap
}

// calculatePercentile estimates the latency at the given percentile
// (0.0-1.0) by linear interpolation between histogram buckets.
func (m *Metrics) calculatePercentile(percentile float64) uint64 {
	totalOps := m.OpCount.Load()
	if totalOps == 0 {
		return 0
	}
	targetCount := uint64(float64(totalOps) * percentile)

	prevBucket := uint64(0)
	for i, bucket := range LatencyBuckets {
		bucketCount := m.LatencyHistogramBuckets[i].Load()
		if bucketCount >= targetCount {
			prevCount := uint64(0)
			if i > 0 {
				prevCount = m.LatencyHistogramBuckets[i-1].Load()
			}
			if bucketCount == prevCount {
				return bucket
			}
			fraction := float64(targetCount-prevCount) / float64(bucketCount-prevCount)
			return prevBucket + uint64(fraction*float64(bucket-prevBucket))
		}
		prevBucket = bucket
	}
	return LatencyBuckets[numLatencyBuckets-1]
}

// MetricsObserver adapts Metrics to driver.Observer so it can be wired
// directly into a DispatchTask's or RequestTask's Observer field.
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver returns an Observer that records into m.
func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

func (o *MetricsObserver) ObserveRequest(_ uint32, latencyNs uint64, success bool) {
	o.metrics.RecordRequest(latencyNs, success)
}

func (o *MetricsObserver) ObserveDrop(reason string) {
	o.metrics.RecordDrop(reason)
}

func (o *MetricsObserver) ObserveSteal(kind string, count int) {
	o.metrics.RecordSteal(kind, count)
}

func (o *MetricsObserver) ObserveQueueDepth(_ int, depth uint32) {
	o.metrics.RecordQueueDepth(depth)
}

var _ driver.Observer = (*MetricsObserver)(nil)
