package flashkv

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecordRequestUpdatesCountersAndHistogram(t *testing.T) {
	m := NewMetrics()
	m.RecordRequest(500, true)
	m.RecordRequest(5_000_000, false)

	snap := m.Snapshot()
	assert.Equal(t, uint64(1), snap.RequestsOK)
	assert.Equal(t, uint64(1), snap.RequestsFailed)
	assert.Equal(t, uint64(2), snap.TotalRequests)
	assert.Equal(t, 50.0, snap.ErrorRate)
}

func TestRecordDropTracksByReason(t *testing.T) {
	m := NewMetrics()
	m.RecordDrop("l2_decode")
	m.RecordDrop("l2_decode")
	m.RecordDrop("l3_short")

	snap := m.Snapshot()
	assert.Equal(t, uint64(3), snap.DropsTotal)
	assert.Equal(t, uint64(2), snap.DropsByReason["l2_decode"])
	assert.Equal(t, uint64(1), snap.DropsByReason["l3_short"])
}

func TestRecordStealSplitsByKind(t *testing.T) {
	m := NewMetrics()
	m.RecordSteal("packet", 4)
	m.RecordSteal("task", 1)
	m.RecordSteal("packet", 0)

	snap := m.Snapshot()
	assert.Equal(t, uint64(4), snap.PacketStealsTotal)
	assert.Equal(t, uint64(1), snap.TaskStealsTotal)
}

func TestRecordQueueDepthTracksMaxAndAverage(t *testing.T) {
	m := NewMetrics()
	m.RecordQueueDepth(2)
	m.RecordQueueDepth(8)
	m.RecordQueueDepth(4)

	snap := m.Snapshot()
	assert.Equal(t, uint32(8), snap.MaxQueueDepth)
	assert.InDelta(t, 14.0/3.0, snap.AvgQueueDepth, 0.0001)
}

func TestPercentilesAreMonotonic(t *testing.T) {
	m := NewMetrics()
	latencies := []uint64{500, 5_000, 50_000, 500_000, 5_000_000, 50_000_000}
	for _, l := range latencies {
		m.RecordRequest(l, true)
	}

	snap := m.Snapshot()
	assert.LessOrEqual(t, snap.LatencyP50Ns, snap.LatencyP99Ns)
	assert.LessOrEqual(t, snap.LatencyP99Ns, snap.LatencyP999Ns)
}

func TestMetricsObserverSatisfiesDriverObserver(t *testing.T) {
	m := NewMetrics()
	o := NewMetricsObserver(m)

	o.ObserveRequest(1, 1000, true)
	o.ObserveDrop("l4_envelope")
	o.ObserveSteal("task", 2)
	o.ObserveQueueDepth(0, 6)

	snap := m.Snapshot()
	assert.Equal(t, uint64(1), snap.RequestsOK)
	assert.Equal(t, uint64(1), snap.DropsByReason["l4_envelope"])
	assert.Equal(t, uint64(2), snap.TaskStealsTotal)
	assert.Equal(t, uint32(6), snap.MaxQueueDepth)
}

func TestStopSetsStopTimeAndUptimeStopsGrowing(t *testing.T) {
	m := NewMetrics()
	m.Stop()
	snap1 := m.Snapshot()
	snap2 := m.Snapshot()
	assert.Equal(t, snap1.UptimeNs, snap2.UptimeNs)
}
