package system

import (
	"testing"
	"time"

	gopsnet "github.com/shirou/gopsutil/v3/net"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeltaEngineRate(t *testing.T) {
	e := newDeltaEngine()
	t0 := time.Unix(1000, 0)

	assert.Zero(t, e.Rate("eth0/rx", t0, 100), "first sample has no rate")
	assert.Equal(t, 50.0, e.Rate("eth0/rx", t0.Add(2*time.Second), 200))

	_, _, ok := e.ObserveCounter("eth0/rx", t0.Add(3*time.Second), 10)
	assert.False(t, ok, "counter reset yields no delta")

	_, _, ok = e.ObserveCounter("eth0/rx", t0.Add(3*time.Second), 20)
	assert.False(t, ok, "zero elapsed time yields no delta")
}

func TestDeltaEngineForget(t *testing.T) {
	e := newDeltaEngine()
	now := time.Unix(1000, 0)
	e.Rate("a", now, 1)
	e.Rate("b", now, 1)

	e.Forget(map[string]struct{}{"a": {}})
	require.Len(t, e.samples, 1)
	_, ok := e.samples["a"]
	assert.True(t, ok)
}

func TestNetworkBuild(t *testing.T) {
	r := NewNetworkReader()
	t0 := time.Unix(2000, 0)

	first := r.build([]gopsnet.IOCountersStat{
		{Name: "lo", BytesSent: 5, BytesRecv: 5},
		{Name: "wlan0", BytesSent: 1000, BytesRecv: 4000},
		{Name: "eth0", BytesSent: 10, BytesRecv: 20},
	}, t0)
	require.Len(t, first.Interfaces, 2, "loopback is skipped")
	assert.Equal(t, "eth0", first.Interfaces[0].Name)
	assert.Zero(t, first.Interfaces[1].RecvPerSec)

	second := r.build([]gopsnet.IOCountersStat{
		{Name: "wlan0", BytesSent: 3000, BytesRecv: 8000},
	}, t0.Add(4*time.Second))
	require.Len(t, second.Interfaces, 1)
	assert.Equal(t, 500.0, second.Interfaces[0].SentPerSec)
	assert.Equal(t, 1000.0, second.Interfaces[0].RecvPerSec)
	assert.Len(t, r.deltas.samples, 2, "vanished interfaces are forgotten")
}
