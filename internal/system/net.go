package system

import (
	"context"
	"fmt"
	"sort"
	"time"

	gopsnet "github.com/shirou/gopsutil/v3/net"

	"dietpi-dashboard/internal/model"
)

type NetworkReader struct {
	deltas *deltaEngine
	now    func() time.Time
}

func NewNetworkReader() *NetworkReader {
	return &NetworkReader{deltas: newDeltaEngine(), now: time.Now}
}

func (r *NetworkReader) Topic() model.Topic { return model.TopicNetwork }

func (r *NetworkReader) Read(ctx context.Context) (any, error) {
	counters, err := gopsnet.IOCountersWithContext(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("read net counters: %w", err)
	}
	return r.build(counters, r.now()), nil
}

func (r *NetworkReader) build(counters []gopsnet.IOCountersStat, now time.Time) model.NetworkStats {
	out := model.NetworkStats{Interfaces: make([]model.InterfaceCounters, 0, len(counters))}
	keep := make(map[string]struct{}, len(counters)*2)
	for _, c := range counters {
		if c.Name == "lo" || c.Name == "" {
			continue
		}
		sentKey, recvKey := c.Name+"/tx", c.Name+"/rx"
		keep[sentKey] = struct{}{}
		keep[recvKey] = struct{}{}
		out.Interfaces = append(out.Interfaces, model.InterfaceCounters{
			Name:       c.Name,
			BytesSent:  c.BytesSent,
			BytesRecv:  c.BytesRecv,
			SentPerSec: r.deltas.Rate(sentKey, now, c.BytesSent),
			RecvPerSec: r.deltas.Rate(recvKey, now, c.BytesRecv),
		})
	}
	r.deltas.Forget(keep)
	sort.Slice(out.Interfaces, func(i, j int) bool { return out.Interfaces[i].Name < out.Interfaces[j].Name })
	return out
}
