package hostops

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	probing "github.com/prometheus-community/pro-bing"

	"dietpi-dashboard/internal/model"
)

// Pinger sends ICMP echo requests. It uses unprivileged datagram sockets,
// which need net.ipv4.ping_group_range to include the process group.
type Pinger struct {
	count    int
	interval time.Duration
}

func NewPinger() *Pinger {
	return &Pinger{count: 4, interval: 250 * time.Millisecond}
}

func (p *Pinger) Ping(ctx context.Context, target string) (model.PingStats, error) {
	pinger, err := probing.NewPinger(target)
	if err != nil {
		return model.PingStats{}, fmt.Errorf("resolve %s: %w", target, model.ErrNotFound)
	}
	pinger.Count = p.count
	pinger.Interval = p.interval
	pinger.SetPrivileged(false)
	if deadline, ok := ctx.Deadline(); ok {
		pinger.Timeout = time.Until(deadline)
	}

	if err := pinger.RunWithContext(ctx); err != nil {
		switch {
		case errors.Is(err, fs.ErrPermission):
			return model.PingStats{}, fmt.Errorf("ping %s: %w", target, model.ErrPermissionDenied)
		case ctx.Err() != nil:
			return model.PingStats{}, fmt.Errorf("ping %s: %w", target, model.ErrTimeout)
		default:
			return model.PingStats{}, fmt.Errorf("ping %s: %v: %w", target, err, model.ErrCommandFailed)
		}
	}

	st := pinger.Statistics()
	return model.PingStats{
		Target:      target,
		Address:     st.Addr,
		PacketsSent: st.PacketsSent,
		PacketsRecv: st.PacketsRecv,
		PacketLoss:  st.PacketLoss,
		MinRTTMs:    float64(st.MinRtt) / float64(time.Millisecond),
		AvgRTTMs:    float64(st.AvgRtt) / float64(time.Millisecond),
		MaxRTTMs:    float64(st.MaxRtt) / float64(time.Millisecond),
	}, nil
}
