package system

import (
	"context"
	"fmt"
	"math"

	"github.com/shirou/gopsutil/v3/cpu"

	"dietpi-dashboard/internal/model"
)

// CPUReader reports utilization since its previous call. The first call
// measures against the counters sampled at package init.
type CPUReader struct{}

func NewCPUReader() *CPUReader {
	return &CPUReader{}
}

func (r *CPUReader) Topic() model.Topic { return model.TopicCPU }

func (r *CPUReader) Read(ctx context.Context) (any, error) {
	perCore, err := cpu.PercentWithContext(ctx, 0, true)
	if err != nil {
		return nil, fmt.Errorf("read per-core cpu: %w", err)
	}
	if len(perCore) == 0 {
		return nil, fmt.Errorf("no cpu cores reported")
	}
	out := model.CPUStats{PerCore: make([]float64, 0, len(perCore))}
	var sum float64
	for _, p := range perCore {
		p = round2(clampPercent(p))
		out.PerCore = append(out.PerCore, p)
		sum += p
	}
	out.Total = round2(sum / float64(len(perCore)))
	return out, nil
}

func clampPercent(value float64) float64 {
	if value < 0 || math.IsNaN(value) {
		return 0
	}
	if value > 100 {
		return 100
	}
	return value
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
