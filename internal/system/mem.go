package system

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v3/mem"

	"dietpi-dashboard/internal/model"
)

type MemoryReader struct{}

func NewMemoryReader() *MemoryReader {
	return &MemoryReader{}
}

func (r *MemoryReader) Topic() model.Topic { return model.TopicMemory }

func (r *MemoryReader) Read(ctx context.Context) (any, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("read virtual memory: %w", err)
	}
	if vm.Total == 0 {
		return nil, fmt.Errorf("MemTotal missing")
	}
	return model.MemoryStats{
		Used:      vm.Used,
		Total:     vm.Total,
		Available: vm.Available,
		Percent:   round2(vm.UsedPercent),
	}, nil
}

type SwapReader struct{}

func NewSwapReader() *SwapReader {
	return &SwapReader{}
}

func (r *SwapReader) Topic() model.Topic { return model.TopicSwap }

func (r *SwapReader) Read(ctx context.Context) (any, error) {
	sw, err := mem.SwapMemoryWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("read swap: %w", err)
	}
	return model.MemoryStats{
		Used:    sw.Used,
		Total:   sw.Total,
		Percent: round2(sw.UsedPercent),
	}, nil
}
