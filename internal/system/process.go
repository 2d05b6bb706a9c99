package system

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shirou/gopsutil/v3/process"

	"dietpi-dashboard/internal/model"
)

// ProcessReader samples the process table. Handles are kept across reads so
// CPU percentages cover the interval between two ticks rather than the
// whole lifetime of the process.
type ProcessReader struct {
	mu      sync.Mutex
	limit   int
	handles map[int32]*process.Process
}

func NewProcessReader(limit int) *ProcessReader {
	return &ProcessReader{limit: limit, handles: make(map[int32]*process.Process)}
}

func (r *ProcessReader) Topic() model.Topic { return model.TopicProcesses }

func (r *ProcessReader) Read(ctx context.Context) (any, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	live := make(map[int32]*process.Process, len(procs))
	records := make([]model.ProcessRecord, 0, len(procs))
	for _, fresh := range procs {
		p, ok := r.handles[fresh.Pid]
		if !ok {
			p = fresh
		}
		// Name fails once the process has exited; skip it.
		name, nameErr := p.NameWithContext(ctx)
		if nameErr != nil {
			continue
		}
		live[p.Pid] = p

		rec := model.ProcessRecord{PID: p.Pid, Name: name}
		if pct, cpuErr := p.PercentWithContext(ctx, 0); cpuErr == nil {
			rec.CPUPercent = round2(pct)
		}
		if mi, memErr := p.MemoryInfoWithContext(ctx); memErr == nil && mi != nil {
			rec.MemoryBytes = mi.RSS
		}
		if st, stErr := p.StatusWithContext(ctx); stErr == nil && len(st) > 0 {
			rec.State = normalizeProcessState(st[0])
		}
		records = append(records, rec)
	}
	r.handles = live

	sortProcesses(records)
	if r.limit > 0 && len(records) > r.limit {
		records = records[:r.limit]
	}
	return model.ProcessTable{Processes: records}, nil
}

func sortProcesses(records []model.ProcessRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].CPUPercent != records[j].CPUPercent {
			return records[i].CPUPercent > records[j].CPUPercent
		}
		return records[i].PID < records[j].PID
	})
}

func normalizeProcessState(raw string) string {
	switch raw {
	case "running", "R":
		return "running"
	case "sleep", "S", "D", "wait", "W", "blocked":
		return "sleeping"
	case "idle", "I":
		return "idle"
	case "stop", "T", "t":
		return "stopped"
	case "zombie", "Z":
		return "zombie"
	case "dead", "X":
		return "dead"
	default:
		return raw
	}
}
