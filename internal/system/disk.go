package system

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/shirou/gopsutil/v3/disk"

	"dietpi-dashboard/internal/model"
)

// DiskReader reports usage per mounted filesystem. A mount that cannot be
// stat'ed (device removed, permission denied) is skipped; the topic only
// fails when no mount could be read.
type DiskReader struct {
	logger *slog.Logger
}

func NewDiskReader(logger *slog.Logger) *DiskReader {
	return &DiskReader{logger: logger}
}

func (r *DiskReader) Topic() model.Topic { return model.TopicDisk }

func (r *DiskReader) Read(ctx context.Context) (any, error) {
	parts, err := disk.PartitionsWithContext(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("list partitions: %w", err)
	}
	out := model.DiskStats{Mounts: make([]model.DiskUsage, 0, len(parts))}
	seen := make(map[string]struct{}, len(parts))
	var errs []error
	for _, p := range parts {
		if !isPhysicalFS(p.Fstype) {
			continue
		}
		if _, dup := seen[p.Mountpoint]; dup {
			continue
		}
		seen[p.Mountpoint] = struct{}{}
		u, usageErr := disk.UsageWithContext(ctx, p.Mountpoint)
		if usageErr != nil {
			errs = append(errs, fmt.Errorf("usage %s: %w", p.Mountpoint, usageErr))
			continue
		}
		out.Mounts = append(out.Mounts, model.DiskUsage{
			Mountpoint: p.Mountpoint,
			Device:     p.Device,
			Fstype:     p.Fstype,
			Used:       u.Used,
			Total:      u.Total,
			Percent:    round2(u.UsedPercent),
		})
	}
	if len(out.Mounts) == 0 {
		if len(errs) > 0 {
			return nil, errors.Join(errs...)
		}
		return nil, errors.New("no mounted filesystems")
	}
	if len(errs) > 0 && r.logger != nil {
		r.logger.Debug("some mounts skipped", "error", errors.Join(errs...))
	}
	sort.Slice(out.Mounts, func(i, j int) bool { return out.Mounts[i].Mountpoint < out.Mounts[j].Mountpoint })
	return out, nil
}

func isPhysicalFS(fstype string) bool {
	switch strings.ToLower(fstype) {
	case "", "tmpfs", "devtmpfs", "squashfs", "overlay", "proc", "sysfs", "cgroup", "cgroup2", "devpts", "autofs", "mqueue", "debugfs", "tracefs", "securityfs", "pstore", "bpf", "configfs", "fusectl", "ramfs", "nsfs":
		return false
	}
	return true
}
