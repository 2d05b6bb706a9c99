package model

import (
	"slices"
	"time"
)

// Snapshot is one point-in-time capture of host metrics. It is built once
// per collection tick and must not be mutated afterwards; consumers get
// narrowed copies through Subset.
type Snapshot struct {
	Timestamp time.Time     `json:"timestamp"`
	Topics    map[Topic]any `json:"topics"`
	Stale     []Topic       `json:"stale,omitempty"`
}

func NewSnapshot(at time.Time, topics map[Topic]any, stale []Topic) Snapshot {
	if topics == nil {
		topics = map[Topic]any{}
	}
	st := append([]Topic(nil), stale...)
	slices.Sort(st)
	return Snapshot{Timestamp: at, Topics: topics, Stale: st}
}

// Available returns the set of topics carried by the snapshot.
func (s Snapshot) Available() TopicSet {
	set := make(TopicSet, len(s.Topics))
	for t := range s.Topics {
		set[t] = struct{}{}
	}
	return set
}

func (s Snapshot) Has(t Topic) bool {
	_, ok := s.Topics[t]
	return ok
}

func (s Snapshot) IsStale(t Topic) bool {
	return slices.Contains(s.Stale, t)
}

// Subset returns a copy carrying only the topics present in both the
// snapshot and set. ok is false when nothing intersects.
func (s Snapshot) Subset(set TopicSet) (Snapshot, bool) {
	out := Snapshot{Timestamp: s.Timestamp, Topics: make(map[Topic]any, len(set))}
	for t := range set {
		v, present := s.Topics[t]
		if !present {
			continue
		}
		out.Topics[t] = v
		if s.IsStale(t) {
			out.Stale = append(out.Stale, t)
		}
	}
	if len(out.Topics) == 0 {
		return Snapshot{}, false
	}
	slices.Sort(out.Stale)
	return out, true
}

type CPUStats struct {
	Total   float64   `json:"total"`
	PerCore []float64 `json:"per_core"`
}

type MemoryStats struct {
	Used      uint64  `json:"used"`
	Total     uint64  `json:"total"`
	Available uint64  `json:"available,omitempty"`
	Percent   float64 `json:"percent"`
}

type DiskUsage struct {
	Mountpoint string  `json:"mountpoint"`
	Device     string  `json:"device"`
	Fstype     string  `json:"fstype"`
	Used       uint64  `json:"used"`
	Total      uint64  `json:"total"`
	Percent    float64 `json:"percent"`
}

type DiskStats struct {
	Mounts []DiskUsage `json:"mounts"`
}

type InterfaceCounters struct {
	Name       string  `json:"name"`
	BytesSent  uint64  `json:"bytes_sent"`
	BytesRecv  uint64  `json:"bytes_recv"`
	SentPerSec float64 `json:"sent_per_sec"`
	RecvPerSec float64 `json:"recv_per_sec"`
}

type NetworkStats struct {
	Interfaces []InterfaceCounters `json:"interfaces"`
}

type ProcessRecord struct {
	PID         int32   `json:"pid"`
	Name        string  `json:"name"`
	CPUPercent  float64 `json:"cpu_percent"`
	MemoryBytes uint64  `json:"memory_bytes"`
	State       string  `json:"state"`
}

type ProcessTable struct {
	Processes []ProcessRecord `json:"processes"`
}

type HostInfo struct {
	Hostname        string  `json:"hostname"`
	Uptime          uint64  `json:"uptime"`
	Arch            string  `json:"arch"`
	Kernel          string  `json:"kernel"`
	Platform        string  `json:"platform"`
	DietPiVersion   string  `json:"dietpi_version,omitempty"`
	Packages        int     `json:"packages"`
	Upgrades        int     `json:"upgrades"`
	UpdateAvailable string  `json:"update_available,omitempty"`
	Load1           float64 `json:"load1"`
	Load5           float64 `json:"load5"`
	Load15          float64 `json:"load15"`
}

type ServiceInfo struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Since  string `json:"since,omitempty"`
	Log    string `json:"log,omitempty"`
}

type ServiceList struct {
	Services []ServiceInfo `json:"services"`
}

type SoftwareInfo struct {
	ID           int    `json:"id"`
	Installed    bool   `json:"installed"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	Dependencies string `json:"dependencies,omitempty"`
	Docs         string `json:"docs,omitempty"`
}

type SoftwareList struct {
	Software []SoftwareInfo `json:"software"`
}

type ContainerInfo struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Image   string `json:"image"`
	Status  string `json:"status"`
	State   string `json:"state"`
	Created int64  `json:"created"`
}

type ContainerList struct {
	Containers []ContainerInfo `json:"containers"`
}
