package model

import (
	"fmt"
	"slices"
	"strings"
)

type Topic string

const (
	TopicCPU        Topic = "cpu"
	TopicMemory     Topic = "memory"
	TopicSwap       Topic = "swap"
	TopicDisk       Topic = "disk"
	TopicNetwork    Topic = "network"
	TopicProcesses  Topic = "processes"
	TopicHost       Topic = "host"
	TopicServices   Topic = "services"
	TopicSoftware   Topic = "software"
	TopicContainers Topic = "containers"
)

// AllTopics is the full topic catalogue in presentation order.
var AllTopics = []Topic{
	TopicCPU,
	TopicMemory,
	TopicSwap,
	TopicDisk,
	TopicNetwork,
	TopicProcesses,
	TopicHost,
	TopicServices,
	TopicSoftware,
	TopicContainers,
}

func (t Topic) Valid() bool {
	return slices.Contains(AllTopics, t)
}

// ParseTopics normalizes and validates topic names. Duplicates collapse.
func ParseTopics(names []string) (TopicSet, error) {
	set := make(TopicSet, len(names))
	for _, name := range names {
		t := Topic(strings.ToLower(strings.TrimSpace(name)))
		if !t.Valid() {
			return nil, fmt.Errorf("unknown topic %q", name)
		}
		set[t] = struct{}{}
	}
	return set, nil
}

type TopicSet map[Topic]struct{}

func NewTopicSet(topics ...Topic) TopicSet {
	set := make(TopicSet, len(topics))
	for _, t := range topics {
		set[t] = struct{}{}
	}
	return set
}

func (s TopicSet) Has(t Topic) bool {
	_, ok := s[t]
	return ok
}

// Add merges other into s and reports whether s changed.
func (s TopicSet) Add(other TopicSet) bool {
	changed := false
	for t := range other {
		if _, ok := s[t]; !ok {
			s[t] = struct{}{}
			changed = true
		}
	}
	return changed
}

// Remove deletes other from s and reports whether s changed.
func (s TopicSet) Remove(other TopicSet) bool {
	changed := false
	for t := range other {
		if _, ok := s[t]; ok {
			delete(s, t)
			changed = true
		}
	}
	return changed
}

func (s TopicSet) Intersects(other TopicSet) bool {
	small, large := s, other
	if len(large) < len(small) {
		small, large = large, small
	}
	for t := range small {
		if _, ok := large[t]; ok {
			return true
		}
	}
	return false
}

func (s TopicSet) Clone() TopicSet {
	out := make(TopicSet, len(s))
	for t := range s {
		out[t] = struct{}{}
	}
	return out
}

func (s TopicSet) Equal(other TopicSet) bool {
	if len(s) != len(other) {
		return false
	}
	for t := range s {
		if _, ok := other[t]; !ok {
			return false
		}
	}
	return true
}

// Slice returns the members sorted by name.
func (s TopicSet) Slice() []Topic {
	out := make([]Topic, 0, len(s))
	for t := range s {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}
