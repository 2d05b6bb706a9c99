package session

import (
	"sync"

	"github.com/eapache/queue"

	"dietpi-dashboard/internal/model"
)

// PushResult tells what happened to a frame offered to an outbox.
type PushResult int

const (
	Queued PushResult = iota
	// QueuedDroppedOldest means the lane was full and its oldest frame was discarded.
	QueuedDroppedOldest
	// Rejected means the outbox is closed; the frame was discarded.
	Rejected
)

// Outbox is a bounded per-session send queue with two lanes. The snapshot
// lane keeps only the newest frames; the control lane carries command
// results and notices and is drained first. Pushes never block.
type Outbox struct {
	mu         sync.Mutex
	snapshots  *queue.Queue
	control    *queue.Queue
	snapCap    int
	controlCap int
	closed     bool
	ready      chan struct{}

	droppedSnapshots uint64
	droppedControl   uint64
}

func NewOutbox(snapshotCapacity, controlCapacity int) *Outbox {
	if snapshotCapacity <= 0 {
		snapshotCapacity = 1
	}
	if controlCapacity <= 0 {
		controlCapacity = 1
	}
	return &Outbox{
		snapshots:  queue.New(),
		control:    queue.New(),
		snapCap:    snapshotCapacity,
		controlCap: controlCapacity,
		ready:      make(chan struct{}, 1),
	}
}

func (o *Outbox) PushSnapshot(env model.Envelope) PushResult {
	return o.push(o.snapshots, o.snapCap, &o.droppedSnapshots, env, evictOldest)
}

// PushControl queues a result or notice. On overflow notices are evicted
// before command results.
func (o *Outbox) PushControl(env model.Envelope) PushResult {
	return o.push(o.control, o.controlCap, &o.droppedControl, env, evictNoticeFirst)
}

func evictOldest(lane *queue.Queue) {
	lane.Remove()
}

// evictNoticeFirst drops the oldest frame that is not a command result, or
// the oldest frame when the lane holds only results.
func evictNoticeFirst(lane *queue.Queue) {
	n := lane.Length()
	victim := 0
	for i := 0; i < n; i++ {
		if lane.Get(i).(model.Envelope).Type != model.FrameResult {
			victim = i
			break
		}
	}
	if victim == 0 {
		lane.Remove()
		return
	}
	kept := make([]any, 0, n-1)
	for i := 0; i < n; i++ {
		v := lane.Remove()
		if i != victim {
			kept = append(kept, v)
		}
	}
	for _, v := range kept {
		lane.Add(v)
	}
}

func (o *Outbox) push(lane *queue.Queue, capacity int, dropped *uint64, env model.Envelope, evict func(*queue.Queue)) PushResult {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return Rejected
	}
	res := Queued
	for lane.Length() >= capacity {
		evict(lane)
		*dropped++
		res = QueuedDroppedOldest
	}
	lane.Add(env)
	o.mu.Unlock()

	select {
	case o.ready <- struct{}{}:
	default:
	}
	return res
}

// Pop returns the next frame, control lane first.
func (o *Outbox) Pop() (model.Envelope, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return model.Envelope{}, false
	}
	if o.control.Length() > 0 {
		return o.control.Remove().(model.Envelope), true
	}
	if o.snapshots.Length() > 0 {
		return o.snapshots.Remove().(model.Envelope), true
	}
	return model.Envelope{}, false
}

// Ready is signalled after a push. A receive does not guarantee a frame:
// drain with Pop until it reports false.
func (o *Outbox) Ready() <-chan struct{} {
	return o.ready
}

func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.control.Length() + o.snapshots.Length()
}

// Dropped reports frames discarded for overflow, per lane.
func (o *Outbox) Dropped() (snapshots, control uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.droppedSnapshots, o.droppedControl
}

// Close discards pending frames. Later pushes are rejected.
func (o *Outbox) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	o.closed = true
	o.snapshots = queue.New()
	o.control = queue.New()
}

func (o *Outbox) Closed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}
