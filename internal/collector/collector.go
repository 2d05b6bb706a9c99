package collector

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"dietpi-dashboard/internal/model"
)

// ErrNoTopics is returned when no enabled topic produced a value.
var ErrNoTopics = errors.New("collector: no topic could be read")

// Reader captures the current state of one topic.
type Reader interface {
	Topic() model.Topic
	Read(ctx context.Context) (any, error)
}

// Slow topics change rarely and are expensive to read.
var slowTopics = model.NewTopicSet(model.TopicHost, model.TopicServices, model.TopicSoftware, model.TopicContainers)

type Options struct {
	// ReadTimeout bounds how long Collect waits for one topic.
	ReadTimeout time.Duration
	// SlowRefresh is how long a slow topic value is served as fresh.
	SlowRefresh time.Duration
	// MaxReadDuration cancels reads that keep running in the background.
	MaxReadDuration time.Duration
}

type Collector struct {
	logger *slog.Logger
	opts   Options
	slots  []*slot
	now    func() time.Time
}

func New(logger *slog.Logger, readers []Reader, opts Options) *Collector {
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = time.Second
	}
	if opts.MaxReadDuration < opts.ReadTimeout {
		opts.MaxReadDuration = 30 * opts.ReadTimeout
	}
	c := &Collector{logger: logger, opts: opts, now: time.Now}
	for _, r := range readers {
		s := &slot{reader: r}
		if slowTopics.Has(r.Topic()) {
			s.refresh = opts.SlowRefresh
		}
		c.slots = append(c.slots, s)
	}
	return c
}

// Topics returns the topics this collector can produce.
func (c *Collector) Topics() model.TopicSet {
	set := model.NewTopicSet()
	for _, s := range c.slots {
		set[s.reader.Topic()] = struct{}{}
	}
	return set
}

type topicValue struct {
	topic model.Topic
	value any
	stale bool
	ok    bool
}

// Collect reads every topic concurrently and assembles one snapshot. A
// topic that misses the read budget is served from cache flagged stale,
// a failed topic is omitted.
func (c *Collector) Collect(ctx context.Context) (model.Snapshot, error) {
	at := c.now()
	results := make([]topicValue, len(c.slots))

	var wg sync.WaitGroup
	for i, s := range c.slots {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = c.fetch(ctx, s, at)
		}()
	}
	wg.Wait()

	topics := make(map[model.Topic]any, len(results))
	var stale []model.Topic
	for _, r := range results {
		if !r.ok {
			continue
		}
		topics[r.topic] = r.value
		if r.stale {
			stale = append(stale, r.topic)
		}
	}
	if len(topics) == 0 {
		return model.Snapshot{}, ErrNoTopics
	}
	return model.NewSnapshot(at, topics, stale), nil
}

func (c *Collector) fetch(ctx context.Context, s *slot, at time.Time) topicValue {
	topic := s.reader.Topic()

	s.mu.Lock()
	if s.hasValue && s.refresh > 0 && at.Sub(s.fetchedAt) < s.refresh {
		v := s.value
		s.mu.Unlock()
		return topicValue{topic: topic, value: v, ok: true}
	}
	run := s.inflight
	if run == nil {
		run = &readRun{done: make(chan struct{})}
		s.inflight = run
		go c.read(ctx, s, run)
	}
	s.mu.Unlock()

	timer := time.NewTimer(c.opts.ReadTimeout)
	defer timer.Stop()

	select {
	case <-run.done:
		if run.err != nil {
			c.logger.Warn("topic read failed", "topic", topic, "error", run.err)
			return topicValue{topic: topic}
		}
		return topicValue{topic: topic, value: run.value, ok: true}
	case <-timer.C:
	case <-ctx.Done():
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasValue {
		c.logger.Debug("topic read slow and nothing cached", "topic", topic)
		return topicValue{topic: topic}
	}
	return topicValue{topic: topic, value: s.value, stale: true, ok: true}
}

// read runs detached from the tick so a slow reader can still refresh the
// cache for the next snapshot.
func (c *Collector) read(ctx context.Context, s *slot, run *readRun) {
	rctx, cancel := context.WithTimeout(ctx, c.opts.MaxReadDuration)
	defer cancel()

	v, err := s.reader.Read(rctx)
	finished := c.now()

	s.mu.Lock()
	if err == nil {
		s.value = v
		s.hasValue = true
		s.fetchedAt = finished
	}
	run.value, run.err = v, err
	s.inflight = nil
	s.mu.Unlock()
	close(run.done)
}

type slot struct {
	reader  Reader
	refresh time.Duration

	mu        sync.Mutex
	inflight  *readRun
	value     any
	hasValue  bool
	fetchedAt time.Time
}

type readRun struct {
	done  chan struct{}
	value any
	err   error
}
