package session

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"dietpi-dashboard/internal/model"
)

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrHandshakeTimeout = errors.New("handshake timed out")
	ErrAuthFailed       = errors.New("authentication failed")
)

// Credentials is what a successful handshake yields.
type Credentials struct {
	Subject   string
	ExpiresAt time.Time
}

// Handshaker performs the transport-specific authentication exchange.
type Handshaker interface {
	Handshake(ctx context.Context) (Credentials, error)
}

type HandshakeFunc func(ctx context.Context) (Credentials, error)

func (f HandshakeFunc) Handshake(ctx context.Context) (Credentials, error) { return f(ctx) }

type Options struct {
	HandshakeTimeout     time.Duration
	IdleTimeout          time.Duration
	SweepInterval        time.Duration
	QueueCapacity        int
	ControlQueueCapacity int
	Shards               int
}

// Manager owns the live session table. The table is sharded by session id;
// each shard has its own lock and each session its own mutex.
type Manager struct {
	logger *slog.Logger
	opts   Options
	shards []*shard
	mask   uint32
	count  atomic.Int64
	now    func() time.Time

	hooksMu sync.RWMutex
	onClose []func(*Session, Reason)
}

type shard struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewManager(logger *slog.Logger, opts Options) *Manager {
	if opts.Shards <= 0 {
		opts.Shards = 16
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = time.Second
	}
	n := nextPowerOfTwo(uint32(opts.Shards))
	shards := make([]*shard, n)
	for i := range shards {
		shards[i] = &shard{sessions: make(map[string]*Session)}
	}
	return &Manager{logger: logger, opts: opts, shards: shards, mask: n - 1, now: time.Now}
}

// OnClose registers fn to run once for every session that leaves the table.
func (m *Manager) OnClose(fn func(*Session, Reason)) {
	m.hooksMu.Lock()
	defer m.hooksMu.Unlock()
	m.onClose = append(m.onClose, fn)
}

// Register authenticates a new connection and adds it to the table. The
// session starts with no subscriptions.
func (m *Manager) Register(ctx context.Context, hs Handshaker) (*Session, error) {
	s := newSession(ctx, uuid.NewString(), m.now(), NewOutbox(m.opts.QueueCapacity, m.opts.ControlQueueCapacity))
	s.setState(StateAuthenticating)

	hctx := ctx
	if m.opts.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		hctx, cancel = context.WithTimeout(ctx, m.opts.HandshakeTimeout)
		defer cancel()
	}
	creds, err := hs.Handshake(hctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(hctx.Err(), context.DeadlineExceeded) {
			s.close(ReasonAuthFailure)
			return nil, fmt.Errorf("%w: %v", ErrHandshakeTimeout, err)
		}
		s.close(ReasonAuthFailure)
		if errors.Is(err, ErrAuthFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}

	s.subject = creds.Subject
	s.mu.Lock()
	s.expiresAt = creds.ExpiresAt
	s.lastSeen = m.now()
	s.mu.Unlock()
	s.setState(StateActive)

	sh := m.shard(s.id)
	sh.mu.Lock()
	sh.sessions[s.id] = s
	sh.mu.Unlock()
	m.count.Add(1)

	m.logger.Info("session registered", "session_id", s.id, "subject", creds.Subject)
	return s, nil
}

func (m *Manager) Get(id string) (*Session, bool) {
	sh := m.shard(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	s, ok := sh.sessions[id]
	return s, ok
}

// Subscribe adds topics to the session and returns the resulting set.
// Subscribing to an already subscribed topic changes nothing.
func (m *Manager) Subscribe(id string, topics model.TopicSet) (model.TopicSet, error) {
	s, ok := m.Get(id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive {
		return nil, ErrSessionNotFound
	}
	s.topics.Add(topics)
	s.lastSeen = maxTime(s.lastSeen, m.now())
	return s.topics.Clone(), nil
}

// Unsubscribe removes topics from the session and returns the resulting set.
func (m *Manager) Unsubscribe(id string, topics model.TopicSet) (model.TopicSet, error) {
	s, ok := m.Get(id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive {
		return nil, ErrSessionNotFound
	}
	s.topics.Remove(topics)
	s.lastSeen = maxTime(s.lastSeen, m.now())
	return s.topics.Clone(), nil
}

// Heartbeat resets the idle clock. A non-zero ack records the timestamp of
// the newest snapshot the client has processed.
func (m *Manager) Heartbeat(id string, ack time.Time) error {
	s, ok := m.Get(id)
	if !ok {
		return ErrSessionNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive {
		return ErrSessionNotFound
	}
	s.lastSeen = maxTime(s.lastSeen, m.now())
	if ack.After(s.lastAck) {
		s.lastAck = ack
	}
	return nil
}

// Renew replaces the session credential expiry after a re-authentication.
func (m *Manager) Renew(id string, expiresAt time.Time) error {
	s, ok := m.Get(id)
	if !ok {
		return ErrSessionNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive {
		return ErrSessionNotFound
	}
	s.expiresAt = expiresAt
	s.lastSeen = maxTime(s.lastSeen, m.now())
	return nil
}

// Touch records inbound activity without an ack.
func (m *Manager) Touch(id string) error {
	return m.Heartbeat(id, time.Time{})
}

// Remove closes the session and drops it from the table. Pending frames
// are discarded. It reports false when the session was already gone.
func (m *Manager) Remove(id string, reason Reason) bool {
	sh := m.shard(id)
	sh.mu.Lock()
	s, ok := sh.sessions[id]
	if ok {
		delete(sh.sessions, id)
	}
	sh.mu.Unlock()
	if !ok {
		return false
	}
	m.count.Add(-1)
	if !s.close(reason) {
		return false
	}

	m.logger.Info("session closed", "session_id", id, "reason", reason)
	m.hooksMu.RLock()
	hooks := slices.Clone(m.onClose)
	m.hooksMu.RUnlock()
	for _, fn := range hooks {
		fn(s, reason)
	}
	return true
}

// Range calls fn for every live session. fn must not call Remove.
func (m *Manager) Range(fn func(*Session)) {
	for _, sh := range m.shards {
		sh.mu.RLock()
		for _, s := range sh.sessions {
			fn(s)
		}
		sh.mu.RUnlock()
	}
}

// Sessions returns a point-in-time copy of the live sessions.
func (m *Manager) Sessions() []*Session {
	out := make([]*Session, 0, m.Count())
	m.Range(func(s *Session) { out = append(out, s) })
	return out
}

func (m *Manager) Count() int {
	return int(m.count.Load())
}

// Sweep closes sessions idle for longer than IdleTimeout and sessions
// whose credential expired. It returns the removed ids.
func (m *Manager) Sweep(now time.Time) []string {
	type victim struct {
		id     string
		reason Reason
	}
	var victims []victim
	m.Range(func(s *Session) {
		switch {
		case m.opts.IdleTimeout > 0 && now.Sub(s.LastSeen()) > m.opts.IdleTimeout:
			victims = append(victims, victim{s.id, ReasonIdleTimeout})
		case s.TokenExpired(now):
			victims = append(victims, victim{s.id, ReasonTokenExpired})
		}
	})

	removed := make([]string, 0, len(victims))
	for _, v := range victims {
		if m.Remove(v.id, v.reason) {
			removed = append(removed, v.id)
		}
	}
	return removed
}

// RunReaper sweeps on SweepInterval until ctx ends.
func (m *Manager) RunReaper(ctx context.Context) error {
	ticker := time.NewTicker(m.opts.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if removed := m.Sweep(m.now()); len(removed) > 0 {
				m.logger.Debug("reaper closed sessions", "count", len(removed))
			}
		}
	}
}

// CloseAll removes every session with reason.
func (m *Manager) CloseAll(reason Reason) int {
	closed := 0
	for _, s := range m.Sessions() {
		if m.Remove(s.id, reason) {
			closed++
		}
	}
	return closed
}

func (m *Manager) shard(id string) *shard {
	return m.shards[fnv32(id)&m.mask]
}

func fnv32(key string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(key))
	return h.Sum32()
}

func nextPowerOfTwo(v uint32) uint32 {
	v--
	v |= v >> 1
	v |= v >> 2
	v |= v >> 4
	v |= v >> 8
	v |= v >> 16
	v++
	return v
}

func maxTime(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}
