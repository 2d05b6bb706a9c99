package session

import (
	"context"
	"sync"
	"time"

	"dietpi-dashboard/internal/model"
)

type State string

const (
	StateConnecting     State = "connecting"
	StateAuthenticating State = "authenticating"
	StateActive         State = "active"
	StateClosed         State = "closed"
)

// Reason records why a session was closed.
type Reason string

const (
	ReasonIdleTimeout      Reason = "idle-timeout"
	ReasonClientDisconnect Reason = "client-disconnect"
	ReasonAuthFailure      Reason = "auth-failure"
	ReasonMalformedMessage Reason = "malformed-message"
	ReasonTokenExpired     Reason = "token-expired"
	ReasonShutdown         Reason = "shutdown"
)

// Session is the server-side state of one connected client. All mutable
// fields are guarded by mu; the outbox has its own lock.
type Session struct {
	id        string
	subject   string
	createdAt time.Time
	outbox    *Outbox
	ctx       context.Context
	cancel    context.CancelFunc

	mu        sync.Mutex
	state     State
	reason    Reason
	topics    model.TopicSet
	lastSeen  time.Time
	lastAck   time.Time
	expiresAt time.Time
}

func newSession(ctx context.Context, id string, now time.Time, outbox *Outbox) *Session {
	sctx, cancel := context.WithCancel(ctx)
	return &Session{
		id:        id,
		createdAt: now,
		outbox:    outbox,
		ctx:       sctx,
		cancel:    cancel,
		state:     StateConnecting,
		topics:    model.NewTopicSet(),
		lastSeen:  now,
	}
}

func (s *Session) ID() string { return s.id }

// Subject is the authenticated principal, empty for anonymous sessions.
func (s *Session) Subject() string { return s.subject }

func (s *Session) CreatedAt() time.Time { return s.createdAt }

func (s *Session) Outbox() *Outbox { return s.outbox }

// Context is cancelled when the session closes.
func (s *Session) Context() context.Context { return s.ctx }

func (s *Session) Done() <-chan struct{} { return s.ctx.Done() }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// CloseReason is empty until the session is closed.
func (s *Session) CloseReason() Reason {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

func (s *Session) Topics() model.TopicSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.topics.Clone()
}

func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

func (s *Session) LastAck() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAck
}

// TokenExpiry is zero when the session has no expiring credential.
func (s *Session) TokenExpiry() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expiresAt
}

// TokenExpired reports whether the session credential has lapsed at now.
func (s *Session) TokenExpired(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.expiresAt.IsZero() && !now.Before(s.expiresAt)
}

// OfferSnapshot narrows snap to the session's topics and queues it. The
// topic check and the push happen under the session lock so a concurrent
// unsubscribe is never overtaken.
func (s *Session) OfferSnapshot(snap model.Snapshot) (PushResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive {
		return Rejected, false
	}
	sub, ok := snap.Subset(s.topics)
	if !ok {
		return Rejected, false
	}
	return s.outbox.PushSnapshot(model.Envelope{
		Type:      model.FrameSnapshot,
		Timestamp: sub.Timestamp,
		Payload:   sub,
	}), true
}

// Deliver queues a control frame. Frames for a closed session are dropped.
func (s *Session) Deliver(env model.Envelope) PushResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return Rejected
	}
	return s.outbox.PushControl(env)
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return
	}
	s.state = st
}

// close moves the session to its terminal state. It reports false when the
// session was already closed.
func (s *Session) close(reason Reason) bool {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return false
	}
	s.state = StateClosed
	s.reason = reason
	s.topics = model.NewTopicSet()
	s.mu.Unlock()

	s.outbox.Close()
	s.cancel()
	return true
}
