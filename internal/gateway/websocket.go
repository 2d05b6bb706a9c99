package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/sync/errgroup"
	"nhooyr.io/websocket"

	"dietpi-dashboard/internal/auth"
	"dietpi-dashboard/internal/model"
	"dietpi-dashboard/internal/session"
	"dietpi-dashboard/internal/stream"
)

// Application close codes.
const (
	StatusIdleTimeout  websocket.StatusCode = 4000
	StatusAuthFailure  websocket.StatusCode = 4001
	StatusTokenExpired websocket.StatusCode = 4002
)

var errSessionClosed = errors.New("session closed")

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.slots.TryAcquire(1) {
		n := s.refused.Add(1)
		s.logger.Warn("session limit reached, refusing connection", "remote", r.RemoteAddr, "max_sessions", s.opts.MaxSessions, "refused_total", n)
		http.Error(w, "too many sessions", http.StatusServiceUnavailable)
		return
	}
	defer s.slots.Release(1)

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:   stream.Subprotocols,
		OriginPatterns: s.opts.OriginPatterns,
	})
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	ws.SetReadLimit(s.opts.ReadLimit)
	conn := stream.NewConn(ws, stream.CodecFor(ws.Subprotocol()), s.opts.WriteTimeout, s.opts.PingInterval, s.logger)
	ctx := r.Context()

	sess, err := s.sessions.Register(ctx, s.handshaker(conn, r))
	if err != nil {
		s.logger.Info("handshake rejected", "remote", r.RemoteAddr, "error", err)
		reason := string(session.ReasonAuthFailure)
		if errors.Is(err, session.ErrHandshakeTimeout) {
			reason = "handshake-timeout"
		}
		_ = conn.Close(StatusAuthFailure, reason)
		return
	}

	log := s.logger.With("session_id", sess.ID())
	log.Info("session active", "remote", r.RemoteAddr, "codec", conn.Codec().Name())
	sess.Deliver(model.Envelope{Type: model.FrameWelcome, Timestamp: s.now(), Payload: s.welcome(sess)})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.writeLoop(gctx, conn, sess) })
	g.Go(func() error { return s.readLoop(gctx, conn, sess) })
	g.Go(func() error {
		conn.RunPing(gctx)
		return nil
	})
	err = g.Wait()

	s.sessions.Remove(sess.ID(), session.ReasonClientDisconnect)
	s.executor.Cancel(sess.ID())
	reason := sess.CloseReason()
	_ = conn.Close(closeCode(reason), string(reason))
	if errors.Is(err, errSessionClosed) {
		err = nil
	}
	log.Info("session ended", "reason", reason, "error", err)
}

// handshaker authenticates with a bearer header when present, otherwise
// with the first client message, which must be of type auth.
func (s *Server) handshaker(conn *stream.Conn, r *http.Request) session.Handshaker {
	return session.HandshakeFunc(func(ctx context.Context) (session.Credentials, error) {
		if !s.auth.Enabled() {
			return session.Credentials{}, nil
		}
		if bearer, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
			exp, err := s.auth.Verify(bearer)
			if err != nil {
				return session.Credentials{}, fmt.Errorf("%w: %v", session.ErrAuthFailed, err)
			}
			return session.Credentials{Subject: "root", ExpiresAt: exp}, nil
		}
		msg, err := readHandshake(ctx, r.Context(), conn)
		if err != nil {
			if ctx.Err() != nil {
				return session.Credentials{}, ctx.Err()
			}
			return session.Credentials{}, fmt.Errorf("%w: %v", session.ErrAuthFailed, err)
		}
		if msg.Type != stream.MessageAuth {
			return session.Credentials{}, fmt.Errorf("%w: expected auth message, got %q", session.ErrAuthFailed, msg.Type)
		}
		exp, err := s.auth.Verify(msg.Token)
		if err != nil {
			return session.Credentials{}, fmt.Errorf("%w: %v", session.ErrAuthFailed, err)
		}
		return session.Credentials{Subject: "root", ExpiresAt: exp}, nil
	})
}

// readHandshake waits for the first client message until deadline ends.
// The read itself runs on the connection's lifetime: an expired read context
// makes the websocket library drop the socket, and the caller still has to
// send the rejection close frame.
func readHandshake(deadline, lifetime context.Context, conn *stream.Conn) (stream.ClientMessage, error) {
	type result struct {
		msg stream.ClientMessage
		err error
	}
	ch := make(chan result, 1)
	go func() {
		msg, err := conn.ReadMessage(lifetime)
		ch <- result{msg: msg, err: err}
	}()
	select {
	case res := <-ch:
		return res.msg, res.err
	case <-deadline.Done():
		return stream.ClientMessage{}, deadline.Err()
	}
}

func (s *Server) welcome(sess *session.Session) model.Welcome {
	w := model.Welcome{
		SessionID:  sess.ID(),
		Topics:     s.topics.Slice(),
		IntervalMs: s.opts.CollectInterval.Milliseconds(),
	}
	if s.notice != nil {
		w.UpdateAvailable = s.notice()
	}
	return w
}

// writeLoop drains the outbox. When the session closes it sends the close
// frame matching the reason, which also ends the read loop.
func (s *Server) writeLoop(ctx context.Context, conn *stream.Conn, sess *session.Session) error {
	out := sess.Outbox()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-sess.Done():
			reason := sess.CloseReason()
			_ = conn.Close(closeCode(reason), string(reason))
			return errSessionClosed
		case <-out.Ready():
			for {
				env, ok := out.Pop()
				if !ok {
					break
				}
				if err := conn.WriteEnvelope(ctx, env); err != nil {
					s.sessions.Remove(sess.ID(), session.ReasonClientDisconnect)
					return err
				}
			}
		}
	}
}

func (s *Server) readLoop(ctx context.Context, conn *stream.Conn, sess *session.Session) error {
	for {
		msg, err := conn.ReadMessage(ctx)
		if err != nil {
			reason := session.ReasonClientDisconnect
			if errors.Is(err, stream.ErrMalformed) {
				reason = session.ReasonMalformedMessage
				s.logger.Info("malformed message", "session_id", sess.ID(), "error", err)
			}
			s.sessions.Remove(sess.ID(), reason)
			return err
		}
		if sess.TokenExpired(s.now()) {
			s.sessions.Remove(sess.ID(), session.ReasonTokenExpired)
			return errSessionClosed
		}
		if err := s.dispatch(sess, msg); err != nil {
			return err
		}
	}
}

func (s *Server) dispatch(sess *session.Session, msg stream.ClientMessage) error {
	id := sess.ID()
	var err error
	switch msg.Type {
	case stream.MessageSubscribe, stream.MessageUnsubscribe:
		topics, perr := model.ParseTopics(msg.Topics)
		if perr != nil {
			_ = s.sessions.Touch(id)
			sess.Deliver(stream.NoticeEnvelope(s.now(), "warn", "invalid-topic", perr.Error()))
			return nil
		}
		var now model.TopicSet
		if msg.Type == stream.MessageSubscribe {
			now, err = s.sessions.Subscribe(id, topics)
		} else {
			now, err = s.sessions.Unsubscribe(id, topics)
		}
		if err == nil {
			sess.Deliver(stream.NoticeEnvelope(s.now(), "info", "subscriptions", topicList(now)))
		}
	case stream.MessageHeartbeat:
		err = s.sessions.Heartbeat(id, msg.Ack())
	case stream.MessageAuth:
		exp, verr := s.auth.Verify(msg.Token)
		switch {
		case errors.Is(verr, auth.ErrAuthDisabled):
			err = s.sessions.Touch(id)
		case verr != nil:
			s.sessions.Remove(id, session.ReasonAuthFailure)
			return errSessionClosed
		default:
			err = s.sessions.Renew(id, exp)
		}
	case stream.MessageCommand:
		if err = s.sessions.Touch(id); err == nil {
			s.executor.Submit(msg.Command.Request(id, s.now()), s.deliverResult)
		}
	}
	if errors.Is(err, session.ErrSessionNotFound) {
		return errSessionClosed
	}
	return err
}

// deliverResult routes a command result to the session that issued it.
func (s *Server) deliverResult(res model.CommandResult) {
	sess, ok := s.sessions.Get(res.SessionID)
	if !ok {
		s.logger.Debug("result for gone session dropped", "session_id", res.SessionID, "request_id", res.RequestID)
		return
	}
	if sess.Deliver(stream.ResultEnvelope(res)) == session.QueuedDroppedOldest {
		s.logger.Warn("control queue overflow", "session_id", res.SessionID)
	}
}

func closeCode(reason session.Reason) websocket.StatusCode {
	switch reason {
	case session.ReasonIdleTimeout:
		return StatusIdleTimeout
	case session.ReasonAuthFailure:
		return StatusAuthFailure
	case session.ReasonTokenExpired:
		return StatusTokenExpired
	case session.ReasonMalformedMessage:
		return websocket.StatusUnsupportedData
	case session.ReasonShutdown:
		return websocket.StatusGoingAway
	default:
		return websocket.StatusNormalClosure
	}
}

func topicList(set model.TopicSet) string {
	names := make([]string, 0, len(set))
	for _, t := range set.Slice() {
		names = append(names, string(t))
	}
	return strings.Join(names, ",")
}
