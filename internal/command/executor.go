package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"dietpi-dashboard/internal/model"
)

type Options struct {
	CommandTimeout  time.Duration
	SoftwareTimeout time.Duration
	// Backlog is the number of commands a session may have outstanding,
	// running or waiting.
	Backlog      int
	ShellEnabled bool
	PowerEnabled bool
}

// DeliverFunc hands a finished result back to the issuing session.
type DeliverFunc func(model.CommandResult)

// Executor runs commands against the host. Commands from one session run
// one at a time in submission order; sessions do not wait on each other.
type Executor struct {
	logger *slog.Logger
	host   Host
	opts   Options
	now    func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.Mutex
	lanes map[string]*lane
}

type job struct {
	req     model.CommandRequest
	deliver DeliverFunc
}

type lane struct {
	sessionID string
	pending   []job
	running   bool
	busy      bool
	cancelled bool
}

func NewExecutor(logger *slog.Logger, host Host, opts Options) *Executor {
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = time.Minute
	}
	if opts.SoftwareTimeout <= 0 {
		opts.SoftwareTimeout = opts.CommandTimeout
	}
	if opts.Backlog <= 0 {
		opts.Backlog = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Executor{
		logger: logger,
		host:   host,
		opts:   opts,
		now:    time.Now,
		ctx:    ctx,
		cancel: cancel,
		lanes:  make(map[string]*lane),
	}
}

// Submit queues req on its session's lane. Invalid requests and requests
// arriving at a full lane are answered immediately through deliver.
func (e *Executor) Submit(req model.CommandRequest, deliver DeliverFunc) {
	if req.SubmittedAt.IsZero() {
		req.SubmittedAt = e.now()
	}
	if err := Validate(req); err != nil {
		deliver(model.FailedResult(req, model.ErrorKindInvalidRequest, err.Error(), e.now()))
		return
	}

	e.mu.Lock()
	if e.ctx.Err() != nil {
		e.mu.Unlock()
		deliver(model.FailedResult(req, model.ErrorKindUnavailable, "executor shutting down", e.now()))
		return
	}
	l, ok := e.lanes[req.SessionID]
	if !ok {
		l = &lane{sessionID: req.SessionID}
		e.lanes[req.SessionID] = l
	}
	if l.outstanding() >= e.opts.Backlog {
		e.mu.Unlock()
		deliver(model.FailedResult(req, model.ErrorKindBusy, "too many pending commands", e.now()))
		return
	}
	l.pending = append(l.pending, job{req: req, deliver: deliver})
	start := !l.running
	l.running = true
	if start {
		e.wg.Add(1)
	}
	e.mu.Unlock()

	if start {
		go e.drain(l)
	}
}

func (e *Executor) drain(l *lane) {
	defer e.wg.Done()
	for {
		e.mu.Lock()
		l.busy = false
		if len(l.pending) == 0 || l.cancelled {
			l.running = false
			if e.lanes[l.sessionID] == l {
				delete(e.lanes, l.sessionID)
			}
			e.mu.Unlock()
			return
		}
		next := l.pending[0]
		l.pending = l.pending[1:]
		l.busy = true
		e.mu.Unlock()

		res := e.Execute(e.ctx, next.req)

		e.mu.Lock()
		discard := l.cancelled
		e.mu.Unlock()
		if discard {
			e.logger.Debug("discarding result for closed session", "session_id", l.sessionID, "request_id", next.req.ID)
			continue
		}
		next.deliver(res)
	}
}

// Cancel drops pending commands of a session. A command already running is
// left to finish but its result is discarded.
func (e *Executor) Cancel(sessionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.lanes[sessionID]
	if !ok {
		return
	}
	l.cancelled = true
	l.pending = nil
	delete(e.lanes, sessionID)
}

// Pending reports the commands a session has outstanding.
func (e *Executor) Pending(sessionID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if l, ok := e.lanes[sessionID]; ok {
		return l.outstanding()
	}
	return 0
}

func (l *lane) outstanding() int {
	if l.busy {
		return len(l.pending) + 1
	}
	return len(l.pending)
}

// Shutdown stops accepting commands, cancels running ones and waits for
// lanes to finish or ctx to end.
func (e *Executor) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	e.cancel()
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Execute runs req synchronously. Host failures are reported in the result.
func (e *Executor) Execute(ctx context.Context, req model.CommandRequest) model.CommandResult {
	if err := Validate(req); err != nil {
		return model.FailedResult(req, model.ErrorKindInvalidRequest, err.Error(), e.now())
	}

	timeout := e.opts.CommandTimeout
	if req.Kind == model.CommandSoftwareOp {
		timeout = e.opts.SoftwareTimeout
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	started := e.now()
	out, payload, err := e.dispatch(cctx, req)
	finished := e.now()

	if err != nil {
		kind := classify(cctx, err)
		res := model.FailedResult(req, kind, err.Error(), finished)
		if out != nil {
			res.ExitCode = out.ExitCode
			res.Output = out.Output
		}
		e.logger.Info("command failed",
			"session_id", req.SessionID,
			"request_id", req.ID,
			"kind", req.Kind,
			"error_kind", kind,
			"error", err,
		)
		return res
	}

	res := model.CommandResult{
		RequestID:  req.ID,
		SessionID:  req.SessionID,
		Kind:       req.Kind,
		OK:         true,
		Payload:    payload,
		FinishedAt: finished,
	}
	if out != nil {
		res.ExitCode = out.ExitCode
		res.Output = out.Output
	}
	e.logger.Debug("command done", "session_id", req.SessionID, "request_id", req.ID, "kind", req.Kind, "took", finished.Sub(started))
	return res
}

func (e *Executor) dispatch(ctx context.Context, req model.CommandRequest) (*model.ExecOutput, any, error) {
	switch req.Kind {
	case model.CommandProcessSignal:
		if e.host.Signals == nil {
			return nil, nil, unavailable(req.Kind)
		}
		return nil, nil, e.host.Signals.Signal(ctx, req.PID, req.Signal)
	case model.CommandShellExec:
		if !e.opts.ShellEnabled {
			return nil, nil, fmt.Errorf("shell execution disabled: %w", model.ErrPermissionDenied)
		}
		if e.host.Shell == nil {
			return nil, nil, unavailable(req.Kind)
		}
		out, err := e.host.Shell.Run(ctx, req.Command)
		return &out, nil, err
	case model.CommandSoftwareOp:
		if e.host.Software == nil {
			return nil, nil, unavailable(req.Kind)
		}
		out, err := e.host.Software.Apply(ctx, req.Action, req.SoftwareIDs)
		return &out, nil, err
	case model.CommandServiceOp:
		if e.host.Services == nil {
			return nil, nil, unavailable(req.Kind)
		}
		out, err := e.host.Services.Control(ctx, req.Action, req.Service)
		return &out, nil, err
	case model.CommandNetPing:
		if e.host.Ping == nil {
			return nil, nil, unavailable(req.Kind)
		}
		stats, err := e.host.Ping.Ping(ctx, req.Target)
		if err != nil {
			return nil, nil, err
		}
		return nil, stats, nil
	case model.CommandFileOp:
		if e.host.Files == nil {
			return nil, nil, unavailable(req.Kind)
		}
		payload, err := e.fileOp(ctx, req)
		return nil, payload, err
	case model.CommandPowerOp:
		if !e.opts.PowerEnabled {
			return nil, nil, fmt.Errorf("power control disabled: %w", model.ErrPermissionDenied)
		}
		if e.host.Power == nil {
			return nil, nil, unavailable(req.Kind)
		}
		out, err := e.host.Power.Power(ctx, req.Action)
		return &out, nil, err
	}
	return nil, nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidRequest, req.Kind)
}

func (e *Executor) fileOp(ctx context.Context, req model.CommandRequest) (any, error) {
	switch req.Action {
	case "list":
		return e.host.Files.List(ctx, req.Path)
	case "read":
		return e.host.Files.Read(ctx, req.Path)
	case "write":
		return nil, e.host.Files.Write(ctx, req.Path, req.Content)
	case "mkdir":
		return nil, e.host.Files.Mkdir(ctx, req.Path)
	}
	return nil, fmt.Errorf("%w: unknown file action %q", ErrInvalidRequest, req.Action)
}

func unavailable(kind model.CommandKind) error {
	return fmt.Errorf("%s: %w", kind, model.ErrUnavailable)
}

func classify(ctx context.Context, err error) model.ErrorKind {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return model.ErrorKindInvalidRequest
	case errors.Is(err, model.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return model.ErrorKindTimeout
	case errors.Is(err, model.ErrNotFound):
		return model.ErrorKindNotFound
	case errors.Is(err, model.ErrPermissionDenied):
		return model.ErrorKindPermissionDenied
	case errors.Is(err, model.ErrUnavailable):
		return model.ErrorKindUnavailable
	case errors.Is(err, model.ErrCommandFailed):
		return model.ErrorKindFailed
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return model.ErrorKindTimeout
	case errors.Is(err, context.Canceled):
		return model.ErrorKindUnavailable
	default:
		return model.ErrorKindInternal
	}
}
