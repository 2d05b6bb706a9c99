package hostops

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sys/unix"

	"dietpi-dashboard/internal/model"
)

var signalsByName = map[string]unix.Signal{
	"terminate": unix.SIGTERM,
	"kill":      unix.SIGKILL,
	"suspend":   unix.SIGSTOP,
	"resume":    unix.SIGCONT,
	"hangup":    unix.SIGHUP,
	"interrupt": unix.SIGINT,
}

// Signaler delivers signals to host processes.
type Signaler struct {
	kill func(pid int, sig unix.Signal) error
}

func NewSignaler() *Signaler {
	return &Signaler{kill: unix.Kill}
}

func (s *Signaler) Signal(_ context.Context, pid int32, name string) error {
	sig, ok := signalsByName[name]
	if !ok {
		return fmt.Errorf("unknown signal %q: %w", name, model.ErrCommandFailed)
	}
	if pid <= 0 {
		return fmt.Errorf("pid %d: %w", pid, model.ErrNotFound)
	}
	err := s.kill(int(pid), sig)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, unix.ESRCH):
		return fmt.Errorf("process %d: %w", pid, model.ErrNotFound)
	case errors.Is(err, unix.EPERM):
		return fmt.Errorf("signal %s to %d: %w", name, pid, model.ErrPermissionDenied)
	default:
		return fmt.Errorf("signal %s to %d: %v: %w", name, pid, err, model.ErrCommandFailed)
	}
}
