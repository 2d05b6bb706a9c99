package hostops

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"time"

	"dietpi-dashboard/internal/model"
)

const DefaultOutputLimit = 64 << 10

// waitDelay bounds how long output pipes held by orphaned children may
// delay a killed command.
const waitDelay = 2 * time.Second

// run executes name with args and captures combined output up to limit
// bytes. A non-zero exit is reported as ErrCommandFailed together with the
// output so callers can surface both.
func run(ctx context.Context, limit int, env []string, name string, args ...string) (model.ExecOutput, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if len(env) > 0 {
		cmd.Env = append(cmd.Environ(), env...)
	}
	out := &cappedBuffer{limit: limit}
	cmd.Stdout = out
	cmd.Stderr = out
	cmd.WaitDelay = waitDelay

	err := cmd.Run()
	res := model.ExecOutput{Output: out.String()}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}

	switch {
	case err == nil:
		return res, nil
	case ctx.Err() != nil:
		return res, fmt.Errorf("%s: %w", name, model.ErrTimeout)
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, fs.ErrNotExist):
		return res, fmt.Errorf("%s: %w", name, model.ErrUnavailable)
	case errors.Is(err, fs.ErrPermission):
		return res, fmt.Errorf("%s: %w", name, model.ErrPermissionDenied)
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return res, fmt.Errorf("%s exited with %d: %w", name, res.ExitCode, model.ErrCommandFailed)
	}
	return res, fmt.Errorf("%s: %v: %w", name, err, model.ErrCommandFailed)
}

type cappedBuffer struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	if b.limit <= 0 {
		return b.buf.Write(p)
	}
	room := b.limit - b.buf.Len()
	if room <= 0 {
		b.truncated = true
		return len(p), nil
	}
	if len(p) > room {
		b.buf.Write(p[:room])
		b.truncated = true
		return len(p), nil
	}
	return b.buf.Write(p)
}

func (b *cappedBuffer) String() string {
	if b.truncated {
		return b.buf.String() + "\n[output truncated]"
	}
	return b.buf.String()
}
