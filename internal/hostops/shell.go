package hostops

import (
	"context"

	"dietpi-dashboard/internal/model"
)

// Shell runs one command line through a POSIX shell.
type Shell struct {
	path  string
	limit int
}

func NewShell(path string, outputLimit int) *Shell {
	if path == "" {
		path = "/bin/sh"
	}
	return &Shell{path: path, limit: outputLimit}
}

func (s *Shell) Run(ctx context.Context, command string) (model.ExecOutput, error) {
	return run(ctx, s.limit, nil, s.path, "-c", command)
}
