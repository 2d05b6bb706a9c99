package command

import (
	"context"

	"dietpi-dashboard/internal/model"
)

type Signaler interface {
	Signal(ctx context.Context, pid int32, signal string) error
}

type ShellRunner interface {
	Run(ctx context.Context, command string) (model.ExecOutput, error)
}

type SoftwareManager interface {
	Apply(ctx context.Context, action string, ids []int) (model.ExecOutput, error)
}

type ServiceManager interface {
	Control(ctx context.Context, action, unit string) (model.ExecOutput, error)
}

type Pinger interface {
	Ping(ctx context.Context, target string) (model.PingStats, error)
}

type FileManager interface {
	List(ctx context.Context, path string) (model.DirListing, error)
	Read(ctx context.Context, path string) (model.FileContent, error)
	Write(ctx context.Context, path, content string) error
	Mkdir(ctx context.Context, path string) error
}

type PowerManager interface {
	Power(ctx context.Context, action string) (model.ExecOutput, error)
}

// Host bundles the host operations commands are executed against. A nil
// member makes the matching command kind unavailable.
type Host struct {
	Signals  Signaler
	Shell    ShellRunner
	Software SoftwareManager
	Services ServiceManager
	Ping     Pinger
	Files    FileManager
	Power    PowerManager
}
