package command

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"dietpi-dashboard/internal/model"
)

var ErrInvalidRequest = errors.New("invalid command request")

var (
	unitName   = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9@._:-]*$`)
	targetName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._:-]*$`)
)

const (
	maxCommandLength = 4096
	maxPathLength    = 4096
	// MaxFileWrite bounds file-op write content.
	MaxFileWrite = 64 << 10
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

// Validate rejects requests that cannot be dispatched.
func Validate(req model.CommandRequest) error {
	if strings.TrimSpace(req.ID) == "" {
		return invalid("missing request id")
	}
	if req.SessionID == "" {
		return invalid("missing session id")
	}
	switch req.Kind {
	case model.CommandProcessSignal:
		if req.PID <= 0 {
			return invalid("pid must be positive")
		}
		if !model.KnownSignal(req.Signal) {
			return invalid("unknown signal %q", req.Signal)
		}
	case model.CommandShellExec:
		if strings.TrimSpace(req.Command) == "" {
			return invalid("empty command")
		}
		if len(req.Command) > maxCommandLength {
			return invalid("command longer than %d bytes", maxCommandLength)
		}
	case model.CommandSoftwareOp:
		switch req.Action {
		case "install", "uninstall", "reinstall":
		default:
			return invalid("unknown software action %q", req.Action)
		}
		if len(req.SoftwareIDs) == 0 {
			return invalid("no software ids")
		}
		for _, id := range req.SoftwareIDs {
			if id < 0 {
				return invalid("software id %d", id)
			}
		}
	case model.CommandServiceOp:
		switch req.Action {
		case "start", "stop", "restart":
		default:
			return invalid("unknown service action %q", req.Action)
		}
		if !unitName.MatchString(req.Service) {
			return invalid("bad service name %q", req.Service)
		}
	case model.CommandNetPing:
		if !targetName.MatchString(req.Target) {
			return invalid("bad ping target %q", req.Target)
		}
	case model.CommandFileOp:
		switch req.Action {
		case "list", "read", "mkdir":
		case "write":
			if len(req.Content) > MaxFileWrite {
				return invalid("content longer than %d bytes", MaxFileWrite)
			}
		default:
			return invalid("unknown file action %q", req.Action)
		}
		if err := validatePath(req.Path); err != nil {
			return err
		}
	case model.CommandPowerOp:
		switch req.Action {
		case "reboot", "poweroff", "halt":
		default:
			return invalid("unknown power action %q", req.Action)
		}
	default:
		return invalid("unknown kind %q", req.Kind)
	}
	return nil
}

// validatePath accepts absolute, already clean paths only.
func validatePath(path string) error {
	switch {
	case path == "":
		return invalid("empty path")
	case len(path) > maxPathLength:
		return invalid("path longer than %d bytes", maxPathLength)
	case strings.ContainsRune(path, 0):
		return invalid("path contains NUL")
	case !filepath.IsAbs(path):
		return invalid("path %q is not absolute", path)
	case filepath.Clean(path) != path:
		return invalid("path %q is not clean", path)
	}
	return nil
}
