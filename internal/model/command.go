package model

import (
	"errors"
	"time"
)

type CommandKind string

const (
	CommandProcessSignal CommandKind = "process-signal"
	CommandShellExec     CommandKind = "shell-exec"
	CommandSoftwareOp    CommandKind = "software-op"
	CommandServiceOp     CommandKind = "service-op"
	CommandNetPing       CommandKind = "net-ping"
	CommandFileOp        CommandKind = "file-op"
	CommandPowerOp       CommandKind = "power-op"
)

type ErrorKind string

const (
	ErrorKindNone             ErrorKind = ""
	ErrorKindInvalidRequest   ErrorKind = "invalid-request"
	ErrorKindNotFound         ErrorKind = "not-found"
	ErrorKindPermissionDenied ErrorKind = "permission-denied"
	ErrorKindTimeout          ErrorKind = "timeout"
	ErrorKindFailed           ErrorKind = "failed"
	ErrorKindUnavailable      ErrorKind = "unavailable"
	ErrorKindBusy             ErrorKind = "busy"
	ErrorKindInternal         ErrorKind = "internal"
)

// Signal names accepted by process-signal requests.
var SignalNames = []string{"terminate", "kill", "suspend", "resume", "hangup", "interrupt"}

func KnownSignal(name string) bool {
	for _, n := range SignalNames {
		if n == name {
			return true
		}
	}
	return false
}

// Host operation failures. Implementations wrap these so the executor can
// classify them with errors.Is.
var (
	ErrNotFound         = errors.New("not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrUnavailable      = errors.New("host facility unavailable")
	ErrTimeout          = errors.New("operation timed out")
	ErrCommandFailed    = errors.New("command failed")
)

// CommandRequest is one control action bound to the session that issued it.
type CommandRequest struct {
	ID          string      `json:"id"`
	Kind        CommandKind `json:"kind"`
	SessionID   string      `json:"session_id"`
	SubmittedAt time.Time   `json:"submitted_at"`

	// process-signal
	PID    int32  `json:"pid,omitempty"`
	Signal string `json:"signal,omitempty"`
	// shell-exec
	Command string `json:"command,omitempty"`
	// software-op, service-op, file-op, power-op
	Action      string `json:"action,omitempty"`
	SoftwareIDs []int  `json:"software_ids,omitempty"`
	Service     string `json:"service,omitempty"`
	// net-ping
	Target string `json:"target,omitempty"`
	// file-op
	Path    string `json:"path,omitempty"`
	Content string `json:"content,omitempty"`
}

// CommandResult is delivered only to the session named by SessionID.
type CommandResult struct {
	RequestID  string      `json:"request_id"`
	SessionID  string      `json:"-"`
	Kind       CommandKind `json:"kind"`
	OK         bool        `json:"ok"`
	ErrorKind  ErrorKind   `json:"error_kind,omitempty"`
	Message    string      `json:"message,omitempty"`
	ExitCode   int         `json:"exit_code"`
	Output     string      `json:"output,omitempty"`
	Payload    any         `json:"payload,omitempty"`
	FinishedAt time.Time   `json:"finished_at"`
}

func FailedResult(req CommandRequest, kind ErrorKind, msg string, at time.Time) CommandResult {
	return CommandResult{
		RequestID:  req.ID,
		SessionID:  req.SessionID,
		Kind:       req.Kind,
		OK:         false,
		ErrorKind:  kind,
		Message:    msg,
		ExitCode:   -1,
		FinishedAt: at,
	}
}

// ExecOutput is what a host-level command reports back.
type ExecOutput struct {
	ExitCode int
	Output   string
}

type PingStats struct {
	Target      string  `json:"target"`
	Address     string  `json:"address"`
	PacketsSent int     `json:"packets_sent"`
	PacketsRecv int     `json:"packets_recv"`
	PacketLoss  float64 `json:"packet_loss"`
	MinRTTMs    float64 `json:"min_rtt_ms"`
	AvgRTTMs    float64 `json:"avg_rtt_ms"`
	MaxRTTMs    float64 `json:"max_rtt_ms"`
}

// FileEntry is one item of a directory listing.
type FileEntry struct {
	Name    string    `json:"name"`
	Dir     bool      `json:"dir"`
	Size    int64     `json:"size"`
	Mode    string    `json:"mode"`
	ModTime time.Time `json:"mod_time"`
}

type DirListing struct {
	Path      string      `json:"path"`
	Entries   []FileEntry `json:"entries"`
	Truncated bool        `json:"truncated,omitempty"`
}

type FileContent struct {
	Path      string `json:"path"`
	Size      int64  `json:"size"`
	Content   string `json:"content"`
	Truncated bool   `json:"truncated,omitempty"`
}
