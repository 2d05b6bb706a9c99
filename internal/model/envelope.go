package model

import "time"

type FrameType string

const (
	FrameWelcome  FrameType = "welcome"
	FrameSnapshot FrameType = "snapshot"
	FrameResult   FrameType = "result"
	FrameNotice   FrameType = "notice"
)

// Envelope is transport-agnostic framing for outbound payloads.
type Envelope struct {
	Type      FrameType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// Welcome is sent once a session becomes active.
type Welcome struct {
	SessionID       string  `json:"session_id"`
	Topics          []Topic `json:"topics"`
	IntervalMs      int64   `json:"interval_ms"`
	UpdateAvailable string  `json:"update_available,omitempty"`
}

// Notice reports a session-level condition, such as a rejected message or
// the reason a session is about to close.
type Notice struct {
	Level   string `json:"level"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
