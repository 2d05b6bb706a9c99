package stream

import (
	"errors"
	"fmt"
	"time"

	"dietpi-dashboard/internal/model"
)

type MessageType string

const (
	MessageAuth        MessageType = "auth"
	MessageSubscribe   MessageType = "subscribe"
	MessageUnsubscribe MessageType = "unsubscribe"
	MessageHeartbeat   MessageType = "heartbeat"
	MessageCommand     MessageType = "command"
)

// ErrMalformed marks an inbound frame that cannot be decoded or classified.
var ErrMalformed = errors.New("malformed message")

// ClientMessage is one inbound frame.
type ClientMessage struct {
	Type    MessageType     `json:"type"`
	Token   string          `json:"token,omitempty"`
	Topics  []string        `json:"topics,omitempty"`
	AckMs   int64           `json:"ack,omitempty"`
	Command *CommandPayload `json:"command,omitempty"`
}

type CommandPayload struct {
	ID          string            `json:"id"`
	Kind        model.CommandKind `json:"kind"`
	PID         int32             `json:"pid,omitempty"`
	Signal      string            `json:"signal,omitempty"`
	Command     string            `json:"command,omitempty"`
	Action      string            `json:"action,omitempty"`
	SoftwareIDs []int             `json:"software_ids,omitempty"`
	Service     string            `json:"service,omitempty"`
	Target      string            `json:"target,omitempty"`
	Path        string            `json:"path,omitempty"`
	Content     string            `json:"content,omitempty"`
}

// Decode reads one frame and checks that it carries what its type needs.
// Topic names are not checked here; an unknown topic is a request error,
// not a protocol violation.
func Decode(codec Codec, data []byte) (ClientMessage, error) {
	var msg ClientMessage
	if err := codec.Unmarshal(data, &msg); err != nil {
		return ClientMessage{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	switch msg.Type {
	case MessageAuth, MessageHeartbeat:
	case MessageSubscribe, MessageUnsubscribe:
		if len(msg.Topics) == 0 {
			return ClientMessage{}, fmt.Errorf("%w: %s without topics", ErrMalformed, msg.Type)
		}
	case MessageCommand:
		if msg.Command == nil {
			return ClientMessage{}, fmt.Errorf("%w: command without body", ErrMalformed)
		}
	default:
		return ClientMessage{}, fmt.Errorf("%w: unknown type %q", ErrMalformed, msg.Type)
	}
	return msg, nil
}

// Ack returns the acknowledged snapshot time, zero when absent.
func (m ClientMessage) Ack() time.Time {
	if m.AckMs <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(m.AckMs)
}

// Request binds the payload to the issuing session.
func (p CommandPayload) Request(sessionID string, at time.Time) model.CommandRequest {
	return model.CommandRequest{
		ID:          p.ID,
		Kind:        p.Kind,
		SessionID:   sessionID,
		SubmittedAt: at,
		PID:         p.PID,
		Signal:      p.Signal,
		Command:     p.Command,
		Action:      p.Action,
		SoftwareIDs: append([]int(nil), p.SoftwareIDs...),
		Service:     p.Service,
		Target:      p.Target,
		Path:        p.Path,
		Content:     p.Content,
	}
}

func ResultEnvelope(res model.CommandResult) model.Envelope {
	return model.Envelope{Type: model.FrameResult, Timestamp: res.FinishedAt, Payload: res}
}

func NoticeEnvelope(at time.Time, level, code, message string) model.Envelope {
	return model.Envelope{Type: model.FrameNotice, Timestamp: at, Payload: model.Notice{Level: level, Code: code, Message: message}}
}
