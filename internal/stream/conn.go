package stream

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"dietpi-dashboard/internal/model"
)

// Conn frames envelopes and client messages over one websocket with the
// negotiated codec. Writes are serialized and bounded by writeTimeout.
type Conn struct {
	mu sync.Mutex

	logger       *slog.Logger
	ws           *websocket.Conn
	codec        Codec
	writeTimeout time.Duration
	pingInterval time.Duration
}

func NewConn(ws *websocket.Conn, codec Codec, writeTimeout, pingInterval time.Duration, logger *slog.Logger) *Conn {
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	if pingInterval <= 0 {
		pingInterval = 10 * time.Second
	}
	return &Conn{
		logger:       logger,
		ws:           ws,
		codec:        codec,
		writeTimeout: writeTimeout,
		pingInterval: pingInterval,
	}
}

func (c *Conn) Codec() Codec { return c.codec }

func (c *Conn) WriteEnvelope(ctx context.Context, env model.Envelope) error {
	payload, err := c.codec.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	return c.write(ctx, payload)
}

func (c *Conn) WriteMessage(ctx context.Context, msg ClientMessage) error {
	payload, err := c.codec.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	return c.write(ctx, payload)
}

func (c *Conn) write(ctx context.Context, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	wctx, cancel := context.WithTimeout(ctx, c.writeTimeout)
	defer cancel()
	if err := c.ws.Write(wctx, c.codec.MessageType(), payload); err != nil {
		return fmt.Errorf("websocket write: %w", err)
	}
	return nil
}

// ReadMessage blocks for the next client frame. Transport errors are
// returned as is; undecodable frames wrap ErrMalformed.
func (c *Conn) ReadMessage(ctx context.Context) (ClientMessage, error) {
	typ, data, err := c.ws.Read(ctx)
	if err != nil {
		return ClientMessage{}, err
	}
	if typ != c.codec.MessageType() {
		return ClientMessage{}, fmt.Errorf("%w: unexpected frame type %v", ErrMalformed, typ)
	}
	return Decode(c.codec, data)
}

// Frame is an outbound envelope as seen by a client.
type Frame struct {
	Type      model.FrameType `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   map[string]any  `json:"payload"`
}

func (c *Conn) ReadFrame(ctx context.Context) (Frame, error) {
	_, data, err := c.ws.Read(ctx)
	if err != nil {
		return Frame{}, err
	}
	var f Frame
	if err := c.codec.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("decode frame: %w", err)
	}
	return f, nil
}

// RunPing pings the peer until ctx ends. nhooyr needs a concurrent reader
// for pongs to be observed.
func (c *Conn) RunPing(ctx context.Context) {
	t := time.NewTicker(c.pingInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			pingCtx, cancel := context.WithTimeout(ctx, c.writeTimeout)
			err := c.ws.Ping(pingCtx)
			cancel()
			if err != nil && ctx.Err() == nil {
				c.logger.Debug("websocket ping failed", "error", err)
			}
		}
	}
}

func (c *Conn) Close(code websocket.StatusCode, reason string) error {
	return c.ws.Close(code, reason)
}

type DialOptions struct {
	Subprotocol string
	TLSConfig   *tls.Config
	Header      http.Header
	ReadLimit   int64
}

// Dial opens a client connection to a dashboard websocket endpoint.
func Dial(ctx context.Context, url string, opts DialOptions, logger *slog.Logger) (*Conn, *http.Response, error) {
	if opts.Subprotocol == "" {
		opts.Subprotocol = SubprotocolJSON
	}
	dopts := &websocket.DialOptions{HTTPHeader: opts.Header, Subprotocols: []string{opts.Subprotocol}}
	if opts.TLSConfig != nil {
		dopts.HTTPClient = &http.Client{Transport: &http.Transport{TLSClientConfig: opts.TLSConfig}}
	}
	ws, resp, err := websocket.Dial(ctx, url, dopts)
	if err != nil {
		return nil, resp, fmt.Errorf("websocket dial %s: %w", url, err)
	}
	if opts.ReadLimit > 0 {
		ws.SetReadLimit(opts.ReadLimit)
	} else {
		ws.SetReadLimit(10 << 20)
	}
	return NewConn(ws, CodecFor(ws.Subprotocol()), 0, 0, logger), resp, nil
}
