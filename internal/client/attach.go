package client

import (
	"encoding/json"
	"fmt"

	"github.com/amux-dev/amux/internal/proto"
)

// AttachStream is an open attach connection: Write sends raw bytes to
// the PTY, Next yields frames received from the daemon.
type AttachStream struct {
	client *Client
}

// Frame is one server-pushed attach frame.
type Frame struct {
	Type byte
	Data []byte
}

// Attach opens an attach stream to sessionID and blocks until the
// server acks the handshake, returning the replay snapshot and a usable
// stream for the rest of the session's lifetime.
func Attach(socketPath, sessionID string, cols, rows uint16) (*AttachStream, []byte, error) {
	c, err := Dial(socketPath)
	if err != nil {
		return nil, nil, err
	}

	if err := proto.WriteRequest(c.conn, proto.Request{Type: proto.ReqAttachSession}); err != nil {
		c.Close()
		return nil, nil, fmt.Errorf("client: attach request: %w", err)
	}

	openPayload, _ := json.Marshal(proto.AttachOpen{SessionID: sessionID, Cols: cols, Rows: rows})
	if err := proto.WriteFrame(c.conn, proto.FrameOpen, openPayload); err != nil {
		c.Close()
		return nil, nil, fmt.Errorf("client: sending open frame: %w", err)
	}

	frameType, replay, err := proto.ReadFrame(c.conn)
	if err != nil {
		c.Close()
		return nil, nil, fmt.Errorf("client: reading replay: %w", err)
	}
	if frameType != proto.FrameReplay {
		c.Close()
		return nil, nil, fmt.Errorf("client: expected replay frame, got %d", frameType)
	}

	if _, _, err := proto.ReadFrame(c.conn); err != nil {
		c.Close()
		return nil, nil, fmt.Errorf("client: reading ack: %w", err)
	}

	return &AttachStream{client: c}, replay, nil
}

// Write sends raw input bytes to the PTY.
func (a *AttachStream) Write(p []byte) error {
	return proto.WriteFrame(a.client.conn, proto.FrameData, p)
}

// Resize sends a resize frame.
func (a *AttachStream) Resize(cols, rows uint16) error {
	payload := []byte{byte(cols >> 8), byte(cols), byte(rows >> 8), byte(rows)}
	return proto.WriteFrame(a.client.conn, proto.FrameResize, payload)
}

// Next blocks for the next server-pushed frame.
func (a *AttachStream) Next() (Frame, error) {
	t, data, err := proto.ReadFrame(a.client.conn)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: t, Data: data}, nil
}

// Close detaches and closes the connection.
func (a *AttachStream) Close() error {
	_ = proto.WriteFrame(a.client.conn, proto.FrameClose, nil)
	return a.client.Close()
}
