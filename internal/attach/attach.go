// Package attach implements the bidirectional attach-stream state
// machine: AwaitingOpen -> Replaying -> Streaming -> {Closed | Exited}.
// It is transport-agnostic; internal/daemon drives one Machine per
// attached connection using the proto frame types.
package attach

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/amux-dev/amux/internal/proto"
)

// maxQueuedReplayFrames bounds how many Data frames a client can send
// while still in Replaying before the connection is treated as
// misbehaving and closed. A well-behaved client waits for Ack before
// typing ahead; this only guards against a client that floods input
// before the replay snapshot is even sent.
const maxQueuedReplayFrames = 256

// State is a point in the attach lifecycle.
type State int

const (
	AwaitingOpen State = iota
	Replaying
	Streaming
	Closed
	Exited
)

func (s State) String() string {
	switch s {
	case AwaitingOpen:
		return "awaiting_open"
	case Replaying:
		return "replaying"
	case Streaming:
		return "streaming"
	case Closed:
		return "closed"
	case Exited:
		return "exited"
	default:
		return "unknown"
	}
}

var ErrProtocol = errors.New("attach: protocol violation")

// Action tells the driver what to do after a Step.
type Action int

const (
	NoAction Action = iota
	SendAck
	SendReplay
	StartStreaming
	ForwardInput
	Resize
	CloseConnection
)

// Result is the outcome of one Step call.
type Result struct {
	Action    Action
	SessionID uuid.UUID
	Cols      uint16
	Rows      uint16
	Data      []byte
}

// Machine drives one attach connection's protocol state. Safe for
// concurrent use: the daemon driver steps it from a read-loop goroutine
// while marking it Streaming from the goroutine that writes the replay
// snapshot.
type Machine struct {
	mu    sync.Mutex
	state State
	queue [][]byte
}

// New returns a Machine in AwaitingOpen.
func New() *Machine {
	return &Machine{state: AwaitingOpen}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Step advances the machine in response to one client frame.
func (m *Machine) Step(frameType byte, payload []byte) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.state {
	case AwaitingOpen:
		if frameType != proto.FrameOpen {
			return Result{}, fmt.Errorf("%w: expected open, got frame %d", ErrProtocol, frameType)
		}
		var open proto.AttachOpen
		if err := unmarshalOpen(payload, &open); err != nil {
			return Result{}, fmt.Errorf("%w: %v", ErrProtocol, err)
		}
		id, err := uuid.Parse(open.SessionID)
		if err != nil {
			return Result{}, fmt.Errorf("%w: bad session id: %v", ErrProtocol, err)
		}
		m.state = Replaying
		return Result{Action: SendReplay, SessionID: id, Cols: open.Cols, Rows: open.Rows}, nil

	case Replaying:
		switch frameType {
		case proto.FrameData:
			if len(m.queue) >= maxQueuedReplayFrames {
				return Result{}, fmt.Errorf("%w: input queue overflow during replay", ErrProtocol)
			}
			buf := make([]byte, len(payload))
			copy(buf, payload)
			m.queue = append(m.queue, buf)
			return Result{Action: NoAction}, nil
		case proto.FrameResize:
			if len(payload) != 4 {
				return Result{}, fmt.Errorf("%w: resize payload must be 4 bytes", ErrProtocol)
			}
			cols := uint16(payload[0])<<8 | uint16(payload[1])
			rows := uint16(payload[2])<<8 | uint16(payload[3])
			return Result{Action: Resize, Cols: cols, Rows: rows}, nil
		default:
			return Result{}, fmt.Errorf("%w: unexpected frame %d while replaying", ErrProtocol, frameType)
		}

	case Streaming:
		switch frameType {
		case proto.FrameData:
			return Result{Action: ForwardInput, Data: payload}, nil
		case proto.FrameResize:
			if len(payload) != 4 {
				return Result{}, fmt.Errorf("%w: resize payload must be 4 bytes", ErrProtocol)
			}
			cols := uint16(payload[0])<<8 | uint16(payload[1])
			rows := uint16(payload[2])<<8 | uint16(payload[3])
			return Result{Action: Resize, Cols: cols, Rows: rows}, nil
		case proto.FrameClose:
			m.state = Closed
			return Result{Action: CloseConnection}, nil
		default:
			return Result{}, fmt.Errorf("%w: unexpected frame %d while streaming", ErrProtocol, frameType)
		}

	case Closed, Exited:
		return Result{}, fmt.Errorf("%w: connection already %s", ErrProtocol, m.state)
	}
	return Result{}, fmt.Errorf("%w: unknown state", ErrProtocol)
}

// MarkStreaming transitions Replaying -> Streaming once the replay
// snapshot has been sent to the client, and returns any Data frames
// that arrived and were queued while still replaying, in arrival
// order, for the caller to forward to the PTY.
func (m *Machine) MarkStreaming() ([][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Replaying {
		return nil, fmt.Errorf("%w: MarkStreaming from %s", ErrProtocol, m.state)
	}
	m.state = Streaming
	queued := m.queue
	m.queue = nil
	return queued, nil
}

// MarkExited transitions to Exited when the underlying session's
// process ends while a client is attached.
func (m *Machine) MarkExited() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = Exited
}

func unmarshalOpen(payload []byte, out *proto.AttachOpen) error {
	return json.Unmarshal(payload, out)
}
