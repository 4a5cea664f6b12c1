package daemon

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"net"

	"github.com/amux-dev/amux/internal/attach"
	"github.com/amux-dev/amux/internal/broadcast"
	"github.com/amux-dev/amux/internal/proto"
)

// handleAttach drives one attach.Machine for the lifetime of conn. The
// initial JSON request line only tells the dispatcher to upgrade the
// connection; the attach handshake itself happens over the framed
// protocol that follows.
func (d *Daemon) handleAttach(conn net.Conn, _ proto.Request) {
	machine := attach.New()

	frameType, payload, err := proto.ReadFrame(conn)
	if err != nil {
		return
	}
	result, err := machine.Step(frameType, payload)
	if err != nil || result.Action != attach.SendReplay {
		d.logger.Warn("daemon: attach open failed", "error", err)
		return
	}

	sess, err := d.registry.Get(result.SessionID)
	if err != nil {
		_ = proto.WriteFrame(conn, proto.FrameExit, encodeExitCode(-1))
		return
	}
	if sess.Supervisor == nil {
		_ = proto.WriteFrame(conn, proto.FrameExit, encodeExitCode(-1))
		return
	}

	_ = sess.Resize(result.Rows, result.Cols)

	// Start reading the client's frames now, before the replay snapshot
	// is written: a Data frame that arrives mid-replay is queued by the
	// machine and forwarded once streaming begins, and a Resize frame
	// is applied immediately, per the attach state machine. Waiting
	// until after the replay write to start reading would let the OS
	// socket buffer stand in for that queue instead, losing the
	// immediate-resize guarantee.
	readErr := make(chan error, 1)
	go d.pumpInput(conn, machine, sess.Supervisor.Write, sess.Resize, readErr)

	if err := proto.WriteFrame(conn, proto.FrameReplay, sess.Supervisor.Scrollback.Snapshot()); err != nil {
		return
	}
	queued, err := machine.MarkStreaming()
	if err != nil {
		return
	}
	for _, chunk := range queued {
		_, _ = sess.Supervisor.Write(chunk)
	}
	_ = proto.WriteFrame(conn, proto.FrameAck, nil)

	subID, ch := sess.Supervisor.Broadcast.Subscribe()
	defer sess.Supervisor.Broadcast.Unsubscribe(subID)

	writeErr := make(chan error, 1)
	go pumpOutput(conn, ch, writeErr)

	select {
	case <-writeErr:
	case <-readErr:
	}
}

func pumpOutput(conn net.Conn, ch <-chan broadcast.Chunk, done chan<- error) {
	for chunk := range ch {
		frameType := proto.FrameLive
		if chunk.Kind == broadcast.Resync {
			frameType = proto.FrameResync
		}
		if err := proto.WriteFrame(conn, frameType, chunk.Data); err != nil {
			done <- err
			return
		}
	}
	done <- errors.New("daemon: subscriber channel closed")
}

func (d *Daemon) pumpInput(conn net.Conn, machine *attach.Machine, write func([]byte) (int, error), resize func(uint16, uint16) error, done chan<- error) {
	for {
		frameType, payload, err := proto.ReadFrame(conn)
		if err != nil {
			done <- err
			return
		}
		result, err := machine.Step(frameType, payload)
		if err != nil {
			d.logger.Warn("daemon: attach protocol error", "error", err)
			done <- err
			return
		}
		switch result.Action {
		case attach.ForwardInput:
			_, _ = write(result.Data)
		case attach.Resize:
			_ = resize(result.Rows, result.Cols)
		case attach.CloseConnection:
			done <- nil
			return
		}
	}
}

func encodeExitCode(code int) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, uint32(int32(code)))
	return buf
}

// handleSubscribeEvents upgrades conn into a server-push stream of
// newline-terminated JSON DaemonEvents, for the lifetime of the
// connection.
func (d *Daemon) handleSubscribeEvents(conn net.Conn, req proto.Request) {
	id, ch := d.bus.Subscribe()
	defer d.bus.Unsubscribe(id)

	d.respond(conn, okResponse(req.ID, map[string]bool{"subscribed": true}))

	for ev := range ch {
		data, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		data = append(data, '\n')
		if _, err := conn.Write(data); err != nil {
			return
		}
	}
}
