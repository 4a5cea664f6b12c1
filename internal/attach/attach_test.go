package attach

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amux-dev/amux/internal/proto"
)

func openPayload(t *testing.T, id uuid.UUID) []byte {
	t.Helper()
	data, err := json.Marshal(proto.AttachOpen{SessionID: id.String(), Cols: 80, Rows: 24})
	require.NoError(t, err)
	return data
}

func TestFullHappyPath(t *testing.T) {
	m := New()
	id := uuid.New()

	res, err := m.Step(proto.FrameOpen, openPayload(t, id))
	require.NoError(t, err)
	assert.Equal(t, SendReplay, res.Action)
	assert.Equal(t, id, res.SessionID)
	assert.Equal(t, Replaying, m.State())

	queued, err := m.MarkStreaming()
	require.NoError(t, err)
	assert.Empty(t, queued)
	assert.Equal(t, Streaming, m.State())

	res, err = m.Step(proto.FrameData, []byte("ls\n"))
	require.NoError(t, err)
	assert.Equal(t, ForwardInput, res.Action)
	assert.Equal(t, "ls\n", string(res.Data))

	res, err = m.Step(proto.FrameResize, []byte{0, 100, 0, 30})
	require.NoError(t, err)
	assert.Equal(t, Resize, res.Action)
	assert.Equal(t, uint16(100), res.Cols)
	assert.Equal(t, uint16(30), res.Rows)

	res, err = m.Step(proto.FrameClose, nil)
	require.NoError(t, err)
	assert.Equal(t, CloseConnection, res.Action)
	assert.Equal(t, Closed, m.State())
}

func TestRejectsFrameBeforeOpen(t *testing.T) {
	m := New()
	_, err := m.Step(proto.FrameData, []byte("x"))
	assert.ErrorIs(t, err, ErrProtocol)
}

func TestQueuesDataDuringReplayAndForwardsOnStreaming(t *testing.T) {
	m := New()
	_, err := m.Step(proto.FrameOpen, openPayload(t, uuid.New()))
	require.NoError(t, err)
	assert.Equal(t, Replaying, m.State())

	res, err := m.Step(proto.FrameData, []byte("a"))
	require.NoError(t, err)
	assert.Equal(t, NoAction, res.Action)

	res, err = m.Step(proto.FrameData, []byte("b"))
	require.NoError(t, err)
	assert.Equal(t, NoAction, res.Action)

	// Still replaying: data frames must not be forwarded early.
	assert.Equal(t, Replaying, m.State())

	queued, err := m.MarkStreaming()
	require.NoError(t, err)
	require.Len(t, queued, 2)
	assert.Equal(t, []byte("a"), queued[0])
	assert.Equal(t, []byte("b"), queued[1])
	assert.Equal(t, Streaming, m.State())
}

func TestResizeAppliedImmediatelyDuringReplay(t *testing.T) {
	m := New()
	_, err := m.Step(proto.FrameOpen, openPayload(t, uuid.New()))
	require.NoError(t, err)

	res, err := m.Step(proto.FrameResize, []byte{0, 100, 0, 30})
	require.NoError(t, err)
	assert.Equal(t, Resize, res.Action)
	assert.Equal(t, uint16(100), res.Cols)
	assert.Equal(t, uint16(30), res.Rows)
	assert.Equal(t, Replaying, m.State())
}

func TestRejectsInputQueueOverflowDuringReplay(t *testing.T) {
	m := New()
	_, err := m.Step(proto.FrameOpen, openPayload(t, uuid.New()))
	require.NoError(t, err)

	for i := 0; i < maxQueuedReplayFrames; i++ {
		_, err := m.Step(proto.FrameData, []byte("x"))
		require.NoError(t, err)
	}
	_, err = m.Step(proto.FrameData, []byte("overflow"))
	assert.ErrorIs(t, err, ErrProtocol)
}

func TestRejectsFrameAfterClose(t *testing.T) {
	m := New()
	_, err := m.Step(proto.FrameOpen, openPayload(t, uuid.New()))
	require.NoError(t, err)
	_, err = m.MarkStreaming()
	require.NoError(t, err)
	_, err = m.Step(proto.FrameClose, nil)
	require.NoError(t, err)

	_, err = m.Step(proto.FrameData, []byte("x"))
	assert.ErrorIs(t, err, ErrProtocol)
}

func TestMarkExited(t *testing.T) {
	m := New()
	_, err := m.Step(proto.FrameOpen, openPayload(t, uuid.New()))
	require.NoError(t, err)
	_, err = m.MarkStreaming()
	require.NoError(t, err)
	m.MarkExited()
	assert.Equal(t, Exited, m.State())
}
