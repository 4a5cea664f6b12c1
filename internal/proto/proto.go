// Package proto defines the wire types and framing used between amuxd
// and its clients: newline-terminated JSON for unary RPCs and a length
// prefixed binary frame for the attach stream.
package proto

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// RequestType names a unary RPC.
type RequestType string

const (
	ReqPing             RequestType = "ping"
	ReqAddRepo          RequestType = "add_repo"
	ReqRemoveRepo       RequestType = "remove_repo"
	ReqListRepos        RequestType = "list_repos"
	ReqCreateWorktree   RequestType = "create_worktree"
	ReqRemoveWorktree   RequestType = "remove_worktree"
	ReqListWorktrees    RequestType = "list_worktrees"
	ReqCreateSession    RequestType = "create_session"
	ReqDestroySession   RequestType = "destroy_session"
	ReqRenameSession    RequestType = "rename_session"
	ReqListSessions     RequestType = "list_sessions"
	ReqResizeSession    RequestType = "resize_session"
	ReqAttachSession    RequestType = "attach_session"
	ReqSubscribeEvents  RequestType = "subscribe_events"
	ReqGetDiffFiles     RequestType = "get_diff_files"
	ReqGetFileDiff      RequestType = "get_file_diff"
	ReqGetGitStatus     RequestType = "get_git_status"
	ReqStageFile        RequestType = "stage_file"
	ReqUnstageFile      RequestType = "unstage_file"
	ReqStageAll         RequestType = "stage_all"
	ReqUnstageAll       RequestType = "unstage_all"
	ReqListReviewNotes  RequestType = "list_review_notes"
	ReqAddReviewNote    RequestType = "add_review_note"
	ReqUpdateReviewNote RequestType = "update_review_note"
	ReqRemoveReviewNote RequestType = "remove_review_note"
	ReqListTodos        RequestType = "list_todos"
	ReqAddTodo          RequestType = "add_todo"
	ReqUpdateTodo       RequestType = "update_todo"
	ReqReorderTodos     RequestType = "reorder_todos"
	ReqRemoveTodo       RequestType = "remove_todo"
)

// ErrorCode enumerates the structured error kinds.
type ErrorCode string

const (
	ErrNotFound           ErrorCode = "not_found"
	ErrConflict           ErrorCode = "conflict"
	ErrPreconditionFailed ErrorCode = "precondition_failed"
	ErrSpawnFailed        ErrorCode = "spawn_failed"
	ErrIoError            ErrorCode = "io_error"
	ErrProtocol           ErrorCode = "protocol"
	ErrInternal           ErrorCode = "internal"

	// Session-creation specific codes: a CreateSession call resolves a
	// repo and worktree server-side rather than trusting a caller-given
	// path, so it can fail in ways distinct from a generic not-found.
	ErrRepoNotFound        ErrorCode = "repo_not_found"
	ErrWorktreeUnavailable ErrorCode = "worktree_unavailable"
	ErrNameConflict        ErrorCode = "name_conflict"
)

// Request is one unary JSON request line.
type Request struct {
	Type    RequestType     `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ErrorPayload is the structured error envelope returned on failure.
type ErrorPayload struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Field   string    `json:"field,omitempty"`
}

// Response is one unary JSON response line.
type Response struct {
	OK      bool            `json:"ok"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   *ErrorPayload   `json:"error,omitempty"`
}

// WriteRequest writes a newline-terminated JSON request.
func WriteRequest(w io.Writer, req Request) error {
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}

// WriteResponse writes a newline-terminated JSON response.
func WriteResponse(w io.Writer, resp Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}

// NewLineScanner returns a bufio.Scanner sized for large payloads (diff
// bodies in particular can exceed bufio's default 64KiB token size).
func NewLineScanner(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	return scanner
}

// Attach stream frame types, symmetric in both directions.
const (
	FrameOpen    byte = 0x01 // client -> server: open the attach, carries AttachOpen JSON
	FrameResize  byte = 0x02 // client -> server: resize, carries 4 bytes cols+rows big-endian
	FrameData    byte = 0x03 // client -> server: input bytes for the PTY
	FrameClose   byte = 0x04 // client -> server: detach, no payload

	FrameReplay byte = 0x10 // server -> client: scrollback snapshot, raw bytes
	FrameLive   byte = 0x11 // server -> client: live output chunk, raw bytes
	FrameResync byte = 0x12 // server -> client: discard-and-repaint snapshot, raw bytes
	FrameExit   byte = 0x13 // server -> client: session process exited, payload is exit code as 4 bytes
	FrameAck    byte = 0x14 // server -> client: open accepted, no payload
)

const maxFrameSize = 8 << 20 // 8 MiB sanity cap, matches large scrollback snapshots

// WriteFrame writes a length-prefixed frame: 1 byte type, 4 byte
// big-endian length, then payload.
func WriteFrame(w io.Writer, frameType byte, payload []byte) error {
	header := make([]byte, 5)
	header[0] = frameType
	binary.BigEndian.PutUint32(header[1:], uint32(len(payload)))
	if _, err := w.Write(header); err != nil {
		return err
	}
	if len(payload) == 0 {
		return nil
	}
	_, err := w.Write(payload)
	return err
}

// ReadFrame reads one frame written by WriteFrame.
func ReadFrame(r io.Reader) (byte, []byte, error) {
	header := make([]byte, 5)
	if _, err := io.ReadFull(r, header); err != nil {
		return 0, nil, err
	}
	frameType := header[0]
	length := binary.BigEndian.Uint32(header[1:])
	if length > maxFrameSize {
		return 0, nil, fmt.Errorf("proto: frame size %d exceeds max %d", length, maxFrameSize)
	}
	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return 0, nil, err
		}
	}
	return frameType, payload, nil
}

// AttachOpen is the JSON payload of a FrameOpen frame.
type AttachOpen struct {
	SessionID string `json:"session_id"`
	Cols      uint16 `json:"cols"`
	Rows      uint16 `json:"rows"`
}
