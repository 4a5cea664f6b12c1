package daemon

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/amux-dev/amux/internal/broadcast"
	"github.com/amux-dev/amux/internal/session"
)

// BrowserBridge is the optional secondary attach transport for browser
// clients, upgrading an authenticated HTTP request to a WebSocket and
// relaying it against the same registry/broadcast a Unix-socket attach
// would use, adapted from the teacher's terminal WebSocket handler.
type BrowserBridge struct {
	daemon   *Daemon
	token    string
	upgrader websocket.Upgrader
}

// NewBrowserBridge builds a BrowserBridge that requires the given bearer
// token on every connection. An empty token disables authentication,
// which is only appropriate for local development.
func NewBrowserBridge(d *Daemon, token string) *BrowserBridge {
	return &BrowserBridge{
		daemon: d,
		token:  token,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  32 * 1024,
			WriteBufferSize: 32 * 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// terminalMessage is the JSON envelope exchanged over the WebSocket,
// mirroring the attach protocol's frame kinds but JSON-encoded since a
// WebSocket message is already length-delimited.
type terminalMessage struct {
	Type string `json:"type"` // "input", "output" (live and resync chunks alike), "resize"
	Data string `json:"data,omitempty"`
	Cols uint16 `json:"cols,omitempty"`
	Rows uint16 `json:"rows,omitempty"`
}

// Handler returns the HTTP handler serving the /attach endpoint, usable
// directly in tests or wrapped in a custom http.Server.
func (b *BrowserBridge) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/attach", b.handleAttach)
	return mux
}

// ListenAndServe starts an HTTP server on addr exposing the /attach
// endpoint. It blocks until the server stops.
func (b *BrowserBridge) ListenAndServe(addr string) error {
	return http.ListenAndServe(addr, b.Handler())
}

func (b *BrowserBridge) handleAttach(w http.ResponseWriter, r *http.Request) {
	if b.token != "" && r.URL.Query().Get("token") != b.token {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	sessionIDStr := r.URL.Query().Get("session")
	id, err := uuid.Parse(sessionIDStr)
	if err != nil {
		http.Error(w, "invalid session id", http.StatusBadRequest)
		return
	}
	sess, err := b.daemon.registry.Get(id)
	if err != nil || sess.Supervisor == nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	cols := queryUint16(r, "cols", 80)
	rows := queryUint16(r, "rows", 24)

	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.daemon.logger.Warn("browserbridge: upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	_ = sess.Resize(rows, cols)
	_ = conn.WriteJSON(terminalMessage{Type: "output", Data: string(sess.Supervisor.Scrollback.Snapshot())})

	subID, ch := sess.Supervisor.Broadcast.Subscribe()
	defer sess.Supervisor.Broadcast.Unsubscribe(subID)

	done := make(chan struct{})
	go b.pumpOutput(conn, ch, done)
	b.pumpInput(conn, sess)
	<-done
}

func (b *BrowserBridge) pumpOutput(conn *websocket.Conn, ch <-chan broadcast.Chunk, done chan<- struct{}) {
	defer close(done)
	for chunk := range ch {
		if err := conn.WriteJSON(terminalMessage{Type: "output", Data: string(chunk.Data)}); err != nil {
			return
		}
	}
}

// pumpInput reads terminalMessages until the connection closes,
// forwarding "input" bytes to the session's PTY and "resize" messages to
// its tracked dimensions.
func (b *BrowserBridge) pumpInput(conn *websocket.Conn, sess *session.Session) {
	for {
		var msg terminalMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		switch msg.Type {
		case "input":
			if sess.Supervisor != nil {
				_, _ = sess.Supervisor.Write([]byte(msg.Data))
			}
		case "resize":
			_ = sess.Resize(msg.Rows, msg.Cols)
		}
	}
}

func queryUint16(r *http.Request, key string, def uint16) uint16 {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseUint(v, 10, 16)
	if err != nil {
		return def
	}
	return uint16(n)
}
