package daemon

import (
	"encoding/json"
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/amux-dev/amux/internal/proto"
)

func TestBrowserBridgeRelaysOutputAndInput(t *testing.T) {
	d, sock := startTestDaemon(t)
	conn, err := net.Dial("unix", sock)
	require.NoError(t, err)
	defer conn.Close()

	repoID := addRepo(t, conn, "myrepo", initGitRepo(t))
	payload, _ := json.Marshal(createSessionParams{
		RepoID: repoID, Branch: "main",
		Command: "/bin/cat", Provider: "test", DisplayName: "s", Rows: 24, Cols: 80,
	})
	resp := roundTrip(t, conn, proto.Request{Type: proto.ReqCreateSession, ID: "1", Payload: payload})
	require.True(t, resp.OK, "%v", resp.Error)
	var created map[string]any
	require.NoError(t, json.Unmarshal(resp.Payload, &created))
	id := created["id"].(string)

	bridge := NewBrowserBridge(d, "secret")
	srv := httptest.NewServer(bridge.Handler())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/attach?session=" + id + "&token=secret"
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer ws.Close()

	var first terminalMessage
	require.NoError(t, ws.ReadJSON(&first))
	require.Equal(t, "output", first.Type)

	require.NoError(t, ws.WriteJSON(terminalMessage{Type: "input", Data: "ping\n"}))

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var echoed terminalMessage
	for i := 0; i < 5; i++ {
		if err := ws.ReadJSON(&echoed); err != nil {
			t.Fatalf("reading echoed output: %v", err)
		}
		if strings.Contains(echoed.Data, "ping") {
			return
		}
	}
	t.Fatalf("did not observe echoed input in output, last message: %+v", echoed)
}

func TestBrowserBridgeRejectsBadToken(t *testing.T) {
	d, _ := startTestDaemon(t)
	bridge := NewBrowserBridge(d, "secret")
	srv := httptest.NewServer(bridge.Handler())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/attach?session=doesnotmatter&token=wrong"
	_, respHTTP, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, respHTTP)
	require.Equal(t, 401, respHTTP.StatusCode)
}
