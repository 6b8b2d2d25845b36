package server

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CaseChat/internal/gateway"
)

func dialChat(t *testing.T, env *testEnv) *websocket.Conn {
	t.Helper()
	httpSrv := httptest.NewServer(env.srv.echo)
	t.Cleanup(httpSrv.Close)

	url := "ws" + strings.TrimPrefix(httpSrv.URL, "http") + "/ws/chat"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func sendFrame(t *testing.T, ws *websocket.Conn, f clientFrame) {
	t.Helper()
	require.NoError(t, ws.WriteJSON(f))
}

// readFrame reads the next frame of the given type, collecting any
// interleaved speak frames along the way.
func readFrame(t *testing.T, ws *websocket.Conn, wantType string) (serverFrame, []string) {
	t.Helper()
	var spoken []string
	deadline := time.Now().Add(5 * time.Second)
	for {
		require.NoError(t, ws.SetReadDeadline(deadline))
		_, data, err := ws.ReadMessage()
		require.NoError(t, err)

		var f serverFrame
		require.NoError(t, json.Unmarshal(data, &f))
		if f.Type == "speak" {
			spoken = append(spoken, f.Text)
			continue
		}
		require.Equal(t, wantType, f.Type, "unexpected frame: %+v", f)
		return f, spoken
	}
}

func TestChatSocketFullInterview(t *testing.T) {
	env := newTestEnv(t)
	env.gw.QueueReply("Hello doctor!")
	env.gw.QueueReply("About two weeks.")
	ws := dialChat(t, env)

	sendFrame(t, ws, clientFrame{Type: "open", CaseID: "c1", CaseName: "Pneumonia", CasePrompt: "55M cough+fever", UserName: "Dana"})
	f, spoken := readFrame(t, ws, "assistant")
	assert.Equal(t, "Hello doctor!", f.Text)
	assert.Equal(t, []string{"Hello doctor!"}, spoken)

	sendFrame(t, ws, clientFrame{Type: "message", Text: "How long have you had the cough?"})
	f, _ = readFrame(t, ws, "assistant")
	assert.Equal(t, "About two weeks.", f.Text)

	sendFrame(t, ws, clientFrame{Type: "finish"})
	_, _ = readFrame(t, ws, "await_diagnosis")

	sendFrame(t, ws, clientFrame{Type: "diagnosis", Text: "Community-acquired pneumonia"})
	f, _ = readFrame(t, ws, "closed")
	assert.True(t, f.Saved)
	require.NotEmpty(t, f.SessionID)

	rec, found := env.sessions.Get(f.SessionID)
	require.True(t, found)
	assert.Equal(t, "Community-acquired pneumonia", rec.Diagnosis)
	assert.Equal(t, "Dana", rec.UserName)
	require.Len(t, rec.Messages, 3)
	assert.Equal(t, "Hello doctor!", rec.Messages[0].Content)
}

func TestChatSocketAbortSavesNothing(t *testing.T) {
	env := newTestEnv(t)
	env.gw.QueueReply("Hello doctor!")
	ws := dialChat(t, env)

	sendFrame(t, ws, clientFrame{Type: "open", CaseID: "c1", CaseName: "Pneumonia", CasePrompt: "55M cough+fever"})
	_, _ = readFrame(t, ws, "assistant")

	sendFrame(t, ws, clientFrame{Type: "abort"})
	f, _ := readFrame(t, ws, "closed")
	assert.False(t, f.Saved)
	assert.Empty(t, env.sessions.List())
}

func TestChatSocketRejectsOutOfOrderFrames(t *testing.T) {
	env := newTestEnv(t)
	ws := dialChat(t, env)

	sendFrame(t, ws, clientFrame{Type: "message", Text: "hello?"})
	f, _ := readFrame(t, ws, "error")
	assert.Contains(t, f.Message, "no open conversation")

	sendFrame(t, ws, clientFrame{Type: "bogus"})
	f, _ = readFrame(t, ws, "error")
	assert.Contains(t, f.Message, "unknown message type")
}

func TestChatSocketFinishWithEmptyInterviewCloses(t *testing.T) {
	env := newTestEnv(t)
	env.gw.QueueError(&gateway.Error{Message: "connection refused"})
	ws := dialChat(t, env)

	sendFrame(t, ws, clientFrame{Type: "open", CaseID: "c1", CaseName: "Pneumonia", CasePrompt: "55M cough+fever"})
	f, _ := readFrame(t, ws, "error")
	assert.Contains(t, f.Message, "failed to open conversation")

	sendFrame(t, ws, clientFrame{Type: "finish"})
	f, _ = readFrame(t, ws, "closed")
	assert.False(t, f.Saved)
	assert.Empty(t, env.sessions.List())
}
