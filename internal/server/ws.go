package server

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"CaseChat/internal/chat"
)

// clientFrame is a message from the browser on the chat socket.
type clientFrame struct {
	Type       string `json:"type"`
	CaseID     string `json:"caseId,omitempty"`
	CaseName   string `json:"caseName,omitempty"`
	CasePrompt string `json:"casePrompt,omitempty"`
	UserName   string `json:"userName,omitempty"`
	Text       string `json:"text,omitempty"`
}

// serverFrame is a message to the browser.
type serverFrame struct {
	Type      string `json:"type"`
	Text      string `json:"text,omitempty"`
	Message   string `json:"message,omitempty"`
	Saved     bool   `json:"saved,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
}

// wsConn serializes writes to one WebSocket connection. It doubles as
// the chat.Speaker for the controller bound to this connection.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsConn) send(f serverFrame) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.conn.WriteJSON(f)
}

// Speak pushes an assistant utterance for client-side speech synthesis.
func (w *wsConn) Speak(text string) {
	w.send(serverFrame{Type: "speak", Text: text})
}

// GET /ws/chat
func (s *Server) handleChat(c echo.Context) error {
	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.logger.Error("failed to upgrade websocket", "error", err)
		return err
	}

	conn := &wsConn{conn: ws}
	ctrl := s.newChat(conn)
	defer func() {
		// A dropped connection abandons the interview; nothing is saved.
		ctrl.Abort()
		ws.Close()
	}()

	ctx := c.Request().Context()
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("websocket read failed", "error", err)
			}
			return nil
		}

		var frame clientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			conn.send(serverFrame{Type: "error", Message: "invalid JSON message"})
			continue
		}
		s.handleChatFrame(ctx, conn, ctrl, frame)
	}
}

// handleChatFrame dispatches one client frame against the controller.
func (s *Server) handleChatFrame(ctx context.Context, conn *wsConn, ctrl *chat.Controller, frame clientFrame) {
	switch frame.Type {
	case "open":
		if frame.UserName != "" {
			s.identity.SetUserName(frame.UserName)
		}
		greeting, err := ctrl.Open(ctx, frame.CaseID, frame.CaseName, frame.CasePrompt)
		if err != nil {
			conn.send(serverFrame{Type: "error", Message: err.Error()})
			return
		}
		conn.send(serverFrame{Type: "assistant", Text: greeting})

	case "message":
		reply, err := ctrl.Send(ctx, frame.Text)
		if err != nil {
			conn.send(serverFrame{Type: "error", Message: err.Error()})
			return
		}
		conn.send(serverFrame{Type: "assistant", Text: reply})

	case "finish":
		state, err := ctrl.Finish()
		if err != nil {
			conn.send(serverFrame{Type: "error", Message: err.Error()})
			return
		}
		if state == chat.StateAwaitingDiagnosis {
			conn.send(serverFrame{Type: "await_diagnosis"})
		} else {
			conn.send(serverFrame{Type: "closed", Saved: false})
		}

	case "diagnosis":
		rec, err := ctrl.SubmitDiagnosis(frame.Text)
		if err != nil {
			conn.send(serverFrame{Type: "error", Message: err.Error()})
			if !errors.Is(err, chat.ErrNoConversation) {
				// The interview is over even though nothing was saved.
				conn.send(serverFrame{Type: "closed", Saved: false})
			}
			return
		}
		conn.send(serverFrame{Type: "closed", Saved: true, SessionID: rec.ID})

	case "abort":
		ctrl.Abort()
		conn.send(serverFrame{Type: "closed", Saved: false})

	default:
		conn.send(serverFrame{Type: "error", Message: "unknown message type: " + frame.Type})
	}
}
