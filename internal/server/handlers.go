package server

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"CaseChat/internal/casestore"
	"CaseChat/internal/gateway"
	"CaseChat/internal/session"
	"CaseChat/internal/store"
)

// GET /health
func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"message":   "Server is running correctly",
	})
}

// GET /cases
func (s *Server) listCases(c echo.Context) error {
	cases, err := s.cases.List()
	if err != nil {
		s.logger.Error("failed to list cases", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to retrieve cases"})
	}
	return c.JSON(http.StatusOK, cases)
}

// POST /cases
func (s *Server) createCase(c echo.Context) error {
	var req session.Case
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.Name == "" || req.Prompt == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Name and prompt are required fields"})
	}

	created, err := s.cases.Create(req)
	if errors.Is(err, casestore.ErrCaseExists) {
		return c.JSON(http.StatusConflict, map[string]string{"error": "A case with this name already exists"})
	}
	if err != nil {
		s.logger.Error("failed to create case", "name", req.Name, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to save the case"})
	}

	s.logger.Info("case created", "name", created.Name)
	return c.JSON(http.StatusCreated, created)
}

// PUT /cases/:name
func (s *Server) updateCase(c echo.Context) error {
	name := c.Param("name")

	var req session.Case
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.Name == "" || req.Prompt == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Name and prompt are required fields"})
	}

	updated, found, err := s.cases.Update(name, req)
	if errors.Is(err, casestore.ErrCaseExists) {
		return c.JSON(http.StatusConflict, map[string]string{"error": "A case with this new name already exists"})
	}
	if err != nil {
		s.logger.Error("failed to update case", "name", name, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to save the updated case"})
	}
	if !found {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Case not found"})
	}

	s.logger.Info("case updated", "name", name, "new_name", updated.Name)
	return c.JSON(http.StatusOK, updated)
}

// DELETE /cases/:name
func (s *Server) deleteCase(c echo.Context) error {
	name := c.Param("name")

	found, err := s.cases.Delete(name)
	if err != nil {
		s.logger.Error("failed to delete case", "name", name, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to delete the case"})
	}
	if !found {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Case not found"})
	}

	s.logger.Info("case deleted", "name", name)
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "message": "Case deleted successfully"})
}

// GET /get-sessions
func (s *Server) getSessions(c echo.Context) error {
	sessions := s.sessions.List()
	if q := c.QueryParam("q"); q != "" {
		sessions = store.Search(sessions, q)
	}
	return c.JSON(http.StatusOK, sessions)
}

// saveSessionRequest mirrors the session record on the wire. Diagnosis
// is a pointer so an update can tell "absent" from "explicitly empty".
type saveSessionRequest struct {
	ID         string            `json:"id"`
	CaseID     string            `json:"caseId"`
	CaseName   string            `json:"caseName"`
	CasePrompt string            `json:"casePrompt"`
	UserName   string            `json:"userName"`
	Diagnosis  *string           `json:"diagnosis"`
	Review     string            `json:"review"`
	Messages   []session.Message `json:"messages"`
}

// POST /save-session
func (s *Server) saveSession(c echo.Context) error {
	var req saveSessionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	rec, inserted, err := s.sessions.Save(store.Upsert{
		ID:         req.ID,
		CaseID:     req.CaseID,
		CaseName:   req.CaseName,
		CasePrompt: req.CasePrompt,
		UserName:   req.UserName,
		Diagnosis:  req.Diagnosis,
		Review:     req.Review,
		Messages:   req.Messages,
	})
	var verr *store.ValidationError
	if errors.As(err, &verr) {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Missing required fields or invalid data format"})
	}
	if err != nil {
		s.logger.Error("failed to save session", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to save session"})
	}

	status := http.StatusOK
	if inserted {
		status = http.StatusCreated
	}
	s.logger.Info("session saved", "session_id", rec.ID, "case", rec.CaseName, "inserted", inserted)
	return c.JSON(status, map[string]interface{}{"success": true, "session": rec})
}

// DELETE /sessions/:id
func (s *Server) deleteSession(c echo.Context) error {
	id := c.Param("id")

	found, err := s.sessions.DeleteByID(id)
	if err != nil {
		s.logger.Error("failed to delete session", "session_id", id, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to delete session"})
	}
	if !found {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Session not found"})
	}

	s.logger.Info("session deleted", "session_id", id)
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "message": "Session deleted successfully"})
}

// DELETE /sessions
func (s *Server) deleteAllSessions(c echo.Context) error {
	count, err := s.sessions.DeleteAll()
	if err != nil {
		s.logger.Error("failed to delete all sessions", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to delete all sessions"})
	}

	s.logger.Info("all sessions deleted", "count", count)
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"message": fmt.Sprintf("All sessions deleted successfully (%d sessions)", count),
	})
}

// POST /sessions/:id/review
func (s *Server) reviewSession(c echo.Context) error {
	id := c.Param("id")

	sess, found := s.sessions.Get(id)
	if !found {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Session not found"})
	}

	text, err := s.reviews.Generate(c.Request().Context(), sess)
	if err != nil {
		s.logger.Error("failed to generate review", "session_id", id, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to generate review"})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "review": text})
}

// POST /api/openai
func (s *Server) proxyOpenAI(c echo.Context) error {
	if !s.apiKeySet {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "API key not configured on server"})
	}

	var req gateway.Request
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request. Required fields: model, messages (array)"})
	}
	if req.Model == "" || req.Messages == nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request. Required fields: model, messages (array)"})
	}
	if req.Temperature == 0 {
		req.Temperature = 0.7
	}

	resp, err := s.proxy.CreateChatCompletion(c.Request().Context(), req)
	if err != nil {
		// Pass the upstream error response through unchanged.
		var gerr *gateway.Error
		if errors.As(err, &gerr) && gerr.Status > 0 && len(gerr.Body) > 0 {
			return c.JSONBlob(gerr.Status, gerr.Body)
		}
		s.logger.Error("proxy call failed", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to call OpenAI API: " + err.Error()})
	}
	return c.JSON(http.StatusOK, resp)
}

// POST /login
func (s *Server) login(c echo.Context) error {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	if !s.identity.Login(req.Username, req.Password) {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid username or password"})
	}

	s.logger.Info("user logged in", "user", req.Username)
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "userName": req.Username})
}
