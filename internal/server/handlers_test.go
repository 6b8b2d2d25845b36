package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CaseChat/internal/casestore"
	"CaseChat/internal/chat"
	"CaseChat/internal/gateway"
	"CaseChat/internal/identity"
	"CaseChat/internal/review"
	"CaseChat/internal/session"
	"CaseChat/internal/store"
)

// stubProxy implements ChatCompleter for proxy endpoint tests.
type stubProxy struct {
	resp *gateway.Response
	err  error
	got  *gateway.Request
}

func (p *stubProxy) CreateChatCompletion(ctx context.Context, req gateway.Request) (*gateway.Response, error) {
	p.got = &req
	return p.resp, p.err
}

type testEnv struct {
	srv      *Server
	sessions *store.Store
	cases    *casestore.Store
	gw       *gateway.Scripted
	proxy    *stubProxy
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()

	sessions, err := store.New(filepath.Join(dir, "sessions.json"), "", nil)
	require.NoError(t, err)
	cases, err := casestore.Open(filepath.Join(dir, "cases.db"))
	require.NoError(t, err)
	t.Cleanup(func() { cases.Close() })

	gw := gateway.NewScripted()
	proxy := &stubProxy{}
	ident := identity.NewManager(map[string]string{"dana": "s3cret"})
	reviews := review.NewGenerator(gw, sessions, filepath.Join(dir, "review.txt"), "gpt-3.5-turbo", 0.7, nil)

	srv := New(Options{
		Sessions:  sessions,
		Cases:     cases,
		Proxy:     proxy,
		APIKeySet: true,
		Reviews:   reviews,
		Identity:  ident,
		NewChat: func(sp chat.Speaker) *chat.Controller {
			engine := chat.NewEngine(gw, chat.ModelParams{Model: "gpt-3.5-turbo", Temperature: 0.7}, sp, nil)
			return chat.NewController(engine, sessions, ident, nil)
		},
	})

	return &testEnv{srv: srv, sessions: sessions, cases: cases, gw: gw, proxy: proxy}
}

func (env *testEnv) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	env.srv.echo.ServeHTTP(rec, req)
	return rec
}

func decodeMap(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	return m
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodGet, "/health", "")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeMap(t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "Server is running correctly", body["message"])
}

func TestCaseCRUD(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/cases", `{"name":"Pneumonia","prompt":"55M cough+fever"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(http.MethodPost, "/cases", `{"name":"Pneumonia","prompt":"other"}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "A case with this name already exists", decodeMap(t, rec)["error"])

	rec = env.do(http.MethodPost, "/cases", `{"name":"","prompt":"x"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodGet, "/cases", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var cases []session.Case
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cases))
	require.Len(t, cases, 1)
	assert.Equal(t, "Pneumonia", cases[0].Name)

	rec = env.do(http.MethodPut, "/cases/Pneumonia", `{"name":"CAP","prompt":"updated"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodPut, "/cases/Pneumonia", `{"name":"X","prompt":"y"}`)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(http.MethodDelete, "/cases/CAP", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodDelete, "/cases/CAP", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Case not found", decodeMap(t, rec)["error"])
}

func TestSaveSessionInsertAndUpdate(t *testing.T) {
	env := newTestEnv(t)

	body := `{"caseId":"c1","caseName":"Pneumonia","casePrompt":"55M","messages":[{"role":"assistant","content":"Hello doctor!"}]}`
	rec := env.do(http.MethodPost, "/save-session", body)
	require.Equal(t, http.StatusCreated, rec.Code)

	resp := decodeMap(t, rec)
	assert.Equal(t, true, resp["success"])
	saved := resp["session"].(map[string]interface{})
	id := saved["id"].(string)
	require.NotEmpty(t, id)
	assert.Equal(t, "Anonymous", saved["userName"])

	rec = env.do(http.MethodPost, "/save-session", `{"id":"`+id+`","review":"Well done."}`)
	require.Equal(t, http.StatusOK, rec.Code)

	got, found := env.sessions.Get(id)
	require.True(t, found)
	assert.Equal(t, "Well done.", got.Review)
}

func TestSaveSessionValidation(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/save-session", `{"caseName":"Pneumonia"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Missing required fields or invalid data format", decodeMap(t, rec)["error"])
}

func TestGetSessionsWithSearch(t *testing.T) {
	env := newTestEnv(t)

	d := "CAP"
	_, _, err := env.sessions.Save(store.Upsert{
		CaseID: "c1", CaseName: "Pneumonia", UserName: "Dana", Diagnosis: &d,
		Messages: []session.Message{{Role: session.RoleAssistant, Content: "Hello doctor!"}},
	})
	require.NoError(t, err)
	_, _, err = env.sessions.Save(store.Upsert{
		CaseID: "c2", CaseName: "Migraine", UserName: "Sam",
		Messages: []session.Message{{Role: session.RoleAssistant, Content: "Hello doctor!"}},
	})
	require.NoError(t, err)

	rec := env.do(http.MethodGet, "/get-sessions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var all []session.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	assert.Len(t, all, 2)

	rec = env.do(http.MethodGet, "/get-sessions?q=migraine", "")
	var filtered []session.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &filtered))
	require.Len(t, filtered, 1)
	assert.Equal(t, "Migraine", filtered[0].CaseName)
}

func TestDeleteSessions(t *testing.T) {
	env := newTestEnv(t)

	rec1, _, err := env.sessions.Save(store.Upsert{
		CaseID: "c1", CaseName: "Pneumonia",
		Messages: []session.Message{{Role: session.RoleAssistant, Content: "Hello doctor!"}},
	})
	require.NoError(t, err)

	rec := env.do(http.MethodDelete, "/sessions/nope", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(http.MethodDelete, "/sessions/"+rec1.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)

	_, _, err = env.sessions.Save(store.Upsert{
		CaseID: "c1", CaseName: "Pneumonia",
		Messages: []session.Message{{Role: session.RoleAssistant, Content: "Hello doctor!"}},
	})
	require.NoError(t, err)

	rec = env.do(http.MethodDelete, "/sessions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, decodeMap(t, rec)["message"], "(1 sessions)")
	assert.Empty(t, env.sessions.List())
}

func TestReviewEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.gw.QueueReply("Solid differential.")

	rec1, _, err := env.sessions.Save(store.Upsert{
		CaseID: "c1", CaseName: "Pneumonia",
		Messages: []session.Message{{Role: session.RoleAssistant, Content: "Hello doctor!"}},
	})
	require.NoError(t, err)

	rec := env.do(http.MethodPost, "/sessions/"+rec1.ID+"/review", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Solid differential.", decodeMap(t, rec)["review"])

	got, _ := env.sessions.Get(rec1.ID)
	assert.Equal(t, "Solid differential.", got.Review)

	// Second call returns the stored review without another model call.
	rec = env.do(http.MethodPost, "/sessions/"+rec1.ID+"/review", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, env.gw.Calls())

	rec = env.do(http.MethodPost, "/sessions/absent/review", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProxyOpenAI(t *testing.T) {
	env := newTestEnv(t)
	env.proxy.resp = &gateway.Response{Model: "gpt-3.5-turbo"}

	rec := env.do(http.MethodPost, "/api/openai", `{"model":"gpt-3.5-turbo","messages":[{"role":"user","content":"hi"}]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, env.proxy.got)
	assert.InDelta(t, 0.7, env.proxy.got.Temperature, 1e-9, "temperature defaults when omitted")

	rec = env.do(http.MethodPost, "/api/openai", `{"messages":[]}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid request. Required fields: model, messages (array)", decodeMap(t, rec)["error"])
}

func TestProxyOpenAIPassesUpstreamErrorsThrough(t *testing.T) {
	env := newTestEnv(t)
	env.proxy.err = &gateway.Error{
		Status:  http.StatusTooManyRequests,
		Message: "rate limit exceeded",
		Body:    []byte(`{"error":{"message":"rate limit exceeded","type":"rate_limit_error"}}`),
	}

	rec := env.do(http.MethodPost, "/api/openai", `{"model":"gpt-3.5-turbo","messages":[]}`)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "rate_limit_error")
}

func TestProxyOpenAIWithoutAPIKey(t *testing.T) {
	env := newTestEnv(t)
	env.srv.apiKeySet = false

	rec := env.do(http.MethodPost, "/api/openai", `{"model":"gpt-3.5-turbo","messages":[]}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "API key not configured on server", decodeMap(t, rec)["error"])
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/login", `{"username":"dana","password":"wrong"}`)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(http.MethodPost, "/login", `{"username":"dana","password":"s3cret"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "dana", decodeMap(t, rec)["userName"])
}
