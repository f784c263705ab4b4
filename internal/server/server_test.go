package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mahir/coursebot/pkg/agent"
	"github.com/mahir/coursebot/pkg/session"
	"github.com/mahir/coursebot/pkg/workflow"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubClassifier labels every message with a fixed course.
type stubClassifier struct {
	label agent.Label
	err   error
}

func (s *stubClassifier) Classify(ctx context.Context, message string) (agent.Label, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.label, nil
}

// stubResponder returns a canned reply and persists turns like a tutor.
type stubResponder struct {
	id    string
	reply string
	err   error
	store *session.Store
}

func (s *stubResponder) ID() string {
	return s.id
}

func (s *stubResponder) Respond(ctx context.Context, sessionID, message string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	if sessionID != "" && s.store != nil {
		if err := s.store.AddMessage(ctx, sessionID, "user", message); err != nil {
			return "", err
		}
		if err := s.store.AddMessage(ctx, sessionID, "assistant", s.reply); err != nil {
			return "", err
		}
	}
	return s.reply, nil
}

type serverFixture struct {
	srv   *Server
	store *session.Store
}

func newServerFixture(t *testing.T, classifier workflow.Classifier) *serverFixture {
	t.Helper()

	store := session.NewStore(session.Options{MaxMessages: 50, MaxSessions: 100, TTL: time.Hour})

	responders := make([]workflow.Responder, 0, 4)
	for _, id := range []string{agent.TutorSPL, agent.TutorEnglish, agent.TutorPhysics, agent.TutorFallback} {
		responders = append(responders, &stubResponder{id: id, reply: "reply from " + id, store: store})
	}

	flow, err := workflow.New(classifier, responders...)
	require.NoError(t, err)

	srv, err := New(Options{}, store, flow, nil, zerolog.Nop())
	require.NoError(t, err)

	return &serverFixture{srv: srv, store: store}
}

func postChat(t *testing.T, srv *Server, body ChatRequest) *httptest.ResponseRecorder {
	t.Helper()

	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	srv.handleChat(rec, req)
	return rec
}

func TestNew_Defaults(t *testing.T) {
	f := newServerFixture(t, &stubClassifier{label: agent.LabelNone})

	assert.Equal(t, "0.0.0.0", f.srv.options.Host)
	assert.Equal(t, 8000, f.srv.options.Port)
	assert.Equal(t, 60*time.Second, f.srv.options.RequestTimeout)
}

func TestNew_RequiresStoreAndWorkflow(t *testing.T) {
	store := session.NewStore(session.DefaultOptions())

	_, err := New(Options{}, nil, nil, nil, zerolog.Nop())
	assert.Error(t, err)

	_, err = New(Options{}, store, nil, nil, zerolog.Nop())
	assert.Error(t, err)
}

func TestHandleChat(t *testing.T) {
	f := newServerFixture(t, &stubClassifier{label: agent.LabelPhysics})

	rec := postChat(t, f.srv, ChatRequest{Message: "why is the sky blue?", SessionID: "sess-1"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ChatResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "reply from physics_agent", resp.Message)
	assert.Equal(t, string(agent.LabelPhysics), resp.Course)
	assert.Equal(t, "sess-1", resp.SessionID)

	// Conversation persisted through the responder
	msgs, ok := f.store.Messages("sess-1", 0)
	require.True(t, ok)
	assert.Len(t, msgs, 2)
}

func TestHandleChat_GeneratesSessionID(t *testing.T) {
	f := newServerFixture(t, &stubClassifier{label: agent.LabelNone})

	rec := postChat(t, f.srv, ChatRequest{Message: "hello"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ChatResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.NotEmpty(t, resp.SessionID)
	assert.Contains(t, f.store.ActiveSessions(), resp.SessionID)
}

func TestHandleChat_EmptyMessage(t *testing.T) {
	f := newServerFixture(t, &stubClassifier{label: agent.LabelNone})

	rec := postChat(t, f.srv, ChatRequest{SessionID: "sess-1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleChat_InvalidBody(t *testing.T) {
	f := newServerFixture(t, &stubClassifier{label: agent.LabelNone})

	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	f.srv.handleChat(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleChat_InvalidSessionID(t *testing.T) {
	f := newServerFixture(t, &stubClassifier{label: agent.LabelNone})

	rec := postChat(t, f.srv, ChatRequest{Message: "hello", SessionID: "bad/id"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleChat_WorkflowError(t *testing.T) {
	f := newServerFixture(t, &stubClassifier{err: errors.New("classifier down")})

	rec := postChat(t, f.srv, ChatRequest{Message: "hello", SessionID: "sess-1"})
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "error processing message", resp.Error)
}

func TestHandleChat_RejectedDuringShutdown(t *testing.T) {
	f := newServerFixture(t, &stubClassifier{label: agent.LabelNone})

	f.srv.shutdownMu.Lock()
	f.srv.isShuttingDown = true
	f.srv.shutdownMu.Unlock()

	rec := postChat(t, f.srv, ChatRequest{Message: "hello"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleHealth(t *testing.T) {
	f := newServerFixture(t, &stubClassifier{label: agent.LabelNone})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	f.srv.handleHealth(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.GreaterOrEqual(t, resp.Uptime, 0.0)
}

func TestHandleCourses(t *testing.T) {
	f := newServerFixture(t, &stubClassifier{label: agent.LabelNone})

	req := httptest.NewRequest(http.MethodGet, "/courses", nil)
	rec := httptest.NewRecorder()
	f.srv.handleCourses(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp CoursesResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, []string{
		"Structured Programming Language", "English", "Physics", "None",
	}, resp.Courses)
}

func TestHandleListSessions(t *testing.T) {
	f := newServerFixture(t, &stubClassifier{label: agent.LabelNone})

	for _, id := range []string{"beta", "alpha"} {
		_, err := f.store.GetOrCreate(context.Background(), id)
		require.NoError(t, err)
	}

	req := httptest.NewRequest(http.MethodGet, "/sessions", nil)
	rec := httptest.NewRecorder()
	f.srv.handleListSessions(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp SessionListResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, []string{"alpha", "beta"}, resp.Sessions)
	assert.Equal(t, 2, resp.TotalCount)
}

func TestHandleSessionStats(t *testing.T) {
	f := newServerFixture(t, &stubClassifier{label: agent.LabelNone})

	require.NoError(t, f.store.AddMessage(context.Background(), "sess-1", "user", "hi"))

	req := httptest.NewRequest(http.MethodGet, "/sessions/sess-1/stats", nil)
	req.SetPathValue("id", "sess-1")
	rec := httptest.NewRecorder()
	f.srv.handleSessionStats(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var stats session.Stats
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&stats))
	assert.Equal(t, "sess-1", stats.SessionID)
	assert.Equal(t, 1, stats.MessageCount)
}

func TestHandleSessionStats_NotFound(t *testing.T) {
	f := newServerFixture(t, &stubClassifier{label: agent.LabelNone})

	req := httptest.NewRequest(http.MethodGet, "/sessions/unknown/stats", nil)
	req.SetPathValue("id", "unknown")
	rec := httptest.NewRecorder()
	f.srv.handleSessionStats(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleSessionHistory(t *testing.T) {
	f := newServerFixture(t, &stubClassifier{label: agent.LabelNone})

	for _, content := range []string{"one", "two", "three"} {
		require.NoError(t, f.store.AddMessage(context.Background(), "sess-1", "user", content))
	}

	req := httptest.NewRequest(http.MethodGet, "/sessions/sess-1/history?limit=2", nil)
	req.SetPathValue("id", "sess-1")
	rec := httptest.NewRecorder()
	f.srv.handleSessionHistory(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp HistoryResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 3, resp.TotalMessages)
	require.Len(t, resp.Messages, 2)
	assert.Equal(t, "two", resp.Messages[0].Content)
	assert.Equal(t, "three", resp.Messages[1].Content)
}

func TestHandleSessionHistory_InvalidLimit(t *testing.T) {
	f := newServerFixture(t, &stubClassifier{label: agent.LabelNone})

	req := httptest.NewRequest(http.MethodGet, "/sessions/sess-1/history?limit=abc", nil)
	req.SetPathValue("id", "sess-1")
	rec := httptest.NewRecorder()
	f.srv.handleSessionHistory(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleSessionHistory_NotFound(t *testing.T) {
	f := newServerFixture(t, &stubClassifier{label: agent.LabelNone})

	req := httptest.NewRequest(http.MethodGet, "/sessions/unknown/history", nil)
	req.SetPathValue("id", "unknown")
	rec := httptest.NewRecorder()
	f.srv.handleSessionHistory(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleClearSession(t *testing.T) {
	f := newServerFixture(t, &stubClassifier{label: agent.LabelNone})

	require.NoError(t, f.store.AddMessage(context.Background(), "sess-1", "user", "hi"))

	req := httptest.NewRequest(http.MethodPost, "/sessions/sess-1/clear", nil)
	req.SetPathValue("id", "sess-1")
	rec := httptest.NewRecorder()
	f.srv.handleClearSession(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp SessionActionResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.True(t, resp.Success)

	msgs, ok := f.store.Messages("sess-1", 0)
	assert.True(t, ok)
	assert.Empty(t, msgs)
}

func TestHandleDeleteSession(t *testing.T) {
	f := newServerFixture(t, &stubClassifier{label: agent.LabelNone})

	_, err := f.store.GetOrCreate(context.Background(), "sess-1")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodDelete, "/sessions/sess-1", nil)
	req.SetPathValue("id", "sess-1")
	rec := httptest.NewRecorder()
	f.srv.handleDeleteSession(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp SessionActionResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.True(t, resp.Success)
	assert.Equal(t, 0, f.store.Len())
}

func TestHandleDeleteSession_Unknown(t *testing.T) {
	f := newServerFixture(t, &stubClassifier{label: agent.LabelNone})

	req := httptest.NewRequest(http.MethodDelete, "/sessions/unknown", nil)
	req.SetPathValue("id", "unknown")
	rec := httptest.NewRecorder()
	f.srv.handleDeleteSession(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp SessionActionResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.False(t, resp.Success)
}
