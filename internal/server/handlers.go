package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/mahir/coursebot/internal/observability"
	"github.com/mahir/coursebot/internal/tracing"
	"github.com/mahir/coursebot/pkg/agent"
	"github.com/mahir/coursebot/pkg/workflow"
)

// handleChat processes a chat message through the classify/route/tutor flow.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	done, ok := s.beginRequest(w)
	if !ok {
		return
	}
	defer done()

	start := time.Now()

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if req.Message == "" {
		s.writeError(w, http.StatusBadRequest, "message is required", "")
		return
	}

	// Generate a session id when the caller did not supply one.
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	ctx := tracing.WithRequestID(r.Context(), tracing.NewTraceID())
	if s.options.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.options.RequestTimeout)
		defer cancel()
	}

	if _, err := s.store.GetOrCreate(ctx, sessionID); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid session id", err.Error())
		return
	}

	result, err := s.flow.Run(ctx, workflow.NewState(req.Message, sessionID))
	duration := time.Since(start)
	if err != nil {
		observability.RecordChatRequest(duration, false)
		s.logger.Error().
			Err(err).
			Str("session_id", sessionID).
			Dur("duration", duration).
			Msg("Chat request failed")
		s.writeError(w, http.StatusInternalServerError, "error processing message", err.Error())
		return
	}

	reply, _ := result.LastMessage()
	observability.RecordChatRequest(duration, true)
	s.logger.Info().
		Str("session_id", sessionID).
		Str("course", string(result.Course)).
		Dur("duration", duration).
		Msg("Chat request completed")

	s.writeJSON(w, http.StatusOK, ChatResponse{
		Message:   reply.Content,
		Course:    string(result.Course),
		SessionID: sessionID,
		Timestamp: time.Now(),
	})

	// Broadcast to the event feed (async, non-blocking)
	if s.hub != nil {
		go s.hub.Broadcast("chat.completed", map[string]interface{}{
			"session_id":  sessionID,
			"course":      string(result.Course),
			"duration_ms": duration.Milliseconds(),
			"timestamp":   time.Now().UnixMilli(),
		})
	}
}

// handleHealth reports service liveness.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Message:   "coursebot is running",
		Uptime:    time.Since(s.startTime).Seconds(),
		Timestamp: time.Now(),
	})
}

// handleCourses lists the available course categories.
func (s *Server) handleCourses(w http.ResponseWriter, r *http.Request) {
	labels := agent.Labels()
	courses := make([]string, len(labels))
	for i, l := range labels {
		courses[i] = string(l)
	}
	s.writeJSON(w, http.StatusOK, CoursesResponse{
		Courses:     courses,
		Description: "Available course categories for message classification",
	})
}

// handleListSessions returns a snapshot of active session ids.
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions := s.store.ActiveSessions()
	s.writeJSON(w, http.StatusOK, SessionListResponse{
		Sessions:   sessions,
		TotalCount: len(sessions),
	})
}

// handleSessionStats returns statistics for one session.
func (s *Server) handleSessionStats(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")

	stats, ok := s.store.GetStats(sessionID)
	if !ok {
		s.writeError(w, http.StatusNotFound, "session not found", sessionID)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

// handleSessionHistory returns a session's retained messages, optionally
// truncated to the most recent ?limit.
func (s *Server) handleSessionHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			s.writeError(w, http.StatusBadRequest, "invalid limit", raw)
			return
		}
		limit = parsed
	}

	all, ok := s.store.Messages(sessionID, 0)
	if !ok {
		s.writeError(w, http.StatusNotFound, "session not found", sessionID)
		return
	}
	msgs := all
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}

	s.writeJSON(w, http.StatusOK, HistoryResponse{
		SessionID:     sessionID,
		Messages:      msgs,
		TotalMessages: len(all),
	})
}

// handleClearSession empties a session's message log.
func (s *Server) handleClearSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")

	cleared := s.store.Clear(sessionID)
	status := "failure"
	if cleared {
		status = "success"
	}
	observability.RecordSessionAudit(r.Context(), "session_cleared", sessionID, status, nil)

	msg := "Session not found"
	if cleared {
		msg = "Session cleared successfully"
	}
	s.writeJSON(w, http.StatusOK, SessionActionResponse{
		SessionID: sessionID,
		Success:   cleared,
		Message:   msg,
	})
}

// handleDeleteSession removes a session entirely.
func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")

	deleted := s.store.Delete(sessionID)
	status := "failure"
	if deleted {
		status = "success"
	}
	observability.RecordSessionAudit(r.Context(), "session_deleted", sessionID, status, nil)

	msg := "Session not found"
	if deleted {
		msg = "Session deleted successfully"
	}
	s.writeJSON(w, http.StatusOK, SessionActionResponse{
		SessionID: sessionID,
		Success:   deleted,
		Message:   msg,
	})
}
