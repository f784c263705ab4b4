package session

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mahir/coursebot/internal/observability"
	"github.com/mahir/coursebot/internal/tracing"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	// DefaultMaxMessages is the maximum number of turns retained per session.
	DefaultMaxMessages = 50
	// DefaultMaxSessions is the maximum number of concurrently tracked sessions.
	DefaultMaxSessions = 1000
	// DefaultTTL is the idle duration after which a session becomes evictable.
	DefaultTTL = 24 * time.Hour
)

// Message represents a single conversation turn. Immutable once created.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ContextMessage is a role/content pair in the shape LLM providers consume.
type ContextMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Session holds the message log and bookkeeping for one conversation.
type Session struct {
	ID           string                 `json:"session_id"`
	Messages     []Message              `json:"messages"`
	CreatedAt    time.Time              `json:"created_at"`
	LastAccessed time.Time              `json:"last_accessed"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// Stats describes a session without exposing its message log.
type Stats struct {
	SessionID    string    `json:"session_id"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	LastAccessed time.Time `json:"last_accessed"`
	IsExpired    bool      `json:"is_expired"`
}

// Options configures a Store.
type Options struct {
	MaxMessages int
	MaxSessions int
	TTL         time.Duration
}

// DefaultOptions returns store options with default limits.
func DefaultOptions() Options {
	return Options{
		MaxMessages: DefaultMaxMessages,
		MaxSessions: DefaultMaxSessions,
		TTL:         DefaultTTL,
	}
}

// Store is an in-memory session store shared across request handlers.
// Every operation that touches the map or a message log holds mu for the
// duration of the call; nothing blocking runs under the lock.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
	opts     Options
	now      func() time.Time
}

// NewStore creates a new session store.
func NewStore(opts Options) *Store {
	observability.EnsureRegistered()

	if opts.MaxMessages <= 0 {
		opts.MaxMessages = DefaultMaxMessages
	}
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = DefaultMaxSessions
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}

	s := &Store{
		sessions: make(map[string]*Session),
		opts:     opts,
		now:      time.Now,
	}

	log.Info().
		Int("max_messages", opts.MaxMessages).
		Int("max_sessions", opts.MaxSessions).
		Dur("ttl", opts.TTL).
		Msg("Session store initialized")

	return s
}

// validateSessionID rejects identifiers that would be unsafe to echo back
// into logs or URLs.
func validateSessionID(sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session id cannot be empty")
	}
	if strings.ContainsAny(sessionID, "/\\") {
		return fmt.Errorf("session id cannot contain path separators")
	}
	if strings.Contains(sessionID, "\x00") {
		return fmt.Errorf("session id cannot contain null bytes")
	}
	return nil
}

// GetOrCreate returns a copy of the session, creating it lazily on first
// reference. Creation triggers an eviction sweep and counts as an access.
func (s *Store) GetOrCreate(ctx context.Context, sessionID string) (*Session, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = tracing.WithSessionID(ctx, sessionID)
	ctx, span := tracing.StartSpan(
		ctx,
		"coursebot.session",
		"session.get_or_create",
		attribute.String("session_id", sessionID),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, log.Logger).With().Str("session_id", sessionID).Logger()

	if err := validateSessionID(sessionID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, exists := s.sessions[sessionID]
	if !exists {
		now := s.now()
		sess = &Session{
			ID:           sessionID,
			CreatedAt:    now,
			LastAccessed: now,
			Metadata:     map[string]interface{}{},
		}
		s.sessions[sessionID] = sess
		s.sweepLocked()
		observability.RecordSessionCreated()
		observability.SetActiveSessions(len(s.sessions))
		logger.Debug().Msg("Session created")
	}

	sess.LastAccessed = s.now()
	cp := s.copySessionLocked(sess)
	return cp, nil
}

// AddMessage appends a turn to the session, trimming to the most recent
// MaxMessages. The session is created lazily if unknown.
func (s *Store) AddMessage(ctx context.Context, sessionID, role, content string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = tracing.WithSessionID(ctx, sessionID)
	ctx, span := tracing.StartSpan(
		ctx,
		"coursebot.session",
		"session.add_message",
		attribute.String("session_id", sessionID),
		attribute.String("role", role),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, log.Logger).With().Str("session_id", sessionID).Logger()

	if err := validateSessionID(sessionID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if role == "" {
		return fmt.Errorf("message role cannot be empty")
	}
	if content == "" {
		return fmt.Errorf("message content cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, exists := s.sessions[sessionID]
	if !exists {
		now := s.now()
		sess = &Session{
			ID:           sessionID,
			CreatedAt:    now,
			LastAccessed: now,
			Metadata:     map[string]interface{}{},
		}
		s.sessions[sessionID] = sess
		s.sweepLocked()
		observability.RecordSessionCreated()
		observability.SetActiveSessions(len(s.sessions))
	}

	sess.Messages = append(sess.Messages, Message{
		Role:      role,
		Content:   content,
		Timestamp: s.now(),
	})
	if len(sess.Messages) > s.opts.MaxMessages {
		trimmed := make([]Message, s.opts.MaxMessages)
		copy(trimmed, sess.Messages[len(sess.Messages)-s.opts.MaxMessages:])
		sess.Messages = trimmed
	}
	sess.LastAccessed = s.now()

	logger.Debug().
		Str("role", role).
		Int("messages", len(sess.Messages)).
		Msg("Message appended")

	return nil
}

// Context returns the non-system turns of a session as role/content pairs,
// most recent limit entries when limit > 0. Unknown sessions yield nil.
func (s *Store) Context(sessionID string, limit int) []ContextMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, exists := s.sessions[sessionID]
	if !exists {
		return nil
	}
	sess.LastAccessed = s.now()

	var out []ContextMessage
	for _, msg := range sess.Messages {
		if msg.Role == "system" {
			continue
		}
		out = append(out, ContextMessage{Role: msg.Role, Content: msg.Content})
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// Messages returns a copy of all retained turns, optionally truncated to the
// most recent limit. The second result reports whether the session exists.
func (s *Store) Messages(sessionID string, limit int) ([]Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, exists := s.sessions[sessionID]
	if !exists {
		return nil, false
	}
	sess.LastAccessed = s.now()

	msgs := sess.Messages
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out, true
}

// Clear empties the session's message log in place, preserving the session
// itself. Returns whether the session existed.
func (s *Store) Clear(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, exists := s.sessions[sessionID]
	if !exists {
		return false
	}
	sess.Messages = nil
	sess.LastAccessed = s.now()

	log.Debug().Str("session_id", sessionID).Msg("Session cleared")
	return true
}

// Delete removes the session entirely. Returns whether it existed.
func (s *Store) Delete(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[sessionID]; !exists {
		return false
	}
	delete(s.sessions, sessionID)
	observability.SetActiveSessions(len(s.sessions))

	log.Info().Str("session_id", sessionID).Msg("Session deleted")
	return true
}

// ActiveSessions returns a snapshot of the current session identifiers.
func (s *Store) ActiveSessions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// GetStats returns statistics for a session, or false when unknown.
// Reading stats does not count as an access.
func (s *Store) GetStats(sessionID string) (Stats, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, exists := s.sessions[sessionID]
	if !exists {
		return Stats{}, false
	}

	return Stats{
		SessionID:    sessionID,
		MessageCount: len(sess.Messages),
		CreatedAt:    sess.CreatedAt,
		LastAccessed: sess.LastAccessed,
		IsExpired:    s.now().Sub(sess.LastAccessed) > s.opts.TTL,
	}, true
}

// Len returns the number of tracked sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// sweepLocked removes expired sessions, then trims least-recently-accessed
// sessions down to the configured maximum. Caller must hold mu.
func (s *Store) sweepLocked() {
	now := s.now()
	evicted := 0

	for id, sess := range s.sessions {
		if now.Sub(sess.LastAccessed) > s.opts.TTL {
			delete(s.sessions, id)
			observability.RecordSessionEvicted("ttl")
			evicted++
		}
	}

	if len(s.sessions) > s.opts.MaxSessions {
		type entry struct {
			id           string
			lastAccessed time.Time
		}
		ordered := make([]entry, 0, len(s.sessions))
		for id, sess := range s.sessions {
			ordered = append(ordered, entry{id: id, lastAccessed: sess.LastAccessed})
		}
		sort.Slice(ordered, func(i, j int) bool {
			if ordered[i].lastAccessed.Equal(ordered[j].lastAccessed) {
				return ordered[i].id < ordered[j].id
			}
			return ordered[i].lastAccessed.Before(ordered[j].lastAccessed)
		})
		excess := len(s.sessions) - s.opts.MaxSessions
		for _, e := range ordered[:excess] {
			delete(s.sessions, e.id)
			observability.RecordSessionEvicted("capacity")
			evicted++
		}
	}

	if evicted > 0 {
		log.Info().
			Int("evicted", evicted).
			Int("remaining", len(s.sessions)).
			Msg("Session sweep completed")
	}
}

// copySessionLocked deep-copies a session. Caller must hold mu.
func (s *Store) copySessionLocked(sess *Session) *Session {
	cp := &Session{
		ID:           sess.ID,
		CreatedAt:    sess.CreatedAt,
		LastAccessed: sess.LastAccessed,
	}
	if len(sess.Messages) > 0 {
		cp.Messages = make([]Message, len(sess.Messages))
		copy(cp.Messages, sess.Messages)
	}
	if sess.Metadata != nil {
		cp.Metadata = make(map[string]interface{}, len(sess.Metadata))
		for k, v := range sess.Metadata {
			cp.Metadata[k] = v
		}
	}
	return cp
}
