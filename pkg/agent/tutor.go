package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/mahir/coursebot/internal/observability"
	"github.com/mahir/coursebot/internal/tracing"
	"github.com/mahir/coursebot/pkg/session"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// DefaultContextWindow is the number of recent non-system turns supplied to
// a tutor call.
const DefaultContextWindow = 10

// Tutor agent identifiers.
const (
	TutorSPL      = "spl_agent"
	TutorEnglish  = "english_agent"
	TutorPhysics  = "physics_agent"
	TutorFallback = "fallback_agent"
)

const (
	splSystemPrompt      = "You are an expert in Structured Programming Languages, especially C. Answer the user's programming questions clearly."
	englishSystemPrompt  = "You are an expert in English language and literature. Provide helpful answers to grammar, vocabulary, and literature questions."
	physicsSystemPrompt  = "You are an expert physicist. Provide clear and concise answers to physics questions."
	fallbackSystemPrompt = "You are a helpful and concise general-purpose assistant."
)

// Tutor is a persona-bound agent that answers one course category.
type Tutor struct {
	id            string
	systemPrompt  string
	provider      LLMProvider
	model         string
	store         *session.Store
	contextWindow int
}

// TutorConfig configures a tutor agent.
type TutorConfig struct {
	Provider      LLMProvider
	Model         string
	Store         *session.Store
	ContextWindow int
}

func newTutor(id, systemPrompt string, cfg TutorConfig) *Tutor {
	if cfg.ContextWindow <= 0 {
		cfg.ContextWindow = DefaultContextWindow
	}
	return &Tutor{
		id:            id,
		systemPrompt:  systemPrompt,
		provider:      cfg.Provider,
		model:         cfg.Model,
		store:         cfg.Store,
		contextWindow: cfg.ContextWindow,
	}
}

// NewSPLTutor creates the Structured Programming Language tutor.
func NewSPLTutor(cfg TutorConfig) *Tutor { return newTutor(TutorSPL, splSystemPrompt, cfg) }

// NewEnglishTutor creates the English tutor.
func NewEnglishTutor(cfg TutorConfig) *Tutor { return newTutor(TutorEnglish, englishSystemPrompt, cfg) }

// NewPhysicsTutor creates the Physics tutor.
func NewPhysicsTutor(cfg TutorConfig) *Tutor { return newTutor(TutorPhysics, physicsSystemPrompt, cfg) }

// NewFallbackTutor creates the general-purpose fallback tutor.
func NewFallbackTutor(cfg TutorConfig) *Tutor {
	return newTutor(TutorFallback, fallbackSystemPrompt, cfg)
}

// ID returns the tutor's agent identifier.
func (t *Tutor) ID() string {
	return t.id
}

// Respond answers the user message, threading in up to the last
// contextWindow non-system turns when a session id is present. On success
// the user and assistant turns are appended to the session store, user
// first. A provider failure propagates and nothing is persisted.
func (t *Tutor) Respond(ctx context.Context, sessionID, message string) (string, error) {
	ctx = tracing.WithAgentID(ctx, t.id)
	if sessionID != "" {
		ctx = tracing.WithSessionID(ctx, sessionID)
	}
	ctx, span := tracing.StartSpan(
		ctx,
		"coursebot.agent",
		"tutor.respond",
		attribute.String("agent_id", t.id),
		attribute.String("model", t.model),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, log.Logger)

	var history []session.ContextMessage
	if sessionID != "" {
		history = t.store.Context(sessionID, t.contextWindow)
	}

	messages := make([]ChatMessage, 0, len(history)+1)
	for _, m := range history {
		messages = append(messages, ChatMessage{Role: m.Role, Content: m.Content})
	}

	// Skip re-appending the user message when it is already the tail of the
	// fetched context. Exact content equality, per the double-submission guard.
	if len(history) == 0 || history[len(history)-1].Content != message {
		messages = append(messages, ChatMessage{Role: "user", Content: message})
	}

	start := time.Now()
	resp, err := t.provider.Call(ctx, LLMRequest{
		Model:        t.model,
		SystemPrompt: t.systemPrompt,
		Messages:     messages,
	})
	if err != nil {
		observability.RecordAgentReply(t.id, time.Since(start), false)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("%s call failed: %w", t.id, err)
	}
	observability.RecordAgentReply(t.id, time.Since(start), true)

	if sessionID != "" {
		if err := t.store.AddMessage(ctx, sessionID, "user", message); err != nil {
			return "", fmt.Errorf("failed to persist user turn: %w", err)
		}
		if err := t.store.AddMessage(ctx, sessionID, "assistant", resp.Content); err != nil {
			return "", fmt.Errorf("failed to persist assistant turn: %w", err)
		}
	}

	logger.Debug().
		Str("agent_id", t.id).
		Int("context_turns", len(history)).
		Dur("duration", time.Since(start)).
		Msg("Tutor replied")

	return resp.Content, nil
}
