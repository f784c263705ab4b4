package workflow

import (
	"context"
	"fmt"

	"github.com/mahir/coursebot/internal/tracing"
	"github.com/mahir/coursebot/pkg/agent"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Classifier assigns a course label to a user message.
type Classifier interface {
	Classify(ctx context.Context, message string) (agent.Label, error)
}

// Responder answers a user message, optionally threading session context.
type Responder interface {
	ID() string
	Respond(ctx context.Context, sessionID, message string) (string, error)
}

// Workflow is the classify -> route -> tutor pipeline. Two-level decision
// tree: one classification, one conditional fan-out, four terminal agents.
type Workflow struct {
	classifier Classifier
	tutors     map[string]Responder
}

// New creates a workflow. Every routable agent identifier must have a
// registered responder.
func New(classifier Classifier, tutors ...Responder) (*Workflow, error) {
	if classifier == nil {
		return nil, fmt.Errorf("classifier is required")
	}

	byID := make(map[string]Responder, len(tutors))
	for _, t := range tutors {
		byID[t.ID()] = t
	}
	for _, id := range []string{agent.TutorSPL, agent.TutorEnglish, agent.TutorPhysics, agent.TutorFallback} {
		if _, ok := byID[id]; !ok {
			return nil, fmt.Errorf("missing responder for %s", id)
		}
	}

	return &Workflow{
		classifier: classifier,
		tutors:     byID,
	}, nil
}

// Run executes a single pass: classify the latest user message, route to
// exactly one tutor, and return the state with the reply appended. Any
// classification or tutor failure propagates unmodified.
func (w *Workflow) Run(ctx context.Context, st State) (State, error) {
	if st.SessionID != "" {
		ctx = tracing.WithSessionID(ctx, st.SessionID)
	}
	ctx, span := tracing.StartSpan(
		ctx,
		"coursebot.workflow",
		"workflow.run",
		attribute.String("session_id", st.SessionID),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, log.Logger)

	last, ok := st.LastMessage()
	if !ok {
		err := fmt.Errorf("workflow state has no messages")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return st, err
	}

	label, err := w.classifier.Classify(ctx, last.Content)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return st, err
	}
	st.Course = label

	agentID := Route(label)
	span.SetAttributes(
		attribute.String("course", string(label)),
		attribute.String("agent_id", agentID),
	)
	logger.Info().
		Str("course", string(label)).
		Str("agent_id", agentID).
		Msg("Routing message")

	reply, err := w.tutors[agentID].Respond(ctx, st.SessionID, last.Content)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return st, err
	}

	return st.withReply(reply), nil
}
