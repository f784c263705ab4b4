package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mahir/coursebot/internal/observability"
	"github.com/mahir/coursebot/internal/tracing"
	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Label is a course classification label. The set is closed; anything the
// model produces outside it is treated as a failed classification.
type Label string

const (
	LabelSPL     Label = "Structured Programming Language"
	LabelEnglish Label = "English"
	LabelPhysics Label = "Physics"
	LabelNone    Label = "None"
)

// Labels returns all valid classification labels.
func Labels() []Label {
	return []Label{LabelSPL, LabelEnglish, LabelPhysics, LabelNone}
}

const classifierSystemPrompt = `You are a comprehensive course classifier.
Carefully read and analyze the user query in detail.
Then classify the message into exactly one of the following categories:

- 'Structured Programming Language': If the query is about any structured programming language concepts,
  syntax, examples, problem-solving, manual tracing, code rewriting or topics specifically related to C programming or other structured languages.

- 'Physics': If the query is about any physics-related topics, including mechanics, thermodynamics, electromagnetism,
  optics, modern physics, equations, laws, experiments, or problem-solving in physics.

- 'English': If the query is about English language topics, including grammar, vocabulary, writing, reading comprehension,
  literature analysis, pronunciation, or communication skills.

- 'None': If the query does not fit into any of the above categories or is unrelated to Structured Programming Language,
  Physics, or English.

Respond with a single JSON object of the form {"course": "<category>"} and nothing else.`

const classificationSchema = `{
	"type": "object",
	"properties": {
		"course": {
			"type": "string",
			"enum": ["Structured Programming Language", "English", "Physics", "None"]
		}
	},
	"required": ["course"],
	"additionalProperties": false
}`

type classificationResult struct {
	Course Label `json:"course"`
}

// Classifier assigns a course label to a user message via a structured
// LLM call.
type Classifier struct {
	provider LLMProvider
	model    string
	schema   *gojsonschema.Schema
}

// NewClassifier creates a classifier backed by the given provider and model.
func NewClassifier(provider LLMProvider, model string) (*Classifier, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(classificationSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to compile classification schema: %w", err)
	}

	return &Classifier{
		provider: provider,
		model:    model,
		schema:   schema,
	}, nil
}

// Classify returns the course label for the given user message. Provider
// errors and malformed model output propagate; there is no fallback label.
func (c *Classifier) Classify(ctx context.Context, message string) (Label, error) {
	ctx, span := tracing.StartSpan(
		ctx,
		"coursebot.agent",
		"classifier.classify",
		attribute.String("model", c.model),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, log.Logger)

	start := time.Now()
	resp, err := c.provider.Call(ctx, LLMRequest{
		Model:        c.model,
		SystemPrompt: classifierSystemPrompt,
		Messages: []ChatMessage{
			{Role: "user", Content: message},
		},
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("classification call failed: %w", err)
	}

	label, err := c.parseLabel(resp.Content)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	observability.RecordClassification(string(label), time.Since(start))
	logger.Info().
		Str("course", string(label)).
		Dur("duration", time.Since(start)).
		Msg("Message classified")

	return label, nil
}

// parseLabel validates the raw model output against the classification
// schema and extracts the label.
func (c *Classifier) parseLabel(raw string) (Label, error) {
	payload := stripCodeFence(raw)

	result, err := c.schema.Validate(gojsonschema.NewStringLoader(payload))
	if err != nil {
		return "", fmt.Errorf("malformed classification output: %w", err)
	}
	if !result.Valid() {
		return "", fmt.Errorf("malformed classification output: %s", result.Errors()[0].String())
	}

	var parsed classificationResult
	if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
		return "", fmt.Errorf("malformed classification output: %w", err)
	}

	return parsed.Course, nil
}

// stripCodeFence removes a surrounding markdown code fence, if present.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
