// Package agent provides the LLM provider abstraction, the course
// classifier, and the session-aware tutor agents.
//
// Invariants:
// - Provider failures propagate unmodified; there is no retry or fallback label.
// - A tutor persists the user/assistant turn pair only after a successful reply.
// - The provider call never runs while the session store lock is held.
//
// Usage:
//
//	provider := agent.NewOpenAIProvider(apiKey)
//	clf, _ := agent.NewClassifier(provider, "gpt-4o-mini")
//	course, _ := clf.Classify(ctx, "What is Newton's second law?")
//	_ = course
package agent
