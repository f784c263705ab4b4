package agent

// ChatMessage represents a role-tagged message in a conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// LLMRequest contains the request parameters for an LLM call.
type LLMRequest struct {
	Model        string
	Messages     []ChatMessage
	SystemPrompt string
	Temperature  float64
	MaxTokens    int
}

// LLMResponse contains the response from an LLM call.
type LLMResponse struct {
	Content string
	Usage   *TokenUsage
}

// TokenUsage tracks token consumption.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// AuthProfile represents authentication credentials for an LLM provider.
type AuthProfile struct {
	ID       string `json:"id"`
	Provider string `json:"provider"` // "anthropic", "openai", "gemini"
	APIKey   string `json:"api_key"`
	Model    string `json:"model"`
}
