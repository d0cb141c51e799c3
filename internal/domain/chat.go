package domain

// ChatMessage is the provider-agnostic chat message shape sent to the
// generative model.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// TokenUsage carries the generation token counters reported by the model.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// GeneratedAnswer is a model response with its usage accounting.
type GeneratedAnswer struct {
	Text  string
	Usage TokenUsage
	Model string
}
