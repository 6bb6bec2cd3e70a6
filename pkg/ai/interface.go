package ai

import "context"

// Classification is the structured analysis of one email.
type Classification struct {
	Intent           string  `json:"intent"`
	Urgency          string  `json:"urgency"`  // low, normal, high
	Category         string  `json:"category"` // meeting, task, question, newsletter, other, ...
	RequiresResponse bool    `json:"requires_response"`
	Confidence       float64 `json:"confidence"`
}

// ReplyRequest carries the email plus context for reply generation.
type ReplyRequest struct {
	From           string
	Subject        string
	Body           string
	Classification *Classification
	// StyleExamples are snippets of the user's own sent mail, used to match
	// their writing voice when available.
	StyleExamples []string
}

// ReplyDraft is a generated reply. Fallback marks the deterministic
// substitute used when the model returned unusable output.
type ReplyDraft struct {
	Body       string  `json:"reply"`
	Confidence float64 `json:"confidence"`
	Fallback   bool    `json:"-"`
}

// Service is the interface for AI email analysis and drafting.
// Implement this interface to add new AI providers (Gemini, OpenAI, etc.)
type Service interface {
	ClassifyEmail(ctx context.Context, emailText string) (*Classification, error)
	GenerateReply(ctx context.Context, req *ReplyRequest) (*ReplyDraft, error)
}

// ProviderType represents the AI provider type
type ProviderType string

const (
	ProviderGemini ProviderType = "gemini"
	ProviderOpenAI ProviderType = "openai"
)
