package ai

import (
	"context"
	"fmt"
	"log"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIService implements Service using the OpenAI chat completion API.
type OpenAIService struct {
	client *openai.Client
	model  string
}

func NewOpenAIService(apiKey string) *OpenAIService {
	return &OpenAIService{
		client: openai.NewClient(apiKey),
		model:  openai.GPT4oMini,
	}
}

func (s *OpenAIService) ClassifyEmail(ctx context.Context, emailText string) (*Classification, error) {
	system := `You are an email triage assistant. Respond with ONLY a JSON object:
{"intent": "<one short phrase>", "urgency": "low|normal|high", "category": "meeting|task|question|newsletter|notification|other", "requires_response": true|false, "confidence": <0..1>}`

	raw, err := s.complete(ctx, system, truncate(emailText, 6000))
	if err != nil {
		return nil, err
	}

	classification, ok := ParseClassification(raw)
	if !ok {
		log.Printf("[OpenAI] Malformed classification output, using conservative default")
	}
	return classification, nil
}

func (s *OpenAIService) GenerateReply(ctx context.Context, req *ReplyRequest) (*ReplyDraft, error) {
	system := `You draft replies on behalf of the mailbox owner. Respond with ONLY a JSON object: {"reply": "<the full reply text>", "confidence": <0..1>}`

	var sb strings.Builder
	if len(req.StyleExamples) > 0 {
		sb.WriteString("Match the tone of these examples the owner wrote:\n")
		for _, ex := range req.StyleExamples {
			sb.WriteString("---\n")
			sb.WriteString(truncate(ex, 500))
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "EMAIL FROM: %s\nSUBJECT: %s\n\n%s", req.From, req.Subject, truncate(req.Body, 6000))

	raw, err := s.complete(ctx, system, sb.String())
	if err != nil {
		return nil, err
	}

	draft, ok := ParseReply(raw)
	if !ok {
		log.Printf("[OpenAI] Malformed reply output, substituting fallback draft")
	}
	return draft, nil
}

func (s *OpenAIService) complete(ctx context.Context, system, user string) (string, error) {
	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}
