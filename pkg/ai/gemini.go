package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
)

const geminiEndpoint = "https://generativelanguage.googleapis.com/v1beta/models/gemini-2.5-flash:generateContent?key="

// GeminiService implements Service against the Gemini REST API.
type GeminiService struct {
	apiKey string
	client *http.Client
}

func NewGeminiService(apiKey string) *GeminiService {
	return &GeminiService{
		apiKey: apiKey,
		client: &http.Client{},
	}
}

func (g *GeminiService) ClassifyEmail(ctx context.Context, emailText string) (*Classification, error) {
	prompt := fmt.Sprintf(`You are an email triage assistant. Analyze the email below and answer with ONLY a JSON object, no prose, no markdown:
{"intent": "<one short phrase>", "urgency": "low|normal|high", "category": "meeting|task|question|newsletter|notification|other", "requires_response": true|false, "confidence": <0..1>}

EMAIL:
%s`, truncate(emailText, 6000))

	raw, err := g.generate(ctx, prompt)
	if err != nil {
		return nil, err
	}

	classification, ok := ParseClassification(raw)
	if !ok {
		log.Printf("[Gemini] Malformed classification output, using conservative default")
	}
	return classification, nil
}

func (g *GeminiService) GenerateReply(ctx context.Context, req *ReplyRequest) (*ReplyDraft, error) {
	var sb strings.Builder
	sb.WriteString("You are drafting a reply on behalf of the mailbox owner. ")
	sb.WriteString("Answer with ONLY a JSON object: {\"reply\": \"<the full reply text>\", \"confidence\": <0..1>}\n\n")
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

	raw, err := g.generate(ctx, sb.String())
	if err != nil {
		return nil, err
	}

	draft, ok := ParseReply(raw)
	if !ok {
		log.Printf("[Gemini] Malformed reply output, substituting fallback draft")
	}
	return draft, nil
}

// generate calls the Gemini generateContent endpoint and extracts the first
// candidate's text.
func (g *GeminiService) generate(ctx context.Context, prompt string) (string, error) {
	payload := map[string]interface{}{
		"contents": []map[string]interface{}{
			{"parts": []map[string]string{{"text": prompt}}},
		},
	}

	body, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, "POST", geminiEndpoint+g.apiKey, bytes.NewBuffer(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("Gemini API error (%d): %s", resp.StatusCode, string(respBody))
	}

	var result map[string]interface{}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", err
	}

	if c, ok := result["candidates"].([]interface{}); ok && len(c) > 0 {
		if cand, ok := c[0].(map[string]interface{}); ok {
			if content, ok := cand["content"].(map[string]interface{}); ok {
				if parts, ok := content["parts"].([]interface{}); ok && len(parts) > 0 {
					if part, ok := parts[0].(map[string]interface{}); ok {
						if text, ok := part["text"].(string); ok {
							return text, nil
						}
					}
				}
			}
		}
	}
	return "", fmt.Errorf("no candidates returned")
}

func truncate(s string, max int) string {
	if len(s) > max {
		return s[:max]
	}
	return s
}
