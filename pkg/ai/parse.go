package ai

import (
	"encoding/json"
	"strings"
)

// FallbackReplyBody is the deterministic reply substituted when the model
// returns unusable output. Users should never see a broken draft.
const FallbackReplyBody = "Thank you for your email. I'll review it and get back to you as soon as possible."

const fallbackConfidence = 0.3

// stripCodeFence removes a markdown code fence the model may have wrapped
// around its JSON output.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
	}
	return strings.TrimSpace(s)
}

// ParseClassification parses the model's JSON classification. Malformed
// output is a soft failure: a conservative default is returned with ok=false
// so the caller can log it, and the job still succeeds.
func ParseClassification(raw string) (*Classification, bool) {
	var c Classification
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &c); err != nil {
		return &Classification{
			Intent:           "unknown",
			Urgency:          "normal",
			Category:         "other",
			RequiresResponse: false,
			Confidence:       fallbackConfidence,
		}, false
	}
	if c.Urgency == "" {
		c.Urgency = "normal"
	}
	if c.Category == "" {
		c.Category = "other"
	}
	return &c, true
}

// ParseReply parses the model's JSON reply draft. Malformed output yields the
// deterministic fallback draft with low confidence and ok=false.
func ParseReply(raw string) (*ReplyDraft, bool) {
	var d ReplyDraft
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &d); err != nil || strings.TrimSpace(d.Body) == "" {
		return &ReplyDraft{
			Body:       FallbackReplyBody,
			Confidence: fallbackConfidence,
			Fallback:   true,
		}, false
	}
	if d.Confidence <= 0 || d.Confidence > 1 {
		d.Confidence = 0.5
	}
	return &d, true
}
