package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"golang.org/x/oauth2"

	authrepo "mailpilot-backend/internal/auth/repository"
	emaildomain "mailpilot-backend/internal/email/domain"
	emailrepo "mailpilot-backend/internal/email/repository"
	"mailpilot-backend/pkg/ai"
	"mailpilot-backend/pkg/sse"
)

// EventPublisher pushes events to a user's live connections.
type EventPublisher interface {
	SendToUser(userID string, eventType string, data interface{})
}

// StyleStore indexes writing-style samples and ranks the closest ones for a
// query. Backed by the vector store; nil disables style matching. Sample
// text is resolved from the email cache by ID.
type StyleStore interface {
	UpsertStyleSample(ctx context.Context, userID, emailID, subject, body string) error
	QueryStyleIDs(ctx context.Context, userID, query string, limit int) ([]string, error)
}

// DraftEnqueuer hands an email off to the draft generation stage. The
// pipeline itself implements it; the setter breaks the construction cycle
// between stages and the queue that runs them.
type DraftEnqueuer interface {
	EnqueueDraftGeneration(ctx context.Context, userID, emailID string) error
}

// Stages executes pipeline jobs. Each handler is idempotent enough to be
// re-run wholesale after a failed attempt: there is no partial resumption.
type Stages struct {
	users     authrepo.UserRepository
	emails    emailrepo.EmailCacheRepository
	drafts    emailrepo.DraftRepository
	mail      emaildomain.MailProvider
	aiService ai.Service
	bus       EventPublisher
	styles    StyleStore // optional
	enqueuer  DraftEnqueuer

	aiTimeout     time.Duration
	sentSampleMax int
}

func NewStages(
	users authrepo.UserRepository,
	emails emailrepo.EmailCacheRepository,
	drafts emailrepo.DraftRepository,
	mail emaildomain.MailProvider,
	aiService ai.Service,
	bus EventPublisher,
	styles StyleStore,
	aiTimeout time.Duration,
) *Stages {
	if aiTimeout <= 0 {
		aiTimeout = 30 * time.Second
	}
	return &Stages{
		users:         users,
		emails:        emails,
		drafts:        drafts,
		mail:          mail,
		aiService:     aiService,
		bus:           bus,
		styles:        styles,
		aiTimeout:     aiTimeout,
		sentSampleMax: 25,
	}
}

// SetEnqueuer wires the stage handoff back into the running pipeline.
func (s *Stages) SetEnqueuer(e DraftEnqueuer) {
	s.enqueuer = e
}

// Process dispatches a job to its stage handler.
func (s *Stages) Process(ctx context.Context, job *Job) error {
	switch job.Type {
	case JobEmailProcessing:
		var p EmailProcessingPayload
		if err := json.Unmarshal(job.Payload, &p); err != nil {
			return fmt.Errorf("invalid %s payload: %w", job.Type, err)
		}
		return s.ProcessEmail(ctx, p)
	case JobDraftGeneration:
		var p DraftGenerationPayload
		if err := json.Unmarshal(job.Payload, &p); err != nil {
			return fmt.Errorf("invalid %s payload: %w", job.Type, err)
		}
		return s.GenerateDraft(ctx, p)
	case JobLearning:
		var p LearningPayload
		if err := json.Unmarshal(job.Payload, &p); err != nil {
			return fmt.Errorf("invalid %s payload: %w", job.Type, err)
		}
		return s.LearnStyle(ctx, p)
	default:
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
}

// ProcessEmail classifies a cached email and records the analysis. When the
// classification says a response is required, a draft generation job is
// enqueued; otherwise the pipeline for this email ends here.
func (s *Stages) ProcessEmail(ctx context.Context, p EmailProcessingPayload) error {
	email, err := s.emails.Get(p.UserID, p.EmailID)
	if err != nil {
		return fmt.Errorf("failed to load email %s: %w", p.EmailID, err)
	}
	if email == nil {
		log.Printf("[Pipeline] Email %s for user %s no longer cached, skipping", p.EmailID, p.UserID)
		return nil
	}

	s.bus.SendToUser(p.UserID, sse.EventProcessingStatus, map[string]interface{}{
		"status":   "analyzing",
		"email_id": email.ID,
		"subject":  email.Subject,
	})

	aiCtx, cancel := context.WithTimeout(ctx, s.aiTimeout)
	defer cancel()
	cls, err := s.aiService.ClassifyEmail(aiCtx, classificationText(email))
	if err != nil {
		return fmt.Errorf("classification failed for email %s: %w", email.ID, err)
	}

	if err := s.emails.SaveAnalysis(p.UserID, email.ID, cls.Intent, cls.Urgency, cls.Category, cls.RequiresResponse); err != nil {
		return fmt.Errorf("failed to save analysis for email %s: %w", email.ID, err)
	}

	if cls.Category != "" && cls.Category != "other" {
		s.bus.SendToUser(p.UserID, sse.EventWorkflowDetected, map[string]interface{}{
			"email_id": email.ID,
			"category": cls.Category,
			"urgency":  cls.Urgency,
			"intent":   cls.Intent,
		})
	}

	if cls.RequiresResponse {
		if err := s.enqueuer.EnqueueDraftGeneration(ctx, p.UserID, email.ID); err != nil {
			return fmt.Errorf("failed to enqueue draft generation for email %s: %w", email.ID, err)
		}
		return nil
	}

	s.bus.SendToUser(p.UserID, sse.EventProcessingStatus, map[string]interface{}{
		"status":   "completed",
		"email_id": email.ID,
	})
	return nil
}

// GenerateDraft produces a reply draft for an email, creates the matching
// provider-side draft, and persists the result. A malformed model response
// degrades to the deterministic fallback draft inside the AI service, so it
// still completes here with low confidence.
func (s *Stages) GenerateDraft(ctx context.Context, p DraftGenerationPayload) error {
	email, err := s.emails.Get(p.UserID, p.EmailID)
	if err != nil {
		return fmt.Errorf("failed to load email %s: %w", p.EmailID, err)
	}
	if email == nil {
		log.Printf("[Pipeline] Email %s for user %s no longer cached, skipping draft", p.EmailID, p.UserID)
		return nil
	}

	user, err := s.users.FindByID(p.UserID)
	if err != nil {
		return fmt.Errorf("failed to load user %s: %w", p.UserID, err)
	}
	if user == nil {
		log.Printf("[Pipeline] User %s no longer exists, skipping draft", p.UserID)
		return nil
	}

	s.bus.SendToUser(p.UserID, sse.EventProcessingStatus, map[string]interface{}{
		"status":   "generating_draft",
		"email_id": email.ID,
	})

	var styleExamples []string
	if s.styles != nil {
		ids, err := s.styles.QueryStyleIDs(ctx, p.UserID, email.Subject+"\n"+email.Snippet, 3)
		if err != nil {
			log.Printf("[Pipeline] Style lookup failed for user %s: %v", p.UserID, err)
		}
		for _, id := range ids {
			sample, err := s.emails.Get(p.UserID, id)
			if err != nil || sample == nil || sample.Body == "" {
				continue
			}
			styleExamples = append(styleExamples, sample.Body)
		}
	}

	aiCtx, cancel := context.WithTimeout(ctx, s.aiTimeout)
	defer cancel()
	reply, err := s.aiService.GenerateReply(aiCtx, &ai.ReplyRequest{
		From:    email.From,
		Subject: email.Subject,
		Body:    email.Body,
		Classification: &ai.Classification{
			Intent:           email.Intent,
			Urgency:          email.Urgency,
			Category:         email.Category,
			RequiresResponse: email.RequiresResponse,
		},
		StyleExamples: styleExamples,
	})
	if err != nil {
		return fmt.Errorf("reply generation failed for email %s: %w", email.ID, err)
	}
	if reply.Fallback {
		log.Printf("[Pipeline] Using fallback draft for email %s", email.ID)
	}

	providerDraftID, err := s.mail.CreateReplyDraft(ctx, user.GoogleAccessToken, user.GoogleRefreshToken, email, reply.Body, s.tokenPersister(p.UserID))
	if err != nil {
		return fmt.Errorf("failed to create provider draft for email %s: %w", email.ID, err)
	}

	draft := &emaildomain.Draft{
		UserID:          p.UserID,
		EmailID:         email.ID,
		ThreadID:        email.ThreadID,
		ProviderDraftID: providerDraftID,
		Body:            reply.Body,
		Confidence:      reply.Confidence,
		TimeSavedMin:    estimateTimeSaved(reply.Body),
	}
	if err := s.drafts.Save(draft); err != nil {
		return fmt.Errorf("failed to save draft for email %s: %w", email.ID, err)
	}

	s.bus.SendToUser(p.UserID, sse.EventDraftGenerated, map[string]interface{}{
		"email_id":       email.ID,
		"draft_id":       draft.ID,
		"subject":        email.Subject,
		"confidence":     draft.Confidence,
		"time_saved_min": draft.TimeSavedMin,
	})
	return nil
}

// LearnStyle samples the user's sent mail and records writing-style examples
// in the vector store. Individual sample failures are logged and skipped so
// one bad message never poisons the whole run.
func (s *Stages) LearnStyle(ctx context.Context, p LearningPayload) error {
	user, err := s.users.FindByID(p.UserID)
	if err != nil {
		return fmt.Errorf("failed to load user %s: %w", p.UserID, err)
	}
	if user == nil {
		log.Printf("[Pipeline] User %s no longer exists, skipping learning", p.UserID)
		return nil
	}

	sent, err := s.mail.FetchSent(ctx, user.GoogleAccessToken, user.GoogleRefreshToken, s.sentSampleMax, s.tokenPersister(p.UserID))
	if err != nil {
		return fmt.Errorf("failed to fetch sent mail for user %s: %w", p.UserID, err)
	}

	stored := 0
	if s.styles != nil {
		for _, msg := range sent {
			if strings.TrimSpace(msg.Body) == "" {
				continue
			}
			// Cache the sample so draft generation can resolve ranked IDs
			// back to text.
			msg.UserID = p.UserID
			if err := s.emails.UpsertMessage(msg); err != nil {
				log.Printf("[Pipeline] Failed to cache style sample %s for user %s: %v", msg.ID, p.UserID, err)
				continue
			}
			if err := s.styles.UpsertStyleSample(ctx, p.UserID, msg.ID, msg.Subject, msg.Body); err != nil {
				log.Printf("[Pipeline] Failed to index style sample %s for user %s: %v", msg.ID, p.UserID, err)
				continue
			}
			stored++
		}
	}

	log.Printf("[Pipeline] Learning completed for user %s: %d/%d samples stored", p.UserID, stored, len(sent))
	s.bus.SendToUser(p.UserID, sse.EventLearningUpdated, map[string]interface{}{
		"status":  "completed",
		"samples": stored,
	})
	return nil
}

func (s *Stages) tokenPersister(userID string) emaildomain.TokenUpdateFunc {
	return func(token *oauth2.Token) error {
		return s.users.UpdateGoogleTokens(userID, token.AccessToken, token.RefreshToken)
	}
}

func classificationText(email *emaildomain.Email) string {
	var b strings.Builder
	b.WriteString("From: " + email.From + "\n")
	b.WriteString("Subject: " + email.Subject + "\n\n")
	if email.Body != "" {
		b.WriteString(email.Body)
	} else {
		b.WriteString(email.Snippet)
	}
	return b.String()
}

// estimateTimeSaved approximates the minutes a user would have spent writing
// the reply themselves, based on draft length.
func estimateTimeSaved(body string) int {
	words := len(strings.Fields(body))
	switch {
	case words > 150:
		return 10
	case words > 60:
		return 5
	case words > 0:
		return 3
	default:
		return 0
	}
}
