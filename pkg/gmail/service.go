package gmail

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	emaildomain "mailpilot-backend/internal/email/domain"
	syncdomain "mailpilot-backend/internal/sync/domain"

	"github.com/emersion/go-message/mail"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// TokenUpdateFunc is a callback function that handles token updates
type TokenUpdateFunc = emaildomain.TokenUpdateFunc

// Service talks to the Gmail API on behalf of a connected user. It is the
// only MailProvider implementation; tokens are passed per call and the
// wrapped token source reports refreshes back through the callback.
type Service struct {
	clientID     string
	clientSecret string
}

type notifyTokenSource struct {
	src      oauth2.TokenSource
	current  *oauth2.Token
	callback TokenUpdateFunc
}

func (s *notifyTokenSource) Token() (*oauth2.Token, error) {
	t, err := s.src.Token()
	if err != nil {
		return nil, err
	}
	if s.callback != nil && s.current.AccessToken != t.AccessToken {
		s.current = t
		if err := s.callback(t); err != nil {
			log.Printf("[Gmail] Failed to persist refreshed token: %v", err)
		}
	}
	return t, nil
}

func NewService(clientID, clientSecret string) *Service {
	return &Service{
		clientID:     clientID,
		clientSecret: clientSecret,
	}
}

// gmailClient creates a Gmail API client with the user's tokens.
func (s *Service) gmailClient(ctx context.Context, accessToken, refreshToken string, onTokenRefresh TokenUpdateFunc) (*gmail.Service, error) {
	token := &oauth2.Token{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
	}

	// Only force refresh if we have a refresh token
	if refreshToken != "" {
		token.Expiry = time.Now()
	}

	config := &oauth2.Config{
		ClientID:     s.clientID,
		ClientSecret: s.clientSecret,
		Endpoint:     google.Endpoint,
	}

	wrappedSource := &notifyTokenSource{
		src:      config.TokenSource(ctx, token),
		current:  token,
		callback: onTokenRefresh,
	}

	client := oauth2.NewClient(ctx, wrappedSource)

	srv, err := gmail.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("unable to create Gmail service: %w", err)
	}

	return srv, nil
}

// FetchRecent returns up to pageSize unread-or-recent inbox messages.
func (s *Service) FetchRecent(ctx context.Context, accessToken, refreshToken string, pageSize int, onTokenRefresh TokenUpdateFunc) ([]*emaildomain.Email, error) {
	return s.fetch(ctx, accessToken, refreshToken, "in:inbox (is:unread OR newer_than:1d)", pageSize, onTokenRefresh)
}

// FetchSent returns up to limit of the user's sent messages.
func (s *Service) FetchSent(ctx context.Context, accessToken, refreshToken string, limit int, onTokenRefresh TokenUpdateFunc) ([]*emaildomain.Email, error) {
	return s.fetch(ctx, accessToken, refreshToken, "in:sent", limit, onTokenRefresh)
}

func (s *Service) fetch(ctx context.Context, accessToken, refreshToken, query string, limit int, onTokenRefresh TokenUpdateFunc) ([]*emaildomain.Email, error) {
	srv, err := s.gmailClient(ctx, accessToken, refreshToken, onTokenRefresh)
	if err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = 20
	}

	listResp, err := srv.Users.Messages.List("me").Q(query).MaxResults(int64(limit)).Context(ctx).Do()
	if err != nil {
		return nil, classifyError(err)
	}

	emails := make([]*emaildomain.Email, 0, len(listResp.Messages))
	for _, ref := range listResp.Messages {
		msg, err := srv.Users.Messages.Get("me", ref.Id).Format("full").Context(ctx).Do()
		if err != nil {
			log.Printf("[Gmail] Failed to fetch message %s: %v", ref.Id, err)
			continue
		}
		emails = append(emails, s.toEmail(msg))
	}

	return emails, nil
}

// CreateReplyDraft creates a provider-side draft reply on the email's thread.
func (s *Service) CreateReplyDraft(ctx context.Context, accessToken, refreshToken string, email *emaildomain.Email, body string, onTokenRefresh TokenUpdateFunc) (string, error) {
	srv, err := s.gmailClient(ctx, accessToken, refreshToken, onTokenRefresh)
	if err != nil {
		return "", err
	}

	subject := email.Subject
	if !strings.HasPrefix(strings.ToLower(subject), "re:") {
		subject = "Re: " + subject
	}

	var raw bytes.Buffer
	fmt.Fprintf(&raw, "To: %s\r\n", email.From)
	fmt.Fprintf(&raw, "Subject: %s\r\n", subject)
	raw.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	raw.WriteString("\r\n")
	raw.WriteString(body)

	draft, err := srv.Users.Drafts.Create("me", &gmail.Draft{
		Message: &gmail.Message{
			ThreadId: email.ThreadID,
			Raw:      base64.URLEncoding.EncodeToString(raw.Bytes()),
		},
	}).Context(ctx).Do()
	if err != nil {
		return "", classifyError(err)
	}

	return draft.Id, nil
}

// Watch registers Gmail push notifications for the inbox on a Pub/Sub topic.
func (s *Service) Watch(ctx context.Context, accessToken, refreshToken string, topic string, onTokenRefresh TokenUpdateFunc) error {
	srv, err := s.gmailClient(ctx, accessToken, refreshToken, onTokenRefresh)
	if err != nil {
		return err
	}

	resp, err := srv.Users.Watch("me", &gmail.WatchRequest{
		TopicName: topic,
		LabelIds:  []string{"INBOX"},
	}).Context(ctx).Do()
	if err != nil {
		return classifyError(err)
	}

	log.Printf("[Gmail] Watch registered, historyId=%d expires=%d", resp.HistoryId, resp.Expiration)
	return nil
}

// toEmail normalizes a Gmail message into the cached email shape.
func (s *Service) toEmail(msg *gmail.Message) *emaildomain.Email {
	email := &emaildomain.Email{
		ID:         msg.Id,
		ThreadID:   msg.ThreadId,
		Snippet:    msg.Snippet,
		ReceivedAt: time.UnixMilli(msg.InternalDate),
	}

	for _, label := range msg.LabelIds {
		if label == "UNREAD" {
			email.IsUnread = true
		}
	}

	if msg.Payload != nil {
		for _, header := range msg.Payload.Headers {
			switch header.Name {
			case "From":
				email.From, email.FromName = parseAddress(header.Value)
			case "To":
				email.To = header.Value
			case "Subject":
				email.Subject = header.Value
			}
		}
		email.Body = extractBody(msg.Payload)
	}

	// Some messages (notably raw-format fetches) carry the full RFC 822
	// payload instead of a parsed part tree.
	if email.Body == "" && msg.Raw != "" {
		if decoded, err := base64.URLEncoding.DecodeString(msg.Raw); err == nil {
			email.Body = parseRawMessage(decoded)
		}
	}

	return email
}

// extractBody walks the part tree preferring text/plain over text/html.
func extractBody(payload *gmail.MessagePart) string {
	if payload.Body != nil && payload.Body.Data != "" &&
		(payload.MimeType == "text/plain" || payload.MimeType == "text/html") {
		if decoded, err := base64.URLEncoding.DecodeString(payload.Body.Data); err == nil {
			return string(decoded)
		}
	}

	var html string
	for _, part := range payload.Parts {
		switch part.MimeType {
		case "text/plain":
			if part.Body != nil && part.Body.Data != "" {
				if decoded, err := base64.URLEncoding.DecodeString(part.Body.Data); err == nil {
					return string(decoded)
				}
			}
		case "text/html":
			if part.Body != nil && part.Body.Data != "" {
				if decoded, err := base64.URLEncoding.DecodeString(part.Body.Data); err == nil {
					html = string(decoded)
				}
			}
		default:
			if nested := extractBody(part); nested != "" {
				return nested
			}
		}
	}
	return html
}

// parseRawMessage extracts the first inline text part of an RFC 822 message.
func parseRawMessage(raw []byte) string {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return ""
	}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return ""
		}
		if err != nil {
			return ""
		}
		if _, ok := part.Header.(*mail.InlineHeader); ok {
			body, err := io.ReadAll(part.Body)
			if err != nil {
				return ""
			}
			return string(body)
		}
	}
}

// parseAddress splits `Name <addr>` into address and display name.
func parseAddress(value string) (addr, name string) {
	if idx := strings.LastIndex(value, "<"); idx >= 0 {
		name = strings.Trim(strings.TrimSpace(value[:idx]), `"`)
		addr = strings.Trim(value[idx:], "<>")
		return addr, name
	}
	return strings.TrimSpace(value), ""
}

// classifyError maps provider errors onto the sync error taxonomy.
func classifyError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case 401, 403:
			return fmt.Errorf("%w: %v", syncdomain.ErrAuthExpired, err)
		case 429:
			return fmt.Errorf("%w: %v", syncdomain.ErrRateLimited, err)
		}
	}
	if strings.Contains(err.Error(), "invalid_grant") {
		return fmt.Errorf("%w: %v", syncdomain.ErrAuthExpired, err)
	}
	return err
}
