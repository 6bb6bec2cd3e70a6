package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	authdomain "mailpilot-backend/internal/auth/domain"
	emaildomain "mailpilot-backend/internal/email/domain"
	"mailpilot-backend/pkg/ai"
	"mailpilot-backend/pkg/sse"
)

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]*authdomain.User
}

func newFakeUserRepo(users ...*authdomain.User) *fakeUserRepo {
	r := &fakeUserRepo{users: make(map[string]*authdomain.User)}
	for _, u := range users {
		r.users[u.ID] = u
	}
	return r
}

func (r *fakeUserRepo) Create(user *authdomain.User) error { r.users[user.ID] = user; return nil }
func (r *fakeUserRepo) FindByID(id string) (*authdomain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.users[id], nil
}
func (r *fakeUserRepo) FindByEmail(email string) (*authdomain.User, error) { return nil, nil }
func (r *fakeUserRepo) Update(user *authdomain.User) error                 { return nil }
func (r *fakeUserRepo) UpdateGoogleTokens(userID, accessToken, refreshToken string) error {
	return nil
}

type fakeEmailRepo struct {
	mu       sync.Mutex
	emails   map[string]*emaildomain.Email
	analyses map[string]*ai.Classification
	getErr   error
	getCalls int
}

func newFakeEmailRepo(emails ...*emaildomain.Email) *fakeEmailRepo {
	r := &fakeEmailRepo{
		emails:   make(map[string]*emaildomain.Email),
		analyses: make(map[string]*ai.Classification),
	}
	for _, e := range emails {
		r.emails[e.UserID+"/"+e.ID] = e
	}
	return r
}

func (r *fakeEmailRepo) Exists(userID, emailID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.emails[userID+"/"+emailID]
	return ok, nil
}

func (r *fakeEmailRepo) UpsertMessage(email *emaildomain.Email) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.emails[email.UserID+"/"+email.ID] = email
	return nil
}

func (r *fakeEmailRepo) SaveAnalysis(userID, emailID, intent, urgency, category string, requiresResponse bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.analyses[userID+"/"+emailID] = &ai.Classification{
		Intent: intent, Urgency: urgency, Category: category, RequiresResponse: requiresResponse,
	}
	return nil
}

func (r *fakeEmailRepo) Get(userID, emailID string) (*emaildomain.Email, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.getCalls++
	if r.getErr != nil {
		return nil, r.getErr
	}
	return r.emails[userID+"/"+emailID], nil
}

type fakeDraftRepo struct {
	mu     sync.Mutex
	drafts []*emaildomain.Draft
}

func (r *fakeDraftRepo) Save(draft *emaildomain.Draft) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	draft.ID = "draft-1"
	r.drafts = append(r.drafts, draft)
	return nil
}

func (r *fakeDraftRepo) ListByUser(userID string, limit int) ([]*emaildomain.Draft, error) {
	return r.drafts, nil
}

type fakeMailProvider struct {
	sent     []*emaildomain.Email
	sentErr  error
	draftID  string
	draftErr error
}

func (m *fakeMailProvider) FetchRecent(ctx context.Context, accessToken, refreshToken string, pageSize int, cb emaildomain.TokenUpdateFunc) ([]*emaildomain.Email, error) {
	return nil, nil
}

func (m *fakeMailProvider) FetchSent(ctx context.Context, accessToken, refreshToken string, limit int, cb emaildomain.TokenUpdateFunc) ([]*emaildomain.Email, error) {
	return m.sent, m.sentErr
}

func (m *fakeMailProvider) CreateReplyDraft(ctx context.Context, accessToken, refreshToken string, email *emaildomain.Email, body string, cb emaildomain.TokenUpdateFunc) (string, error) {
	if m.draftErr != nil {
		return "", m.draftErr
	}
	return m.draftID, nil
}

func (m *fakeMailProvider) Watch(ctx context.Context, accessToken, refreshToken string, topic string, cb emaildomain.TokenUpdateFunc) error {
	return nil
}

type fakeAIService struct {
	classification *ai.Classification
	classifyErr    error
	reply          *ai.ReplyDraft
	replyErr       error
	lastRequest    *ai.ReplyRequest
}

func (s *fakeAIService) ClassifyEmail(ctx context.Context, emailText string) (*ai.Classification, error) {
	return s.classification, s.classifyErr
}

func (s *fakeAIService) GenerateReply(ctx context.Context, req *ai.ReplyRequest) (*ai.ReplyDraft, error) {
	s.lastRequest = req
	return s.reply, s.replyErr
}

type recordedEvent struct {
	UserID string
	Type   string
	Data   map[string]interface{}
}

type fakeBus struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (b *fakeBus) SendToUser(userID string, eventType string, data interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	payload, _ := data.(map[string]interface{})
	b.events = append(b.events, recordedEvent{UserID: userID, Type: eventType, Data: payload})
}

func (b *fakeBus) types() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.events))
	for _, e := range b.events {
		out = append(out, e.Type)
	}
	return out
}

type fakeStyleStore struct {
	mu        sync.Mutex
	samples   map[string]string
	rankedIDs []string
}

func newFakeStyleStore(rankedIDs ...string) *fakeStyleStore {
	return &fakeStyleStore{samples: make(map[string]string), rankedIDs: rankedIDs}
}

func (s *fakeStyleStore) UpsertStyleSample(ctx context.Context, userID, emailID, subject, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples[userID+"/"+emailID] = body
	return nil
}

func (s *fakeStyleStore) QueryStyleIDs(ctx context.Context, userID, query string, limit int) ([]string, error) {
	return s.rankedIDs, nil
}

type fakeEnqueuer struct {
	mu       sync.Mutex
	emailIDs []string
}

func (e *fakeEnqueuer) EnqueueDraftGeneration(ctx context.Context, userID, emailID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.emailIDs = append(e.emailIDs, emailID)
	return nil
}

func testEmail() *emaildomain.Email {
	return &emaildomain.Email{
		ID:       "msg-1",
		UserID:   "user-1",
		ThreadID: "thread-1",
		From:     "alice@example.com",
		Subject:  "Quarterly review",
		Body:     "Can we meet Thursday to go over the numbers?",
	}
}

func testUser() *authdomain.User {
	return &authdomain.User{ID: "user-1", Email: "me@example.com", GoogleAccessToken: "at", GoogleRefreshToken: "rt"}
}

func newTestStages(users *fakeUserRepo, emails *fakeEmailRepo, drafts *fakeDraftRepo, mail *fakeMailProvider, aiSvc *fakeAIService, bus *fakeBus, styles StyleStore) (*Stages, *fakeEnqueuer) {
	s := NewStages(users, emails, drafts, mail, aiSvc, bus, styles, time.Second)
	enq := &fakeEnqueuer{}
	s.SetEnqueuer(enq)
	return s, enq
}

func TestProcessEmailRequiresResponse(t *testing.T) {
	emails := newFakeEmailRepo(testEmail())
	bus := &fakeBus{}
	aiSvc := &fakeAIService{classification: &ai.Classification{
		Intent: "schedule meeting", Urgency: "high", Category: "meeting", RequiresResponse: true,
	}}
	s, enq := newTestStages(newFakeUserRepo(testUser()), emails, &fakeDraftRepo{}, &fakeMailProvider{}, aiSvc, bus, nil)

	err := s.ProcessEmail(context.Background(), EmailProcessingPayload{UserID: "user-1", EmailID: "msg-1"})
	require.NoError(t, err)

	saved := emails.analyses["user-1/msg-1"]
	require.NotNil(t, saved)
	assert.Equal(t, "meeting", saved.Category)
	assert.True(t, saved.RequiresResponse)

	assert.Equal(t, []string{sse.EventProcessingStatus, sse.EventWorkflowDetected}, bus.types())
	assert.Equal(t, []string{"msg-1"}, enq.emailIDs)
}

func TestProcessEmailNoResponseRequired(t *testing.T) {
	emails := newFakeEmailRepo(testEmail())
	bus := &fakeBus{}
	aiSvc := &fakeAIService{classification: &ai.Classification{
		Intent: "newsletter", Urgency: "low", Category: "other", RequiresResponse: false,
	}}
	s, enq := newTestStages(newFakeUserRepo(testUser()), emails, &fakeDraftRepo{}, &fakeMailProvider{}, aiSvc, bus, nil)

	err := s.ProcessEmail(context.Background(), EmailProcessingPayload{UserID: "user-1", EmailID: "msg-1"})
	require.NoError(t, err)

	assert.Empty(t, enq.emailIDs, "no draft job when no response is required")
	require.Len(t, bus.events, 2)
	assert.Equal(t, "analyzing", bus.events[0].Data["status"])
	assert.Equal(t, "completed", bus.events[1].Data["status"])
}

func TestProcessEmailMissingEmailIsNoop(t *testing.T) {
	bus := &fakeBus{}
	s, enq := newTestStages(newFakeUserRepo(), newFakeEmailRepo(), &fakeDraftRepo{}, &fakeMailProvider{}, &fakeAIService{}, bus, nil)

	err := s.ProcessEmail(context.Background(), EmailProcessingPayload{UserID: "user-1", EmailID: "gone"})
	require.NoError(t, err)
	assert.Empty(t, bus.events)
	assert.Empty(t, enq.emailIDs)
}

func TestGenerateDraftPersistsAndNotifies(t *testing.T) {
	emails := newFakeEmailRepo(
		testEmail(),
		&emaildomain.Email{ID: "sent-1", UserID: "user-1", Body: "Looks good, ship it.\n\nBest,\nMe"},
	)
	drafts := &fakeDraftRepo{}
	bus := &fakeBus{}
	mail := &fakeMailProvider{draftID: "gmail-draft-42"}
	aiSvc := &fakeAIService{reply: &ai.ReplyDraft{Body: "Thursday works for me. Does 2pm suit you?", Confidence: 0.9}}
	styles := newFakeStyleStore("sent-1", "sent-missing")
	s, _ := newTestStages(newFakeUserRepo(testUser()), emails, drafts, mail, aiSvc, bus, styles)

	err := s.GenerateDraft(context.Background(), DraftGenerationPayload{UserID: "user-1", EmailID: "msg-1"})
	require.NoError(t, err)

	require.Len(t, drafts.drafts, 1)
	d := drafts.drafts[0]
	assert.Equal(t, "gmail-draft-42", d.ProviderDraftID)
	assert.Equal(t, "thread-1", d.ThreadID)
	assert.InDelta(t, 0.9, d.Confidence, 0.001)
	assert.Greater(t, d.TimeSavedMin, 0)

	require.NotNil(t, aiSvc.lastRequest)
	assert.Equal(t, []string{"Looks good, ship it.\n\nBest,\nMe"}, aiSvc.lastRequest.StyleExamples,
		"ranked IDs resolve to cached bodies, unknown IDs are dropped")

	types := bus.types()
	require.Len(t, types, 2)
	assert.Equal(t, sse.EventDraftGenerated, types[1])
}

func TestGenerateDraftFallbackStillCompletes(t *testing.T) {
	emails := newFakeEmailRepo(testEmail())
	drafts := &fakeDraftRepo{}
	bus := &fakeBus{}
	aiSvc := &fakeAIService{reply: &ai.ReplyDraft{Body: ai.FallbackReplyBody, Confidence: 0.3, Fallback: true}}
	s, _ := newTestStages(newFakeUserRepo(testUser()), emails, drafts, &fakeMailProvider{draftID: "d1"}, aiSvc, bus, nil)

	err := s.GenerateDraft(context.Background(), DraftGenerationPayload{UserID: "user-1", EmailID: "msg-1"})
	require.NoError(t, err)

	require.Len(t, drafts.drafts, 1)
	assert.Equal(t, ai.FallbackReplyBody, drafts.drafts[0].Body)
	assert.InDelta(t, 0.3, drafts.drafts[0].Confidence, 0.001)
}

func TestGenerateDraftProviderFailure(t *testing.T) {
	emails := newFakeEmailRepo(testEmail())
	drafts := &fakeDraftRepo{}
	bus := &fakeBus{}
	mail := &fakeMailProvider{draftErr: errors.New("rate limited")}
	aiSvc := &fakeAIService{reply: &ai.ReplyDraft{Body: "reply", Confidence: 0.8}}
	s, _ := newTestStages(newFakeUserRepo(testUser()), emails, drafts, mail, aiSvc, bus, nil)

	err := s.GenerateDraft(context.Background(), DraftGenerationPayload{UserID: "user-1", EmailID: "msg-1"})
	require.Error(t, err)

	assert.Empty(t, drafts.drafts, "nothing persisted when the provider draft fails")
	for _, typ := range bus.types() {
		assert.NotEqual(t, sse.EventDraftGenerated, typ)
	}
}

func TestLearnStyleStoresSentSamples(t *testing.T) {
	bus := &fakeBus{}
	styles := newFakeStyleStore()
	mail := &fakeMailProvider{sent: []*emaildomain.Email{
		{ID: "s1", Subject: "Re: numbers", Body: "Looks good, ship it."},
		{ID: "s2", Subject: "Re: lunch", Body: "   "},
		{ID: "s3", Subject: "Re: offsite", Body: "I'd prefer the later slot."},
	}}
	s, _ := newTestStages(newFakeUserRepo(testUser()), newFakeEmailRepo(), &fakeDraftRepo{}, mail, &fakeAIService{}, bus, styles)

	emails := s.emails.(*fakeEmailRepo)
	err := s.LearnStyle(context.Background(), LearningPayload{UserID: "user-1"})
	require.NoError(t, err)

	assert.Len(t, styles.samples, 2, "blank-body messages are skipped")
	assert.Len(t, emails.emails, 2, "indexed samples are also cached for retrieval")
	require.Len(t, bus.events, 1)
	assert.Equal(t, sse.EventLearningUpdated, bus.events[0].Type)
	assert.Equal(t, 2, bus.events[0].Data["samples"])
}

func TestProcessRejectsUnknownJobType(t *testing.T) {
	s, _ := newTestStages(newFakeUserRepo(), newFakeEmailRepo(), &fakeDraftRepo{}, &fakeMailProvider{}, &fakeAIService{}, &fakeBus{}, nil)
	err := s.Process(context.Background(), &Job{ID: "j1", Type: "bogus"})
	require.Error(t, err)
}
