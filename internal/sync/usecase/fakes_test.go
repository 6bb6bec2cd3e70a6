package usecase

import (
	"context"
	"sync"
	"time"

	authdomain "mailpilot-backend/internal/auth/domain"
	emaildomain "mailpilot-backend/internal/email/domain"
	syncdomain "mailpilot-backend/internal/sync/domain"
)

type fakeStateRepo struct {
	mu          sync.Mutex
	states      map[string]*syncdomain.SyncState
	updates     []string // user IDs passed to UpdateActivity
	updateErr   error
	successes   []string
	failures    map[string]string
	disconnects []string
	findBlock   chan struct{} // when non-nil, FindConnectedActiveSince waits on it
}

func newFakeStateRepo(states ...*syncdomain.SyncState) *fakeStateRepo {
	r := &fakeStateRepo{
		states:   make(map[string]*syncdomain.SyncState),
		failures: make(map[string]string),
	}
	for _, s := range states {
		r.states[s.UserID] = s
	}
	return r
}

func (r *fakeStateRepo) statesList() []*syncdomain.SyncState {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*syncdomain.SyncState, 0, len(r.states))
	for _, s := range r.states {
		out = append(out, s)
	}
	return out
}

func (r *fakeStateRepo) Get(userID string) (*syncdomain.SyncState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.states[userID], nil
}

func (r *fakeStateRepo) Save(state *syncdomain.SyncState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[state.UserID] = state
	return nil
}

func (r *fakeStateRepo) FindConnectedActiveSince(cutoff time.Time) ([]*syncdomain.SyncState, error) {
	if r.findBlock != nil {
		<-r.findBlock
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*syncdomain.SyncState
	for _, s := range r.states {
		if s.MailboxConnected && !s.LastActiveAt.Before(cutoff) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *fakeStateRepo) UpdateActivity(userID string, lastActiveAt time.Time, level syncdomain.ActivityLevel) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return r.updateErr
	}
	r.updates = append(r.updates, userID)
	if s, ok := r.states[userID]; ok {
		s.LastActiveAt = lastActiveAt
		s.ActivityLevel = string(level)
	}
	return nil
}

func (r *fakeStateRepo) MarkSyncSuccess(userID string, syncedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.successes = append(r.successes, userID)
	if s, ok := r.states[userID]; ok {
		s.SyncStatus = syncdomain.SyncStatusSuccess
		s.LastSyncedAt = &syncedAt
		s.SyncError = ""
	}
	return nil
}

func (r *fakeStateRepo) MarkSyncError(userID string, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[userID] = message
	if s, ok := r.states[userID]; ok {
		s.SyncStatus = syncdomain.SyncStatusError
		s.SyncError = message
	}
	return nil
}

func (r *fakeStateRepo) SetConnected(userID string, connected bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !connected {
		r.disconnects = append(r.disconnects, userID)
	}
	if s, ok := r.states[userID]; ok {
		s.MailboxConnected = connected
	}
	return nil
}

type fakeMetricsRepo struct {
	mu      sync.Mutex
	records []*syncdomain.SyncMetrics
}

func (r *fakeMetricsRepo) Record(m *syncdomain.SyncMetrics) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, m)
	return nil
}

func (r *fakeMetricsRepo) Recent(limit int) ([]*syncdomain.SyncMetrics, error) {
	return r.records, nil
}

type fakeUserRepo struct {
	users map[string]*authdomain.User
}

func newFakeUserRepo(users ...*authdomain.User) *fakeUserRepo {
	r := &fakeUserRepo{users: make(map[string]*authdomain.User)}
	for _, u := range users {
		r.users[u.ID] = u
	}
	return r
}

func (r *fakeUserRepo) Create(user *authdomain.User) error                 { return nil }
func (r *fakeUserRepo) FindByID(id string) (*authdomain.User, error)       { return r.users[id], nil }
func (r *fakeUserRepo) FindByEmail(email string) (*authdomain.User, error) { return nil, nil }
func (r *fakeUserRepo) Update(user *authdomain.User) error                 { return nil }
func (r *fakeUserRepo) UpdateGoogleTokens(userID, accessToken, refreshToken string) error {
	return nil
}

type fakeEmailRepo struct {
	mu     sync.Mutex
	emails map[string]*emaildomain.Email
}

func newFakeEmailRepo(emails ...*emaildomain.Email) *fakeEmailRepo {
	r := &fakeEmailRepo{emails: make(map[string]*emaildomain.Email)}
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
	return nil
}

func (r *fakeEmailRepo) Get(userID, emailID string) (*emaildomain.Email, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.emails[userID+"/"+emailID], nil
}

// fakeMail returns canned pages per user and can fail or panic per user.
type fakeMail struct {
	mu       sync.Mutex
	pages    map[string][]*emaildomain.Email
	errs     map[string]error
	panics   map[string]bool
	fetchLog []string
}

func newFakeMail() *fakeMail {
	return &fakeMail{
		pages:  make(map[string][]*emaildomain.Email),
		errs:   make(map[string]error),
		panics: make(map[string]bool),
	}
}

func (m *fakeMail) FetchRecent(ctx context.Context, accessToken, refreshToken string, pageSize int, cb emaildomain.TokenUpdateFunc) ([]*emaildomain.Email, error) {
	m.mu.Lock()
	m.fetchLog = append(m.fetchLog, accessToken)
	page := m.pages[accessToken]
	err := m.errs[accessToken]
	shouldPanic := m.panics[accessToken]
	m.mu.Unlock()
	if shouldPanic {
		panic("provider client bug")
	}
	return page, err
}

func (m *fakeMail) FetchSent(ctx context.Context, accessToken, refreshToken string, limit int, cb emaildomain.TokenUpdateFunc) ([]*emaildomain.Email, error) {
	return nil, nil
}

func (m *fakeMail) CreateReplyDraft(ctx context.Context, accessToken, refreshToken string, email *emaildomain.Email, body string, cb emaildomain.TokenUpdateFunc) (string, error) {
	return "", nil
}

func (m *fakeMail) Watch(ctx context.Context, accessToken, refreshToken string, topic string, cb emaildomain.TokenUpdateFunc) error {
	return nil
}

type fakeJobs struct {
	mu       sync.Mutex
	emailIDs []string
	learning []string
}

func (j *fakeJobs) EnqueueEmailProcessing(ctx context.Context, userID, emailID string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.emailIDs = append(j.emailIDs, emailID)
	return nil
}

func (j *fakeJobs) EnqueueLearning(ctx context.Context, userID string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.learning = append(j.learning, userID)
	return nil
}

type fakeBus struct {
	mu     sync.Mutex
	events []string // "userID/type"
}

func (b *fakeBus) SendToUser(userID string, eventType string, data interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, userID+"/"+eventType)
}
