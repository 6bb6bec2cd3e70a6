package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	authdomain "mailpilot-backend/internal/auth/domain"
	emaildomain "mailpilot-backend/internal/email/domain"
	syncdomain "mailpilot-backend/internal/sync/domain"
)

func execUser(id string) *authdomain.User {
	// Access token doubles as the fakeMail page key.
	return &authdomain.User{ID: id, GoogleAccessToken: id, GoogleRefreshToken: "rt"}
}

func connectedState(userID string) *syncdomain.SyncState {
	return &syncdomain.SyncState{UserID: userID, LastActiveAt: time.Now(), MailboxConnected: true}
}

func TestSyncUserEnqueuesOnlyNewMessages(t *testing.T) {
	states := newFakeStateRepo(connectedState("u1"))
	emails := newFakeEmailRepo(&emaildomain.Email{ID: "old", UserID: "u1", Subject: "seen before"})
	mail := newFakeMail()
	mail.pages["u1"] = []*emaildomain.Email{
		{ID: "old", Subject: "seen before"},
		{ID: "new", Subject: "brand new"},
	}
	jobs := &fakeJobs{}
	bus := &fakeBus{}
	e := NewExecutor(newFakeUserRepo(execUser("u1")), states, &fakeMetricsRepo{}, emails, mail, jobs, bus, 20)

	err := e.SyncUser(context.Background(), "u1")
	require.NoError(t, err)

	assert.Equal(t, []string{"new"}, jobs.emailIDs)
	assert.Equal(t, []string{"u1/email_received"}, bus.events)
	assert.Equal(t, []string{"u1"}, states.successes)
	require.NotNil(t, states.states["u1"].LastSyncedAt)
}

func TestSyncUserAuthExpiredDisconnects(t *testing.T) {
	states := newFakeStateRepo(connectedState("u1"))
	mail := newFakeMail()
	mail.errs["u1"] = syncdomain.ErrAuthExpired
	e := NewExecutor(newFakeUserRepo(execUser("u1")), states, &fakeMetricsRepo{}, newFakeEmailRepo(), mail, &fakeJobs{}, &fakeBus{}, 20)

	err := e.SyncUser(context.Background(), "u1")
	require.Error(t, err)

	assert.Equal(t, []string{"u1"}, states.disconnects)
	assert.Contains(t, states.failures["u1"], "reconnect")
	assert.Nil(t, states.states["u1"].LastSyncedAt, "failure leaves last_synced_at untouched")
}

func TestSyncUserTransientErrorKeepsConnection(t *testing.T) {
	states := newFakeStateRepo(connectedState("u1"))
	mail := newFakeMail()
	mail.errs["u1"] = errors.New("temporary upstream failure")
	e := NewExecutor(newFakeUserRepo(execUser("u1")), states, &fakeMetricsRepo{}, newFakeEmailRepo(), mail, &fakeJobs{}, &fakeBus{}, 20)

	err := e.SyncUser(context.Background(), "u1")
	require.Error(t, err)

	assert.Empty(t, states.disconnects)
	assert.True(t, states.states["u1"].MailboxConnected)
	assert.Equal(t, syncdomain.SyncStatusError, states.states["u1"].SyncStatus)
}

func TestRunBatchSettlesAllUsers(t *testing.T) {
	states := newFakeStateRepo(connectedState("ok"), connectedState("boom"), connectedState("fail"))
	mail := newFakeMail()
	mail.pages["ok"] = []*emaildomain.Email{{ID: "m1", Subject: "hello"}}
	mail.panics["boom"] = true
	mail.errs["fail"] = errors.New("upstream 500")
	metrics := &fakeMetricsRepo{}
	e := NewExecutor(
		newFakeUserRepo(execUser("ok"), execUser("boom"), execUser("fail")),
		states, metrics, newFakeEmailRepo(), mail, &fakeJobs{}, &fakeBus{}, 20,
	)

	batch := &Batch{Tier: syncdomain.ActivityVeryActive, Users: states.statesList()}
	m := e.RunBatch(context.Background(), batch)

	assert.Equal(t, 3, m.UserCount)
	assert.Equal(t, m.UserCount, m.SuccessCount+m.ErrorCount, "every user settles exactly once")
	assert.Equal(t, 1, m.SuccessCount)
	assert.Equal(t, 2, m.ErrorCount)
	assert.Equal(t, string(syncdomain.ActivityVeryActive), m.Tier)

	require.Len(t, metrics.records, 1)
	assert.Same(t, m, metrics.records[0])
	assert.Contains(t, states.failures["boom"], "internal error")
}
