package clientsession

import (
	"context"
	"encoding/base64"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/minucst/portal/pkg/auth"
	"github.com/minucst/portal/pkg/auth/codes"
	"github.com/minucst/portal/pkg/auth/token"
	"github.com/minucst/portal/pkg/clock"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testDashboardPassword = "dashboard-pass"
	superAdminCode        = "MINUCST2026-SG-DIEGO"
	staffCode             = "MINUCST-STAFF-07"
)

var testStart = time.Date(2026, 4, 2, 8, 30, 0, 0, time.UTC)

func testLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	return log
}

func newBackend(t *testing.T, clk clock.Clock) *auth.Service {
	t.Helper()

	svc, err := auth.New(testLogger(), auth.Config{DashboardPassword: testDashboardPassword}, auth.Dependencies{
		Hasher: codes.NewStaticHasher("secret"),
		Signer: token.NewLegacySigner("secret"),
		Clock:  clk,
	})
	require.NoError(t, err)

	return svc
}

func TestEncodeDecodeToken(t *testing.T) {
	stored, err := EncodeToken("a.b.c")
	require.NoError(t, err)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte(`"a.b.c"`)), stored)

	tok, err := DecodeToken(stored)
	require.NoError(t, err)
	assert.Equal(t, "a.b.c", tok)

	_, err = DecodeToken("%%%")
	assert.Error(t, err)

	_, err = DecodeToken(base64.StdEncoding.EncodeToString([]byte("{not json")))
	assert.Error(t, err)
}

func TestController_LoginPersistsAndRestores(t *testing.T) {
	clk := clock.NewManual(testStart)
	backend := newBackend(t, clk)
	storage := NewMemoryStorage()
	ctx := context.Background()

	c := NewController(testLogger(), backend, storage, clk, Config{SourceID: "browser"})

	res, err := c.Login(ctx, staffCode, "", true)
	require.NoError(t, err)
	require.True(t, res.Success)

	st := c.State()
	assert.True(t, st.Authenticated)
	assert.Equal(t, testStart.Add(30*time.Minute), st.SessionExpiry)
	assert.False(t, st.HasDashboard)

	stored, ok, err := storage.Get(TokenKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEqual(t, res.Token, stored, "token is stored obscured")

	// A fresh controller over the same storage, as after a reload.
	clk.Advance(10 * time.Minute)

	reloaded := NewController(testLogger(), backend, storage, clk, Config{SourceID: "browser"})
	require.True(t, reloaded.Restore(ctx))

	st = reloaded.State()
	assert.True(t, st.Authenticated)
	assert.Equal(t, res.Token, st.Token)
	assert.Equal(t, clk.Now().Add(30*time.Minute), st.SessionExpiry)
	require.NotNil(t, st.User)
	assert.Equal(t, res.User.ID, st.User.ID)
}

func TestController_RestoreDiscardsBadState(t *testing.T) {
	tests := []struct {
		name   string
		stored string
	}{
		{name: "not base64", stored: "%%%"},
		{name: "not json", stored: base64.StdEncoding.EncodeToString([]byte("nope"))},
		{name: "unknown token", stored: mustEncode(t, "e30=.e30=.e30=")},
		{name: "empty token", stored: mustEncode(t, "")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clk := clock.NewManual(testStart)
			storage := NewMemoryStorage()
			require.NoError(t, storage.Set(TokenKey, tt.stored))

			c := NewController(testLogger(), newBackend(t, clk), storage, clk, Config{})

			assert.False(t, c.Restore(context.Background()))
			assert.False(t, c.State().Authenticated)

			_, ok, err := storage.Get(TokenKey)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestController_RestoreWithoutToken(t *testing.T) {
	clk := clock.NewManual(testStart)
	c := NewController(testLogger(), newBackend(t, clk), NewMemoryStorage(), clk, Config{})

	assert.False(t, c.Restore(context.Background()))
}

func TestController_CorruptFileThenLogin(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, writeRaw(path, "{corrupt"))

	clk := clock.NewManual(testStart)
	ctx := context.Background()
	c := NewController(testLogger(), newBackend(t, clk), NewFileStorage(testLogger(), path), clk, Config{SourceID: "b"})

	assert.False(t, c.Restore(ctx))
	assert.False(t, c.State().Authenticated)

	res, err := c.Login(ctx, staffCode, "", true)
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.True(t, c.State().Authenticated)

	// A fresh client on the same file resumes the session.
	other := NewController(testLogger(), c.backend, NewFileStorage(testLogger(), path), clk, Config{})
	assert.True(t, other.Restore(ctx))
}

type failingStorage struct {
	*MemoryStorage
}

func (failingStorage) Set(string, string) error {
	return errors.New("disk full")
}

func TestController_PersistFailureEndsServerSession(t *testing.T) {
	clk := clock.NewManual(testStart)
	backend := newBackend(t, clk)
	c := NewController(testLogger(), backend, failingStorage{NewMemoryStorage()}, clk, Config{SourceID: "b"})

	_, err := c.Login(context.Background(), staffCode, "", true)
	require.ErrorContains(t, err, "persisting token")
	assert.False(t, c.State().Authenticated)

	var user *auth.User
	for _, u := range backend.Users() {
		if u.Code == staffCode {
			user = u
		}
	}

	require.NotNil(t, user)
	assert.False(t, user.IsActive)
	assert.False(t, backend.IsOnline(user.ID))
}

func TestController_FailedLoginKeepsLoggedOut(t *testing.T) {
	clk := clock.NewManual(testStart)
	storage := NewMemoryStorage()
	c := NewController(testLogger(), newBackend(t, clk), storage, clk, Config{SourceID: "b"})

	res, err := c.Login(context.Background(), staffCode, "", false)
	require.NoError(t, err)
	assert.Equal(t, auth.ReasonTermsNotAccepted, res.Reason)
	assert.False(t, c.State().Authenticated)

	_, ok, _ := storage.Get(TokenKey)
	assert.False(t, ok)
}

func TestController_ExpiryTimerLogsOut(t *testing.T) {
	clk := clock.NewManual(testStart)
	backend := newBackend(t, clk)
	storage := NewMemoryStorage()

	expired := 0
	c := NewController(testLogger(), backend, storage, clk, Config{
		SourceID: "b",
		OnExpire: func() { expired++ },
	})

	res, err := c.Login(context.Background(), staffCode, "", true)
	require.NoError(t, err)
	require.True(t, res.Success)

	clk.Advance(29 * time.Minute)
	assert.True(t, c.State().Authenticated)
	assert.Zero(t, expired)

	clk.Advance(time.Minute)
	assert.False(t, c.State().Authenticated)
	assert.Equal(t, 1, expired)

	_, ok, _ := storage.Get(TokenKey)
	assert.False(t, ok)
}

func TestController_LogoutCancelsTimer(t *testing.T) {
	clk := clock.NewManual(testStart)
	backend := newBackend(t, clk)

	expired := 0
	c := NewController(testLogger(), backend, NewMemoryStorage(), clk, Config{
		SourceID: "b",
		OnExpire: func() { expired++ },
	})

	res, err := c.Login(context.Background(), staffCode, "", true)
	require.NoError(t, err)

	c.Logout(context.Background())
	c.Logout(context.Background())

	assert.False(t, backend.IsLive(res.Token))

	clk.Advance(time.Hour)
	assert.Zero(t, expired)
}

func TestController_Renew(t *testing.T) {
	clk := clock.NewManual(testStart)
	backend := newBackend(t, clk)
	c := NewController(testLogger(), backend, NewMemoryStorage(), clk, Config{SourceID: "b"})

	assert.False(t, c.Renew(context.Background()))

	_, err := c.Login(context.Background(), staffCode, "", true)
	require.NoError(t, err)

	clk.Advance(10 * time.Minute)
	require.True(t, c.Renew(context.Background()))
	assert.Equal(t, clk.Now().Add(30*time.Minute), c.State().SessionExpiry)

	// The primary token itself still expires 30 minutes after issuance.
	clk.Advance(21 * time.Minute)
	assert.False(t, c.Renew(context.Background()))
	assert.False(t, c.State().Authenticated)
}

func TestController_DashboardFlow(t *testing.T) {
	clk := clock.NewManual(testStart)
	backend := newBackend(t, clk)
	ctx := context.Background()

	admin := NewController(testLogger(), backend, NewMemoryStorage(), clk, Config{SourceID: "admin"})
	staff := NewController(testLogger(), backend, NewMemoryStorage(), clk, Config{SourceID: "staff"})

	_, err := admin.Login(ctx, superAdminCode, "", true)
	require.NoError(t, err)
	_, err = staff.Login(ctx, staffCode, "", true)
	require.NoError(t, err)

	assert.False(t, admin.HasDashboardAccess(ctx))
	assert.Nil(t, admin.DashboardData(ctx))

	res, err := staff.LoginDashboard(ctx, testDashboardPassword)
	require.NoError(t, err)
	assert.Equal(t, auth.ReasonUnauthorized, res.Reason)

	res, err = admin.LoginDashboard(ctx, "wrong")
	require.NoError(t, err)
	assert.Equal(t, auth.ReasonDashboardPasswordIncorrect, res.Reason)

	res, err = admin.LoginDashboard(ctx, testDashboardPassword)
	require.NoError(t, err)
	require.True(t, res.Success)

	assert.True(t, admin.HasDashboardAccess(ctx))
	assert.True(t, admin.State().HasDashboard)
	require.NotNil(t, admin.DashboardData(ctx))
	require.NotNil(t, admin.SecurityStats(ctx))

	require.True(t, admin.RevokeCode(ctx, staffCode))
	assert.False(t, staff.Renew(ctx))

	// The dashboard token does not survive a reload.
	reloaded := NewController(testLogger(), backend, admin.storage, clk, Config{SourceID: "admin"})
	require.True(t, reloaded.Restore(ctx))
	assert.False(t, reloaded.HasDashboardAccess(ctx))

	admin.Logout(ctx)
	assert.False(t, admin.State().HasDashboard)
	assert.False(t, admin.HasDashboardAccess(ctx))
}

func mustEncode(t *testing.T, tok string) string {
	t.Helper()

	s, err := EncodeToken(tok)
	require.NoError(t, err)

	return s
}
