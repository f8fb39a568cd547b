package service_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/storefront-session/internal/apiclient"
	"github.com/spec-kit/storefront-session/internal/config"
	"github.com/spec-kit/storefront-session/internal/domain"
	"github.com/spec-kit/storefront-session/internal/events"
	"github.com/spec-kit/storefront-session/internal/observability"
	"github.com/spec-kit/storefront-session/internal/persistence"
	"github.com/spec-kit/storefront-session/internal/service"
	"github.com/spec-kit/storefront-session/internal/session"
)

// mockAuthAPI implements service.AuthAPI for testing.
type mockAuthAPI struct {
	mu          sync.Mutex
	loginResult *domain.LoginResult
	loginErr    error
	logoutErr   error
	verifyErr   error
	registerErr error

	// loginGate, when set, blocks Login until closed.
	loginGate chan struct{}
	// onVerify, when set, runs inside VerifyToken before it returns.
	onVerify func()

	logoutCalls int
	verifyCalls int
}

func (m *mockAuthAPI) Login(ctx context.Context, _ domain.Credentials) (*domain.LoginResult, error) {
	if m.loginGate != nil {
		<-m.loginGate
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loginResult, m.loginErr
}

func (m *mockAuthAPI) Logout(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logoutCalls++
	return m.logoutErr
}

func (m *mockAuthAPI) VerifyToken(context.Context) error {
	if m.onVerify != nil {
		m.onVerify()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verifyCalls++
	return m.verifyErr
}

func (m *mockAuthAPI) Register(_ context.Context, reg domain.Registration) (*apiclient.RegisterResult, error) {
	if m.registerErr != nil {
		return nil, m.registerErr
	}
	return &apiclient.RegisterResult{Message: "User registered successfully"}, nil
}

var errNetwork = errors.New("dial tcp: connection refused")

func validToken(t *testing.T) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": "1",
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
	s, err := token.SignedString([]byte("server-secret"))
	require.NoError(t, err)
	return s
}

// tokenFor returns a valid token whose payload differs per subject.
func tokenFor(t *testing.T, subject string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": subject,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	s, err := token.SignedString([]byte("server-secret"))
	require.NoError(t, err)
	return s
}

func expiredToken(t *testing.T) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	s, err := token.SignedString([]byte("server-secret"))
	require.NoError(t, err)
	return s
}

func customerProfile() *domain.UserProfile {
	return &domain.UserProfile{ID: "1", Username: "ada", Role: domain.RoleCustomer}
}

type fixture struct {
	svc      *service.SessionService
	store    *session.Store
	api      *mockAuthAPI
	guard    *session.Guard
	metrics  *observability.Metrics
	received []events.EventType
	mu       sync.Mutex
}

func (f *fixture) published() []events.EventType {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.received) == 0 {
		return nil
	}
	return append([]events.EventType{}, f.received...)
}

func setup(t *testing.T, verify bool) *fixture {
	t.Helper()
	store := session.NewStore(persistence.NewMemoryBackend(), nil)
	evaluator := session.NewEvaluator(store, nil)
	dispatcher := events.NewInMemoryDispatcher()
	f := &fixture{store: store, api: &mockAuthAPI{}, metrics: observability.NewMetrics()}

	for _, et := range []events.EventType{events.EventLoggedIn, events.EventLoggedOut, events.EventExpired, events.EventRejected} {
		dispatcher.Subscribe(et, func(_ context.Context, e events.Event) error {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.received = append(f.received, e.Type)
			return nil
		})
	}

	f.svc = service.NewSessionService(config.APIConfig{VerifyOnStartup: verify}, service.SessionDependencies{
		Store:     store,
		Evaluator: evaluator,
		API:       f.api,
		Events:    dispatcher,
		Metrics:   f.metrics,
	})
	f.guard = session.NewGuard(store, evaluator, f.svc, nil)
	return f
}

func TestLogin_Success(t *testing.T) {
	f := setup(t, true)
	ctx := context.Background()
	token := validToken(t)
	f.api.loginResult = &domain.LoginResult{AccessToken: token, User: customerProfile()}

	user, err := f.svc.Login(ctx, "ada", "pw")
	require.NoError(t, err)
	assert.Equal(t, "ada", user.Username)

	stored, _ := f.store.Token(ctx)
	assert.Equal(t, token, stored)
	state := f.svc.State(ctx)
	assert.True(t, state.Authenticated)
	assert.Equal(t, domain.RoleCustomer, state.User.Role)
	assert.Equal(t, "Bearer "+token, f.store.AuthHeader(ctx)["Authorization"])
	assert.Equal(t, []events.EventType{events.EventLoggedIn}, f.published())
	assert.Equal(t, int64(1), f.metrics.Snapshot()["session"]["login_ok"])
}

func TestLogin_FailureStoresNothing(t *testing.T) {
	f := setup(t, true)
	ctx := context.Background()
	f.api.loginErr = &apiclient.APIError{Status: http.StatusUnauthorized, Message: "Invalid credentials", Err: apiclient.ErrUnauthorized}

	_, err := f.svc.Login(ctx, "ada", "bad")
	require.Error(t, err)
	assert.Equal(t, "Invalid credentials", apiclient.UserMessage(err))

	token, user := f.store.Snapshot(ctx)
	assert.Empty(t, token)
	assert.Nil(t, user)
	assert.False(t, f.svc.State(ctx).Authenticated)
	assert.Empty(t, f.published())
}

func TestLogin_RequiresCredentials(t *testing.T) {
	f := setup(t, true)

	_, err := f.svc.Login(context.Background(), "  ", "pw")
	assert.Error(t, err)
	_, err = f.svc.Login(context.Background(), "ada", "")
	assert.Error(t, err)
}

func TestLogin_LogoutDuringFlightWins(t *testing.T) {
	f := setup(t, true)
	ctx := context.Background()
	f.api.loginResult = &domain.LoginResult{AccessToken: validToken(t), User: customerProfile()}
	f.api.loginGate = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := f.svc.Login(ctx, "ada", "pw")
		done <- err
	}()

	// Give the login goroutine time to read the epoch and block on the backend.
	time.Sleep(20 * time.Millisecond)
	f.svc.Logout(ctx)
	close(f.api.loginGate)

	assert.ErrorIs(t, <-done, service.ErrSuperseded)
	assert.False(t, f.svc.State(ctx).Authenticated)
	_, ok := f.store.Token(ctx)
	assert.False(t, ok)
}

func TestLogout_ServerUnreachableStillClears(t *testing.T) {
	f := setup(t, true)
	ctx := context.Background()
	require.NoError(t, f.store.Save(ctx, validToken(t), customerProfile()))
	f.api.logoutErr = errNetwork

	f.svc.Logout(ctx)

	token, user := f.store.Snapshot(ctx)
	assert.Empty(t, token)
	assert.Nil(t, user)
	assert.Equal(t, 1, f.api.logoutCalls)
	assert.Equal(t, []events.EventType{events.EventLoggedOut}, f.published())
	assert.Equal(t, int64(1), f.metrics.Snapshot()["session"]["logout_notify_failed"])
}

func TestLogout_SkipsServerWhenNotAuthenticated(t *testing.T) {
	f := setup(t, true)
	f.svc.Logout(context.Background())
	assert.Equal(t, 0, f.api.logoutCalls)
}

func TestLogout_CancelledContextStillClears(t *testing.T) {
	f := setup(t, true)
	require.NoError(t, f.store.Save(context.Background(), validToken(t), customerProfile()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f.svc.Logout(ctx)

	_, ok := f.store.Token(context.Background())
	assert.False(t, ok)
}

func TestRehydrate(t *testing.T) {
	tests := []struct {
		name       string
		verify     bool
		token      func(t *testing.T) string
		user       *domain.UserProfile
		verifyErr  error
		wantAuth   bool
		wantVerify int
		wantEvents []events.EventType
		wantErr    bool
	}{
		{name: "empty store", verify: true, wantVerify: 0},
		{name: "valid and verified", verify: true, token: validToken, user: customerProfile(), wantAuth: true, wantVerify: 1},
		{name: "valid without verification", verify: false, token: validToken, user: customerProfile(), wantAuth: true, wantVerify: 0},
		{name: "revoked on server", verify: true, token: validToken, user: customerProfile(), verifyErr: &apiclient.APIError{Status: 401, Err: apiclient.ErrUnauthorized},
			wantVerify: 1, wantEvents: []events.EventType{events.EventRejected}, wantErr: true},
		{name: "server unreachable", verify: true, token: validToken, user: customerProfile(), verifyErr: errNetwork,
			wantVerify: 1, wantEvents: []events.EventType{events.EventRejected}, wantErr: true},
		{name: "expired locally", verify: true, token: expiredToken, user: customerProfile(),
			wantVerify: 0, wantEvents: []events.EventType{events.EventExpired}},
		{name: "token without profile", verify: true, token: validToken,
			wantVerify: 0, wantEvents: []events.EventType{events.EventRejected}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t, tt.verify)
			ctx := context.Background()
			if tt.token != nil {
				require.NoError(t, f.store.SetToken(ctx, tt.token(t)))
			}
			if tt.user != nil {
				require.NoError(t, f.store.SetUser(ctx, tt.user))
			}
			f.api.verifyErr = tt.verifyErr

			select {
			case <-f.svc.Ready():
				t.Fatal("gate open before rehydrate")
			default:
			}

			err := f.svc.Rehydrate(ctx)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}

			<-f.svc.Ready()
			assert.Equal(t, tt.wantAuth, f.svc.State(ctx).Authenticated)
			assert.Equal(t, tt.wantVerify, f.api.verifyCalls)
			assert.Equal(t, tt.wantEvents, f.published())
			if !tt.wantAuth {
				_, ok := f.store.Token(ctx)
				assert.False(t, ok)
			}
		})
	}
}

func TestRehydrate_GuardWaitsForIt(t *testing.T) {
	f := setup(t, true)
	ctx := context.Background()
	require.NoError(t, f.store.Save(ctx, validToken(t), customerProfile()))
	f.api.verifyErr = errNetwork

	decisions := make(chan session.Decision, 1)
	go func() { decisions <- f.guard.Evaluate(ctx, "/orders", domain.RoleCustomer) }()

	select {
	case <-decisions:
		t.Fatal("guard evaluated before rehydrate finished")
	case <-time.After(20 * time.Millisecond):
	}

	_ = f.svc.Rehydrate(ctx)
	d := <-decisions
	assert.Equal(t, session.RedirectLogin, d.Outcome, "revoked session must not flash as allowed")
	assert.Equal(t, "/orders", d.From)
}

func TestHandleUnauthorized_ClearsAndGuardRedirects(t *testing.T) {
	f := setup(t, false)
	ctx := context.Background()
	token := validToken(t)
	require.NoError(t, f.store.Save(ctx, token, customerProfile()))
	require.NoError(t, f.svc.Rehydrate(ctx))
	assert.Equal(t, session.Allowed, f.guard.Evaluate(ctx, "/cart", domain.RoleCustomer).Outcome)

	f.svc.HandleUnauthorized(ctx, token)

	assert.Equal(t, session.RedirectLogin, f.guard.Evaluate(ctx, "/cart", domain.RoleCustomer).Outcome)
	assert.Equal(t, []events.EventType{events.EventRejected}, f.published())

	f.svc.HandleUnauthorized(ctx, token)
	assert.Len(t, f.published(), 1, "second 401 without a session publishes nothing")
}

func TestHandleUnauthorized_StaleTokenKeepsNewerSession(t *testing.T) {
	f := setup(t, false)
	ctx := context.Background()
	require.NoError(t, f.svc.Rehydrate(ctx))

	fresh := tokenFor(t, "fresh")
	require.NoError(t, f.store.Save(ctx, fresh, customerProfile()))

	f.svc.HandleUnauthorized(ctx, tokenFor(t, "old"))
	f.svc.HandleUnauthorized(ctx, "")

	got, ok := f.store.Token(ctx)
	require.True(t, ok)
	assert.Equal(t, fresh, got)
	assert.Nil(t, f.published())
}

func TestHandleUnauthorized_LateRejectionFromSlowCall(t *testing.T) {
	f := setup(t, false)
	ctx := context.Background()
	require.NoError(t, f.svc.Rehydrate(ctx))

	arrived := make(chan struct{})
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(arrived)
		<-release
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	client := apiclient.New(apiclient.Config{BaseURL: srv.URL, Timeout: 5 * time.Second}, f.store, srv.Client(), nil)
	client.OnUnauthorized(f.svc.HandleUnauthorized)

	old := tokenFor(t, "old")
	require.NoError(t, f.store.Save(ctx, old, customerProfile()))

	done := make(chan error, 1)
	go func() {
		_, err := client.Cart(ctx)
		done <- err
	}()

	<-arrived
	fresh := tokenFor(t, "fresh")
	require.NoError(t, f.store.Save(ctx, fresh, customerProfile()))
	close(release)

	assert.ErrorIs(t, <-done, apiclient.ErrUnauthorized)
	got, ok := f.store.Token(ctx)
	require.True(t, ok, "401 for the old token must not clear the newer session")
	assert.Equal(t, fresh, got)
}

func TestRehydrate_RevokedTokenKeepsLoginMadeMeanwhile(t *testing.T) {
	f := setup(t, true)
	ctx := context.Background()
	old := tokenFor(t, "old")
	fresh := tokenFor(t, "fresh")
	require.NoError(t, f.store.Save(ctx, old, customerProfile()))

	f.api.verifyErr = &apiclient.APIError{Status: http.StatusUnauthorized, Err: apiclient.ErrUnauthorized}
	f.api.onVerify = func() {
		require.NoError(t, f.store.Save(ctx, fresh, customerProfile()))
		f.svc.HandleUnauthorized(ctx, old)
	}

	assert.Error(t, f.svc.Rehydrate(ctx))
	got, ok := f.store.Token(ctx)
	require.True(t, ok)
	assert.Equal(t, fresh, got)
	assert.True(t, f.svc.State(ctx).Authenticated)
}

func TestCheckExpiry(t *testing.T) {
	f := setup(t, false)
	ctx := context.Background()

	assert.False(t, f.svc.CheckExpiry(ctx))

	require.NoError(t, f.store.Save(ctx, validToken(t), customerProfile()))
	assert.False(t, f.svc.CheckExpiry(ctx))

	require.NoError(t, f.store.Save(ctx, expiredToken(t), customerProfile()))
	assert.True(t, f.svc.CheckExpiry(ctx))
	assert.Equal(t, []events.EventType{events.EventExpired}, f.published())
}

func TestState_RolelessProfileIsUnauthenticated(t *testing.T) {
	f := setup(t, false)
	ctx := context.Background()
	require.NoError(t, f.store.Save(ctx, validToken(t), &domain.UserProfile{ID: "1"}))

	assert.False(t, f.svc.State(ctx).Authenticated)
}

func TestRegister(t *testing.T) {
	f := setup(t, false)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, domain.Registration{Username: "ada", Email: "a@example.com", Password: "pw", Role: "owner"})
	assert.Error(t, err)

	_, err = f.svc.Register(ctx, domain.Registration{Username: "ada", Password: "pw", Role: domain.RoleCustomer})
	assert.Error(t, err)

	res, err := f.svc.Register(ctx, domain.Registration{Username: "ada", Email: "a@example.com", Password: "pw", Role: domain.RoleCustomer})
	require.NoError(t, err)
	assert.Equal(t, "User registered successfully", res.Message)
	assert.False(t, f.svc.State(ctx).Authenticated, "registration does not log in")
}
