package auth

import (
	"context"
	"sync"
	"testing"

	accountdomain "sessionguard/internal/account/domain"
	"sessionguard/internal/audit"
	auditdomain "sessionguard/internal/audit/domain"
	"sessionguard/internal/lockout"
	"sessionguard/internal/security"
	sessionservice "sessionguard/internal/session/service"
	tokendomain "sessionguard/internal/token/domain"
)

type memAccounts struct {
	mu sync.Mutex
	m  map[string]*accountdomain.Account
}

func (r *memAccounts) GetByID(ctx context.Context, id string) (*accountdomain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.m[id]
	if !ok {
		return nil, nil
	}
	a2 := *a
	return &a2, nil
}

func (r *memAccounts) GetByEmail(ctx context.Context, email string) (*accountdomain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.m {
		if a.Email == email {
			a2 := *a
			return &a2, nil
		}
	}
	return nil, nil
}

func (r *memAccounts) UpdatePasswordHash(ctx context.Context, id, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.m[id]; ok {
		a.PasswordHash = passwordHash
	}
	return nil
}

type fakeLockouts struct {
	mu        sync.Mutex
	locked    bool
	failures  []string // ownerID per recorded failure
	successes []string
}

func (f *fakeLockouts) IsAccountLocked(ctx context.Context, ownerID string) (bool, error) {
	return f.locked, nil
}

func (f *fakeLockouts) RecordFailedAttempt(ctx context.Context, ownerID, sourceIP string) (*lockout.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = append(f.failures, ownerID)
	return &lockout.Status{RemainingAttempts: 4}, nil
}

func (f *fakeLockouts) RecordSuccessfulLogin(ctx context.Context, ownerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.successes = append(f.successes, ownerID)
	return nil
}

type fakeSessions struct {
	mu          sync.Mutex
	created     []string // ownerID per session
	invalidated []string // sessionID
}

func (f *fakeSessions) CreateSession(ctx context.Context, ownerID string, device tokendomain.DeviceInfo, sourceIP string) (*sessionservice.CreateResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, ownerID)
	return &sessionservice.CreateResult{
		SessionID:    "sess-1",
		AccessToken:  "access",
		RefreshToken: "refresh",
	}, nil
}

func (f *fakeSessions) InvalidateSession(ctx context.Context, sessionID string, reason tokendomain.RevocationReason) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated = append(f.invalidated, sessionID+"|"+string(reason))
	return nil
}

type fakeDispatcher struct {
	mu    sync.Mutex
	calls []string // ownerID|currentSessionID
	count int64
}

func (f *fakeDispatcher) HandlePasswordChange(ctx context.Context, ownerID, currentSessionID, sourceIP string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, ownerID+"|"+currentSessionID)
	return f.count, nil
}

type authEvent struct {
	eventType auditdomain.EventType
	success   bool
	message   string
}

type fakeAuditor struct {
	mu     sync.Mutex
	events []authEvent
}

func (a *fakeAuditor) LogAuthenticationEvent(ctx context.Context, ownerID, sourceIP string, success bool, errorMessage string) {
	eventType := auditdomain.EventAuthFailure
	if success {
		eventType = auditdomain.EventAuthSuccess
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, authEvent{eventType: eventType, success: success, message: errorMessage})
}

func (a *fakeAuditor) LogSecurityEvent(ctx context.Context, eventType auditdomain.EventType, action string, success bool, evctx audit.EventContext, errorMessage string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, authEvent{eventType: eventType, success: success, message: errorMessage})
}

type testGateway struct {
	svc        *Service
	accounts   *memAccounts
	lockouts   *fakeLockouts
	sessions   *fakeSessions
	dispatcher *fakeDispatcher
	auditor    *fakeAuditor
}

func newTestGateway(t *testing.T) *testGateway {
	t.Helper()
	hasher := security.NewHasher(4) // min cost, tests only
	hash, err := hasher.Hash([]byte("correct horse"))
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	g := &testGateway{
		accounts: &memAccounts{m: map[string]*accountdomain.Account{
			"owner-1": {ID: "owner-1", Email: "one@example.com", PasswordHash: hash, Active: true},
			"owner-2": {ID: "owner-2", Email: "suspended@example.com", PasswordHash: hash, Active: false},
		}},
		lockouts:   &fakeLockouts{},
		sessions:   &fakeSessions{},
		dispatcher: &fakeDispatcher{count: 2},
		auditor:    &fakeAuditor{},
	}
	g.svc = NewService(g.accounts, hasher, g.lockouts, g.sessions, g.dispatcher, g.auditor)
	return g
}

func TestService_LoginSuccess(t *testing.T) {
	g := newTestGateway(t)

	res, err := g.svc.Login(context.Background(), "one@example.com", "correct horse", tokendomain.DeviceInfo{}, "10.0.0.1")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.SessionID != "sess-1" {
		t.Errorf("SessionID = %q", res.SessionID)
	}
	if len(g.lockouts.successes) != 1 || g.lockouts.successes[0] != "owner-1" {
		t.Errorf("successful login not recorded: %v", g.lockouts.successes)
	}
	if len(g.lockouts.failures) != 0 {
		t.Errorf("failure recorded on success: %v", g.lockouts.failures)
	}
	if len(g.sessions.created) != 1 {
		t.Errorf("sessions created = %v", g.sessions.created)
	}
	last := g.auditor.events[len(g.auditor.events)-1]
	if last.eventType != auditdomain.EventAuthSuccess {
		t.Errorf("last audit event = %+v, want AUTH_SUCCESS", last)
	}
}

func TestService_LoginUnknownEmail(t *testing.T) {
	g := newTestGateway(t)

	_, err := g.svc.Login(context.Background(), "nobody@example.com", "whatever", tokendomain.DeviceInfo{}, "10.0.0.1")
	if err != ErrInvalidCredentials {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}
	// Unknown accounts have no counter to feed.
	if len(g.lockouts.failures) != 0 {
		t.Errorf("failures recorded for unknown account: %v", g.lockouts.failures)
	}
}

func TestService_LoginWrongPassword(t *testing.T) {
	g := newTestGateway(t)

	_, err := g.svc.Login(context.Background(), "one@example.com", "wrong", tokendomain.DeviceInfo{}, "10.0.0.1")
	if err != ErrInvalidCredentials {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}
	if len(g.lockouts.failures) != 1 || g.lockouts.failures[0] != "owner-1" {
		t.Errorf("failed attempt not recorded: %v", g.lockouts.failures)
	}
	if len(g.sessions.created) != 0 {
		t.Error("session created despite bad password")
	}
	last := g.auditor.events[len(g.auditor.events)-1]
	if last.eventType != auditdomain.EventAuthFailure || last.success {
		t.Errorf("last audit event = %+v, want AUTH_FAILURE", last)
	}
}

func TestService_LoginLockedAccount(t *testing.T) {
	g := newTestGateway(t)
	g.lockouts.locked = true

	// Even the right password is rejected while the lock is in force, and the
	// attempt must not feed the counter further.
	_, err := g.svc.Login(context.Background(), "one@example.com", "correct horse", tokendomain.DeviceInfo{}, "10.0.0.1")
	if err != ErrAccountLocked {
		t.Fatalf("err = %v, want ErrAccountLocked", err)
	}
	if len(g.lockouts.failures) != 0 {
		t.Errorf("locked-account attempt fed the counter: %v", g.lockouts.failures)
	}
	if len(g.sessions.created) != 0 {
		t.Error("session created for locked account")
	}
}

func TestService_LoginSuspendedAccount(t *testing.T) {
	g := newTestGateway(t)

	// The administrative flag gates independently of the brute-force lock.
	_, err := g.svc.Login(context.Background(), "suspended@example.com", "correct horse", tokendomain.DeviceInfo{}, "10.0.0.1")
	if err != ErrAccountSuspended {
		t.Fatalf("err = %v, want ErrAccountSuspended", err)
	}
	if len(g.sessions.created) != 0 {
		t.Error("session created for suspended account")
	}
}

func TestService_Logout(t *testing.T) {
	g := newTestGateway(t)

	if err := g.svc.Logout(context.Background(), "owner-1", "sess-1", "10.0.0.1"); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if len(g.sessions.invalidated) != 1 || g.sessions.invalidated[0] != "sess-1|user_logout" {
		t.Errorf("invalidated = %v", g.sessions.invalidated)
	}
}

func TestService_ChangePassword(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()

	n, err := g.svc.ChangePassword(ctx, "owner-1", "correct horse", "new battery staple", "sess-current", "10.0.0.1")
	if err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	if n != 2 {
		t.Errorf("revoked = %d, want 2", n)
	}
	if len(g.dispatcher.calls) != 1 || g.dispatcher.calls[0] != "owner-1|sess-current" {
		t.Errorf("dispatcher calls = %v", g.dispatcher.calls)
	}

	// New hash stored and usable.
	acct, _ := g.accounts.GetByID(ctx, "owner-1")
	hasher := security.NewHasher(4)
	if err := hasher.Compare(acct.PasswordHash, []byte("new battery staple")); err != nil {
		t.Error("stored hash does not match the new password")
	}
}

func TestService_ChangePasswordWrongOldPassword(t *testing.T) {
	g := newTestGateway(t)

	_, err := g.svc.ChangePassword(context.Background(), "owner-1", "wrong", "new battery staple", "sess-current", "10.0.0.1")
	if err != ErrInvalidCredentials {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}
	if len(g.dispatcher.calls) != 0 {
		t.Errorf("cascade ran despite rejected change: %v", g.dispatcher.calls)
	}
}

func TestService_ChangePasswordUnknownAccount(t *testing.T) {
	g := newTestGateway(t)
	_, err := g.svc.ChangePassword(context.Background(), "nobody", "x", "y", "", "10.0.0.1")
	if err != ErrAccountNotFound {
		t.Fatalf("err = %v, want ErrAccountNotFound", err)
	}
}
