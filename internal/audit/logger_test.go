package audit

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"sessionguard/internal/audit/domain"
	auditrepo "sessionguard/internal/audit/repository"
)

type memAuditRepo struct {
	mu         sync.Mutex
	events     []*domain.SecurityEvent
	alerts     map[string]*domain.SecurityAlert
	failEvents bool
	failAlerts bool
}

func newMemAuditRepo() *memAuditRepo {
	return &memAuditRepo{alerts: make(map[string]*domain.SecurityAlert)}
}

func (r *memAuditRepo) CreateEvent(ctx context.Context, e *domain.SecurityEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failEvents {
		return errors.New("audit store down")
	}
	e2 := *e
	r.events = append(r.events, &e2)
	return nil
}

func (r *memAuditRepo) CountEventsByIP(ctx context.Context, eventType domain.EventType, sourceIP string, since time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, e := range r.events {
		if e.EventType == eventType && e.SourceIP == sourceIP && !e.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (r *memAuditRepo) CountDistinctIPsByOwner(ctx context.Context, eventType domain.EventType, ownerID string, since time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ips := make(map[string]bool)
	for _, e := range r.events {
		if e.EventType == eventType && e.OwnerID == ownerID && e.SourceIP != "" && !e.CreatedAt.Before(since) {
			ips[e.SourceIP] = true
		}
	}
	return int64(len(ips)), nil
}

func (r *memAuditRepo) CreateAlert(ctx context.Context, a *domain.SecurityAlert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAlerts {
		return errors.New("audit store down")
	}
	a2 := *a
	r.alerts[a.ID] = &a2
	return nil
}

func (r *memAuditRepo) GetAlertByID(ctx context.Context, id string) (*domain.SecurityAlert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.alerts[id]
	if !ok {
		return nil, nil
	}
	a2 := *a
	return &a2, nil
}

func (r *memAuditRepo) ResolveAlert(ctx context.Context, id string, status domain.AlertStatus, resolvedBy, notes string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.alerts[id]
	if !ok || a.Status != domain.AlertStatusOpen {
		return false, nil
	}
	a.Status = status
	at2 := at
	a.ResolvedAt = &at2
	a.ResolvedBy = resolvedBy
	a.ResolutionNotes = notes
	return true, nil
}

func (r *memAuditRepo) ListAlertsByStatus(ctx context.Context, status domain.AlertStatus, limit, offset int32) ([]*domain.SecurityAlert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.SecurityAlert
	for _, a := range r.alerts {
		if a.Status == status {
			a2 := *a
			out = append(out, &a2)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if int(offset) >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if int(limit) < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (r *memAuditRepo) CountEventsSince(ctx context.Context, since time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, e := range r.events {
		if !e.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (r *memAuditRepo) CountEventsByTypeSince(ctx context.Context, since time.Time) (map[domain.EventType]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[domain.EventType]int64)
	for _, e := range r.events {
		if !e.CreatedAt.Before(since) {
			out[e.EventType]++
		}
	}
	return out, nil
}

func (r *memAuditRepo) CountOpenAlerts(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, a := range r.alerts {
		if a.Status == domain.AlertStatusOpen {
			n++
		}
	}
	return n, nil
}

func (r *memAuditRepo) TopSourceIPs(ctx context.Context, since time.Time, limit int32) ([]auditrepo.IPCount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[string]int64)
	for _, e := range r.events {
		if e.SourceIP != "" && !e.Success && !e.CreatedAt.Before(since) {
			counts[e.SourceIP]++
		}
	}
	var out []auditrepo.IPCount
	for ip, n := range counts {
		out = append(out, auditrepo.IPCount{SourceIP: ip, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	if int(limit) < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (r *memAuditRepo) CountAlertsBySeveritySince(ctx context.Context, since time.Time) (map[domain.AlertSeverity]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[domain.AlertSeverity]int64)
	for _, a := range r.alerts {
		if !a.CreatedAt.Before(since) {
			out[a.Severity]++
		}
	}
	return out, nil
}

func (r *memAuditRepo) openAlerts(t *testing.T) []*domain.SecurityAlert {
	t.Helper()
	out, err := r.ListAlertsByStatus(context.Background(), domain.AlertStatusOpen, 100, 0)
	if err != nil {
		t.Fatal(err)
	}
	return out
}

type memNotifier struct {
	mu     sync.Mutex
	alerts []*domain.SecurityAlert
}

func (n *memNotifier) NotifyAlert(ctx context.Context, a *domain.SecurityAlert) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, a)
}

func newTestLogger() (*Logger, *memAuditRepo, *memNotifier) {
	repo := newMemAuditRepo()
	notifier := &memNotifier{}
	return NewLogger(repo, notifier, DefaultRuleConfig(), nil), repo, notifier
}

func TestLogger_LogSecurityEventPersistsWithSeverity(t *testing.T) {
	l, repo, _ := newTestLogger()
	ctx := context.Background()

	l.LogSecurityEvent(ctx, domain.EventAuthFailure, "login", false,
		EventContext{OwnerID: "owner-1", SourceIP: "1.2.3.4"}, "invalid password")

	if len(repo.events) != 1 {
		t.Fatalf("events = %d, want 1", len(repo.events))
	}
	e := repo.events[0]
	if e.ID == "" {
		t.Error("event id not assigned")
	}
	if e.Severity != domain.SeverityWarning {
		t.Errorf("severity = %s, want warning", e.Severity)
	}
	if e.OwnerID != "owner-1" || e.SourceIP != "1.2.3.4" || e.ErrorMessage != "invalid password" {
		t.Errorf("event fields = %+v", e)
	}
	if e.CreatedAt.IsZero() {
		t.Error("created_at not set")
	}
}

func TestLogger_StoreFailureNeverPropagates(t *testing.T) {
	l, repo, notifier := newTestLogger()
	repo.failEvents = true

	// Must not panic or block; the primary security action goes on without the entry.
	l.LogAuthenticationEvent(context.Background(), "owner-1", "1.2.3.4", false, "invalid password")

	if len(repo.events) != 0 {
		t.Errorf("events = %d, want 0", len(repo.events))
	}
	if len(notifier.alerts) != 0 {
		t.Errorf("alerts raised off a failed append: %d", len(notifier.alerts))
	}
}

func TestLogger_BruteForceRule(t *testing.T) {
	l, repo, notifier := newTestLogger()
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		l.LogAuthenticationEvent(ctx, "owner-1", "1.2.3.4", false, "invalid password")
	}
	if n := len(repo.openAlerts(t)); n != 0 {
		t.Fatalf("alerts after 4 failures = %d, want 0", n)
	}

	l.LogAuthenticationEvent(ctx, "owner-1", "1.2.3.4", false, "invalid password")
	alerts := repo.openAlerts(t)
	if len(alerts) != 1 {
		t.Fatalf("alerts after 5th failure = %d, want 1", len(alerts))
	}
	a := alerts[0]
	if a.AlertType != domain.AlertBruteForceAttack {
		t.Errorf("type = %s", a.AlertType)
	}
	if a.Severity != domain.AlertSeverityHigh {
		t.Errorf("severity = %s, want high", a.Severity)
	}
	if a.SourceIP != "1.2.3.4" || !strings.Contains(a.Description, "1.2.3.4") {
		t.Errorf("alert does not reference the offending IP: %+v", a)
	}
	if a.Status != domain.AlertStatusOpen {
		t.Errorf("status = %s, want open", a.Status)
	}
	if len(notifier.alerts) != 1 {
		t.Errorf("notifier received %d alerts, want 1", len(notifier.alerts))
	}

	// Rules do not dedupe: the 6th failure breaches the threshold again.
	l.LogAuthenticationEvent(ctx, "owner-1", "1.2.3.4", false, "invalid password")
	if n := len(repo.openAlerts(t)); n != 2 {
		t.Errorf("alerts after 6th failure = %d, want 2", n)
	}
}

func TestLogger_BruteForceRuleIsPerIP(t *testing.T) {
	l, repo, _ := newTestLogger()
	ctx := context.Background()

	// Failures spread across IPs never reach the per-IP threshold.
	ips := []string{"1.1.1.1", "2.2.2.2", "3.3.3.3", "4.4.4.4", "5.5.5.5"}
	for _, ip := range ips {
		l.LogAuthenticationEvent(ctx, "owner-1", ip, false, "invalid password")
	}
	if n := len(repo.openAlerts(t)); n != 0 {
		t.Errorf("alerts = %d, want 0", n)
	}
}

func TestLogger_BruteForceRuleIgnoresEventsOutsideWindow(t *testing.T) {
	l, repo, _ := newTestLogger()
	ctx := context.Background()
	now := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	// Four failures just outside the 15m window, then one inside: count is 1.
	stale := now.Add(-16 * time.Minute)
	for i := 0; i < 4; i++ {
		repo.events = append(repo.events, &domain.SecurityEvent{
			EventType: domain.EventAuthFailure,
			SourceIP:  "1.2.3.4",
			CreatedAt: stale,
		})
	}
	l.LogAuthenticationEvent(ctx, "owner-1", "1.2.3.4", false, "invalid password")
	if n := len(repo.openAlerts(t)); n != 0 {
		t.Errorf("alerts = %d, want 0 (stale events must not count)", n)
	}
}

func TestLogger_MultiIPRule(t *testing.T) {
	l, repo, _ := newTestLogger()
	ctx := context.Background()

	l.LogAuthenticationEvent(ctx, "owner-1", "1.1.1.1", true, "")
	l.LogAuthenticationEvent(ctx, "owner-1", "1.1.1.1", true, "")
	l.LogAuthenticationEvent(ctx, "owner-1", "2.2.2.2", true, "")
	if n := len(repo.openAlerts(t)); n != 0 {
		t.Fatalf("alerts at 2 distinct IPs = %d, want 0", n)
	}

	l.LogAuthenticationEvent(ctx, "owner-1", "3.3.3.3", true, "")
	alerts := repo.openAlerts(t)
	if len(alerts) != 1 {
		t.Fatalf("alerts at 3 distinct IPs = %d, want 1", len(alerts))
	}
	a := alerts[0]
	if a.AlertType != domain.AlertSuspiciousLoginPattern || a.Severity != domain.AlertSeverityMedium {
		t.Errorf("alert = %s/%s, want SUSPICIOUS_LOGIN_PATTERN/medium", a.AlertType, a.Severity)
	}
	if a.OwnerID != "owner-1" {
		t.Errorf("owner = %q, want owner-1", a.OwnerID)
	}
}

func TestLogger_RateLimitRule(t *testing.T) {
	l, repo, _ := newTestLogger()
	ctx := context.Background()

	for i := 0; i < 9; i++ {
		l.LogSecurityEvent(ctx, domain.EventRateLimitExceeded, "api_request", false,
			EventContext{SourceIP: "9.9.9.9"}, "too many requests")
	}
	if n := len(repo.openAlerts(t)); n != 0 {
		t.Fatalf("alerts after 9 rejections = %d, want 0", n)
	}

	l.LogSecurityEvent(ctx, domain.EventRateLimitExceeded, "api_request", false,
		EventContext{SourceIP: "9.9.9.9"}, "too many requests")
	alerts := repo.openAlerts(t)
	if len(alerts) != 1 {
		t.Fatalf("alerts after 10th rejection = %d, want 1", len(alerts))
	}
	if alerts[0].AlertType != domain.AlertRateLimitExceeded || alerts[0].Severity != domain.AlertSeverityMedium {
		t.Errorf("alert = %s/%s, want RATE_LIMIT_EXCEEDED/medium", alerts[0].AlertType, alerts[0].Severity)
	}
}

func TestLogger_RulesSkipEventsWithoutKeyDimension(t *testing.T) {
	l, repo, _ := newTestLogger()
	ctx := context.Background()

	// No source IP on failures, no owner on successes: nothing to key a rule on.
	for i := 0; i < 6; i++ {
		l.LogAuthenticationEvent(ctx, "owner-1", "", false, "invalid password")
		l.LogAuthenticationEvent(ctx, "", "1.2.3.4", true, "")
	}
	if n := len(repo.openAlerts(t)); n != 0 {
		t.Errorf("alerts = %d, want 0", n)
	}
}

func TestLogger_LogSuspiciousActivity(t *testing.T) {
	l, repo, _ := newTestLogger()

	l.LogSuspiciousActivity(context.Background(), "owner-1", "5.6.7.8", "impossible_travel", `{"from":"US"}`)

	if len(repo.events) != 1 {
		t.Fatalf("events = %d, want 1", len(repo.events))
	}
	e := repo.events[0]
	if e.EventType != domain.EventSuspiciousActivity || e.Severity != domain.SeverityWarning {
		t.Errorf("event = %s/%s, want SUSPICIOUS_ACTIVITY/warning", e.EventType, e.Severity)
	}
	if e.Metadata != `{"from":"US"}` {
		t.Errorf("metadata = %q", e.Metadata)
	}
}
