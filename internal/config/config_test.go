package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.JWTIssuer != "sessionguard" {
		t.Errorf("JWTIssuer = %q", cfg.JWTIssuer)
	}
	if cfg.JWTAudience != "sessionguard-api" {
		t.Errorf("JWTAudience = %q", cfg.JWTAudience)
	}
	if cfg.BcryptCost != 12 {
		t.Errorf("BcryptCost = %d, want 12", cfg.BcryptCost)
	}
	if cfg.MaxConcurrentSessions != 5 {
		t.Errorf("MaxConcurrentSessions = %d, want 5", cfg.MaxConcurrentSessions)
	}
	if cfg.MaxFailedAttempts != 5 {
		t.Errorf("MaxFailedAttempts = %d, want 5", cfg.MaxFailedAttempts)
	}
	if cfg.BruteForceThreshold != 5 || cfg.MultiIPThreshold != 3 || cfg.RateLimitThreshold != 10 {
		t.Errorf("alert thresholds = %d/%d/%d, want 5/3/10",
			cfg.BruteForceThreshold, cfg.MultiIPThreshold, cfg.RateLimitThreshold)
	}
	if cfg.AlertKafkaTopic != "sessionguard-alerts" {
		t.Errorf("AlertKafkaTopic = %q", cfg.AlertKafkaTopic)
	}

	if cfg.AccessTTL() != 15*time.Minute {
		t.Errorf("AccessTTL = %v", cfg.AccessTTL())
	}
	if cfg.RefreshTTL() != 168*time.Hour {
		t.Errorf("RefreshTTL = %v", cfg.RefreshTTL())
	}
	if cfg.CorrelationWindow() != 60*time.Second {
		t.Errorf("CorrelationWindow = %v", cfg.CorrelationWindow())
	}
	if cfg.ResetWindow() != 60*time.Minute {
		t.Errorf("ResetWindow = %v", cfg.ResetWindow())
	}
	if cfg.LockoutFor() != 15*time.Minute {
		t.Errorf("LockoutFor = %v", cfg.LockoutFor())
	}
	if cfg.AlertSlidingWindow() != 15*time.Minute {
		t.Errorf("AlertSlidingWindow = %v", cfg.AlertSlidingWindow())
	}
	if cfg.SweepEvery() != 5*time.Minute {
		t.Errorf("SweepEvery = %v", cfg.SweepEvery())
	}
	if cfg.Retention() != 720*time.Hour {
		t.Errorf("Retention = %v", cfg.Retention())
	}
}

func TestLoad_EnvVarOverride(t *testing.T) {
	os.Clearenv()
	os.Setenv("MAX_CONCURRENT_SESSIONS", "3")
	os.Setenv("LOCKOUT_DURATION", "30m")
	os.Setenv("JWT_ISSUER", "custom-issuer")
	os.Setenv("BCRYPT_COST", "14")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MaxConcurrentSessions != 3 {
		t.Errorf("MaxConcurrentSessions = %d, want 3", cfg.MaxConcurrentSessions)
	}
	if cfg.LockoutFor() != 30*time.Minute {
		t.Errorf("LockoutFor = %v, want 30m", cfg.LockoutFor())
	}
	if cfg.JWTIssuer != "custom-issuer" {
		t.Errorf("JWTIssuer = %q", cfg.JWTIssuer)
	}
	if cfg.BcryptCost != 14 {
		t.Errorf("BcryptCost = %d, want 14", cfg.BcryptCost)
	}
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	cases := []struct {
		key, value string
	}{
		{"MAX_CONCURRENT_SESSIONS", "0"},
		{"MAX_FAILED_ATTEMPTS", "0"},
		{"BRUTE_FORCE_THRESHOLD", "0"},
		{"MULTI_IP_THRESHOLD", "-1"},
		{"RATE_LIMIT_THRESHOLD", "0"},
		{"BCRYPT_COST", "40"},
	}
	for _, c := range cases {
		os.Clearenv()
		os.Setenv(c.key, c.value)
		if _, err := Load(); err == nil {
			t.Errorf("%s=%s: Load accepted invalid value", c.key, c.value)
		}
	}
}

func TestDurationAccessors_FallBackOnGarbage(t *testing.T) {
	os.Clearenv()
	os.Setenv("LOCKOUT_DURATION", "not-a-duration")
	os.Setenv("SESSION_CORRELATION_WINDOW", "-5s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LockoutFor() != 15*time.Minute {
		t.Errorf("LockoutFor = %v, want 15m fallback", cfg.LockoutFor())
	}
	if cfg.CorrelationWindow() != 60*time.Second {
		t.Errorf("CorrelationWindow = %v, want 60s fallback", cfg.CorrelationWindow())
	}
}

func TestAlertKafkaBrokersList(t *testing.T) {
	cfg := &Config{AlertKafkaBrokers: "localhost:9092, broker-2:9092 ,,"}
	got := cfg.AlertKafkaBrokersList()
	if len(got) != 2 || got[0] != "localhost:9092" || got[1] != "broker-2:9092" {
		t.Errorf("AlertKafkaBrokersList = %v", got)
	}
	empty := &Config{}
	if empty.AlertKafkaBrokersList() != nil {
		t.Error("empty brokers should yield nil")
	}
}
