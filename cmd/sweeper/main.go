// Sweeper periodically revokes expired sessions and purges token rows past retention.
// Expiry is otherwise lazy; this keeps the store and the session stats honest between reads.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	accountrepo "sessionguard/internal/account/repository"
	"sessionguard/internal/config"
	"sessionguard/internal/db"
	sessionservice "sessionguard/internal/session/service"
	"sessionguard/internal/telemetry"
	"sessionguard/internal/telemetry/otel"
	tokenrepo "sessionguard/internal/token/repository"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("sweeper: DATABASE_URL is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	providers, err := otel.NewProviders(ctx, cfg.OTLPEndpoint, "sessionguard-sweeper", cfg.OTLPInsecure)
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}
	providers.SetGlobal()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = providers.Shutdown(shutdownCtx)
	}()

	metrics, err := telemetry.NewMetrics(providers.MeterProvider.Meter("sessionguard-sweeper"))
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	// The sweep paths never resolve accounts or mint tokens, so no issuer is wired.
	sessions, err := sessionservice.NewManager(
		tokenrepo.NewPostgresRepository(conn),
		accountrepo.NewPostgresRepository(conn),
		nil,
		sessionservice.Config{
			MaxConcurrentSessions: cfg.MaxConcurrentSessions,
			CorrelationWindow:     cfg.CorrelationWindow(),
		},
		metrics,
	)
	if err != nil {
		log.Fatalf("sessions: %v", err)
	}

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		log.Println("sweeper: shutting down...")
		cancel()
	}()

	interval := cfg.SweepEvery()
	retention := cfg.Retention()
	log.Printf("sweeper: running every %s (retention %s)", interval, retention)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	sweep(ctx, sessions, retention)
	for {
		select {
		case <-ctx.Done():
			log.Println("sweeper: stopped")
			return
		case <-ticker.C:
			sweep(ctx, sessions, retention)
		}
	}
}

func sweep(ctx context.Context, sessions *sessionservice.Manager, retention time.Duration) {
	sweepCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	revoked, err := sessions.CleanupExpiredSessions(sweepCtx)
	if err != nil {
		log.Printf("sweeper: cleanup failed: %v", err)
		return
	}
	purged, err := sessions.PurgeExpiredBefore(sweepCtx, retention)
	if err != nil {
		log.Printf("sweeper: purge failed: %v", err)
		return
	}
	if revoked > 0 || purged > 0 {
		log.Printf("sweeper: revoked %d expired sessions, purged %d rows", revoked, purged)
	}
}
