package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/louisbranch/lunchroll/internal/services/ordersession/domain"
	"github.com/louisbranch/lunchroll/internal/services/ordersession/storage/sqlite"
)

// Config carries the runtime settings for the order-session service.
type Config struct {
	// Addr is the HTTP listen address, e.g. ":8080".
	Addr string
	// StoragePath is the SQLite database file.
	StoragePath string
	// DirectoryBaseURL points at the company directory service. Empty
	// disables identity lookups and roster seeding.
	DirectoryBaseURL string
	// SweepCompanyID, when set, enables the background deadline sweeper
	// for that company's active sessions.
	SweepCompanyID string
	// SweepInterval is the sweeper poll period. Zero means 30s.
	SweepInterval time.Duration
}

// Run opens storage, wires the domain service, and serves HTTP until ctx is
// cancelled.
func Run(ctx context.Context, cfg Config) error {
	if cfg.Addr == "" {
		return errors.New("listen address is required")
	}
	if cfg.StoragePath == "" {
		return errors.New("storage path is required")
	}

	store, err := sqlite.Open(cfg.StoragePath)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Printf("close storage: %v", err)
		}
	}()

	var identity domain.Identity
	var roster domain.Roster
	if cfg.DirectoryBaseURL != "" {
		directory := newDirectoryClient(cfg.DirectoryBaseURL)
		identity = directory
		roster = directory
	}

	svc := domain.NewService(newDomainStoreAdapter(store, store), identity, roster, nil, nil)
	server := NewServer(svc, store)

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server,
		ReadHeaderTimeout: 5 * time.Second,
	}

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.Printf("listening on %s", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if cfg.SweepCompanyID != "" {
		interval := cfg.SweepInterval
		if interval <= 0 {
			interval = 30 * time.Second
		}
		group.Go(func() error {
			runSweeper(ctx, svc, cfg.SweepCompanyID, interval)
			return nil
		})
	}

	return group.Wait()
}

// runSweeper polls active sessions and force-passes pending participants once
// deadlines elapse. Sweep errors are logged and retried on the next tick.
func runSweeper(ctx context.Context, svc *domain.Service, companyID string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			results, err := svc.SweepAll(ctx, companyID)
			if err != nil {
				log.Printf("sweep company %s: %v", companyID, err)
				continue
			}
			for sessionID, result := range results {
				if result.AutoPassedCount > 0 || result.SessionClosed {
					log.Printf("sweep session %s: auto-passed %d, closed %t",
						sessionID, result.AutoPassedCount, result.SessionClosed)
				}
				for _, failure := range result.Failures {
					log.Printf("sweep session %s: participant %s: %v", sessionID, failure.UserID, failure.Err)
				}
			}
		}
	}
}
