// Package ordersession parses order-session command flags and composes the
// service entrypoint.
package ordersession

import (
	"context"
	"flag"
	"fmt"
	"time"

	entrypoint "github.com/louisbranch/lunchroll/internal/platform/cmd"
	server "github.com/louisbranch/lunchroll/internal/services/ordersession/app"
)

// Config holds order-session command configuration.
type Config struct {
	HTTPAddr         string        `env:"LUNCHROLL_ORDERSESSION_HTTP_ADDR" envDefault:":8080"`
	StoragePath      string        `env:"LUNCHROLL_ORDERSESSION_DB_PATH"   envDefault:"ordersession.db"`
	DirectoryBaseURL string        `env:"LUNCHROLL_DIRECTORY_BASE_URL"`
	SweepCompanyID   string        `env:"LUNCHROLL_SWEEP_COMPANY_ID"`
	SweepInterval    time.Duration `env:"LUNCHROLL_SWEEP_INTERVAL"         envDefault:"30s"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "order-session HTTP listen address")
	fs.StringVar(&cfg.StoragePath, "db-path", cfg.StoragePath, "SQLite database path")
	fs.StringVar(&cfg.DirectoryBaseURL, "directory-base-url", cfg.DirectoryBaseURL, "company directory base URL")
	fs.StringVar(&cfg.SweepCompanyID, "sweep-company-id", cfg.SweepCompanyID, "company swept by the background deadline sweeper")
	fs.DurationVar(&cfg.SweepInterval, "sweep-interval", cfg.SweepInterval, "deadline sweeper poll interval")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run builds the order-session app and serves it until ctx is cancelled.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceOrderSession, func(ctx context.Context) error {
		if err := server.Run(ctx, server.Config{
			Addr:             cfg.HTTPAddr,
			StoragePath:      cfg.StoragePath,
			DirectoryBaseURL: cfg.DirectoryBaseURL,
			SweepCompanyID:   cfg.SweepCompanyID,
			SweepInterval:    cfg.SweepInterval,
		}); err != nil {
			return fmt.Errorf("serve ordersession: %w", err)
		}
		return nil
	})
}
