package ordersession

import (
	"flag"
	"testing"
	"time"
)

func TestParseConfigDefaults(t *testing.T) {
	fs := flag.NewFlagSet("ordersession", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("expected default http addr, got %q", cfg.HTTPAddr)
	}
	if cfg.StoragePath != "ordersession.db" {
		t.Fatalf("expected default storage path, got %q", cfg.StoragePath)
	}
	if cfg.SweepInterval != 30*time.Second {
		t.Fatalf("expected default sweep interval, got %s", cfg.SweepInterval)
	}
}

func TestParseConfigOverrides(t *testing.T) {
	t.Setenv("LUNCHROLL_ORDERSESSION_HTTP_ADDR", "env-addr")
	t.Setenv("LUNCHROLL_ORDERSESSION_DB_PATH", "env-db")
	t.Setenv("LUNCHROLL_DIRECTORY_BASE_URL", "http://env-directory")

	fs := flag.NewFlagSet("ordersession", flag.ContinueOnError)
	args := []string{
		"-http-addr", "flag-addr",
		"-db-path", "flag-db",
		"-sweep-company-id", "acme",
		"-sweep-interval", "1m",
	}
	cfg, err := ParseConfig(fs, args)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.HTTPAddr != "flag-addr" {
		t.Fatalf("expected flag http addr, got %q", cfg.HTTPAddr)
	}
	if cfg.StoragePath != "flag-db" {
		t.Fatalf("expected flag storage path, got %q", cfg.StoragePath)
	}
	if cfg.DirectoryBaseURL != "http://env-directory" {
		t.Fatalf("expected env directory base url, got %q", cfg.DirectoryBaseURL)
	}
	if cfg.SweepCompanyID != "acme" {
		t.Fatalf("expected flag sweep company, got %q", cfg.SweepCompanyID)
	}
	if cfg.SweepInterval != time.Minute {
		t.Fatalf("expected flag sweep interval, got %s", cfg.SweepInterval)
	}
}
