package sluice

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the tunables shared by admission, dispatch, draining, and
// waiting. Host processes can construct it from the environment with
// ConfigFromEnv or programmatically with DefaultConfig plus options.
type Config struct {
	// DefaultCeiling is the per-team concurrency ceiling applied when the
	// limit source has no record for a team.
	DefaultCeiling int `env:"SLUICE_DEFAULT_CEILING" envDefault:"2"`

	// ActiveTTL guards active-job entries against crashed workers. Precise
	// release still happens at completion; the TTL is the safety net.
	ActiveTTL time.Duration `env:"SLUICE_ACTIVE_TTL" envDefault:"60s"`

	// ScrapeTimeout is the default per-job execution budget and the hold
	// deadline for deferred ad-hoc jobs.
	ScrapeTimeout time.Duration `env:"SLUICE_SCRAPE_TIMEOUT" envDefault:"60s"`

	// WaitTimeout is the default budget for WaitForJob.
	WaitTimeout time.Duration `env:"SLUICE_WAIT_TIMEOUT" envDefault:"180s"`

	// WaitPollInterval is the polling cadence while a waited-on job has not
	// yet materialized in the worker queue.
	WaitPollInterval time.Duration `env:"SLUICE_WAIT_POLL_INTERVAL" envDefault:"500ms"`

	// DrainSchedule is the cron spec for the deferred-queue sweeper.
	DrainSchedule string `env:"SLUICE_DRAIN_SCHEDULE" envDefault:"@every 5s"`

	// NotifyResendInterval is the minimum gap between two notifications of
	// the same kind to the same team.
	NotifyResendInterval time.Duration `env:"SLUICE_NOTIFY_RESEND_INTERVAL" envDefault:"360h"`

	// Queues is the list of worker queues this process consumes.
	Queues []string `env:"SLUICE_QUEUES" envDefault:"scrape" envSeparator:","`

	// Concurrency is the per-process worker concurrency.
	Concurrency int `env:"SLUICE_CONCURRENCY" envDefault:"10"`

	// PollInterval is how often idle workers poll the broker.
	PollInterval time.Duration `env:"SLUICE_POLL_INTERVAL" envDefault:"1s"`

	// HeartbeatInterval is how often running jobs refresh their
	// active-entry TTLs.
	HeartbeatInterval time.Duration `env:"SLUICE_HEARTBEAT_INTERVAL" envDefault:"20s"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration `env:"SLUICE_SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// MirrorRate is the sampling rate for the submission mirror, 0 to 1.
	MirrorRate float64 `env:"SLUICE_MIRROR_RATE" envDefault:"0"`

	// MirrorURL is the staging host mirrored submissions are posted to.
	MirrorURL string `env:"SLUICE_MIRROR_URL"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		DefaultCeiling:       2,
		ActiveTTL:            60 * time.Second,
		ScrapeTimeout:        60 * time.Second,
		WaitTimeout:          180 * time.Second,
		WaitPollInterval:     500 * time.Millisecond,
		DrainSchedule:        "@every 5s",
		NotifyResendInterval: 360 * time.Hour,
		Queues:               []string{"scrape"},
		Concurrency:          10,
		PollInterval:         1 * time.Second,
		HeartbeatInterval:    20 * time.Second,
		ShutdownTimeout:      30 * time.Second,
	}
}

// ConfigFromEnv builds a Config from SLUICE_* environment variables,
// falling back to the same defaults as DefaultConfig.
func ConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("sluice: parse config from environment: %w", err)
	}
	return cfg, nil
}
