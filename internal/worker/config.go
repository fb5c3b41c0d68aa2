package worker

import (
	"fmt"
	"time"
)

// Config holds the configuration for the background job worker.
type Config struct {
	// Concurrency is the number of worker goroutines polling the queue.
	// Default: 2
	Concurrency int

	// PollInterval is how often each idle worker checks for due jobs. It
	// bounds how late an acceptance timeout can fire.
	// Default: 1 second
	PollInterval time.Duration

	// JobTimeout is the maximum time a single job is allowed to run before
	// its context is canceled.
	// Default: 30 seconds
	JobTimeout time.Duration

	// ShutdownTimeout is how long Stop waits for running jobs.
	// Default: 30 seconds
	ShutdownTimeout time.Duration

	// StaleJobThreshold is how long a job may stay running before startup
	// recovery puts it back in the queue.
	// Default: 10 minutes
	StaleJobThreshold time.Duration
}

// DefaultConfig returns the standard worker settings.
func DefaultConfig() Config {
	return Config{
		Concurrency:       2,
		PollInterval:      1 * time.Second,
		JobTimeout:        30 * time.Second,
		ShutdownTimeout:   30 * time.Second,
		StaleJobThreshold: 10 * time.Minute,
	}
}

// Validate checks if the configuration is valid.
func (c Config) Validate() error {
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}
	if c.Concurrency > 100 {
		return fmt.Errorf("concurrency too high (max 100), got %d", c.Concurrency)
	}
	if c.PollInterval < 100*time.Millisecond {
		return fmt.Errorf("poll interval must be at least 100ms, got %v", c.PollInterval)
	}
	if c.JobTimeout < 1*time.Second {
		return fmt.Errorf("job timeout must be at least 1 second, got %v", c.JobTimeout)
	}
	if c.ShutdownTimeout < 1*time.Second {
		return fmt.Errorf("shutdown timeout must be at least 1 second, got %v", c.ShutdownTimeout)
	}
	if c.StaleJobThreshold < 1*time.Minute {
		return fmt.Errorf("stale job threshold must be at least 1 minute, got %v", c.StaleJobThreshold)
	}
	return nil
}
