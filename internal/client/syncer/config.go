package syncer

import "time"

// Config holds configuration for the sync engine and its background runner.
type Config struct {
	// PollInterval is how often the background runner triggers a sync cycle
	PollInterval time.Duration

	// StuckSyncingMaxAge is how long a queue entry may sit in 'syncing'
	// before startup recovery returns it to 'pending'
	StuckSyncingMaxAge time.Duration

	// Enabled determines if background sync is enabled
	Enabled bool
}

// DefaultConfig returns the default sync configuration.
func DefaultConfig() *Config {
	return &Config{
		PollInterval:       30 * time.Second,
		StuckSyncingMaxAge: 5 * time.Minute,
		Enabled:            true,
	}
}

// Validate normalizes out-of-range values.
func (c *Config) Validate() error {
	if c.PollInterval <= 0 {
		c.PollInterval = 30 * time.Second
	}
	if c.StuckSyncingMaxAge <= 0 {
		c.StuckSyncingMaxAge = 5 * time.Minute
	}
	return nil
}
