package scheduler

import (
	"strings"
	"time"
)

const JobExpireGatewayOrders = "gateway_order_expiry"

// Config controls scheduler intervals and batch sizes.
type Config struct {
	RunInterval time.Duration
	BatchSize   int
	JobTimeout  time.Duration
	LockTTL     time.Duration
	// EnabledJobs limits the run to the named jobs. Empty runs everything.
	EnabledJobs []string
}

func DefaultConfig() Config {
	return Config{
		RunInterval: time.Minute,
		BatchSize:   100,
		JobTimeout:  30 * time.Second,
		LockTTL:     time.Minute,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.LockTTL <= 0 {
		c.LockTTL = defaults.LockTTL
	}
	return c
}

func (c Config) isJobEnabled(name string) bool {
	if len(c.EnabledJobs) == 0 {
		return true
	}
	for _, job := range c.EnabledJobs {
		if strings.EqualFold(strings.TrimSpace(job), name) {
			return true
		}
	}
	return false
}
