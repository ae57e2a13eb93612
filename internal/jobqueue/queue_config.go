package jobqueue

import (
	"time"

	"github.com/riverqueue/river"
)

// QueueConfig holds all configurable parameters for the job queue
type QueueConfig struct {
	// Worker Configuration
	MaxWorkers int // Number of concurrent workers processing jobs (default: 10)

	// Retry Configuration
	MaxRetries int           // Maximum retry attempts per job (default: 25)
	JobTimeout time.Duration // Maximum time a single job can run (default: 1 minute)

	// SweepInterval is how often the periodic context sweep runs
	SweepInterval time.Duration
}

// DefaultQueueConfig returns the default configuration
func DefaultQueueConfig() *QueueConfig {
	return &QueueConfig{
		MaxWorkers:    10,
		MaxRetries:    25,
		JobTimeout:    1 * time.Minute,
		SweepInterval: 1 * time.Hour,
	}
}

// RiverQueueConfig converts our config to River's queue configuration format
func (c *QueueConfig) RiverQueueConfig() map[string]river.QueueConfig {
	return map[string]river.QueueConfig{
		river.QueueDefault: {
			MaxWorkers: c.MaxWorkers,
		},
	}
}
