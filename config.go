package notify

import "time"

// Config holds the configuration for a Notifier instance.
type Config struct {
	// Concurrency is the number of job worker goroutines.
	Concurrency int

	// PollInterval is how often the job queue checks for due jobs.
	PollInterval time.Duration

	// BatchSize is the maximum number of jobs claimed per poll cycle.
	BatchSize int

	// RequestTimeout is the HTTP timeout per webhook or chat request.
	RequestTimeout time.Duration

	// ShutdownTimeout is the maximum time to wait for running jobs on shutdown.
	ShutdownTimeout time.Duration

	// APIVersion is stamped on every event payload.
	APIVersion string
}

// DefaultAPIVersion is the payload api_version when none is configured.
const DefaultAPIVersion = "2024-07-31"

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:     10,
		PollInterval:    1 * time.Second,
		BatchSize:       50,
		RequestTimeout:  30 * time.Second,
		ShutdownTimeout: 30 * time.Second,
		APIVersion:      DefaultAPIVersion,
	}
}
