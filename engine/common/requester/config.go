package requester

import (
	"time"
)

type Config struct {
	ScanInterval      time.Duration // upper bound between two request passes
	DispatchWorkers   int           // peers served concurrently per pass
	InventoryCapacity int           // announcements buffered before dropping
	SendRetryInitial  time.Duration // first backoff while a send queue is full
	SendRetryAttempts uint64
}

func DefaultConfig() Config {
	return Config{
		ScanInterval:      100 * time.Millisecond,
		DispatchWorkers:   8,
		InventoryCapacity: 10_000,
		SendRetryInitial:  10 * time.Millisecond,
		SendRetryAttempts: 3,
	}
}

type OptionFunc func(*Config)

// WithScanInterval sets the interval of the periodic request pass. Passes
// also run whenever new work arrives.
func WithScanInterval(interval time.Duration) OptionFunc {
	return func(cfg *Config) {
		cfg.ScanInterval = interval
	}
}

// WithDispatchWorkers sets how many peers get their requests sent in parallel.
func WithDispatchWorkers(workers int) OptionFunc {
	return func(cfg *Config) {
		cfg.DispatchWorkers = workers
	}
}

func WithInventoryCapacity(capacity int) OptionFunc {
	return func(cfg *Config) {
		cfg.InventoryCapacity = capacity
	}
}

// WithSendRetry sets the backoff used when a peer's send queue is full.
// Zero attempts sends once.
func WithSendRetry(initial time.Duration, attempts uint64) OptionFunc {
	return func(cfg *Config) {
		cfg.SendRetryInitial = initial
		cfg.SendRetryAttempts = attempts
	}
}
