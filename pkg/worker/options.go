package worker

import "log/slog"

// Option configures a Worker.
type Option interface {
	apply(*config)
}

type optionFunc func(*config)

func (f optionFunc) apply(c *config) { f(c) }

type config struct {
	workerID string
	retry    RetryConfig
	logger   *slog.Logger
}

// WithWorkerID sets the id used in log lines. Default: a random UUID.
func WithWorkerID(id string) Option {
	return optionFunc(func(c *config) { c.workerID = id })
}

// WithRetry overrides the lock-contention backoff bounds.
func WithRetry(rc RetryConfig) Option {
	return optionFunc(func(c *config) { c.retry = rc })
}

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *config) { c.logger = l })
}
