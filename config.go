package pushqueue

import "time"

// Default configuration values, per spec.md §6.
const (
	DefaultTTL                   = 30 * time.Second
	DefaultRetryCount            = 3
	DefaultDelayBetweenRetriesMs = 100
	minRetryDelayMs              = 10
	maxRetryDelayMs              = 1000
	minRetryCount                = 1
	maxRetryCount                = 100
)

// Config holds the immutable-after-construction settings for a Queue.
//
// Values outside the recognized range fail Validate(); missing values are
// not defaulted here (use NewConfig for that) since the core itself
// tolerates any TTL >= 0 per spec.md §4.8.
type Config struct {
	// TTL is the max age of an envelope in the store before the pruner
	// removes it.
	TTL time.Duration

	// RetryCount is the max number of retries per envelope before the
	// policy engine falls back to OnMessageFailedHandler.
	RetryCount int

	// RetryDelay is the pause between delivery attempts.
	RetryDelay time.Duration
}

// NewConfig returns a Config populated with the documented defaults
// (TTL 30s, RetryCount 3, DelayBetweenRetriesMs 100), grounded in the
// teacher's EventBusModule.RegisterConfig default block.
func NewConfig() Config {
	return Config{
		TTL:        DefaultTTL,
		RetryCount: DefaultRetryCount,
		RetryDelay: DefaultDelayBetweenRetriesMs * time.Millisecond,
	}
}

// Validate checks the recognized configuration range for each field
// (spec.md §6): RetryCount 1-100, RetryDelay 10ms-1000ms, TTL > 0.
func (c Config) Validate() error {
	if c.RetryCount < minRetryCount || c.RetryCount > maxRetryCount {
		return ErrInvalidRetryCount
	}
	delayMs := c.RetryDelay.Milliseconds()
	if delayMs < minRetryDelayMs || delayMs > maxRetryDelayMs {
		return ErrInvalidRetryDelay
	}
	if c.TTL <= 0 {
		return ErrInvalidTTL
	}
	return nil
}
