package pushqueue

import "errors"

// Construction and argument errors. These are the only failures this
// package ever returns to a caller; every other failure kind in spec.md §7
// is absorbed and logged instead (see Logger).
var (
	ErrNilConfig  = errors.New("pushqueue: configuration must not be nil")
	ErrNilHandler = errors.New("pushqueue: subscriber must provide OnMessageReceive")

	ErrInvalidRetryCount = errors.New("pushqueue: RetryCount must be between 1 and 100")
	ErrInvalidRetryDelay = errors.New("pushqueue: DelayBetweenRetriesMs must be between 10 and 1000")
	ErrInvalidTTL        = errors.New("pushqueue: TTL must be greater than zero")

	errHandlerPanic = errors.New("pushqueue: handler panicked")
)
