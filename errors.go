package profile_rate_limiter

import (
	"errors"
	"fmt"
)

var (
	// ErrStoreUnavailable matches every failure talking to the backing store,
	// timeouts included.
	ErrStoreUnavailable = errors.New("rate limit store unavailable")
	// ErrUnknownProfile is returned when a profile name is not registered.
	ErrUnknownProfile = errors.New("unknown rate limit profile")
	// ErrInvalidProfile is returned for profiles with a bad name, limit or window.
	ErrInvalidProfile = errors.New("invalid rate limit profile")
	// ErrInvalidIdentifier marks an empty client identifier. Callers never
	// see it; the sentinel client id is used instead.
	ErrInvalidIdentifier = errors.New("invalid client identifier")

	ErrNilStore = errors.New("rate limit store is required")
)

// StoreError wraps a store failure with the operation and key involved.
type StoreError struct {
	Op  string
	Key string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("rate limit store %s for key %v: %v", e.Op, e.Key, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Is makes every StoreError match ErrStoreUnavailable.
func (e *StoreError) Is(target error) bool {
	return target == ErrStoreUnavailable
}
