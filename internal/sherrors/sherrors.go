package sherrors

import (
	"errors"

	"github.com/redis/go-redis/v9"
)

var (
	ErrResourceNotFound = errors.New("resource not found")
	ErrInvalid          = errors.New("invalid request")
	ErrRateLimited      = errors.New("rate limit exceeded")
	ErrShed             = errors.New("service overloaded")
	ErrCircuitOpen      = errors.New("circuit breaker is open")
	ErrLockUnavailable  = errors.New("lock could not be acquired")
	ErrSagaFailed       = errors.New("saga execution failed")
	ErrTransient        = errors.New("transient store failure")

	// devices
	ErrDuplicateSerial   = errors.New("a device with this serial number already exists")
	ErrUnknownFirmware   = errors.New("firmware version not found")
	ErrUpdateInProgress  = errors.New("a firmware update is already in progress for this device")
	ErrTerminalUpdate    = errors.New("firmware update is in a terminal state")
	ErrInvalidTransition = errors.New("alert status transition not allowed")
)

// ErrorFromRedisError maps client-level errors onto the store error kinds.
func ErrorFromRedisError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, redis.Nil):
		return ErrResourceNotFound
	default:
		return err
	}
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrResourceNotFound)
}

func IsLockUnavailable(err error) bool {
	return errors.Is(err, ErrLockUnavailable)
}
