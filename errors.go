package mitemp

import (
	"errors"
	"fmt"
)

var (
	// ErrConnection indicates the BLE session could not be opened or an
	// attribute read failed. It is returned by [Poller.Name],
	// [Poller.FirmwareVersion], [Poller.Battery] and by [Poller.Parameter]
	// when the firmware refresh preceding a reading fails.
	ErrConnection = errors.New("sensor connection failed")

	// ErrTimeout indicates that no notification arrived within the BLE
	// timeout. Timeouts are absorbed by the poller and only shorten the
	// retry window; they are never returned from [Poller.Parameter].
	ErrTimeout = errors.New("sensor notification timed out")

	// ErrDecode indicates a notification payload that does not hold a valid
	// temperature/humidity pair. See [DecodeError].
	ErrDecode = errors.New("invalid sensor payload")

	// ErrSensorUnavailable is returned by [Poller.Parameter] and
	// [Poller.Reading] when no valid cached reading exists after the
	// cache-or-refresh step.
	ErrSensorUnavailable = errors.New("sensor data unavailable")
)

// DecodeError describes a rejected sensor payload.
//
// DecodeError unwraps to [ErrDecode], so callers can use
// errors.Is(err, mitemp.ErrDecode).
type DecodeError struct {
	// Payload is the sanitized text that failed to decode.
	Payload string

	// Reason explains why the payload was rejected.
	Reason string
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("invalid sensor payload %q: %s", e.Payload, e.Reason)
}

// Unwrap returns [ErrDecode].
func (e *DecodeError) Unwrap() error {
	return ErrDecode
}
