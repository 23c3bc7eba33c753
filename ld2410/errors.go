package ld2410

import (
	"errors"
	"fmt"
)

// ErrTimeout is returned when no frame or acknowledgement arrives within the
// configured read window. The whole operation may be retried by the caller.
var ErrTimeout = errors.New("ld2410: timed out waiting for frame")

// ErrMalformed is returned for a structurally invalid payload or a
// command/ack code mismatch. Not retried automatically.
var ErrMalformed = errors.New("ld2410: malformed frame")

// ErrInvalidState is returned when an operation is not legal in the
// controller's current state, e.g. Start while already running or a
// configuration command outside configuration mode.
var ErrInvalidState = errors.New("ld2410: invalid state for operation")

// errDesync marks a footer mismatch after a consumed header. It is recovered
// internally by rescanning and escalates to ErrTimeout at the deadline.
var errDesync = errors.New("ld2410: frame desync")

// DeviceError is a rejection reported by the radar itself: the ack frame was
// well-formed but carried a nonzero status word.
type DeviceError struct {
	Command Command
	Status  uint16
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("ld2410: device rejected command %v (status 0x%04x)", e.Command, e.Status)
}

// IsDeviceError returns true if err is a device-reported rejection.
func IsDeviceError(err error) bool {
	var de *DeviceError
	return errors.As(err, &de)
}
