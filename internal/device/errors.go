package device

import "errors"

// Domain errors for the device package. Check with errors.Is.
var (
	// ErrDeviceNotFound is returned when a device ID does not exist.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrDeviceExists is returned when provisioning an ID that already exists.
	ErrDeviceExists = errors.New("device: already exists")

	// ErrInvalidDevice is returned when device validation fails.
	ErrInvalidDevice = errors.New("device: invalid")

	// ErrInvalidKind is returned when a kind value is not recognised.
	ErrInvalidKind = errors.New("device: invalid kind")

	// ErrUnsupportedAction is returned when an action is not recognised for a kind.
	ErrUnsupportedAction = errors.New("device: unsupported action")

	// ErrMissingParameter is returned when an action lacks a required parameter.
	ErrMissingParameter = errors.New("device: missing parameter")
)
