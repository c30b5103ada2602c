package device

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	maxIDLength     = 64
	maxNameLength   = 100
	minSecretLength = 8
)

var idRegex = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,64}$`)

// ValidateID checks that a device ID is 1-64 characters of letters,
// digits, dots, colons, hyphens or underscores.
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: id cannot be empty", ErrInvalidDevice)
	}
	if len(id) > maxIDLength || !idRegex.MatchString(id) {
		return fmt.Errorf("%w: id %q has invalid format", ErrInvalidDevice, id)
	}
	return nil
}

// ValidateSecret checks a plaintext device secret before it is hashed.
func ValidateSecret(secret string) error {
	if len(secret) < minSecretLength {
		return fmt.Errorf("%w: secret must be at least %d characters", ErrInvalidDevice, minSecretLength)
	}
	return nil
}

// ValidateDevice checks a device record before it is stored.
func ValidateDevice(d *Device) error {
	if d == nil {
		return fmt.Errorf("%w: device is nil", ErrInvalidDevice)
	}
	if err := ValidateID(d.ID); err != nil {
		return err
	}
	if !d.Kind.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidKind, d.Kind)
	}
	if len(strings.TrimSpace(d.Name)) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidDevice, maxNameLength)
	}
	if d.SecretHash == "" {
		return fmt.Errorf("%w: secret hash is required", ErrInvalidDevice)
	}
	return nil
}
