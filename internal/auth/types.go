package auth

import (
	"errors"
	"regexp"
	"time"

	"github.com/nerrad567/gray-logic-gateway/internal/device"
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,64}$`)

// IsValidUsername checks that a username is 1-64 characters of letters,
// digits, dots, hyphens or underscores.
func IsValidUsername(username string) bool {
	return usernamePattern.MatchString(username)
}

// Role is a user's permission level.
type Role string

const (
	// RoleUser sees only devices explicitly granted to it.
	RoleUser Role = "user"

	// RoleAdmin sees every provisioned device.
	RoleAdmin Role = "admin"
)

// ParseRole validates a role string.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleUser, RoleAdmin:
		return r, nil
	default:
		return "", ErrInvalidRole
	}
}

// User is a human account allowed to open client sockets.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"` // never serialised
	Role         Role      `json:"role"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// DeviceIdentity is a device whose credentials have been verified.
type DeviceIdentity struct {
	ID   string
	Kind device.Kind
}

// Session is a resolved client credential. Devices is fixed for the
// lifetime of the connection that resolved it.
type Session struct {
	UserID   string
	Username string
	Role     Role
	Devices  []DeviceIdentity
}

// DeviceIDs returns the IDs of the session's accessible devices.
func (s *Session) DeviceIDs() []string {
	ids := make([]string, len(s.Devices))
	for i, d := range s.Devices {
		ids[i] = d.ID
	}
	return ids
}

// CanAccess reports whether id is in the session's device set.
func (s *Session) CanAccess(id string) bool {
	for _, d := range s.Devices {
		if d.ID == id {
			return true
		}
	}
	return false
}

// Sentinel errors for auth operations.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found")
	ErrUserInactive       = errors.New("user account is inactive")
	ErrUsernameExists     = errors.New("username already exists")
	ErrInvalidUsername    = errors.New("invalid username")
	ErrInvalidRole        = errors.New("invalid role")
	ErrTokenInvalid       = errors.New("invalid token")
)
