package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/nerrad567/gray-logic-gateway/internal/device"
)

// Logger is the logging surface the service needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// ServiceConfig configures a Service.
type ServiceConfig struct {
	JWTSecret string

	// TokenTTL is the access token lifetime in minutes.
	TokenTTL int

	// CacheSize and CacheTTL bound the verified-device cache. A
	// non-positive size disables caching.
	CacheSize int
	CacheTTL  time.Duration
}

// cachedDevice remembers a verified secret together with the stored hash
// it was checked against. A deleted or re-provisioned device no longer
// matches.
type cachedDevice struct {
	kind       device.Kind
	secretSum  [sha256.Size]byte
	secretHash string
}

// Service resolves device and user credentials against the store.
// It is safe for concurrent use.
type Service struct {
	cfg     ServiceConfig
	users   UserRepository
	devices device.Repository
	access  DeviceAccessRepository
	cache   *expirable.LRU[string, cachedDevice]
	verify  func(secret, hash string) (bool, error)
	logger  Logger
}

// NewService creates a Service.
func NewService(cfg ServiceConfig, users UserRepository, devices device.Repository, access DeviceAccessRepository) (*Service, error) {
	if cfg.JWTSecret == "" {
		return nil, errors.New("auth: jwt secret is required")
	}
	if users == nil || devices == nil || access == nil {
		return nil, errors.New("auth: repositories are required")
	}

	s := &Service{
		cfg:     cfg,
		users:   users,
		devices: devices,
		access:  access,
		verify:  VerifySecret,
		logger:  noopLogger{},
	}
	if cfg.CacheSize > 0 {
		s.cache = expirable.NewLRU[string, cachedDevice](cfg.CacheSize, nil, cfg.CacheTTL)
	}
	return s, nil
}

// SetLogger sets the logger for the service.
func (s *Service) SetLogger(logger Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Login checks a username/password pair and issues an access token.
func (s *Service) Login(ctx context.Context, username, password string) (string, *User, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, err
	}

	ok, err := VerifySecret(password, user.PasswordHash)
	if err != nil {
		return "", nil, fmt.Errorf("verifying password: %w", err)
	}
	if !ok {
		return "", nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return "", nil, ErrUserInactive
	}

	token, err := s.IssueToken(user)
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}

// IssueToken signs an access token for user.
func (s *Service) IssueToken(user *User) (string, error) {
	return GenerateAccessToken(user, s.cfg.JWTSecret, s.cfg.TokenTTL)
}

// ResolveDevice verifies a device's (kind, id, secret) triple. Any
// mismatch, including a kind that differs from the provisioned one, is
// ErrInvalidCredentials.
//
// The device row is read on every call. A cache hit only skips the
// Argon2id check, and only while the stored hash is the one the cached
// secret was verified against.
func (s *Service) ResolveDevice(ctx context.Context, kind device.Kind, id, secret string) (DeviceIdentity, error) {
	d, err := s.devices.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			return DeviceIdentity{}, ErrInvalidCredentials
		}
		return DeviceIdentity{}, err
	}
	if d.Kind != kind {
		s.logger.Debug("device kind mismatch", "device_id", id, "kind", kind)
		return DeviceIdentity{}, ErrInvalidCredentials
	}

	sum := sha256.Sum256([]byte(secret))
	if s.cache != nil {
		if c, ok := s.cache.Get(id); ok && c.kind == d.Kind && c.secretHash == d.SecretHash &&
			subtle.ConstantTimeCompare(c.secretSum[:], sum[:]) == 1 {
			return DeviceIdentity{ID: d.ID, Kind: d.Kind}, nil
		}
	}

	ok, err := s.verify(secret, d.SecretHash)
	if err != nil {
		return DeviceIdentity{}, fmt.Errorf("verifying device secret: %w", err)
	}
	if !ok {
		s.logger.Debug("device credential mismatch", "device_id", id, "kind", kind)
		return DeviceIdentity{}, ErrInvalidCredentials
	}

	if s.cache != nil {
		s.cache.Add(id, cachedDevice{kind: d.Kind, secretSum: sum, secretHash: d.SecretHash})
	}
	return DeviceIdentity{ID: d.ID, Kind: d.Kind}, nil
}

// ResolveUser turns a bearer token into a Session. The account is read
// back from the store so a deleted or disabled user is refused even while
// its token is still unexpired.
func (s *Service) ResolveUser(ctx context.Context, token string) (*Session, error) {
	claims, err := ParseToken(token, s.cfg.JWTSecret)
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, fmt.Errorf("%w: unknown subject", ErrTokenInvalid)
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrUserInactive
	}

	return s.SessionFor(ctx, user)
}

// SessionFor resolves the accessible device set for user. Admins get
// every provisioned device.
func (s *Service) SessionFor(ctx context.Context, user *User) (*Session, error) {
	all, err := s.devices.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}

	var granted map[string]bool
	if user.Role != RoleAdmin {
		ids, err := s.access.GetAccessibleDeviceIDs(ctx, user.ID)
		if err != nil {
			return nil, fmt.Errorf("resolving accessible devices: %w", err)
		}
		granted = make(map[string]bool, len(ids))
		for _, id := range ids {
			granted[id] = true
		}
	}

	devices := []DeviceIdentity{}
	for _, d := range all {
		if granted == nil || granted[d.ID] {
			devices = append(devices, DeviceIdentity{ID: d.ID, Kind: d.Kind})
		}
	}

	return &Session{
		UserID:   user.ID,
		Username: user.Username,
		Role:     user.Role,
		Devices:  devices,
	}, nil
}
