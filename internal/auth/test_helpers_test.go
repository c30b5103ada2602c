package auth

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/nerrad567/gray-logic-gateway/internal/device"
	"github.com/nerrad567/gray-logic-gateway/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-gateway/migrations"
)

const testJWTSecret = "test-secret-key-at-least-32-chars!"

// testDB opens a temp-file SQLite database with the gateway schema applied.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "auth-test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(testContext(t), migrations.FS); err != nil {
		t.Fatalf("migrating test db: %v", err)
	}
	return db.DB
}

// seedTestUser inserts an active user with password "test-password".
func seedTestUser(t *testing.T, db *sql.DB, username string, role Role) *User {
	t.Helper()

	hash, err := HashSecret("test-password")
	if err != nil {
		t.Fatalf("hashing password: %v", err)
	}

	user := &User{
		Username:     username,
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
	}
	if err := NewUserRepository(db).Create(testContext(t), user); err != nil {
		t.Fatalf("creating test user %s: %v", username, err)
	}
	return user
}

// seedTestDevice provisions a device whose secret is "<id>-secret".
func seedTestDevice(t *testing.T, db *sql.DB, id string, kind device.Kind) {
	t.Helper()

	hash, err := HashSecret(id + "-secret")
	if err != nil {
		t.Fatalf("hashing secret: %v", err)
	}
	if err := device.NewSQLiteRepository(db).Create(testContext(t), &device.Device{
		ID: id, Kind: kind, SecretHash: hash,
	}); err != nil {
		t.Fatalf("creating test device %s: %v", id, err)
	}
}

func newTestService(t *testing.T, db *sql.DB) *Service {
	t.Helper()

	svc, err := NewService(ServiceConfig{
		JWTSecret: testJWTSecret,
		TokenTTL:  15,
		CacheSize: 16,
		CacheTTL:  0,
	}, NewUserRepository(db), device.NewSQLiteRepository(db), NewDeviceAccessRepository(db))
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	return svc
}
