package auth

import (
	"context"
	"testing"

	"github.com/nerrad567/gray-logic-gateway/internal/device"
)

// ─── Secret hashing (Argon2id, intentionally slow) ──────────────────

func BenchmarkVerifySecret(b *testing.B) {
	hash, err := HashSecret("correct-horse-battery-staple")
	if err != nil {
		b.Fatalf("HashSecret: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		VerifySecret("correct-horse-battery-staple", hash) //nolint:errcheck // benchmark
	}
}

// ─── Device resolution (reconnect hot path) ─────────────────────────

type benchDeviceRepo struct {
	device.Repository
	d *device.Device
}

func (r benchDeviceRepo) GetByID(context.Context, string) (*device.Device, error) {
	return r.d, nil
}

func BenchmarkResolveDevice_Cached(b *testing.B) {
	hash, err := HashSecret("mixer-secret")
	if err != nil {
		b.Fatalf("HashSecret: %v", err)
	}
	repo := benchDeviceRepo{d: &device.Device{ID: "mixer", Kind: device.KindWatermixer, SecretHash: hash}}

	svc, err := NewService(ServiceConfig{JWTSecret: testJWTSecret, CacheSize: 8},
		NewUserRepository(nil), repo, NewDeviceAccessRepository(nil))
	if err != nil {
		b.Fatalf("NewService: %v", err)
	}
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		svc.ResolveDevice(ctx, device.KindWatermixer, "mixer", "mixer-secret") //nolint:errcheck // benchmark
	}
}

// ─── JWT tokens (per-connection) ────────────────────────────────────

func BenchmarkParseToken(b *testing.B) {
	user := &User{ID: "usr-bench", Role: RoleAdmin}

	token, err := GenerateAccessToken(user, testJWTSecret, 15)
	if err != nil {
		b.Fatalf("GenerateAccessToken: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ParseToken(token, testJWTSecret) //nolint:errcheck // benchmark
	}
}
