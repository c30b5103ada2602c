package auth

import (
	"log/slog"
	"testing"
)

func TestSeedAdmin_CreatesOnEmptyDB(t *testing.T) {
	db := testDB(t)
	users := NewUserRepository(db)
	ctx := testContext(t)

	password, err := SeedAdmin(ctx, users, slog.Default())
	if err != nil {
		t.Fatalf("SeedAdmin() error = %v", err)
	}
	if password == "" {
		t.Fatal("SeedAdmin() should return generated password")
	}

	admin, err := users.GetByUsername(ctx, "admin")
	if err != nil {
		t.Fatalf("GetByUsername(admin) error = %v", err)
	}
	if admin.Role != RoleAdmin || !admin.IsActive {
		t.Errorf("seed admin = %+v, want active admin", admin)
	}

	ok, err := VerifySecret(password, admin.PasswordHash)
	if err != nil || !ok {
		t.Errorf("VerifySecret() = %v, %v; want true, nil", ok, err)
	}
}

func TestSeedAdmin_SkipsWhenUsersExist(t *testing.T) {
	db := testDB(t)
	seedTestUser(t, db, "alice", RoleUser)

	password, err := SeedAdmin(testContext(t), NewUserRepository(db), slog.Default())
	if err != nil {
		t.Fatalf("SeedAdmin() error = %v", err)
	}
	if password != "" {
		t.Error("SeedAdmin() should skip when users exist")
	}
}
