package auth

import (
	"errors"
	"testing"
)

func TestUserRepository_CreateAndGet(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)
	ctx := testContext(t)

	user := &User{Username: "alice", PasswordHash: "hash", Role: RoleUser, IsActive: true}
	if err := repo.Create(ctx, user); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if user.ID == "" {
		t.Fatal("Create() should generate an ID")
	}

	byID, err := repo.GetByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if byID.Username != "alice" || byID.Role != RoleUser || !byID.IsActive {
		t.Errorf("GetByID() = %+v", byID)
	}

	byName, err := repo.GetByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("GetByUsername() error = %v", err)
	}
	if byName.ID != user.ID {
		t.Errorf("GetByUsername().ID = %q, want %q", byName.ID, user.ID)
	}
}

func TestUserRepository_CreateValidation(t *testing.T) {
	repo := NewUserRepository(testDB(t))
	ctx := testContext(t)

	tests := []struct {
		name    string
		user    *User
		wantErr error
	}{
		{"bad username", &User{Username: "has space", PasswordHash: "h", Role: RoleUser}, ErrInvalidUsername},
		{"bad role", &User{Username: "bob", PasswordHash: "h", Role: "owner"}, ErrInvalidRole},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := repo.Create(ctx, tt.user); !errors.Is(err, tt.wantErr) {
				t.Errorf("Create() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestUserRepository_DuplicateUsername(t *testing.T) {
	db := testDB(t)
	seedTestUser(t, db, "alice", RoleUser)

	err := NewUserRepository(db).Create(testContext(t), &User{Username: "alice", PasswordHash: "h", Role: RoleUser})
	if !errors.Is(err, ErrUsernameExists) {
		t.Errorf("Create() error = %v, want ErrUsernameExists", err)
	}
}

func TestUserRepository_NotFound(t *testing.T) {
	repo := NewUserRepository(testDB(t))
	ctx := testContext(t)

	if _, err := repo.GetByID(ctx, "usr-missing"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("GetByID() error = %v, want ErrUserNotFound", err)
	}
	if _, err := repo.GetByUsername(ctx, "missing"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("GetByUsername() error = %v, want ErrUserNotFound", err)
	}
	if err := repo.Delete(ctx, "usr-missing"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("Delete() error = %v, want ErrUserNotFound", err)
	}
	if err := repo.SetActive(ctx, "usr-missing", false); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("SetActive() error = %v, want ErrUserNotFound", err)
	}
}

func TestUserRepository_ListCountDelete(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)
	ctx := testContext(t)

	list, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if list == nil || len(list) != 0 {
		t.Errorf("List() on empty = %v, want empty non-nil", list)
	}

	bob := seedTestUser(t, db, "bob", RoleUser)
	seedTestUser(t, db, "alice", RoleAdmin)

	list, err = repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 2 || list[0].Username != "alice" {
		t.Errorf("List() = %v, want alice first", list)
	}

	if err := repo.Delete(ctx, bob.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	count, err := repo.Count(ctx)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if count != 1 {
		t.Errorf("Count() = %d, want 1", count)
	}
}

func TestUserRepository_SetActive(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)
	user := seedTestUser(t, db, "alice", RoleUser)

	if err := repo.SetActive(testContext(t), user.ID, false); err != nil {
		t.Fatalf("SetActive() error = %v", err)
	}
	got, err := repo.GetByID(testContext(t), user.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.IsActive {
		t.Error("user should be inactive")
	}
}
