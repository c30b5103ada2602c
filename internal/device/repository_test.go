package device

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

// setupTestDB creates an in-memory SQLite database with the devices table.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	schema := `
		CREATE TABLE devices (
			id          TEXT PRIMARY KEY,
			kind        TEXT NOT NULL,
			name        TEXT NOT NULL DEFAULT '',
			secret_hash TEXT NOT NULL,
			created_at  TEXT NOT NULL
		) STRICT;`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}
	return db
}

func TestSQLiteRepository_CreateAndGet(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	d := &Device{ID: "mixer-1", Kind: KindWatermixer, Name: "Kitchen", SecretHash: "hash"}
	if err := repo.Create(ctx, d); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if d.CreatedAt.IsZero() {
		t.Error("Create() should set CreatedAt")
	}

	got, err := repo.GetByID(ctx, "mixer-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Kind != KindWatermixer || got.Name != "Kitchen" || got.SecretHash != "hash" {
		t.Errorf("GetByID() = %+v", got)
	}

	if err := repo.Create(ctx, &Device{ID: "mixer-1", Kind: KindWatermixer, SecretHash: "h"}); !errors.Is(err, ErrDeviceExists) {
		t.Errorf("duplicate Create() error = %v, want ErrDeviceExists", err)
	}
}

func TestSQLiteRepository_GetByID_NotFound(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))

	if _, err := repo.GetByID(context.Background(), "nope"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("GetByID() error = %v, want ErrDeviceNotFound", err)
	}
}

func TestSQLiteRepository_Create_Invalid(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))

	err := repo.Create(context.Background(), &Device{ID: "x", Kind: "GATE", SecretHash: "h"})
	if !errors.Is(err, ErrInvalidKind) {
		t.Errorf("Create() error = %v, want ErrInvalidKind", err)
	}
}

func TestSQLiteRepository_ListAndDelete(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	list, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if list == nil || len(list) != 0 {
		t.Errorf("List() on empty table = %v, want empty non-nil slice", list)
	}

	for _, id := range []string{"b", "a", "c"} {
		if err := repo.Create(ctx, &Device{ID: id, Kind: KindAlarmclock, SecretHash: "h"}); err != nil {
			t.Fatalf("Create(%s) error = %v", id, err)
		}
	}

	list, err = repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 3 || list[0].ID != "a" || list[2].ID != "c" {
		t.Errorf("List() = %v, want ordered [a b c]", list)
	}

	if err := repo.Delete(ctx, "b"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := repo.Delete(ctx, "b"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("second Delete() error = %v, want ErrDeviceNotFound", err)
	}

	list, _ = repo.List(ctx) //nolint:errcheck // checked above
	if len(list) != 2 {
		t.Errorf("List() len = %d, want 2", len(list))
	}
}
