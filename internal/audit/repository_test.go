package audit

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-gateway/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-gateway/migrations"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "audit-test.db"),
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
	return NewSQLiteRepository(db.DB)
}

func TestCreate_FillsDefaults(t *testing.T) {
	repo := newTestRepo(t)

	e := &Entry{Action: ActionDeviceCreate, SubjectID: "mixer-1", Source: SourceCLI}
	if err := repo.Create(testContext(t), e); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if e.ID == "" || e.CreatedAt.IsZero() {
		t.Errorf("entry = %+v, want generated ID and timestamp", e)
	}

	if err := repo.Create(testContext(t), &Entry{Source: SourceCLI}); err == nil {
		t.Error("Create() without action: error = nil")
	}
}

func TestList_FiltersAndOrders(t *testing.T) {
	repo := newTestRepo(t)
	ctx := testContext(t)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	entries := []*Entry{
		{Action: ActionUserCreate, SubjectID: "usr-1", Source: SourceCLI, CreatedAt: base},
		{Action: ActionAccessGrant, SubjectID: "usr-1", Source: SourceCLI, Details: map[string]any{"device_id": "mixer-1"}, CreatedAt: base.Add(time.Minute)},
		{Action: ActionLogin, SubjectID: "usr-1", Actor: "alice", Source: SourceAPI, CreatedAt: base.Add(2 * time.Minute)},
		{Action: ActionLoginFailed, Actor: "mallory", Source: SourceAPI, CreatedAt: base.Add(3 * time.Minute)},
	}
	for _, e := range entries {
		if err := repo.Create(ctx, e); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	all, err := repo.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if all.Total != 4 || len(all.Entries) != 4 || all.Limit != defaultLimit {
		t.Fatalf("List() = total %d, len %d, limit %d", all.Total, len(all.Entries), all.Limit)
	}
	if all.Entries[0].Action != ActionLoginFailed {
		t.Errorf("first entry = %s, want most recent (%s)", all.Entries[0].Action, ActionLoginFailed)
	}

	bySubject, err := repo.List(ctx, Filter{SubjectID: "usr-1", Limit: 2})
	if err != nil {
		t.Fatalf("List(subject) error = %v", err)
	}
	if bySubject.Total != 3 || len(bySubject.Entries) != 2 {
		t.Errorf("List(subject) = total %d, len %d, want 3, 2", bySubject.Total, len(bySubject.Entries))
	}

	grants, err := repo.List(ctx, Filter{Action: ActionAccessGrant})
	if err != nil {
		t.Fatalf("List(action) error = %v", err)
	}
	if len(grants.Entries) != 1 || grants.Entries[0].Details["device_id"] != "mixer-1" {
		t.Errorf("grants = %+v", grants.Entries)
	}
}

func TestList_ClampsLimit(t *testing.T) {
	repo := newTestRepo(t)

	res, err := repo.List(testContext(t), Filter{Limit: 1000, Offset: -5})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if res.Limit != maxLimit || res.Offset != 0 {
		t.Errorf("limit, offset = %d, %d, want %d, 0", res.Limit, res.Offset, maxLimit)
	}
	if res.Entries == nil {
		t.Error("Entries = nil, want empty slice")
	}
}
