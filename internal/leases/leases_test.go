package leases

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/adamavenir/agentmail/internal/archive"
	"github.com/adamavenir/agentmail/internal/store"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := store.InitSchema(db); err != nil {
		t.Fatalf("init schema: %v", err)
	}
	return db
}

func openTestArchive(t *testing.T) *archive.Archive {
	t.Helper()
	arc, err := archive.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	return arc
}

func TestReserveGrantsNonOverlapping(t *testing.T) {
	db := openTestDB(t)
	m := &Manager{DB: db, Arc: openTestArchive(t)}

	res, err := m.Reserve("proj1", "Alpha", []string{"src/**/*.py"}, true, "editing", 3600, 1000)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if len(res.Granted) != 1 || len(res.Conflicts) != 0 {
		t.Fatalf("want 1 granted, 0 conflicts, got %+v", res)
	}
}

func TestReserveReportsConflictWithHolders(t *testing.T) {
	db := openTestDB(t)
	m := &Manager{DB: db, Arc: openTestArchive(t)}

	if _, err := m.Reserve("proj1", "Alpha", []string{"src/**/*.py"}, true, "", 3600, 1000); err != nil {
		t.Fatalf("first reserve: %v", err)
	}

	res, err := m.Reserve("proj1", "Beta", []string{"src/api/x.py"}, true, "", 3600, 1001)
	if err != nil {
		t.Fatalf("second reserve: %v", err)
	}
	if len(res.Granted) != 0 {
		t.Fatalf("want 0 granted, got %+v", res.Granted)
	}
	if len(res.Conflicts) != 1 || res.Conflicts[0].RequestedPath != "src/api/x.py" {
		t.Fatalf("want one conflict on src/api/x.py, got %+v", res.Conflicts)
	}
	if len(res.Conflicts[0].Holders) != 1 || res.Conflicts[0].Holders[0].AgentName != "Alpha" {
		t.Fatalf("want Alpha as holder, got %+v", res.Conflicts[0].Holders)
	}
}

func TestReserveNonExclusiveSharedPathDoesNotConflict(t *testing.T) {
	db := openTestDB(t)
	m := &Manager{DB: db, Arc: openTestArchive(t)}

	if _, err := m.Reserve("proj1", "Alpha", []string{"docs/readme.md"}, false, "", 3600, 1000); err != nil {
		t.Fatalf("first reserve: %v", err)
	}
	res, err := m.Reserve("proj1", "Beta", []string{"docs/readme.md"}, false, "", 3600, 1001)
	if err != nil {
		t.Fatalf("second reserve: %v", err)
	}
	if len(res.Granted) != 1 || len(res.Conflicts) != 0 {
		t.Fatalf("want shared non-exclusive claim granted, got %+v", res)
	}
}

func TestReserveSweepsExpiredClaimsFirst(t *testing.T) {
	db := openTestDB(t)
	m := &Manager{DB: db, Arc: openTestArchive(t)}

	if _, err := m.Reserve("proj1", "Alpha", []string{"src/x.go"}, true, "", 10, 1000); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	// now (2000) is past Alpha's expiry (1010); Beta should be granted.
	res, err := m.Reserve("proj1", "Beta", []string{"src/x.go"}, true, "", 3600, 2000)
	if err != nil {
		t.Fatalf("reserve after expiry: %v", err)
	}
	if len(res.Granted) != 1 || len(res.Conflicts) != 0 {
		t.Fatalf("want the expired claim swept and Beta granted, got %+v", res)
	}
}

func TestRenewExtendsExpiry(t *testing.T) {
	db := openTestDB(t)
	m := &Manager{DB: db, Arc: openTestArchive(t)}

	if _, err := m.Reserve("proj1", "Alpha", []string{"src/x.go"}, true, "", 100, 1000); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	renewed, err := m.Renew("proj1", "Alpha", nil, 1000, 1050)
	if err != nil {
		t.Fatalf("renew: %v", err)
	}
	if len(renewed) != 1 || renewed[0].ExpiresTS != 2050 {
		t.Fatalf("want expiry extended to 2050, got %+v", renewed)
	}
}

func TestReleaseFreesPathForOtherAgent(t *testing.T) {
	db := openTestDB(t)
	m := &Manager{DB: db, Arc: openTestArchive(t)}

	if _, err := m.Reserve("proj1", "Alpha", []string{"src/x.go"}, true, "", 3600, 1000); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	released, err := m.Release("proj1", "Alpha", nil, 1001)
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if len(released) != 1 {
		t.Fatalf("want one released claim, got %+v", released)
	}

	res, err := m.Reserve("proj1", "Beta", []string{"src/x.go"}, true, "", 3600, 1002)
	if err != nil {
		t.Fatalf("reserve after release: %v", err)
	}
	if len(res.Granted) != 1 {
		t.Fatalf("want Beta granted after release, got %+v", res)
	}
}

func TestSharedOverlapDetectsSharedActiveClaim(t *testing.T) {
	db := openTestDB(t)
	m := &Manager{DB: db, Arc: openTestArchive(t)}

	if _, err := m.Reserve("proj1", "Alpha", []string{"src/shared/*.go"}, false, "", 3600, 1000); err != nil {
		t.Fatalf("reserve Alpha: %v", err)
	}
	if _, err := m.Reserve("proj1", "Beta", []string{"src/shared/util.go"}, false, "", 3600, 1001); err != nil {
		t.Fatalf("reserve Beta: %v", err)
	}

	shared, err := SharedOverlap(db, "proj1", "Alpha", "Beta", 1002)
	if err != nil {
		t.Fatalf("shared overlap: %v", err)
	}
	if !shared {
		t.Fatal("want shared overlap true")
	}

	shared, err = SharedOverlap(db, "proj1", "Alpha", "Carol", 1002)
	if err != nil {
		t.Fatalf("shared overlap: %v", err)
	}
	if shared {
		t.Fatal("want shared overlap false for agent with no claims")
	}
}
