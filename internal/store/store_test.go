package store

import (
	"path/filepath"
	"testing"

	"github.com/casalink/inboxd/internal/model"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cache.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMigrateIdempotent(t *testing.T) {
	db := testDB(t)
	result, err := db.Migrate()
	if err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
	if result.Changed {
		t.Error("second Migrate() reported changes")
	}
}

func TestReplaceAllAndList(t *testing.T) {
	db := testDB(t)

	conns := []model.Connection{
		{
			ID:          "c1",
			InitiatorID: "u1",
			CreatedAt:   1000,
			Peer:        model.Profile{UserID: "u2", DisplayName: "Ana", Role: model.RoleProvider, IsOnline: true},
		},
		{
			ID:          "c2",
			InitiatorID: "u3",
			CreatedAt:   2000,
			Peer:        model.Profile{UserID: "u3", DisplayName: "Bruno", Role: model.RoleRequester},
		},
	}
	if err := db.ReplaceAll(conns); err != nil {
		t.Fatalf("ReplaceAll() error = %v", err)
	}

	got, err := db.ListConnections()
	if err != nil {
		t.Fatalf("ListConnections() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d connections, want 2", len(got))
	}
	// Newest relationship first.
	if got[0].ID != "c2" || got[1].ID != "c1" {
		t.Errorf("order = [%s %s], want [c2 c1]", got[0].ID, got[1].ID)
	}
	if got[1].Peer.DisplayName != "Ana" || got[1].Peer.Role != model.RoleProvider || !got[1].Peer.IsOnline {
		t.Errorf("c1 peer = %+v, want Ana/provider/online", got[1].Peer)
	}
}

// TestReplaceAllDropsRevoked: a connection missing from the new set is
// removed, matching the directory's authority over relationships.
func TestReplaceAllDropsRevoked(t *testing.T) {
	db := testDB(t)

	first := []model.Connection{
		{ID: "c1", Peer: model.Profile{UserID: "u2"}},
		{ID: "c2", Peer: model.Profile{UserID: "u3"}},
	}
	if err := db.ReplaceAll(first); err != nil {
		t.Fatal(err)
	}
	second := []model.Connection{
		{ID: "c2", Peer: model.Profile{UserID: "u3", DisplayName: "Bruno"}},
	}
	if err := db.ReplaceAll(second); err != nil {
		t.Fatal(err)
	}

	got, err := db.ListConnections()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "c2" {
		t.Errorf("connections = %v, want only c2", got)
	}
	if got[0].Peer.DisplayName != "Bruno" {
		t.Errorf("c2 display name = %q, want updated value", got[0].Peer.DisplayName)
	}
}

func TestListEmpty(t *testing.T) {
	db := testDB(t)
	got, err := db.ListConnections()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("got %d connections from empty cache, want 0", len(got))
	}
}
