package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/entref/internal/value"
)

// createTestStore creates a new store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestRecord creates a post record with one author and two tags.
func createTestRecord(id string) Record {
	return Record{
		Type:     "Post",
		ID:       id,
		ClientID: "c-" + id,
		Attributes: value.Map{
			"title": value.String("Hello"),
			"votes": value.Int(3),
		},
		BelongsTo: map[string]RecordRef{
			"author": {Type: "User", ID: "u1"},
		},
		HasMany: map[string][]RecordRef{
			"tags": {{Type: "Tag", ID: "t1"}, {Type: "Tag", ClientID: "c-t2"}},
		},
	}
}
