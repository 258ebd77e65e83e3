package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/roach88/strata/internal/testutil"
)

// createTestStore creates a new file-backed store for testing.
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

// createDiamondStore creates an in-memory store holding the diamonds fixture.
func createDiamondStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.LoadDataset(context.Background(), "diamonds", "time", testutil.Diamonds()); err != nil {
		t.Fatalf("LoadDataset() failed: %v", err)
	}
	return s
}
