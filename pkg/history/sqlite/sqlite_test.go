package sqlite

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rhuss/cadbridge/pkg/history"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAppendAndRecent(t *testing.T) {
	s := openTestStore(t)

	recs := []history.Record{
		{ID: "a", Code: "x = 1", Success: true, Duration: time.Millisecond, ExecutedAt: time.Now()},
		{ID: "b", Code: "boom(", Success: false, ErrorType: "SyntaxError", ExecutedAt: time.Now()},
	}
	for _, rec := range recs {
		if err := s.Append(rec); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	got, err := s.Recent(10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(got) = %d, want 2", len(got))
	}
	// Newest first.
	if got[0].ID != "b" {
		t.Errorf("got[0].ID = %q, want %q", got[0].ID, "b")
	}
	if got[0].Success {
		t.Error("got[0] should be a failure")
	}
	if got[0].ErrorType != "SyntaxError" {
		t.Errorf("got[0].ErrorType = %q, want SyntaxError", got[0].ErrorType)
	}
	if got[1].Code != "x = 1" {
		t.Errorf("got[1].Code = %q, want %q", got[1].Code, "x = 1")
	}
}

func TestRecentLimit(t *testing.T) {
	s := openTestStore(t)
	for i := 0; i < 5; i++ {
		if err := s.Append(history.Record{ID: "r", ExecutedAt: time.Now()}); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	got, err := s.Recent(3)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("len(got) = %d, want 3", len(got))
	}
}

func TestReopenPersists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "history.db")

	s, err := New(path)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := s.Append(history.Record{ID: "persisted", Success: true, ExecutedAt: time.Now()}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	s.Close()

	s2, err := New(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s2.Close()

	got, err := s2.Recent(1)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != "persisted" {
		t.Errorf("record did not survive reopen: %+v", got)
	}
}
