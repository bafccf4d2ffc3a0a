package memory

import (
	"fmt"
	"testing"
	"time"

	"github.com/rhuss/cadbridge/pkg/history"
)

func makeRecord(id string, success bool) history.Record {
	return history.Record{
		ID:         id,
		Code:       "_result_ = 1",
		Success:    success,
		Duration:   5 * time.Millisecond,
		ExecutedAt: time.Now(),
	}
}

func TestAppendAndRecent(t *testing.T) {
	s := New(0)

	for i := 0; i < 3; i++ {
		if err := s.Append(makeRecord(fmt.Sprintf("r%d", i), true)); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	recs, err := s.Recent(2)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("len(recs) = %d, want 2", len(recs))
	}
	// Newest first.
	if recs[0].ID != "r2" || recs[1].ID != "r1" {
		t.Errorf("order = [%s, %s], want [r2, r1]", recs[0].ID, recs[1].ID)
	}
}

func TestRecentAll(t *testing.T) {
	s := New(0)
	s.Append(makeRecord("a", true))
	s.Append(makeRecord("b", false))

	recs, err := s.Recent(0)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(recs) != 2 {
		t.Errorf("len(recs) = %d, want 2", len(recs))
	}
}

func TestEviction(t *testing.T) {
	s := New(2)
	s.Append(makeRecord("a", true))
	s.Append(makeRecord("b", true))
	s.Append(makeRecord("c", true))

	if s.Len() != 2 {
		t.Fatalf("Len = %d, want 2", s.Len())
	}
	recs, _ := s.Recent(0)
	if recs[0].ID != "c" || recs[1].ID != "b" {
		t.Errorf("order = [%s, %s], want [c, b]", recs[0].ID, recs[1].ID)
	}
}

func TestEmptyStore(t *testing.T) {
	s := New(0)
	recs, err := s.Recent(10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("len(recs) = %d, want 0", len(recs))
	}
}
