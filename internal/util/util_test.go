package util

import (
	"sync"
	"testing"
	"time"
)

func TestIDGeneratorIsOrderedAndUnique(t *testing.T) {
	g := NewIDGenerator()
	seen := make(map[string]bool)
	prev := ""
	for i := 0; i < 5000; i++ {
		id := g.NewID()
		if !IsValidID(id) {
			t.Fatalf("invalid id %q", id)
		}
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		if id <= prev {
			t.Fatalf("id %q not after %q", id, prev)
		}
		seen[id] = true
		prev = id
	}
}

func TestIDGeneratorConcurrent(t *testing.T) {
	g := NewIDGenerator()
	var (
		mu   sync.Mutex
		seen = make(map[string]bool)
		wg   sync.WaitGroup
	)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				id := g.NewID()
				mu.Lock()
				if seen[id] {
					t.Errorf("duplicate id %q", id)
				}
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
}

func TestParseID(t *testing.T) {
	id := NewID()
	got, err := ParseID(id)
	if err != nil {
		t.Fatalf("ParseID(%q): %v", id, err)
	}
	if got != id {
		t.Errorf("ParseID = %q, want %q", got, id)
	}
	if _, err := ParseID("not-a-uuid"); err == nil {
		t.Error("expected error for malformed id")
	}
}

func TestSequenceIDs(t *testing.T) {
	s := &SequenceIDs{Prefix: "adj"}
	if got := s.NewID(); got != "adj-0001" {
		t.Errorf("first id = %q", got)
	}
	if got := s.NewID(); got != "adj-0002" {
		t.Errorf("second id = %q", got)
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2026-03-14")
	if err != nil {
		t.Fatalf("ParseDate: %v", err)
	}
	if FormatDate(d) != "2026-03-14" {
		t.Errorf("round trip = %s", FormatDate(d))
	}
	for _, bad := range []string{"", "14/03/2026", "2026-13-01"} {
		if _, err := ParseDate(bad); err == nil {
			t.Errorf("ParseDate(%q) expected error", bad)
		}
	}
}

func TestFixedClock(t *testing.T) {
	start := time.Date(2026, 3, 14, 6, 0, 0, 0, time.UTC)
	c := NewFixedClock(start)
	if !c.Now().Equal(start) {
		t.Fatalf("Now = %v", c.Now())
	}
	c.Advance(90 * time.Minute)
	if got := c.Now().Sub(start); got != 90*time.Minute {
		t.Errorf("advanced by %v", got)
	}
}

func TestRelativeTimeString(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		ago  time.Duration
		want string
	}{
		{10 * time.Second, "just now"},
		{time.Minute, "1 minute ago"},
		{5 * time.Minute, "5 minutes ago"},
		{3 * time.Hour, "3 hours ago"},
		{30 * time.Hour, "yesterday"},
		{72 * time.Hour, "3 days ago"},
	}
	for _, tt := range tests {
		if got := RelativeTimeString(now.Add(-tt.ago), now); got != tt.want {
			t.Errorf("RelativeTimeString(-%v) = %q, want %q", tt.ago, got, tt.want)
		}
	}
}
