package id

import (
	"strings"
	"testing"
)

func TestGenerate(t *testing.T) {
	id := Generate("2", 1)

	if !strings.HasPrefix(id, "vpro-") {
		t.Errorf("expected ID to start with 'vpro-', got %s", id)
	}
	parts := strings.Split(id, "-")
	if len(parts) != 5 {
		t.Fatalf("expected 5 dash separated parts, got %d in %s", len(parts), id)
	}
	if parts[2] != "2" || parts[3] != "1" {
		t.Errorf("expected lane 2 and index 1, got %s", id)
	}
	if len(parts[4]) != 8 {
		t.Errorf("expected 8 random characters, got %q", parts[4])
	}
}

func TestGenerate_EmptyLane(t *testing.T) {
	id := Generate("", 0)
	if !strings.Contains(id, "--0-") {
		t.Errorf("expected empty lane segment, got %s", id)
	}
}

func TestGenerate_Uniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := Generate("1", 0)
		if seen[id] {
			t.Errorf("duplicate ID generated: %s", id)
		}
		seen[id] = true
	}
}
