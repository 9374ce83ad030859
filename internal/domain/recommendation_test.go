package domain

import "testing"

func TestNormalizeRecommendationsOrdersAndCaps(t *testing.T) {
	recs := []Recommendation{
		{EngineerID: "e3", Score: 0.5},
		{EngineerID: "e1", Score: 0.9},
		{EngineerID: "e2", Score: 0.9},
		{EngineerID: "e4", Score: 0.1},
	}
	out := NormalizeRecommendations(recs, 3)
	if len(out) != 3 {
		t.Fatalf("len = %d, want 3", len(out))
	}
	// Ties break by engineer id ascending for determinism.
	if out[0].EngineerID != "e1" || out[1].EngineerID != "e2" || out[2].EngineerID != "e3" {
		t.Fatalf("order = %v", out)
	}
}

func TestNormalizeRecommendationsClampsUntrustedScores(t *testing.T) {
	out := NormalizeRecommendations([]Recommendation{
		{EngineerID: "e1", Score: 1.7},
		{EngineerID: "e2", Score: -0.2},
	}, 5)
	if len(out) != 2 {
		t.Fatalf("len = %d, want 2", len(out))
	}
	if out[0].Score != 1 || out[1].Score != 0 {
		t.Fatalf("scores not clamped: %v", out)
	}
}

func TestNormalizeRecommendationsDropsBlankAndDedupes(t *testing.T) {
	out := NormalizeRecommendations([]Recommendation{
		{EngineerID: "  ", Score: 0.9},
		{EngineerID: "e1", Score: 0.2},
		{EngineerID: "e1", Score: 0.8},
	}, 5)
	if len(out) != 1 {
		t.Fatalf("len = %d, want 1", len(out))
	}
	if out[0].EngineerID != "e1" || out[0].Score != 0.8 {
		t.Fatalf("out = %v", out)
	}
}

func TestNormalizeRecommendationsEmptyIsValid(t *testing.T) {
	out := NormalizeRecommendations(nil, 5)
	if out == nil || len(out) != 0 {
		t.Fatalf("want empty non-nil slice, got %#v", out)
	}
}
