package partition

import "testing"

// This pins the reference rule's literal assignments so a refactor can't
// silently change which reducer a word lands on.
func TestFirstLetterMatchesReferenceAssignments(t *testing.T) {
	cases := map[string]int{
		"alpha":   0,
		"beta":    0,
		"gamma":   1,
		"delta":   0,
		"epsilon": 0,
	}
	var p FirstLetter
	for word, want := range cases {
		if got := p.Reducer(word, 2); got != want {
			t.Errorf("Reducer(%q) = %d, want %d", word, got, want)
		}
	}
}

func TestHashModStableAcrossCalls(t *testing.T) {
	var p HashMod
	word := "consistent"
	first := p.Reducer(word, 5)
	for i := 0; i < 10; i++ {
		if got := p.Reducer(word, 5); got != first {
			t.Fatalf("HashMod must be deterministic for a fixed R, got %d and %d", first, got)
		}
	}
	if first < 0 || first >= 5 {
		t.Fatalf("Reducer index %d out of range [0,5)", first)
	}
}
