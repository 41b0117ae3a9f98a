package services

import (
	"testing"

	"github.com/tt-club/tournament-system/models"
)

func TestDefaultSwissRounds(t *testing.T) {
	tests := []struct {
		n    int
		want int
	}{
		{2, 3},
		{4, 4},
		{6, 4},
		{8, 5},
		{16, 6},
		{32, 7},
	}
	for _, tc := range tests {
		if got := DefaultSwissRounds(tc.n); got != tc.want {
			t.Errorf("DefaultSwissRounds(%d) = %d, want %d", tc.n, got, tc.want)
		}
	}
}

func pairSet(pairs [][2]int) map[[2]int]bool {
	set := make(map[[2]int]bool, len(pairs))
	for _, p := range pairs {
		set[pairKey(p[0], p[1])] = true
	}
	return set
}

func TestPairSwissRoundAdjacentWhenFresh(t *testing.T) {
	pairs := PairSwissRound([]int{1, 2, 3, 4}, map[[2]int]*models.Match{})
	if len(pairs) != 2 {
		t.Fatalf("expected 2 pairs, got %d", len(pairs))
	}
	set := pairSet(pairs)
	if !set[pairKey(1, 2)] || !set[pairKey(3, 4)] {
		t.Errorf("fresh field should pair neighbors, got %v", pairs)
	}
}

func TestPairSwissRoundAvoidsRematch(t *testing.T) {
	played := map[[2]int]*models.Match{
		pairKey(1, 2): {},
		pairKey(3, 4): {},
	}
	pairs := PairSwissRound([]int{1, 2, 3, 4}, played)
	if len(pairs) != 2 {
		t.Fatalf("expected 2 pairs, got %d", len(pairs))
	}
	for _, p := range pairs {
		if _, ok := played[pairKey(p[0], p[1])]; ok {
			t.Errorf("pair %v is a rematch", p)
		}
	}
}

func TestPairSwissRoundBacktracks(t *testing.T) {
	// 1-3 and 1-4 played: 1 must face 2, forcing 3-4... which also played.
	// The only rematch-free pairing is impossible, except 1-2 and 3-4 is the
	// adjacent fallback; check the solver finds 1-2 / 3-4 is forbidden too
	// and falls back rather than returning nothing.
	played := map[[2]int]*models.Match{
		pairKey(1, 3): {},
		pairKey(1, 4): {},
		pairKey(1, 2): {},
	}
	pairs := PairSwissRound([]int{1, 2, 3, 4}, played)
	if len(pairs) != 2 {
		t.Fatalf("expected 2 pairs even with forced rematch, got %d", len(pairs))
	}
}

func TestPairSwissRoundSixPlayers(t *testing.T) {
	// Round-two shape: winners 1,2,3 on top, 1-2 already played.
	played := map[[2]int]*models.Match{
		pairKey(1, 2): {},
		pairKey(3, 4): {},
		pairKey(5, 6): {},
	}
	pairs := PairSwissRound([]int{1, 2, 3, 4, 5, 6}, played)
	if len(pairs) != 3 {
		t.Fatalf("expected 3 pairs, got %d", len(pairs))
	}
	seen := make(map[int]bool)
	for _, p := range pairs {
		if _, ok := played[pairKey(p[0], p[1])]; ok {
			t.Errorf("pair %v is a rematch", p)
		}
		if seen[p[0]] || seen[p[1]] {
			t.Errorf("member paired twice in %v", pairs)
		}
		seen[p[0]], seen[p[1]] = true, true
	}
	if len(seen) != 6 {
		t.Errorf("paired %d members, want 6", len(seen))
	}
}
