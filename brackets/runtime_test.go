package brackets

import "testing"

func TestNextPosition(t *testing.T) {
	cases := []struct {
		round, position          int
		nextRound, nextPos, slot int
	}{
		{3, 1, 2, 1, 1},
		{3, 2, 2, 1, 2},
		{3, 3, 2, 2, 1},
		{3, 4, 2, 2, 2},
		{2, 1, 1, 1, 1},
		{2, 2, 1, 1, 2},
		{1, 1, 0, 0, 0},
	}
	for _, c := range cases {
		nr, np, slot := NextPosition(c.round, c.position)
		if nr != c.nextRound || np != c.nextPos || slot != c.slot {
			t.Errorf("NextPosition(%d, %d) = (%d, %d, %d), want (%d, %d, %d)",
				c.round, c.position, nr, np, slot, c.nextRound, c.nextPos, c.slot)
		}
	}
}

func TestMatchesInRound(t *testing.T) {
	cases := map[int]int{1: 1, 2: 2, 3: 4, 4: 8}
	for round, want := range cases {
		if got := MatchesInRound(round); got != want {
			t.Errorf("MatchesInRound(%d) = %d, want %d", round, got, want)
		}
	}
}

func TestLayoutEightSlots(t *testing.T) {
	firstRound := []int{1, 0, 4, 5, 3, 6, 2, 0}
	bracketMatches := Layout(10, firstRound)

	if len(bracketMatches) != 7 {
		t.Fatalf("got %d matches, want 7", len(bracketMatches))
	}
	counts := map[int]int{}
	for _, bm := range bracketMatches {
		counts[bm.Round]++
		if bm.TournamentID != 10 {
			t.Errorf("match (%d,%d) tournament = %d, want 10", bm.Round, bm.Position, bm.TournamentID)
		}
		if bm.Round != 3 && (bm.Member1ID != 0 || bm.Member2ID != 0) {
			t.Errorf("round %d position %d populated before any result", bm.Round, bm.Position)
		}
	}
	if counts[3] != 4 || counts[2] != 2 || counts[1] != 1 {
		t.Fatalf("matches per round = %v, want 4/2/1", counts)
	}

	first := Find(bracketMatches, 3, 1)
	if first == nil || first.Member1ID != 1 || first.Member2ID != 0 {
		t.Errorf("first-round match 1 = %+v, want members 1 vs BYE", first)
	}
	last := Find(bracketMatches, 3, 4)
	if last == nil || last.Member1ID != 2 || last.Member2ID != 0 {
		t.Errorf("first-round match 4 = %+v, want members 2 vs BYE", last)
	}

	final := Find(bracketMatches, 1, 1)
	if final == nil || !IsFinal(final) {
		t.Fatal("final not found")
	}
	if semi := Find(bracketMatches, 2, 1); IsFinal(semi) {
		t.Error("semifinal reported as final")
	}
}

func TestLayoutTwoSlots(t *testing.T) {
	bracketMatches := Layout(3, []int{7, 9})
	if len(bracketMatches) != 1 {
		t.Fatalf("got %d matches, want 1", len(bracketMatches))
	}
	bm := bracketMatches[0]
	if bm.Round != 1 || bm.Position != 1 || bm.Member1ID != 7 || bm.Member2ID != 9 {
		t.Errorf("got %+v, want the final holding both players", bm)
	}
}
