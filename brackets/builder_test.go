package brackets

import (
	"errors"
	"math/rand"
	"testing"
)

func TestBracketSize(t *testing.T) {
	cases := map[int]int{2: 2, 3: 4, 4: 4, 5: 8, 8: 8, 9: 16, 17: 32}
	for n, want := range cases {
		if got := BracketSize(n); got != want {
			t.Errorf("BracketSize(%d) = %d, want %d", n, got, want)
		}
	}
}

func TestNumRounds(t *testing.T) {
	cases := map[int]int{2: 1, 4: 2, 8: 3, 16: 4, 32: 5}
	for size, want := range cases {
		if got := NumRounds(size); got != want {
			t.Errorf("NumRounds(%d) = %d, want %d", size, got, want)
		}
	}
}

func TestClosestPowerOfTwo(t *testing.T) {
	cases := map[int]int{1: 1, 2: 2, 3: 2, 4: 4, 5: 4, 6: 4, 7: 8, 11: 8, 12: 8, 13: 16}
	for n, want := range cases {
		if got := ClosestPowerOfTwo(n); got != want {
			t.Errorf("ClosestPowerOfTwo(%d) = %d, want %d", n, got, want)
		}
	}
}

func TestMaxSeedCount(t *testing.T) {
	cases := map[int]int{2: 0, 3: 0, 4: 2, 6: 2, 8: 2, 15: 2, 16: 4, 31: 4, 32: 8, 64: 16}
	for n, want := range cases {
		if got := MaxSeedCount(n); got != want {
			t.Errorf("MaxSeedCount(%d) = %d, want %d", n, got, want)
		}
	}
}

func TestValidateSeedCount(t *testing.T) {
	if err := ValidateSeedCount(16, 0); err != nil {
		t.Errorf("seed count 0 should always be valid: %v", err)
	}
	if err := ValidateSeedCount(16, 4); err != nil {
		t.Errorf("ValidateSeedCount(16, 4) = %v", err)
	}
	for _, s := range []int{1, 3, 6, 8} {
		if err := ValidateSeedCount(16, s); !errors.Is(err, ErrInvalidSeedCount) {
			t.Errorf("ValidateSeedCount(16, %d) = %v, want ErrInvalidSeedCount", s, err)
		}
	}
}

func TestSeedingPatternPairSums(t *testing.T) {
	// In the standard pattern, the two seeds of every first-round pair sum
	// to size+1, and seed 1 is first while seed 2 is last.
	for _, size := range []int{2, 4, 8, 16, 32} {
		pattern := SeedingPattern(size)
		slotSeed := make([]int, size)
		for seed, slot := range pattern {
			slotSeed[slot] = seed + 1
		}
		if slotSeed[0] != 1 {
			t.Errorf("size %d: seed 1 at slot %d, want slot 0", size, pattern[0])
		}
		if slotSeed[size-1] != 2 {
			t.Errorf("size %d: last slot holds seed %d, want seed 2", size, slotSeed[size-1])
		}
		for p := 0; p < size; p += 2 {
			if slotSeed[p]+slotSeed[p+1] != size+1 {
				t.Errorf("size %d pair %d: seeds %d+%d != %d", size, p/2, slotSeed[p], slotSeed[p+1], size+1)
			}
		}
	}
}

func TestSeedingPatternEight(t *testing.T) {
	pattern := SeedingPattern(8)
	want := []int{0, 7, 4, 2, 3, 5, 6, 1} // slot per seed 1..8
	for i, slot := range want {
		if pattern[i] != slot {
			t.Errorf("seed %d at slot %d, want %d", i+1, pattern[i], slot)
		}
	}
}

func entrantsWithRatings(ratings ...int) []Entrant {
	entrants := make([]Entrant, len(ratings))
	for i, r := range ratings {
		entrants[i] = Entrant{MemberID: i + 1, Rating: r}
	}
	return entrants
}

func checkInvariants(t *testing.T, slots []int, entrants []Entrant) {
	t.Helper()
	seen := make(map[int]bool)
	for _, id := range slots {
		if id == 0 {
			continue
		}
		if seen[id] {
			t.Fatalf("member %d placed twice: %v", id, slots)
		}
		seen[id] = true
	}
	if len(seen) != len(entrants) {
		t.Fatalf("placed %d of %d entrants: %v", len(seen), len(entrants), slots)
	}
	for p := 0; p < len(slots); p += 2 {
		if slots[p] == 0 && slots[p+1] == 0 {
			t.Fatalf("pair %d is a double BYE: %v", p/2, slots)
		}
		if slots[p] == 0 && slots[p+1] != 0 {
			t.Fatalf("pair %d has BYE in the first slot: %v", p/2, slots)
		}
	}
}

func TestBuildFirstRoundTwoPlayers(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	slots, err := BuildFirstRound(entrantsWithRatings(1800, 1500), nil, rng)
	if err != nil {
		t.Fatal(err)
	}
	if len(slots) != 2 {
		t.Fatalf("got %d slots, want 2", len(slots))
	}
	checkInvariants(t, slots, entrantsWithRatings(1800, 1500))
}

func TestBuildFirstRoundNotEnough(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	if _, err := BuildFirstRound(entrantsWithRatings(1800), nil, rng); !errors.Is(err, ErrNotEnoughEntrants) {
		t.Errorf("got %v, want ErrNotEnoughEntrants", err)
	}
}

func TestBuildFirstRoundFiveEntrants(t *testing.T) {
	// 5 entrants in an 8-slot bracket: three BYEs go to the top three by
	// rating, and everyone plays at most one opponent.
	entrants := entrantsWithRatings(2100, 1900, 1700, 1500, 1300)
	for seed := int64(0); seed < 20; seed++ {
		rng := rand.New(rand.NewSource(seed))
		slots, err := BuildFirstRound(entrants, nil, rng)
		if err != nil {
			t.Fatalf("seed %d: %v", seed, err)
		}
		if len(slots) != 8 {
			t.Fatalf("seed %d: got %d slots, want 8", seed, len(slots))
		}
		checkInvariants(t, slots, entrants)
		for p := 0; p < 8; p += 2 {
			if slots[p+1] != 0 {
				continue
			}
			// Members 1..3 hold the top three ratings.
			if slots[p] > 3 {
				t.Errorf("seed %d: BYE went to member %d instead of a top-3 player: %v", seed, slots[p], slots)
			}
		}
	}
}

func TestBuildFirstRoundThreeEntrants(t *testing.T) {
	// 3 entrants in a 4-slot bracket: the top player takes the single BYE,
	// and the swap path that reserves their pair must not double-place a
	// player who started out unplaced.
	entrants := entrantsWithRatings(1500, 1400, 0)
	for seed := int64(0); seed < 50; seed++ {
		rng := rand.New(rand.NewSource(seed))
		slots, err := BuildFirstRound(entrants, nil, rng)
		if err != nil {
			t.Fatalf("seed %d: %v", seed, err)
		}
		checkInvariants(t, slots, entrants)
		for p := 0; p < 4; p += 2 {
			if slots[p+1] == 0 && slots[p] != 1 {
				t.Errorf("seed %d: BYE went to member %d instead of the top player: %v", seed, slots[p], slots)
			}
		}
	}
}

func TestBuildFirstRoundSeedsSeparated(t *testing.T) {
	// With 2 protected seeds in a size-8 bracket, seed 1 opens the draw and
	// seed 2 closes it: they cannot meet before the final.
	entrants := entrantsWithRatings(2200, 2100, 1900, 1800, 1700, 1600, 1500, 1400)
	seedCount := 2
	for seed := int64(0); seed < 20; seed++ {
		rng := rand.New(rand.NewSource(seed))
		slots, err := BuildFirstRound(entrants, &seedCount, rng)
		if err != nil {
			t.Fatalf("seed %d: %v", seed, err)
		}
		checkInvariants(t, slots, entrants)
		if slots[0] != 1 {
			t.Errorf("seed %d: slot 0 holds member %d, want member 1", seed, slots[0])
		}
		if slots[7] != 2 {
			t.Errorf("seed %d: slot 7 holds member %d, want member 2", seed, slots[7])
		}
	}
}

func TestBuildFirstRoundSeedsWithByes(t *testing.T) {
	// 6 entrants, 2 seeds, size 8: both seeds are also in the top-2 BYE
	// targets, so each gets a first-round BYE in their pinned pair.
	entrants := entrantsWithRatings(2200, 2100, 1900, 1800, 1700, 1600)
	seedCount := 2
	for seed := int64(0); seed < 50; seed++ {
		rng := rand.New(rand.NewSource(seed))
		slots, err := BuildFirstRound(entrants, &seedCount, rng)
		if err != nil {
			t.Fatalf("seed %d: %v", seed, err)
		}
		checkInvariants(t, slots, entrants)
		if slots[0] != 1 || slots[1] != 0 {
			t.Errorf("seed %d: seed 1 pair = [%d %d], want [1 0]", seed, slots[0], slots[1])
		}
		if slots[6] != 2 || slots[7] != 0 {
			t.Errorf("seed %d: seed 2 pair = [%d %d], want [2 0]", seed, slots[6], slots[7])
		}
	}
}

func TestBuildFirstRoundRejectsBadSeedCount(t *testing.T) {
	entrants := entrantsWithRatings(2200, 2100, 1900, 1800, 1700, 1600)
	seedCount := 4 // max for 6 entrants is 2
	rng := rand.New(rand.NewSource(1))
	if _, err := BuildFirstRound(entrants, &seedCount, rng); !errors.Is(err, ErrInvalidSeedCount) {
		t.Errorf("got %v, want ErrInvalidSeedCount", err)
	}
}

func TestBuildFirstRoundManySizes(t *testing.T) {
	for n := 2; n <= 33; n++ {
		entrants := make([]Entrant, n)
		for i := range entrants {
			entrants[i] = Entrant{MemberID: i + 1, Rating: 2400 - i*37}
		}
		for seed := int64(0); seed < 10; seed++ {
			rng := rand.New(rand.NewSource(seed))
			slots, err := BuildFirstRound(entrants, nil, rng)
			if err != nil {
				t.Fatalf("n=%d seed=%d: %v", n, seed, err)
			}
			if len(slots) != BracketSize(n) {
				t.Fatalf("n=%d: got %d slots, want %d", n, len(slots), BracketSize(n))
			}
			checkInvariants(t, slots, entrants)
		}
	}
}
