package brackets

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
)

var (
	ErrNotEnoughEntrants = errors.New("not enough entrants to build a bracket (minimum 2)")
	ErrInvalidSeedCount  = errors.New("seed count must be 0 or a power of two within the allowed maximum")
	ErrDoubleBye         = errors.New("bracket build produced a pair with two empty slots")
)

// Entrant is a bracket participant. Rating is the enrollment snapshot
// (0 for unrated players).
type Entrant struct {
	MemberID int
	Rating   int
}

// BracketSize returns the smallest power of two >= n.
func BracketSize(n int) int {
	size := 1
	for size < n {
		size <<= 1
	}
	return size
}

// NumRounds returns log2 of a power-of-two bracket size.
func NumRounds(size int) int {
	rounds := 0
	for size > 1 {
		size >>= 1
		rounds++
	}
	return rounds
}

// ClosestPowerOfTwo returns the power of two nearest to n, preferring the
// lower value on ties.
func ClosestPowerOfTwo(n int) int {
	if n <= 1 {
		return 1
	}
	lower := 1
	for lower*2 <= n {
		lower *= 2
	}
	upper := lower * 2
	if n-lower <= upper-n {
		return lower
	}
	return upper
}

// MaxSeedCount returns the largest usable protected-seed count for n
// entrants: the largest power of two not above n/4, floored at 2 whenever
// at least 4 entrants leave room to separate the top two.
func MaxSeedCount(n int) int {
	if n < 4 {
		return 0
	}
	max := 1
	for max*2 <= n/4 {
		max *= 2
	}
	if max < 2 {
		max = 2
	}
	return max
}

// ValidateSeedCount checks a requested protected-seed count for n entrants.
func ValidateSeedCount(n, s int) error {
	if s == 0 {
		return nil
	}
	if s < 2 || s&(s-1) != 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidSeedCount, s)
	}
	if max := MaxSeedCount(n); s > max {
		return fmt.Errorf("%w: %d exceeds maximum %d for %d entrants", ErrInvalidSeedCount, s, max, n)
	}
	return nil
}

// SeedingPattern computes the standard seeding order for a power-of-two
// bracket and returns pattern[seedIndex] = slot index (0-based). The
// construction starts from [1,2] and doubles: every element expands to
// [seed, M+1-seed] except the last, which expands reversed so that seed 2
// stays anchored at the last slot of every level.
func SeedingPattern(size int) []int {
	seq := []int{1, 2}
	for m := 4; m <= size; m *= 2 {
		next := make([]int, 0, m)
		for i, seed := range seq {
			if i == len(seq)-1 {
				next = append(next, m+1-seed, seed)
			} else {
				next = append(next, seed, m+1-seed)
			}
		}
		seq = next
	}
	pattern := make([]int, size)
	for slot, seed := range seq {
		pattern[seed-1] = slot
	}
	return pattern
}

// BuildFirstRound lays out the first round of a single-elimination bracket:
// a slice of bracket-size length holding member IDs, with 0 for BYE slots.
// Protected seeds are pinned to the standard pattern; the top bracketSize-n
// entrants overall receive the BYEs; everyone else is placed randomly. The
// result always satisfies: every pair holds at least one player, and BYEs
// sit in the second slot of their pair.
func BuildFirstRound(entrants []Entrant, seedCount *int, rng *rand.Rand) ([]int, error) {
	n := len(entrants)
	if n < 2 {
		return nil, ErrNotEnoughEntrants
	}
	size := BracketSize(n)
	byes := size - n

	s := MaxSeedCount(n)
	if seedCount != nil {
		if err := ValidateSeedCount(n, *seedCount); err != nil {
			return nil, err
		}
		s = *seedCount
	}

	// Rating descending, ties broken by ID ascending.
	sorted := make([]Entrant, n)
	copy(sorted, entrants)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Rating != sorted[j].Rating {
			return sorted[i].Rating > sorted[j].Rating
		}
		return sorted[i].MemberID < sorted[j].MemberID
	})

	rating := make(map[int]int, n)
	for _, e := range sorted {
		rating[e.MemberID] = e.Rating
	}

	slots := make([]int, size)
	pattern := SeedingPattern(size)
	for i := 0; i < s; i++ {
		slots[pattern[i]] = sorted[i].MemberID
	}

	// One entrant per pair among the unseeded, random slot within the pair.
	unseeded := make([]Entrant, len(sorted)-s)
	copy(unseeded, sorted[s:])
	rng.Shuffle(len(unseeded), func(i, j int) { unseeded[i], unseeded[j] = unseeded[j], unseeded[i] })

	next := 0
	for p := 0; p < size; p += 2 {
		if slots[p] == 0 && slots[p+1] == 0 {
			if next >= len(unseeded) {
				return nil, fmt.Errorf("ran out of entrants while filling pair %d", p/2)
			}
			slots[p+rng.Intn(2)] = unseeded[next].MemberID
			next++
		}
	}
	for p := 0; p < size; p += 2 {
		if occupants(slots, p) != 1 {
			return nil, fmt.Errorf("pair %d holds %d players after initial fill", p/2, occupants(slots, p))
		}
	}
	unplaced := entrantIDs(unseeded[next:])

	// The top `byes` entrants overall keep their pair to themselves.
	byeTargets := make(map[int]bool, byes)
	for i := 0; i < byes; i++ {
		byeTargets[sorted[i].MemberID] = true
	}
	if err := reserveByes(slots, &unplaced, byeTargets, rating); err != nil {
		return nil, err
	}

	// Fill the remaining open slots, skipping pairs whose occupant needs a BYE.
	rng.Shuffle(len(unplaced), func(i, j int) { unplaced[i], unplaced[j] = unplaced[j], unplaced[i] })
	for p := 0; p < size && len(unplaced) > 0; p += 2 {
		occupied, empty := pairSlots(slots, p)
		if occupied == -1 || empty == -1 {
			continue
		}
		if byeTargets[slots[occupied]] {
			continue
		}
		slots[empty] = unplaced[len(unplaced)-1]
		unplaced = unplaced[:len(unplaced)-1]
	}

	// BYE always in the second slot of its pair.
	for p := 0; p < size; p += 2 {
		if slots[p] == 0 && slots[p+1] != 0 {
			slots[p], slots[p+1] = slots[p+1], slots[p]
		}
	}

	if err := fixDoubleByes(slots, &unplaced, rating); err != nil {
		return nil, err
	}
	seen := make(map[int]bool, n)
	for _, id := range slots {
		if id == 0 {
			continue
		}
		if seen[id] {
			return nil, fmt.Errorf("member %d placed twice in the bracket", id)
		}
		seen[id] = true
	}
	return slots, nil
}

// reserveByes makes sure every BYE-target player sits alone in a pair. A
// target paired with someone has the other player relocated; a target still
// unplaced swaps in for the lowest-rated placed non-target.
func reserveByes(slots []int, unplaced *[]int, byeTargets map[int]bool, rating map[int]int) error {
	position := func(memberID int) int {
		for i, id := range slots {
			if id == memberID {
				return i
			}
		}
		return -1
	}

	for target := range byeTargets {
		pos := position(target)
		if pos >= 0 {
			other := pos ^ 1
			if slots[other] != 0 {
				displaced := slots[other]
				slots[other] = 0
				if !relocate(slots, displaced, byeTargets) {
					*unplaced = append(*unplaced, displaced)
				}
			}
			continue
		}
		// Swap with the lowest-rated placed non-target.
		victim := -1
		for i, id := range slots {
			if id == 0 || byeTargets[id] {
				continue
			}
			if victim == -1 || rating[id] < rating[slots[victim]] {
				victim = i
			}
		}
		if victim == -1 {
			return fmt.Errorf("no slot available for bye-protected player %d", target)
		}
		*unplaced = append(*unplaced, slots[victim])
		slots[victim] = target
		removeID(unplaced, target)
		if other := victim ^ 1; slots[other] != 0 {
			displaced := slots[other]
			slots[other] = 0
			if !relocate(slots, displaced, byeTargets) {
				*unplaced = append(*unplaced, displaced)
			}
		}
	}
	return nil
}

// removeID drops the first occurrence of memberID from the list.
func removeID(ids *[]int, memberID int) {
	for i, id := range *ids {
		if id == memberID {
			*ids = append((*ids)[:i], (*ids)[i+1:]...)
			return
		}
	}
}

// relocate moves a displaced player into the empty slot of a pair whose
// occupant is not BYE-protected.
func relocate(slots []int, memberID int, byeTargets map[int]bool) bool {
	for p := 0; p < len(slots); p += 2 {
		occupied, empty := pairSlots(slots, p)
		if occupied == -1 || empty == -1 {
			continue
		}
		if byeTargets[slots[occupied]] {
			continue
		}
		slots[empty] = memberID
		return true
	}
	return false
}

// fixDoubleByes runs the emergency loop: up to five validation passes over
// the pairs, moving unplaced players (or borrowing from a full pair) into
// any pair that ended up with two empty slots.
func fixDoubleByes(slots []int, unplaced *[]int, rating map[int]int) error {
	for pass := 0; pass < 5; pass++ {
		clean := true
		for p := 0; p < len(slots); p += 2 {
			if slots[p] != 0 || slots[p+1] != 0 {
				continue
			}
			clean = false
			if len(*unplaced) > 0 {
				slots[p] = (*unplaced)[len(*unplaced)-1]
				*unplaced = (*unplaced)[:len(*unplaced)-1]
				continue
			}
			if !borrowOccupant(slots, p, rating) {
				return ErrDoubleBye
			}
		}
		if clean {
			return nil
		}
	}
	// Final check after the fifth pass.
	for p := 0; p < len(slots); p += 2 {
		if slots[p] == 0 && slots[p+1] == 0 {
			return ErrDoubleBye
		}
	}
	return nil
}

// borrowOccupant moves the lower-rated player of some fully-occupied pair
// into the first slot of the empty pair at p.
func borrowOccupant(slots []int, p int, rating map[int]int) bool {
	for q := 0; q < len(slots); q += 2 {
		if slots[q] == 0 || slots[q+1] == 0 {
			continue
		}
		donor := q
		if rating[slots[q+1]] < rating[slots[q]] {
			donor = q + 1
		}
		slots[p] = slots[donor]
		slots[donor] = 0
		// Keep the donor pair's BYE in slot 2.
		if slots[q] == 0 && slots[q+1] != 0 {
			slots[q], slots[q+1] = slots[q+1], slots[q]
		}
		return true
	}
	return false
}

func occupants(slots []int, p int) int {
	count := 0
	if slots[p] != 0 {
		count++
	}
	if slots[p+1] != 0 {
		count++
	}
	return count
}

// pairSlots returns the indexes of the occupied and empty slot of the pair
// starting at p, or -1 when the pair is not exactly half full.
func pairSlots(slots []int, p int) (occupied, empty int) {
	switch {
	case slots[p] != 0 && slots[p+1] == 0:
		return p, p + 1
	case slots[p] == 0 && slots[p+1] != 0:
		return p + 1, p
	default:
		return -1, -1
	}
}

func entrantIDs(entrants []Entrant) []int {
	ids := make([]int, len(entrants))
	for i, e := range entrants {
		ids[i] = e.MemberID
	}
	return ids
}
