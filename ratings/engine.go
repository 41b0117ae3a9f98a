package ratings

import (
	"math"
	"sort"
)

// DefaultUnratedSeed is assigned to an unrated player with no rated
// opponents in the tournament.
const DefaultUnratedSeed = 1200

// PlayerInput is one participant's snapshot at enrollment. A nil Rating
// marks an unrated player.
type PlayerInput struct {
	MemberID int
	Rating   *int
}

// MatchInput is one recorded match. Forfeits, BYEs (Member2ID == 0) and
// unplayed matches (equal set scores without forfeit) are excluded from the
// computation.
type MatchInput struct {
	MatchID   int
	Member1ID int
	Member2ID int
	P1Sets    int
	P2Sets    int
	P1Forfeit bool
	P2Forfeit bool
}

func (m *MatchInput) counted() bool {
	if m.Member2ID == 0 || m.P1Forfeit || m.P2Forfeit {
		return false
	}
	return m.P1Sets != m.P2Sets
}

type result struct {
	opponentID int
	won        bool
}

// Compute runs the full four-pass adjustment over one tournament and
// returns the final rating per member. Inputs are the ratingAtTime
// snapshots, never current ratings. Participants with no counted matches
// keep their snapshot (unrated ones are omitted from the result).
func Compute(players []PlayerInput, matches []MatchInput, table *Table) map[int]int {
	initial := make(map[int]*int, len(players))
	for _, p := range players {
		initial[p.MemberID] = p.Rating
	}

	// Per-player results, against participants only.
	resultsByMember := make(map[int][]result, len(players))
	for i := range matches {
		m := &matches[i]
		if !m.counted() {
			continue
		}
		if _, ok := initial[m.Member1ID]; !ok {
			continue
		}
		if _, ok := initial[m.Member2ID]; !ok {
			continue
		}
		p1Won := m.P1Sets > m.P2Sets
		resultsByMember[m.Member1ID] = append(resultsByMember[m.Member1ID], result{opponentID: m.Member2ID, won: p1Won})
		resultsByMember[m.Member2ID] = append(resultsByMember[m.Member2ID], result{opponentID: m.Member1ID, won: !p1Won})
	}

	pass1 := make(map[int]int)
	for _, p := range players {
		if p.Rating == nil {
			continue
		}
		r0 := *p.Rating
		total := r0
		for _, res := range resultsByMember[p.MemberID] {
			opp := initial[res.opponentID]
			if opp == nil {
				continue
			}
			points := table.Lookup(r0-*opp, IsUpset(res.won, r0, *opp))
			if res.won {
				total += points
			} else {
				total -= points
			}
		}
		pass1[p.MemberID] = total
	}

	pass2 := make(map[int]int)
	for _, p := range players {
		if p.Rating == nil {
			continue
		}
		pass2[p.MemberID] = adjustRated(p, pass1[p.MemberID], resultsByMember[p.MemberID], initial)
	}
	for _, p := range players {
		if p.Rating != nil {
			continue
		}
		if adj, ok := seedUnrated(resultsByMember[p.MemberID], initial, pass2); ok {
			pass2[p.MemberID] = adj
		}
	}

	// Pass 3: a rated player's adjusted rating never drops below the
	// snapshot. Unrated pass through.
	pass3 := make(map[int]int, len(pass2))
	for memberID, adj := range pass2 {
		if r0 := initial[memberID]; r0 != nil && adj < *r0 {
			adj = *r0
		}
		pass3[memberID] = adj
	}

	// Pass 4: replay the exchange against pass-3-adjusted ratings.
	final := make(map[int]int)
	for _, p := range players {
		results := resultsByMember[p.MemberID]
		if len(results) == 0 {
			if p.Rating != nil {
				final[p.MemberID] = *p.Rating
			}
			continue
		}
		self, ok := pass3[p.MemberID]
		if !ok {
			continue
		}
		total := self
		for _, res := range results {
			opp, okOpp := pass3[res.opponentID]
			if !okOpp {
				continue
			}
			points := table.Lookup(self-opp, IsUpset(res.won, self, opp))
			if res.won {
				total += points
			} else {
				total -= points
			}
		}
		if total < 0 {
			total = 0
		}
		final[p.MemberID] = total
	}
	return final
}

// adjustRated is the Pass-2 branch table for a rated player.
func adjustRated(p PlayerInput, pass1 int, results []result, initial map[int]*int) int {
	r0 := *p.Rating
	gained := pass1 - r0

	switch {
	case gained < 50:
		return r0
	case gained < 75:
		return pass1
	}

	var (
		opponents []int
		bestWin   int
		worstLoss int
		hasWin    bool
		hasLoss   bool
	)
	for _, res := range results {
		opp := initial[res.opponentID]
		if opp == nil {
			continue
		}
		opponents = append(opponents, *opp)
		if res.won {
			if !hasWin || *opp > bestWin {
				bestWin = *opp
			}
			hasWin = true
		} else {
			if !hasLoss || *opp < worstLoss {
				worstLoss = *opp
			}
			hasLoss = true
		}
	}

	switch {
	case hasWin && hasLoss:
		return int(math.Round((float64(pass1) + float64(bestWin+worstLoss)/2) / 2))
	case len(results) == 1:
		// Single-match tournaments use the incremental path; this guard is
		// retained for replays over historical data.
		adj := pass1
		if adj > r0+100 {
			adj = r0 + 100
		}
		if adj < r0-100 {
			adj = r0 - 100
		}
		if hasLoss && adj > r0 {
			adj = r0
		}
		return adj
	default:
		return median(opponents)
	}
}

// seedUnrated derives a Pass-2 rating for an unrated player from rated
// opponents' Pass-2 adjustments. The second return is false only when the
// player has no counted matches at all.
func seedUnrated(results []result, initial map[int]*int, pass2 map[int]int) (int, bool) {
	if len(results) == 0 {
		return 0, false
	}

	var (
		wins   []int
		losses []int
	)
	for _, res := range results {
		if initial[res.opponentID] == nil {
			continue
		}
		adj, ok := pass2[res.opponentID]
		if !ok {
			continue
		}
		if res.won {
			wins = append(wins, adj)
		} else {
			losses = append(losses, adj)
		}
	}

	switch {
	case len(wins) == 0 && len(losses) == 0:
		return DefaultUnratedSeed, true
	case len(wins) > 0 && len(losses) > 0:
		bestWin := maxOf(wins)
		worstLoss := minOf(losses)
		return int(math.Round(float64(bestWin+worstLoss) / 2)), true
	case len(wins) > 0:
		bestWin := maxOf(wins)
		return bestWin + intermediate(bestWin-minOf(wins)), true
	default:
		worstLoss := minOf(losses)
		return worstLoss - intermediate(maxOf(losses)-worstLoss), true
	}
}

// intermediate is the seeding bonus for unrated players with one-sided
// results, decreasing as the opponent spread widens.
func intermediate(diff int) int {
	switch {
	case diff >= 1 && diff <= 50:
		return 10
	case diff >= 51 && diff <= 100:
		return 5
	case diff >= 101 && diff <= 150:
		return 1
	default:
		return 0
	}
}

func median(values []int) int {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]int, len(values))
	copy(sorted, values)
	sort.Ints(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return int(math.Round(float64(sorted[mid-1]+sorted[mid]) / 2))
}

func maxOf(values []int) int {
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

func minOf(values []int) int {
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}
