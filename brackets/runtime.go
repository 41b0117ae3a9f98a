package brackets

import (
	"github.com/tt-club/tournament-system/models"
)

// Round numbering: round 1 is the final, so the first playable round is
// NumRounds(size) and rounds count down as the bracket narrows. A match at
// (round, position) feeds (round-1, ceil(position/2)); odd positions feed
// the first slot of the next match, even positions the second.

// NextPosition returns the coordinates of the successor match and which
// slot the winner occupies there (1 or 2). For the final it returns zeros.
func NextPosition(round, position int) (nextRound, nextPos, slot int) {
	if round <= 1 {
		return 0, 0, 0
	}
	slot = 2
	if position%2 == 1 {
		slot = 1
	}
	return round - 1, (position + 1) / 2, slot
}

// MatchesInRound returns how many bracket matches a round holds: the final
// (round 1) has one, and each earlier round doubles.
func MatchesInRound(round int) int {
	return 1 << (round - 1)
}

// Layout creates the full set of bracket-match rows for a first-round
// slot array: size-1 rows across all rounds, with only the first round
// populated. Row linking and BYE promotion happen after insertion, once
// database IDs exist.
func Layout(tournamentID int, firstRound []int) []*models.BracketMatch {
	size := len(firstRound)
	rounds := NumRounds(size)

	bracketMatches := make([]*models.BracketMatch, 0, size-1)
	for round := rounds; round >= 1; round-- {
		for position := 1; position <= MatchesInRound(round); position++ {
			bm := &models.BracketMatch{
				TournamentID: tournamentID,
				Round:        round,
				Position:     position,
			}
			if round == rounds {
				bm.Member1ID = firstRound[(position-1)*2]
				bm.Member2ID = firstRound[(position-1)*2+1]
			}
			bracketMatches = append(bracketMatches, bm)
		}
	}
	return bracketMatches
}

// Find returns the bracket match at (round, position), or nil.
func Find(bracketMatches []*models.BracketMatch, round, position int) *models.BracketMatch {
	for _, bm := range bracketMatches {
		if bm.Round == round && bm.Position == position {
			return bm
		}
	}
	return nil
}

// IsFinal reports whether a bracket match is the championship match.
func IsFinal(bm *models.BracketMatch) bool {
	return bm.Round == 1 && bm.Position == 1
}
