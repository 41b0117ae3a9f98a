package models

import (
	"errors"
	"time"
)

var (
	ErrTiedMatch     = errors.New("match is tied: set scores are equal and no forfeit is set")
	ErrDoubleForfeit = errors.New("both forfeit flags are set")
)

// Match is a played match. A nil TournamentID marks a standalone match.
// A BYE never produces a Match row. Ties are forbidden unless exactly one
// forfeit flag is set, in which case the forfeiter's sets are 0 and the
// opponent's are 1.
type Match struct {
	ID             int       `json:"id"`
	TournamentID   *int      `json:"tournament_id,omitempty"`
	Member1ID      int       `json:"member1_id"`
	Member2ID      *int      `json:"member2_id,omitempty"`
	P1Sets         int       `json:"player1_sets"`
	P2Sets         int       `json:"player2_sets"`
	P1Forfeit      bool      `json:"player1_forfeit"`
	P2Forfeit      bool      `json:"player2_forfeit"`
	BracketMatchID *int      `json:"bracket_match_id,omitempty"`
	Round          *int      `json:"round,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Played reports whether a result has been recorded: either the set scores
// differ or a forfeit decided the match.
func (m *Match) Played() bool {
	return m.P1Sets != m.P2Sets || m.P1Forfeit != m.P2Forfeit
}

// Winner returns the winning and losing member IDs. A forfeiter always
// loses; without forfeits the higher set count wins and ties are an error.
func (m *Match) Winner() (winner, loser int, err error) {
	if m.Member2ID == nil {
		return 0, 0, errors.New("match has no second member")
	}
	m2 := *m.Member2ID
	switch {
	case m.P1Forfeit && m.P2Forfeit:
		return 0, 0, ErrDoubleForfeit
	case m.P1Forfeit:
		return m2, m.Member1ID, nil
	case m.P2Forfeit:
		return m.Member1ID, m2, nil
	case m.P1Sets == m.P2Sets:
		return 0, 0, ErrTiedMatch
	case m.P1Sets > m.P2Sets:
		return m.Member1ID, m2, nil
	default:
		return m2, m.Member1ID, nil
	}
}

// BracketMatch is a structural slot in a single-elimination bracket,
// distinct from the played Match. Round 1 is the final; higher rounds play
// first. Position is 1-indexed within a round. A member slot value of 0
// encodes a BYE. Odd positions feed the Member1 slot of the next match,
// even positions feed Member2.
type BracketMatch struct {
	ID           int  `json:"id"`
	TournamentID int  `json:"tournament_id"`
	Round        int  `json:"round"`
	Position     int  `json:"position"`
	Member1ID    int  `json:"member1_id"`
	Member2ID    int  `json:"member2_id"`
	MatchID      *int `json:"match_id,omitempty"`
	NextMatchID  *int `json:"next_match_id,omitempty"`
}

// HasBye reports whether exactly one slot is empty.
func (b *BracketMatch) HasBye() bool {
	return (b.Member1ID == 0) != (b.Member2ID == 0)
}

// ByeAdvancer returns the member who auto-advances, or 0 when the pair has
// no BYE.
func (b *BracketMatch) ByeAdvancer() int {
	if !b.HasBye() {
		return 0
	}
	if b.Member1ID != 0 {
		return b.Member1ID
	}
	return b.Member2ID
}
