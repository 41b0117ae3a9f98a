package services

import (
	"testing"

	"github.com/tt-club/tournament-system/models"
)

func participantsFor(memberIDs ...int) []*models.Participant {
	out := make([]*models.Participant, 0, len(memberIDs))
	for _, id := range memberIDs {
		out = append(out, &models.Participant{MemberID: id})
	}
	return out
}

func playedMatch(m1, m2, s1, s2 int) *models.Match {
	return &models.Match{Member1ID: m1, Member2ID: &m2, P1Sets: s1, P2Sets: s2}
}

func TestComputeStandingsOrdering(t *testing.T) {
	// 10 beats everyone, 20 beats 30, 30 beats nobody.
	matches := []*models.Match{
		playedMatch(10, 20, 3, 1),
		playedMatch(10, 30, 3, 0),
		playedMatch(20, 30, 3, 2),
	}
	standings := ComputeStandings(1, participantsFor(10, 20, 30), matches)
	if len(standings) != 3 {
		t.Fatalf("expected 3 standings, got %d", len(standings))
	}
	wantOrder := []int{10, 20, 30}
	for i, want := range wantOrder {
		if standings[i].MemberID != want {
			t.Errorf("rank %d: member = %d, want %d", i+1, standings[i].MemberID, want)
		}
		if standings[i].Rank != i+1 {
			t.Errorf("standings[%d].Rank = %d, want %d", i, standings[i].Rank, i+1)
		}
	}
	if standings[0].Wins != 2 || standings[0].Losses != 0 {
		t.Errorf("leader record = %d-%d, want 2-0", standings[0].Wins, standings[0].Losses)
	}
	if standings[0].SetsWon != 6 || standings[0].SetsLost != 1 {
		t.Errorf("leader sets = %d:%d, want 6:1", standings[0].SetsWon, standings[0].SetsLost)
	}
}

func TestComputeStandingsSetDiffTiebreak(t *testing.T) {
	// Everyone 1-1; set difference decides.
	matches := []*models.Match{
		playedMatch(1, 2, 3, 0),
		playedMatch(2, 3, 3, 2),
		playedMatch(3, 1, 3, 2),
	}
	standings := ComputeStandings(1, participantsFor(1, 2, 3), matches)
	// Diffs: member 1 = +2, member 3 = 0, member 2 = -2.
	wantOrder := []int{1, 3, 2}
	for i, want := range wantOrder {
		if standings[i].MemberID != want {
			t.Errorf("rank %d: member = %d, want %d", i+1, standings[i].MemberID, want)
		}
	}
}

func TestComputeStandingsForfeit(t *testing.T) {
	m2 := 2
	matches := []*models.Match{
		{Member1ID: 1, Member2ID: &m2, P1Sets: 0, P2Sets: 1, P1Forfeit: true},
	}
	standings := ComputeStandings(1, participantsFor(1, 2), matches)
	if standings[0].MemberID != 2 || standings[0].Wins != 1 {
		t.Errorf("forfeit winner: got member %d with %d wins", standings[0].MemberID, standings[0].Wins)
	}
	if standings[1].MemberID != 1 || standings[1].Losses != 1 {
		t.Errorf("forfeiter: got member %d with %d losses", standings[1].MemberID, standings[1].Losses)
	}
}

func TestComputeStandingsUnplayedIgnored(t *testing.T) {
	m2 := 2
	matches := []*models.Match{
		{Member1ID: 1, Member2ID: &m2}, // 0-0 placeholder
	}
	standings := ComputeStandings(1, participantsFor(1, 2), matches)
	for _, s := range standings {
		if s.Wins != 0 || s.Losses != 0 {
			t.Errorf("member %d has record %d-%d from an unplayed match", s.MemberID, s.Wins, s.Losses)
		}
	}
	// Tied records fall back to member ID order.
	if standings[0].MemberID != 1 || standings[1].MemberID != 2 {
		t.Errorf("tie order = %d, %d, want 1, 2", standings[0].MemberID, standings[1].MemberID)
	}
}
