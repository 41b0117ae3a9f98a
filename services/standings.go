package services

import (
	"sort"

	"github.com/tt-club/tournament-system/models"
)

// ComputeStandings tallies played matches into per-participant standings,
// ranked by wins, then set difference, then sets won, then member ID.
// Participants without a single played match still appear, at the bottom.
func ComputeStandings(tournamentID int, participants []*models.Participant, matches []*models.Match) []models.Standing {
	byMember := make(map[int]*models.Standing, len(participants))
	order := make([]int, 0, len(participants))
	for _, p := range participants {
		byMember[p.MemberID] = &models.Standing{TournamentID: tournamentID, MemberID: p.MemberID}
		order = append(order, p.MemberID)
	}

	for _, m := range matches {
		if !m.Played() || m.Member2ID == nil {
			continue
		}
		winnerID, loserID, err := m.Winner()
		if err != nil {
			continue
		}
		winner, okW := byMember[winnerID]
		loser, okL := byMember[loserID]
		if !okW || !okL {
			continue
		}
		winner.Wins++
		loser.Losses++
		winner.SetsWon += maxInt(m.P1Sets, m.P2Sets)
		winner.SetsLost += minInt(m.P1Sets, m.P2Sets)
		loser.SetsWon += minInt(m.P1Sets, m.P2Sets)
		loser.SetsLost += maxInt(m.P1Sets, m.P2Sets)
	}

	standings := make([]models.Standing, 0, len(order))
	for _, memberID := range order {
		standings = append(standings, *byMember[memberID])
	}
	sort.SliceStable(standings, func(i, j int) bool {
		a, b := standings[i], standings[j]
		if a.Wins != b.Wins {
			return a.Wins > b.Wins
		}
		if d1, d2 := a.SetsWon-a.SetsLost, b.SetsWon-b.SetsLost; d1 != d2 {
			return d1 > d2
		}
		if a.SetsWon != b.SetsWon {
			return a.SetsWon > b.SetsWon
		}
		return a.MemberID < b.MemberID
	})
	for i := range standings {
		standings[i].Rank = i + 1
	}
	return standings
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
