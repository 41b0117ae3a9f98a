package services

import (
	"errors"
	"testing"

	"github.com/tt-club/tournament-system/models"
)

func TestValidateScore(t *testing.T) {
	tests := []struct {
		name    string
		args    UpdateMatchArgs
		wantErr error
	}{
		{"decided", UpdateMatchArgs{P1Sets: 3, P2Sets: 1}, nil},
		{"forfeit breaks tie", UpdateMatchArgs{P1Sets: 0, P2Sets: 1, P1Forfeit: true}, nil},
		{"tie without forfeit", UpdateMatchArgs{P1Sets: 2, P2Sets: 2}, ErrTiedMatch},
		{"zero zero", UpdateMatchArgs{}, ErrTiedMatch},
		{"double forfeit", UpdateMatchArgs{P1Forfeit: true, P2Forfeit: true}, ErrValidationFailed},
		{"negative sets", UpdateMatchArgs{P1Sets: -1, P2Sets: 2}, ErrValidationFailed},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := validateScore(&tc.args)
			if tc.wantErr == nil {
				if err != nil {
					t.Fatalf("validateScore: unexpected error %v", err)
				}
				return
			}
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("validateScore error = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestValidateScoreNormalizesForfeits(t *testing.T) {
	tests := []struct {
		name           string
		args           UpdateMatchArgs
		wantP1, wantP2 int
	}{
		{"forfeiter with inflated sets", UpdateMatchArgs{P1Sets: 3, P2Sets: 2, P1Forfeit: true}, 0, 1},
		{"opponent forfeit", UpdateMatchArgs{P1Sets: 0, P2Sets: 3, P2Forfeit: true}, 1, 0},
		{"forfeit at zero zero", UpdateMatchArgs{P2Forfeit: true}, 1, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if err := validateScore(&tc.args); err != nil {
				t.Fatalf("validateScore: %v", err)
			}
			if tc.args.P1Sets != tc.wantP1 || tc.args.P2Sets != tc.wantP2 {
				t.Errorf("normalized to %d:%d, want %d:%d", tc.args.P1Sets, tc.args.P2Sets, tc.wantP1, tc.wantP2)
			}
		})
	}
}

func TestWinnerForfeitRules(t *testing.T) {
	m2 := 2
	tests := []struct {
		name       string
		match      models.Match
		wantWinner int
		wantErr    bool
	}{
		{"higher sets win", models.Match{Member1ID: 1, Member2ID: &m2, P1Sets: 3, P2Sets: 1}, 1, false},
		{"member2 wins", models.Match{Member1ID: 1, Member2ID: &m2, P1Sets: 1, P2Sets: 3}, 2, false},
		{"forfeiter loses", models.Match{Member1ID: 1, Member2ID: &m2, P1Sets: 3, P2Sets: 0, P1Forfeit: true}, 2, false},
		{"opponent forfeits", models.Match{Member1ID: 1, Member2ID: &m2, P2Forfeit: true}, 1, false},
		{"tie is an error", models.Match{Member1ID: 1, Member2ID: &m2, P1Sets: 2, P2Sets: 2}, 0, true},
		{"double forfeit is an error", models.Match{Member1ID: 1, Member2ID: &m2, P1Forfeit: true, P2Forfeit: true}, 0, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			winner, _, err := tc.match.Winner()
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Winner: %v", err)
			}
			if winner != tc.wantWinner {
				t.Errorf("winner = %d, want %d", winner, tc.wantWinner)
			}
		})
	}
}

func TestPlayedPairs(t *testing.T) {
	m2, m3 := 2, 3
	matches := []*models.Match{
		{Member1ID: 1, Member2ID: &m2, P1Sets: 3, P2Sets: 0},
		{Member1ID: 1, Member2ID: &m3}, // unplayed
		{Member1ID: 4},                 // no opponent
	}
	pairs := playedPairs(matches)
	if len(pairs) != 1 {
		t.Fatalf("expected 1 played pair, got %d", len(pairs))
	}
	if _, ok := pairs[pairKey(2, 1)]; !ok {
		t.Error("pair key should be order-independent")
	}
}
