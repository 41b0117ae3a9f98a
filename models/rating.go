package models

import "time"

// RatingReason matches the reason ENUM on rating_history rows.
type RatingReason string

const (
	ReasonMatchCompleted        RatingReason = "MATCH_COMPLETED"
	ReasonPlayoffMatchCompleted RatingReason = "PLAYOFF_MATCH_COMPLETED"
	ReasonTournamentCompleted   RatingReason = "TOURNAMENT_COMPLETED"
	ReasonManualAdjustment      RatingReason = "MANUAL_ADJUSTMENT"
	ReasonMemberDeactivated     RatingReason = "MEMBER_DEACTIVATED"
)

// RatingHistory is an append-only log entry. Rating - RatingChange
// reconstructs the pre-change value. When reconstructing a per-match
// progression, entries are ordered by the linked match's CreatedAt, not by
// Timestamp.
type RatingHistory struct {
	ID           int          `json:"id"`
	MemberID     int          `json:"member_id"`
	Rating       int          `json:"rating"`
	RatingChange int          `json:"rating_change"`
	Timestamp    time.Time    `json:"timestamp"`
	Reason       RatingReason `json:"reason"`
	TournamentID *int         `json:"tournament_id,omitempty"`
	MatchID      *int         `json:"match_id,omitempty"`
}

// PointExchangeRule is one row of the versioned point-exchange table. The
// rule set in effect at a given time is the one with the latest
// EffectiveFrom not after that time; its ranges partition [0, inf)
// disjointly and UpsetPoints >= ExpectedPoints on every row.
type PointExchangeRule struct {
	ID             int       `json:"id"`
	MinDiff        int       `json:"min_diff"`
	MaxDiff        int       `json:"max_diff"`
	ExpectedPoints int       `json:"expected_points"`
	UpsetPoints    int       `json:"upset_points"`
	EffectiveFrom  time.Time `json:"effective_from"`
}
