package ratings

import (
	"math"

	"github.com/tt-club/tournament-system/models"
)

// Table is one effective set of point-exchange rules, a short list sorted by
// MinDiff whose ranges partition [0, inf).
type Table struct {
	rules []models.PointExchangeRule
}

func NewTable(rules []models.PointExchangeRule) *Table {
	return &Table{rules: rules}
}

// Lookup returns the points transferred for a rating gap. The search is
// linear: the active set is at most a couple dozen rows.
func (t *Table) Lookup(gap int, isUpset bool) int {
	if gap < 0 {
		gap = -gap
	}
	for _, r := range t.rules {
		if gap >= r.MinDiff && gap <= r.MaxDiff {
			if isUpset {
				return r.UpsetPoints
			}
			return r.ExpectedPoints
		}
	}
	return 0
}

// IsUpset reports whether a result is an upset from the player's
// perspective: they beat a higher-rated opponent, or lost to a lower-rated
// one.
func IsUpset(won bool, ownRating, opponentRating int) bool {
	if won {
		return opponentRating > ownRating
	}
	return opponentRating < ownRating
}

// Fallback is the built-in rule set used when no rows are configured:
// 25-point ranges with decreasing expected points and upset points rising
// to 100.
func Fallback() *Table {
	expected := []int{8, 7, 6, 5, 4, 3, 2, 2, 1, 1, 0}
	rules := make([]models.PointExchangeRule, 0, 22)
	upset := 0
	for i := 0; ; i++ {
		switch {
		case i == 0:
			upset = 8
		case i == 1:
			upset = 10
		case i == 2:
			upset = 13
		case i == 3:
			upset = 16
		case i == 4:
			upset = 20
		default:
			upset = 25 + (i-5)*5
		}
		if upset >= 100 {
			upset = 100
		}
		exp := 0
		if i < len(expected) {
			exp = expected[i]
		}
		rule := models.PointExchangeRule{
			MinDiff:        i * 25,
			MaxDiff:        i*25 + 24,
			ExpectedPoints: exp,
			UpsetPoints:    upset,
		}
		if upset == 100 {
			rule.MaxDiff = math.MaxInt32
			rules = append(rules, rule)
			break
		}
		rules = append(rules, rule)
	}
	return &Table{rules: rules}
}
