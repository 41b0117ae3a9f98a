package ratings

// Exchange computes the per-match point transfer between two rated players:
// the winner gains the returned amount, the loser loses it. Never applied to
// BYEs or forfeits.
func Exchange(table *Table, winnerRating, loserRating int) int {
	gap := winnerRating - loserRating
	if gap < 0 {
		gap = -gap
	}
	return table.Lookup(gap, winnerRating < loserRating)
}
