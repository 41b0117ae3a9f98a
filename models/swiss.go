package models

// SwissData is the per-tournament state of a Swiss event.
// 1 <= CurrentRound <= Rounds, and Complete implies CurrentRound == Rounds.
type SwissData struct {
	TournamentID int  `json:"tournament_id"`
	Rounds       int  `json:"rounds"`
	CurrentRound int  `json:"current_round"`
	Complete     bool `json:"complete"`
}
