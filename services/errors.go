package services

import "errors"

// Sentinel errors shared across services and the HTTP status mapping.
var (
	// Validation and business rules.
	ErrValidationFailed      = errors.New("validation failed")
	ErrUnknownTournamentKind = errors.New("unknown tournament kind")
	ErrNotEnoughParticipants = errors.New("not enough participants")
	ErrDuplicateParticipant  = errors.New("member listed more than once")
	ErrMemberNotInTournament = errors.New("member is not a participant of this tournament")
	ErrSameMember            = errors.New("a match needs two distinct members")
	ErrTiedMatch             = errors.New("tied set scores require exactly one forfeit")
	ErrByeMatchUpdate        = errors.New("cannot record a result for a BYE position")
	ErrSlotNotReady          = errors.New("bracket position is still waiting for a player")
	ErrPairAlreadyPlayed     = errors.New("this pair already has a recorded match")
	ErrNameRequired          = errors.New("tournament name is required")
	ErrOddSwissField         = errors.New("swiss tournaments need an even number of participants")
	ErrEmailInUse            = errors.New("email already belongs to another member")
	ErrUnknownPluginResource = errors.New("unknown plugin resource")

	// Not found. Repositories carry their own variants; the service layer
	// re-exposes them under a uniform vocabulary for the HTTP mapping.
	ErrTournamentNotFound      = errors.New("tournament not found")
	ErrMatchNotFound           = errors.New("match not found")
	ErrBracketMatchNotFound    = errors.New("bracket match not found")
	ErrMemberNotFound          = errors.New("member not found")
	ErrMatchTournamentMismatch = errors.New("match does not belong to this tournament")

	// State.
	ErrTournamentCompleted    = errors.New("tournament is already completed")
	ErrTournamentNotCompleted = errors.New("tournament is not completed yet")
	ErrTournamentCancelled    = errors.New("tournament is cancelled")
	ErrTournamentHasMatches   = errors.New("tournament has recorded matches")
	ErrMatchesRemaining       = errors.New("tournament still has unplayed matches")

	// Authentication and authorization.
	ErrInvalidCredentials      = errors.New("invalid email or password")
	ErrForbiddenOperation      = errors.New("operation not allowed for the current member")
	ErrOpponentConsentRequired = errors.New("opponent password required to record the match")

	// Integrity: an internal invariant was violated.
	ErrIntegrity = errors.New("internal invariant violated")

	// Dependency: rating replay cannot proceed.
	ErrMissingRatingSnapshot = errors.New("participant rating snapshot is missing")
)
