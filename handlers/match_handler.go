package handlers

import (
	"net/http"

	"github.com/tt-club/tournament-system/middleware"
	"github.com/tt-club/tournament-system/services"
)

type MatchHandler struct {
	matchService *services.MatchService
}

func NewMatchHandler(matchService *services.MatchService) *MatchHandler {
	return &MatchHandler{matchService: matchService}
}

type createMatchRequest struct {
	Member1ID        int    `json:"member1_id"`
	Member2ID        int    `json:"member2_id"`
	P1Sets           int    `json:"player1_sets"`
	P2Sets           int    `json:"player2_sets"`
	P1Forfeit        bool   `json:"player1_forfeit"`
	P2Forfeit        bool   `json:"player2_forfeit"`
	OpponentPassword string `json:"opponent_password,omitempty"`
}

// Create records a standalone match. The acting member comes from the JWT;
// players recording their own results supply the opponent's password.
func (h *MatchHandler) Create(w http.ResponseWriter, r *http.Request) {
	actorID, err := middleware.GetMemberID(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, err.Error())
		return
	}
	actorRole, err := middleware.GetRole(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, err.Error())
		return
	}

	var input createMatchRequest
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	match, err := h.matchService.Create(r.Context(), services.CreateMatchArgs{
		ActorID:          actorID,
		ActorRole:        actorRole,
		Member1ID:        input.Member1ID,
		Member2ID:        input.Member2ID,
		P1Sets:           input.P1Sets,
		P2Sets:           input.P2Sets,
		P1Forfeit:        input.P1Forfeit,
		P2Forfeit:        input.P2Forfeit,
		OpponentPassword: input.OpponentPassword,
	})
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusCreated, jsonResponse{"match": match}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *MatchHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := urlParamInt(r, "id")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	match, err := h.matchService.Get(r.Context(), id)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"match": match}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
