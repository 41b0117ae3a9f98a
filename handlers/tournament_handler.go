package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tt-club/tournament-system/models"
	"github.com/tt-club/tournament-system/services"
)

type TournamentHandler struct {
	tournamentService *services.TournamentService
	exportService     *services.ExportService
}

func NewTournamentHandler(tournamentService *services.TournamentService, exportService *services.ExportService) *TournamentHandler {
	return &TournamentHandler{
		tournamentService: tournamentService,
		exportService:     exportService,
	}
}

type createTournamentRequest struct {
	Name             string                `json:"name"`
	Kind             models.TournamentKind `json:"kind"`
	MemberIDs        []int                 `json:"member_ids"`
	SeedCount        *int                  `json:"seed_count,omitempty"`
	Rounds           *int                  `json:"rounds,omitempty"`
	Groups           int                   `json:"groups,omitempty"`
	FinalSize        int                   `json:"final_size,omitempty"`
	AutoQualifierIDs []int                 `json:"auto_qualifier_ids,omitempty"`
}

func (h *TournamentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var input createTournamentRequest
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	t, err := h.tournamentService.Create(r.Context(), services.CreateTournamentArgs{
		Name:             input.Name,
		Kind:             input.Kind,
		MemberIDs:        input.MemberIDs,
		SeedCount:        input.SeedCount,
		Rounds:           input.Rounds,
		Groups:           input.Groups,
		FinalSize:        input.FinalSize,
		AutoQualifierIDs: input.AutoQualifierIDs,
	})
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusCreated, jsonResponse{"tournament": t}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *TournamentHandler) List(w http.ResponseWriter, r *http.Request) {
	topLevelOnly := r.URL.Query().Get("top_level") == "true"
	list, err := h.tournamentService.List(r.Context(), topLevelOnly)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"tournaments": list}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *TournamentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := urlParamInt(r, "id")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	t, err := h.tournamentService.Get(r.Context(), id)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"tournament": t}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *TournamentHandler) UpdateName(w http.ResponseWriter, r *http.Request) {
	id, err := urlParamInt(r, "id")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	var input struct {
		Name string `json:"name"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if err := h.tournamentService.UpdateName(r.Context(), id, input.Name); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *TournamentHandler) UpdateParticipants(w http.ResponseWriter, r *http.Request) {
	id, err := urlParamInt(r, "id")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	var input struct {
		MemberIDs []int `json:"member_ids"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	t, err := h.tournamentService.UpdateParticipants(r.Context(), id, input.MemberIDs)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"tournament": t}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

type updateMatchRequest struct {
	Member1ID int  `json:"member1_id"`
	Member2ID int  `json:"member2_id"`
	P1Sets    int  `json:"player1_sets"`
	P2Sets    int  `json:"player2_sets"`
	P1Forfeit bool `json:"player1_forfeit"`
	P2Forfeit bool `json:"player2_forfeit"`
}

func (h *TournamentHandler) UpdateMatch(w http.ResponseWriter, r *http.Request) {
	id, err := urlParamInt(r, "id")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	matchID, err := urlParamInt(r, "matchID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	var input updateMatchRequest
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	match, err := h.tournamentService.UpdateMatch(r.Context(), id, services.UpdateMatchArgs{
		MatchID:   matchID,
		Member1ID: input.Member1ID,
		Member2ID: input.Member2ID,
		P1Sets:    input.P1Sets,
		P2Sets:    input.P2Sets,
		P1Forfeit: input.P1Forfeit,
		P2Forfeit: input.P2Forfeit,
	})
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"match": match}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *TournamentHandler) Complete(w http.ResponseWriter, r *http.Request) {
	id, err := urlParamInt(r, "id")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	t, err := h.tournamentService.Complete(r.Context(), id)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"tournament": t}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *TournamentHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := urlParamInt(r, "id")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if err := h.tournamentService.Cancel(r.Context(), id); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *TournamentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := urlParamInt(r, "id")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if err := h.tournamentService.Delete(r.Context(), id); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *TournamentHandler) Export(w http.ResponseWriter, r *http.Request) {
	id, err := urlParamInt(r, "id")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	url, err := h.exportService.ExportStandings(r.Context(), id)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"url": url}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// PluginRequest forwards kind-specific operations (bracket reads, reseeds,
// previews, swiss round listings) to the tournament's plugin.
func (h *TournamentHandler) PluginRequest(w http.ResponseWriter, r *http.Request) {
	id, err := urlParamInt(r, "id")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	resource := chi.URLParam(r, "resource")

	var body json.RawMessage
	if r.Body != nil {
		raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1_048_576))
		if err != nil {
			badRequestResponse(w, r, err)
			return
		}
		body = raw
	}

	result, err := h.tournamentService.PluginRequest(r.Context(), id, r.Method, resource, body)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"result": result}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
