package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/tt-club/tournament-system/models"
	"github.com/tt-club/tournament-system/services"
)

var errInvalidLimit = errors.New("limit must be a non-negative integer")

type MemberHandler struct {
	memberService *services.MemberService
}

func NewMemberHandler(memberService *services.MemberService) *MemberHandler {
	return &MemberHandler{memberService: memberService}
}

func (h *MemberHandler) Create(w http.ResponseWriter, r *http.Request) {
	var input struct {
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
		Email     string `json:"email"`
		Rating    *int   `json:"rating"`
		Role      string `json:"role"`
		Password  string `json:"password"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	role := models.MemberRole(input.Role)
	if input.Role == "" {
		role = models.RolePlayer
	}
	member, err := h.memberService.Create(r.Context(), services.CreateMemberArgs{
		FirstName: input.FirstName,
		LastName:  input.LastName,
		Email:     input.Email,
		Rating:    input.Rating,
		Role:      role,
		Password:  input.Password,
	})
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusCreated, jsonResponse{"member": member}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// Import accepts a text/csv body of first_name,last_name,email,rating,password
// rows and creates a member per row.
func (h *MemberHandler) Import(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	imported, err := h.memberService.ImportCSV(r.Context(), r.Body)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusCreated, jsonResponse{"imported": len(imported), "members": imported}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *MemberHandler) List(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"
	members, err := h.memberService.List(r.Context(), activeOnly)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"members": members}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *MemberHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := urlParamInt(r, "id")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	member, err := h.memberService.Get(r.Context(), id)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"member": member}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *MemberHandler) History(w http.ResponseWriter, r *http.Request) {
	id, err := urlParamInt(r, "id")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	history, err := h.memberService.History(r.Context(), id)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"history": history}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *MemberHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			badRequestResponse(w, r, errInvalidLimit)
			return
		}
		limit = v
	}
	members, err := h.memberService.Leaderboard(r.Context(), limit)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"leaderboard": members}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *MemberHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	id, err := urlParamInt(r, "id")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if err := h.memberService.Deactivate(r.Context(), id); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *MemberHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := urlParamInt(r, "id")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if err := h.memberService.Delete(r.Context(), id); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *MemberHandler) AdjustRating(w http.ResponseWriter, r *http.Request) {
	id, err := urlParamInt(r, "id")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	var input struct {
		Rating int `json:"rating"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	member, err := h.memberService.AdjustRating(r.Context(), id, input.Rating)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"member": member}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
