package handler

import (
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/freeeve/mare-nostrum/internal/auth"
	"github.com/freeeve/mare-nostrum/internal/model"
	"github.com/freeeve/mare-nostrum/internal/repository"
)

// maxDisplayName bounds display names; they double as seat names in games.
const maxDisplayName = 40

// UserHandler handles user profile endpoints.
type UserHandler struct {
	userRepo repository.UserRepository
	gameRepo repository.GameRepository
}

// NewUserHandler creates a UserHandler.
func NewUserHandler(userRepo repository.UserRepository, gameRepo repository.GameRepository) *UserHandler {
	return &UserHandler{userRepo: userRepo, gameRepo: gameRepo}
}

// seatRecord is one game on a profile, seen from the user's seat.
type seatRecord struct {
	GameID   string `json:"game_id"`
	Name     string `json:"name"`
	Status   string `json:"status"`
	PlayerID string `json:"player_id,omitempty"`
	Won      bool   `json:"won,omitempty"`
}

type profileResponse struct {
	*model.User
	Games    []seatRecord `json:"games"`
	Finished int          `json:"finished"`
	Wins     int          `json:"wins"`
}

// publicUser is what other players may see.
type publicUser struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// GetMe handles GET /api/v1/users/me: the caller's profile with the games
// they sit in and their record.
func (h *UserHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	user, err := h.userRepo.FindByID(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if user == nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}

	games, err := h.gameRepo.ListByUser(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	resp := profileResponse{User: user, Games: make([]seatRecord, 0, len(games))}
	for _, listed := range games {
		// Listings carry no seats.
		g, err := h.gameRepo.FindByID(r.Context(), listed.ID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		if g == nil {
			continue
		}
		rec := seatRecord{GameID: g.ID, Name: g.Name, Status: g.Status}
		if seat := g.PlayerFor(userID); seat != nil {
			rec.PlayerID = seat.PlayerID
			rec.Won = g.Status == model.StatusFinished && g.Winner == seat.PlayerID
		}
		if g.Status == model.StatusFinished {
			resp.Finished++
		}
		if rec.Won {
			resp.Wins++
		}
		resp.Games = append(resp.Games, rec)
	}
	writeJSON(w, http.StatusOK, resp)
}

// UpdateMe handles PATCH /api/v1/users/me
func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	var req struct {
		DisplayName string `json:"display_name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	name := strings.TrimSpace(req.DisplayName)
	switch {
	case name == "":
		writeError(w, http.StatusBadRequest, "display_name is required")
		return
	case utf8.RuneCountInString(name) > maxDisplayName:
		writeError(w, http.StatusBadRequest, "display_name is too long")
		return
	}

	if err := h.userRepo.UpdateDisplayName(r.Context(), userID, name); err != nil {
		writeServiceError(w, r, err)
		return
	}

	user, err := h.userRepo.FindByID(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if user == nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// GetUser handles GET /api/v1/users/{id}. Provider identities stay private.
func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	user, err := h.userRepo.FindByID(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if user == nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	writeJSON(w, http.StatusOK, publicUser{ID: user.ID, DisplayName: user.DisplayName, AvatarURL: user.AvatarURL})
}
