package handler

import (
	"net/http"

	"github.com/freeeve/mare-nostrum/internal/auth"
	"github.com/freeeve/mare-nostrum/internal/model"
	"github.com/freeeve/mare-nostrum/internal/repository"
	"github.com/freeeve/mare-nostrum/internal/service"
	"github.com/freeeve/mare-nostrum/pkg/civ"
)

// GameHandler handles the game lobby and game state endpoints.
type GameHandler struct {
	gameSvc   *service.GameService
	engineSvc *service.EngineService
	phaseRepo repository.PhaseRepository
	hub       *Hub
}

// NewGameHandler creates a GameHandler.
func NewGameHandler(gameSvc *service.GameService, engineSvc *service.EngineService, phaseRepo repository.PhaseRepository, hub *Hub) *GameHandler {
	return &GameHandler{gameSvc: gameSvc, engineSvc: engineSvc, phaseRepo: phaseRepo, hub: hub}
}

// CreateGame handles POST /api/v1/games
func (h *GameHandler) CreateGame(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	var req service.GameSettings
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	game, err := h.gameSvc.CreateGame(r.Context(), userID, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, game)
}

// ListGames handles GET /api/v1/games?filter=my|active
func (h *GameHandler) ListGames(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	games, err := h.gameSvc.ListGames(r.Context(), userID, r.URL.Query().Get("filter"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeList(w, games)
}

// GetGame handles GET /api/v1/games/{id}
func (h *GameHandler) GetGame(w http.ResponseWriter, r *http.Request) {
	game, err := h.gameSvc.GetGame(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, game)
}

// JoinGame handles POST /api/v1/games/{id}/join
func (h *GameHandler) JoinGame(w http.ResponseWriter, r *http.Request) {
	gameID := r.PathValue("id")
	userID := auth.UserIDFromContext(r.Context())

	if err := h.gameSvc.JoinGame(r.Context(), gameID, userID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	game, err := h.gameSvc.GetGame(r.Context(), gameID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if seat := game.PlayerFor(userID); seat != nil {
		h.hub.BroadcastGameEvent(gameID, EventPlayerJoined, seat)
	}
	writeJSON(w, http.StatusOK, game)
}

// StartGame handles POST /api/v1/games/{id}/start
func (h *GameHandler) StartGame(w http.ResponseWriter, r *http.Request) {
	game, err := h.gameSvc.StartGame(r.Context(), r.PathValue("id"), auth.UserIDFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, game)
}

// stateResponse is the body of GET /games/{id}/state.
type stateResponse struct {
	State     *civ.GameState `json:"state"`
	Standings []civ.Standing `json:"standings"`
	Phase     *model.Phase   `json:"phase,omitempty"`
	Player    string         `json:"player,omitempty"`
}

// GameState handles GET /api/v1/games/{id}/state
func (h *GameHandler) GameState(w http.ResponseWriter, r *http.Request) {
	gameID := r.PathValue("id")
	gs, err := h.engineSvc.State(r.Context(), gameID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	resp := stateResponse{State: gs, Standings: civ.Standings(gs)}
	if phase, err := h.phaseRepo.CurrentPhase(r.Context(), gameID); err == nil && phase != nil {
		phase.StateBefore, phase.StateAfter = nil, nil
		resp.Phase = phase
	}
	if game, err := h.gameSvc.GetGame(r.Context(), gameID); err == nil {
		if seat := game.PlayerFor(auth.UserIDFromContext(r.Context())); seat != nil {
			resp.Player = seat.PlayerID
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// Moves handles GET /api/v1/games/{id}/moves
func (h *GameHandler) Moves(w http.ResponseWriter, r *http.Request) {
	moves, err := h.engineSvc.Moves(r.Context(), r.PathValue("id"), auth.UserIDFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeList(w, moves)
}

// Advance handles POST /api/v1/games/{id}/advance
func (h *GameHandler) Advance(w http.ResponseWriter, r *http.Request) {
	res, err := h.engineSvc.Advance(r.Context(), r.PathValue("id"), auth.UserIDFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
