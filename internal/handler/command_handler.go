package handler

import (
	"net/http"

	"github.com/freeeve/mare-nostrum/internal/auth"
	"github.com/freeeve/mare-nostrum/internal/service"
	"github.com/freeeve/mare-nostrum/pkg/civ"
)

// CommandHandler handles player input commands.
type CommandHandler struct {
	engineSvc *service.EngineService
	hub       *Hub
}

// NewCommandHandler creates a CommandHandler.
func NewCommandHandler(engineSvc *service.EngineService, hub *Hub) *CommandHandler {
	return &CommandHandler{engineSvc: engineSvc, hub: hub}
}

// SubmitCommand handles POST /api/v1/games/{id}/commands
//
// The player field of the body is ignored; commands always act for the
// caller's own seat. Rejected commands answer 422 with the reason.
func (h *CommandHandler) SubmitCommand(w http.ResponseWriter, r *http.Request) {
	var cmd civ.Command
	if err := decodeJSON(r, &cmd); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if cmd.Type == "" {
		writeError(w, http.StatusBadRequest, "type is required")
		return
	}
	h.apply(w, r, cmd)
}

// Pass handles POST /api/v1/games/{id}/pass
func (h *CommandHandler) Pass(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, civ.Command{Type: civ.CmdPass})
}

func (h *CommandHandler) apply(w http.ResponseWriter, r *http.Request, cmd civ.Command) {
	gameID := r.PathValue("id")
	userID := auth.UserIDFromContext(r.Context())

	res, err := h.engineSvc.ApplyCommand(r.Context(), gameID, userID, cmd)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	h.hub.BroadcastToUser(userID, WSEvent{Type: EventCommandResult, GameID: gameID, Data: res})
	writeJSON(w, http.StatusOK, res)
}
