package handler

import (
	"net/http"

	"github.com/freeeve/mare-nostrum/internal/repository"
)

// PhaseHandler serves the phase history and command log of a game.
type PhaseHandler struct {
	phaseRepo repository.PhaseRepository
	cmdRepo   repository.CommandRepository
}

// NewPhaseHandler creates a PhaseHandler.
func NewPhaseHandler(phaseRepo repository.PhaseRepository, cmdRepo repository.CommandRepository) *PhaseHandler {
	return &PhaseHandler{phaseRepo: phaseRepo, cmdRepo: cmdRepo}
}

// ListPhases handles GET /api/v1/games/{id}/phases
func (h *PhaseHandler) ListPhases(w http.ResponseWriter, r *http.Request) {
	phases, err := h.phaseRepo.ListPhases(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeList(w, phases)
}

// CurrentPhase handles GET /api/v1/games/{id}/phases/current
func (h *PhaseHandler) CurrentPhase(w http.ResponseWriter, r *http.Request) {
	phase, err := h.phaseRepo.CurrentPhase(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if phase == nil {
		writeError(w, http.StatusNotFound, "no active phase")
		return
	}
	writeJSON(w, http.StatusOK, phase)
}

// PhaseCommands handles GET /api/v1/games/{id}/phases/{phaseId}/commands
func (h *PhaseHandler) PhaseCommands(w http.ResponseWriter, r *http.Request) {
	phase, err := h.phaseRepo.FindPhase(r.Context(), r.PathValue("phaseId"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if phase == nil || phase.GameID != r.PathValue("id") {
		writeError(w, http.StatusNotFound, "phase not found")
		return
	}
	cmds, err := h.cmdRepo.CommandsByPhase(r.Context(), phase.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeList(w, cmds)
}
