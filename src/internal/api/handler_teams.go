package api

import (
	"net/http"

	"github.com/ce-fello/codeclash-service/src/internal/service"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) challengeTeams(w http.ResponseWriter, r *http.Request) {
	teams, err := h.svc.ChallengeTeams(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"teams": teams})
}

func (h *Handler) createTeam(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := decode(r, &req, false); err != nil {
		h.fail(w, r, err)
		return
	}
	team, err := h.svc.CreateTeam(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "id"), req.Name, req.Description)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"team": team})
}

func (h *Handler) getTeam(w http.ResponseWriter, r *http.Request) {
	team, err := h.svc.GetTeam(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"team": team})
}

func (h *Handler) joinTeam(w http.ResponseWriter, r *http.Request) {
	team, err := h.svc.JoinTeam(r.Context(), chi.URLParam(r, "id"), actorFrom(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"team": team})
}

func (h *Handler) leaveTeam(w http.ResponseWriter, r *http.Request) {
	team, deleted, err := h.svc.LeaveTeam(r.Context(), chi.URLParam(r, "id"), actorFrom(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if deleted {
		writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"team": team, "deleted": false})
}

func (h *Handler) removeTeamMember(w http.ResponseWriter, r *http.Request) {
	team, err := h.svc.RemoveTeamMember(r.Context(), chi.URLParam(r, "id"), actorFrom(r.Context()), chi.URLParam(r, "uid"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"team": team})
}

func (h *Handler) updateTeam(w http.ResponseWriter, r *http.Request) {
	var patch service.TeamPatch
	if err := decode(r, &patch, false); err != nil {
		h.fail(w, r, err)
		return
	}
	team, err := h.svc.UpdateTeam(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "id"), patch)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"team": team})
}

func (h *Handler) deleteTeam(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteTeam(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
