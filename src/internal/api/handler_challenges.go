package api

import (
	"net/http"

	"github.com/ce-fello/codeclash-service/src/internal/api/apiErrors"
	"github.com/ce-fello/codeclash-service/src/internal/model"
	"github.com/ce-fello/codeclash-service/src/internal/service"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) listChallenges(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := model.ChallengeFilter{
		Type:       model.ChallengeType(q.Get("type")),
		Difficulty: model.Difficulty(q.Get("difficulty")),
		Status:     model.ChallengeStatus(q.Get("status")),
		CreatorUID: q.Get("creator"),
		Privacy:    model.Privacy(q.Get("privacy")),
		Cursor:     q.Get("cursor"),
	}
	switch {
	case f.Type != "" && !f.Type.Valid():
		writeError(w, http.StatusBadRequest, apiErrors.Validation, "unknown type")
		return
	case f.Difficulty != "" && !f.Difficulty.Valid():
		writeError(w, http.StatusBadRequest, apiErrors.Validation, "unknown difficulty")
		return
	case f.Status != "" && !f.Status.Valid():
		writeError(w, http.StatusBadRequest, apiErrors.Validation, "unknown status")
		return
	case f.Privacy != "" && !f.Privacy.Valid():
		writeError(w, http.StatusBadRequest, apiErrors.Validation, "unknown privacy")
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	f.Limit = limit

	page, err := h.svc.ListChallenges(r.Context(), f)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"challenges": page.Items, "next_cursor": page.NextCursor})
}

func (h *Handler) createChallenge(w http.ResponseWriter, r *http.Request) {
	var in service.NewChallenge
	if err := decode(r, &in, false); err != nil {
		h.fail(w, r, err)
		return
	}
	c, err := h.svc.CreateChallenge(r.Context(), actorFrom(r.Context()), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"challenge": c})
}

func (h *Handler) getChallenge(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.GetChallenge(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"challenge": c})
}

func (h *Handler) updateChallenge(w http.ResponseWriter, r *http.Request) {
	var patch service.ChallengePatch
	if err := decode(r, &patch, false); err != nil {
		h.fail(w, r, err)
		return
	}
	c, err := h.svc.UpdateChallenge(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "id"), patch)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"challenge": c})
}

func (h *Handler) deleteChallenge(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteChallenge(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) joinChallenge(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TeamID string `json:"team_id"`
	}
	if err := decode(r, &req, true); err != nil {
		h.fail(w, r, err)
		return
	}
	c, err := h.svc.JoinChallenge(r.Context(), chi.URLParam(r, "id"), actorFrom(r.Context()), req.TeamID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"challenge": c})
}

func (h *Handler) leaveChallenge(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.LeaveChallenge(r.Context(), chi.URLParam(r, "id"), actorFrom(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"challenge": c})
}

func (h *Handler) submitSolution(w http.ResponseWriter, r *http.Request) {
	var req struct {
		service.SolutionInput
		TeamID string `json:"team_id"`
	}
	if err := decode(r, &req, false); err != nil {
		h.fail(w, r, err)
		return
	}
	c, err := h.svc.SubmitSolution(r.Context(), chi.URLParam(r, "id"), actorFrom(r.Context()), req.SolutionInput, req.TeamID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"challenge": c})
}

func (h *Handler) uploadBanner(w http.ResponseWriter, r *http.Request) {
	up, closeFn, err := readUpload(w, r, maxImageUpload)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	defer closeFn()

	c, err := h.svc.UploadChallengeBanner(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "id"), up)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"challenge": c})
}

func (h *Handler) uploadSubmissionFile(w http.ResponseWriter, r *http.Request) {
	up, closeFn, err := readUpload(w, r, maxSubmissionUpload)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	defer closeFn()

	url, err := h.svc.UploadSubmissionFile(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "id"), up)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"url": url})
}

func (h *Handler) challengeApplications(w http.ResponseWriter, r *http.Request) {
	apps, err := h.svc.ChallengeApplications(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"applications": apps})
}

func (h *Handler) myApplication(w http.ResponseWriter, r *http.Request) {
	app, err := h.svc.UserApplication(r.Context(), chi.URLParam(r, "id"), actorFrom(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"application": app})
}

// submitApplication answers ALREADY_APPLIED when the caller has applied before.
func (h *Handler) submitApplication(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Message string `json:"message"`
	}
	if err := decode(r, &req, true); err != nil {
		h.fail(w, r, err)
		return
	}
	challengeID, actor := chi.URLParam(r, "id"), actorFrom(r.Context())

	_, err := h.svc.UserApplication(r.Context(), challengeID, actor)
	switch {
	case err == nil:
		writeError(w, http.StatusConflict, apiErrors.AlreadyApplied, "you already applied to this challenge")
		return
	case !apiErrors.Is(err, apiErrors.NotFound):
		h.fail(w, r, err)
		return
	}

	app, err := h.svc.SubmitApplication(r.Context(), actor, challengeID, req.Message)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"application": app})
}

func (h *Handler) reviewApplication(decision model.ApplicationStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		app, err := h.svc.ReviewApplication(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "id"), decision)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"application": app})
	}
}
