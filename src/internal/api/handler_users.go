package api

import (
	"errors"
	"mime/multipart"
	"net/http"

	"github.com/ce-fello/codeclash-service/src/internal/api/apiErrors"
	"github.com/ce-fello/codeclash-service/src/internal/blob"
	"github.com/ce-fello/codeclash-service/src/internal/model"
	"github.com/ce-fello/codeclash-service/src/internal/service"

	"github.com/go-chi/chi/v5"
)

const (
	multipartOverhead   = 1 << 20
	maxImageUpload      = blob.MaxImageSize + multipartOverhead
	maxSubmissionUpload = blob.MaxSubmissionSize + multipartOverhead
	multipartMemory     = 8 << 20
)

// readUpload pulls the "file" part out of a multipart request.
func readUpload(w http.ResponseWriter, r *http.Request, limit int64) (service.Upload, func(), error) {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return service.Upload{}, nil, apiErrors.New(apiErrors.Validation, "file is too large")
		}
		return service.Upload{}, nil, apiErrors.New(apiErrors.Validation, "expected a multipart form with a file field")
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return service.Upload{}, nil, apiErrors.New(apiErrors.Validation, "file field is required")
	}
	return service.Upload{
		Filename:    header.Filename,
		ContentType: contentTypeOf(header),
		Size:        header.Size,
		Body:        file,
	}, func() { _ = file.Close() }, nil
}

func contentTypeOf(h *multipart.FileHeader) string {
	if ct := h.Header.Get("Content-Type"); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// publicView hides contact details from other users.
func publicView(u model.User) model.User {
	u.Email = ""
	return u
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.svc.GetUser(r.Context(), chi.URLParam(r, "uid"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !u.Platform.Preferences.PublicProfile {
		writeError(w, http.StatusNotFound, apiErrors.NotFound, "user not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": publicView(u)})
}

func (h *Handler) leaderboard(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	entries, err := h.svc.Leaderboard(r.Context(), limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	for i := range entries {
		entries[i].User = publicView(entries[i].User)
	}
	writeJSON(w, http.StatusOK, map[string]any{"leaderboard": entries})
}

func (h *Handler) myChallenges(w http.ResponseWriter, r *http.Request) {
	mine, err := h.svc.UserChallenges(r.Context(), actorFrom(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mine)
}

func (h *Handler) myTeams(w http.ResponseWriter, r *http.Request) {
	teams, err := h.svc.UserTeams(r.Context(), actorFrom(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"teams": teams})
}

func (h *Handler) myApplications(w http.ResponseWriter, r *http.Request) {
	apps, err := h.svc.UserApplications(r.Context(), actorFrom(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"applications": apps})
}

func (h *Handler) myStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.DashboardStats(r.Context(), actorFrom(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) updatePreferences(w http.ResponseWriter, r *http.Request) {
	var patch service.PreferencesPatch
	if err := decode(r, &patch, false); err != nil {
		h.fail(w, r, err)
		return
	}
	u, err := h.svc.UpdatePreferences(r.Context(), actorFrom(r.Context()), patch)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.auth.UserChanged(u)
	writeJSON(w, http.StatusOK, map[string]any{"user": u})
}

func (h *Handler) uploadAvatar(w http.ResponseWriter, r *http.Request) {
	up, closeFn, err := readUpload(w, r, maxImageUpload)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	defer closeFn()

	u, err := h.svc.UploadAvatar(r.Context(), actorFrom(r.Context()), up)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.auth.UserChanged(u)
	writeJSON(w, http.StatusOK, map[string]any{"user": u})
}
