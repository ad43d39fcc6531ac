package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/ce-fello/codeclash-service/src/internal/api/apiErrors"
	"github.com/ce-fello/codeclash-service/src/internal/identity"
	"github.com/ce-fello/codeclash-service/src/internal/model"
	"github.com/ce-fello/codeclash-service/src/internal/service"
	"github.com/ce-fello/codeclash-service/src/internal/session"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth/v5"
	"go.uber.org/zap"
)

const (
	requestTimeout = 5 * time.Second
	uploadTimeout  = 60 * time.Second
)

// Auth is the login and session surface the handlers need.
type Auth interface {
	SessionChecker
	StartLogin(ctx context.Context, idToken, accessToken string) (identity.LoginResult, error)
	EndSession(ctx context.Context, sid string) error
	SubscribeAuthState(ctx context.Context, sid string, cb session.Listener) (func(), error)
	UserChanged(u model.User)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	svc    *service.Service
	auth   Auth
	tokens *jwtauth.JWTAuth
	health []Pinger
	log    *zap.Logger
}

func NewHandler(svc *service.Service, auth Auth, tokens *jwtauth.JWTAuth, logger *zap.Logger, health ...Pinger) *Handler {
	return &Handler{svc: svc, auth: auth, tokens: tokens, health: health, log: logger}
}

func RegisterRoutes(r chi.Router, h *Handler) {
	r.Get("/health", withTimeout(h.healthCheck))
	r.Post("/auth/login", withTimeout(h.login))
	r.Get("/challenges", withTimeout(h.listChallenges))
	r.Get("/challenges/{id}", withTimeout(h.getChallenge))
	r.Get("/challenges/{id}/teams", withTimeout(h.challengeTeams))
	r.Get("/teams/{id}", withTimeout(h.getTeam))
	r.Get("/users/{uid}", withTimeout(h.getUser))
	r.Get("/leaderboard", withTimeout(h.leaderboard))

	// browsers cannot set headers on an EventSource, so the stream also takes ?jwt=
	r.Group(func(r chi.Router) {
		r.Use(jwtauth.Verify(h.tokens, jwtauth.TokenFromHeader, jwtauth.TokenFromQuery), Authenticator(h.auth))
		r.Get("/auth/stream", h.authStream)
	})

	r.Group(func(r chi.Router) {
		r.Use(jwtauth.Verifier(h.tokens), Authenticator(h.auth))

		r.Post("/auth/logout", withTimeout(h.logout))
		r.Get("/auth/me", withTimeout(h.me))

		r.Post("/challenges", withTimeout(h.createChallenge))
		r.Patch("/challenges/{id}", withTimeout(h.updateChallenge))
		r.Delete("/challenges/{id}", withTimeout(h.deleteChallenge))
		r.Post("/challenges/{id}/join", withTimeout(h.joinChallenge))
		r.Post("/challenges/{id}/leave", withTimeout(h.leaveChallenge))
		r.Post("/challenges/{id}/submissions", withTimeout(h.submitSolution))
		r.Post("/challenges/{id}/banner", withDeadline(uploadTimeout, h.uploadBanner))
		r.Post("/challenges/{id}/submissions/file", withDeadline(uploadTimeout, h.uploadSubmissionFile))
		r.Post("/challenges/{id}/teams", withTimeout(h.createTeam))
		r.Get("/challenges/{id}/applications", withTimeout(h.challengeApplications))
		r.Get("/challenges/{id}/applications/mine", withTimeout(h.myApplication))
		r.Post("/challenges/{id}/applications", withTimeout(h.submitApplication))

		r.Post("/teams/{id}/join", withTimeout(h.joinTeam))
		r.Post("/teams/{id}/leave", withTimeout(h.leaveTeam))
		r.Post("/teams/{id}/members/{uid}/remove", withTimeout(h.removeTeamMember))
		r.Patch("/teams/{id}", withTimeout(h.updateTeam))
		r.Delete("/teams/{id}", withTimeout(h.deleteTeam))

		r.Post("/applications/{id}/approve", withTimeout(h.reviewApplication(model.ApplicationApproved)))
		r.Post("/applications/{id}/reject", withTimeout(h.reviewApplication(model.ApplicationRejected)))

		r.Get("/users/me/challenges", withTimeout(h.myChallenges))
		r.Get("/users/me/teams", withTimeout(h.myTeams))
		r.Get("/users/me/applications", withTimeout(h.myApplications))
		r.Get("/users/me/stats", withTimeout(h.myStats))
		r.Patch("/users/me/preferences", withTimeout(h.updatePreferences))
		r.Post("/users/me/avatar", withDeadline(uploadTimeout, h.uploadAvatar))
	})
}

func withTimeout(next http.HandlerFunc) http.HandlerFunc {
	return withDeadline(requestTimeout, next)
}

func withDeadline(d time.Duration, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), d)
		defer cancel()
		next(w, r.WithContext(ctx))
	}
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	for _, p := range h.health {
		if err := p.Ping(r.Context()); err != nil {
			h.log.Warn("health check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// decode reads a JSON body. An empty body leaves v untouched when optional is set.
func decode(r *http.Request, v any, optional bool) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) && optional {
		return nil
	}
	if err != nil {
		return apiErrors.New(apiErrors.Validation, "invalid body")
	}
	return nil
}

func queryInt(r *http.Request, key string) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apiErrors.New(apiErrors.Validation, key+" must be a non-negative integer")
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, code int, errCode apiErrors.ErrorCode, message string) {
	writeJSON(w, code, map[string]any{
		"error": map[string]any{"code": errCode, "message": message},
	})
}

// fail logs server-side failures and writes the error envelope.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if status := statusOf(err); status >= http.StatusInternalServerError {
		h.log.Error("request failed", zap.String("method", r.Method), zap.String("path", r.URL.Path), zap.Error(err))
	}
	handleSvcError(w, err)
}

func statusOf(err error) int {
	var e apiErrors.APIError
	if !errors.As(err, &e) {
		return http.StatusInternalServerError
	}
	switch e.Code {
	case apiErrors.NotFound:
		return http.StatusNotFound
	case apiErrors.Forbidden:
		return http.StatusForbidden
	case apiErrors.Unauthorized:
		return http.StatusUnauthorized
	case apiErrors.Conflict, apiErrors.AlreadyMember, apiErrors.AlreadySubmitted,
		apiErrors.AlreadyApplied, apiErrors.TeamFull:
		return http.StatusConflict
	case apiErrors.Validation:
		return http.StatusBadRequest
	case apiErrors.NotEligible:
		return http.StatusUnprocessableEntity
	case apiErrors.StoreError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func handleSvcError(w http.ResponseWriter, err error) {
	var e apiErrors.APIError
	switch {
	case errors.As(err, &e):
		status := statusOf(err)
		if status == http.StatusInternalServerError {
			writeError(w, status, apiErrors.InternalError, e.Message)
			return
		}
		writeError(w, status, e.Code, e.Message)
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, apiErrors.InternalError, "request timed out")
	default:
		writeError(w, http.StatusInternalServerError, apiErrors.InternalError, err.Error())
	}
}
