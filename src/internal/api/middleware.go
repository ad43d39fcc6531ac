package api

import (
	"context"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/ce-fello/codeclash-service/src/internal/api/apiErrors"
	"github.com/ce-fello/codeclash-service/src/internal/identity"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/jwtauth/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type contextKey string

const (
	actorCtxKey   contextKey = "actor"
	sessionCtxKey contextKey = "sid"
)

func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set("X-Request-Id", id)
		ctx := context.WithValue(r.Context(), middleware.RequestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func LoggerMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("took", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}

func Recoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					logger.Error("panic",
						zap.Any("panic", rec),
						zap.String("path", r.URL.Path),
						zap.ByteString("stack", debug.Stack()),
					)
					writeError(w, http.StatusInternalServerError, apiErrors.InternalError, "internal error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// SessionChecker confirms that a verified token still has a live session.
type SessionChecker interface {
	Authenticate(ctx context.Context, uid, sid string) error
}

// Authenticator runs after jwtauth.Verifier and puts the caller's uid and
// session id in the request context.
func Authenticator(sessions SessionChecker) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, claims, err := jwtauth.FromContext(r.Context())
			if err != nil || token == nil {
				writeError(w, http.StatusUnauthorized, apiErrors.Unauthorized, "authorization token required")
				return
			}
			uid, sid, err := identity.SessionFromClaims(claims)
			if err != nil {
				writeError(w, http.StatusUnauthorized, apiErrors.Unauthorized, "invalid token claims: "+err.Error())
				return
			}
			if err := sessions.Authenticate(r.Context(), uid, sid); err != nil {
				handleSvcError(w, err)
				return
			}
			ctx := context.WithValue(r.Context(), actorCtxKey, uid)
			ctx = context.WithValue(ctx, sessionCtxKey, sid)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func actorFrom(ctx context.Context) string {
	uid, _ := ctx.Value(actorCtxKey).(string)
	return uid
}

func sessionFrom(ctx context.Context) string {
	sid, _ := ctx.Value(sessionCtxKey).(string)
	return sid
}
