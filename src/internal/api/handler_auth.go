package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ce-fello/codeclash-service/src/internal/model"

	"go.uber.org/zap"
)

const streamKeepAlive = 25 * time.Second

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDToken     string `json:"id_token"`
		AccessToken string `json:"access_token"`
	}
	if err := decode(r, &req, false); err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.auth.StartLogin(r.Context(), req.IDToken, req.AccessToken)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.EndSession(r.Context(), sessionFrom(r.Context())); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "signed_out"})
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	u, err := h.svc.GetUser(r.Context(), actorFrom(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": u})
}

// authStream pushes the session's auth state as server-sent events: the
// current user first, then every change, then null when the session ends.
func (h *Handler) authStream(w http.ResponseWriter, r *http.Request) {
	sid := sessionFrom(r.Context())
	rc := http.NewResponseController(w)

	updates := make(chan model.User, 16)
	ended := make(chan struct{})
	var once sync.Once
	unsubscribe, err := h.auth.SubscribeAuthState(r.Context(), sid, func(u *model.User) {
		if u == nil {
			once.Do(func() { close(ended) })
			return
		}
		select {
		case updates <- *u:
		default:
			h.log.Warn("auth stream: client is slow, update dropped", zap.String("sid", sid))
		}
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	defer unsubscribe()

	_ = rc.SetWriteDeadline(time.Time{})
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	send := func(payload []byte) bool {
		if _, err := fmt.Fprintf(w, "event: auth\ndata: %s\n\n", payload); err != nil {
			return false
		}
		return rc.Flush() == nil
	}

	ticker := time.NewTicker(streamKeepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ended:
			send([]byte("null"))
			return
		case u := <-updates:
			raw, err := json.Marshal(u)
			if err != nil {
				h.log.Error("auth stream: encode user", zap.Error(err))
				return
			}
			if !send(raw) {
				return
			}
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil || rc.Flush() != nil {
				return
			}
		}
	}
}
