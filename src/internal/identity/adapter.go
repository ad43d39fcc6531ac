package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ce-fello/codeclash-service/src/internal/api/apiErrors"
	"github.com/ce-fello/codeclash-service/src/internal/model"
	"github.com/ce-fello/codeclash-service/src/internal/session"

	"go.uber.org/zap"
)

// UserStore is the part of the repository the login flow needs.
type UserStore interface {
	GetUser(ctx context.Context, uid string) (model.User, error)
	CreateUser(ctx context.Context, u model.User) (model.User, error)
	UpdateUser(ctx context.Context, u model.User) (model.User, error)
}

type LoginResult struct {
	User      model.User `json:"user"`
	Token     string     `json:"token"`
	SessionID string     `json:"session_id"`
}

type Adapter struct {
	verifier Verifier
	profiles ProfileFetcher
	users    UserStore
	sessions *session.Manager
	tokens   *TokenIssuer
	log      *zap.Logger
	now      func() time.Time
}

func NewAdapter(v Verifier, profiles ProfileFetcher, users UserStore, sessions *session.Manager, tokens *TokenIssuer, logger *zap.Logger) *Adapter {
	return &Adapter{
		verifier: v,
		profiles: profiles,
		users:    users,
		sessions: sessions,
		tokens:   tokens,
		log:      logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// StartLogin verifies the provider token, refreshes the GitHub snapshot,
// creates or merges the user document and opens a session. Without an
// access token the stored snapshot is kept.
func (a *Adapter) StartLogin(ctx context.Context, idToken, accessToken string) (LoginResult, error) {
	idToken = strings.TrimSpace(idToken)
	if idToken == "" {
		return LoginResult{}, apiErrors.New(apiErrors.Unauthorized, "id token required")
	}
	ident, err := a.verifier.Verify(ctx, idToken)
	if err != nil {
		a.log.Info("login rejected", zap.Error(err))
		if errors.Is(err, ErrInvalidToken) {
			return LoginResult{}, apiErrors.APIError{Code: apiErrors.Unauthorized, Message: "invalid id token", Err: err}
		}
		return LoginResult{}, apiErrors.Store("identity provider", err)
	}

	var gh *model.GitHubProfile
	if accessToken = strings.TrimSpace(accessToken); accessToken != "" && a.profiles != nil {
		p, err := a.profiles.Fetch(ctx, accessToken)
		if err != nil {
			a.log.Error("github profile fetch failed", zap.String("user", ident.UID), zap.Error(err))
			return LoginResult{}, apiErrors.Store("github profile", err)
		}
		gh = &p
	}

	user, err := a.upsertUser(ctx, ident, gh)
	if err != nil {
		return LoginResult{}, err
	}

	sid, err := a.sessions.Open(ctx, user)
	if err != nil {
		return LoginResult{}, apiErrors.Store("open session", err)
	}
	token, err := a.tokens.Issue(user.UID, sid)
	if err != nil {
		_ = a.sessions.Close(ctx, sid)
		return LoginResult{}, apiErrors.APIError{Code: apiErrors.InternalError, Message: "issue token", Err: err}
	}
	a.log.Info("login succeeded", zap.String("user", user.UID))
	return LoginResult{User: user, Token: token, SessionID: sid}, nil
}

func (a *Adapter) upsertUser(ctx context.Context, ident Identity, gh *model.GitHubProfile) (model.User, error) {
	now := a.now()
	existing, err := a.users.GetUser(ctx, ident.UID)
	switch {
	case errors.Is(err, model.ErrNotFound):
		var profile model.GitHubProfile
		if gh != nil {
			profile = *gh
		}
		created, err := a.users.CreateUser(ctx, model.NewUser(ident.UID, ident.Email, ident.DisplayName, ident.PhotoURL, profile, now))
		if err == nil {
			return created, nil
		}
		if !errors.Is(err, model.ErrConflict) {
			return model.User{}, apiErrors.Store("create user", err)
		}
		// a parallel login created it first
		if existing, err = a.users.GetUser(ctx, ident.UID); err != nil {
			return model.User{}, apiErrors.Store("load user", err)
		}
	case err != nil:
		return model.User{}, apiErrors.Store("load user", err)
	}

	profile := existing.GitHub
	if gh != nil {
		profile = *gh
	}
	existing.MergeLogin(ident.Email, ident.DisplayName, ident.PhotoURL, profile, now)
	saved, err := a.users.UpdateUser(ctx, existing)
	if err != nil {
		if errors.Is(err, model.ErrConflict) {
			return model.User{}, apiErrors.APIError{Code: apiErrors.Conflict, Message: "user was changed by another request, try again", Err: err}
		}
		return model.User{}, apiErrors.Store("update user", err)
	}
	return saved, nil
}

// Authenticate checks that sid is live and belongs to uid.
func (a *Adapter) Authenticate(ctx context.Context, uid, sid string) error {
	owner, err := a.sessions.Resolve(ctx, sid)
	if errors.Is(err, session.ErrNotFound) {
		return apiErrors.New(apiErrors.Unauthorized, "session expired")
	}
	if err != nil {
		return apiErrors.Store("session registry", err)
	}
	if owner != uid {
		return apiErrors.New(apiErrors.Unauthorized, "session does not belong to user")
	}
	return nil
}

// SessionStore returns the local auth state of a live sid. A session opened
// by another instance is attached here on first use.
func (a *Adapter) SessionStore(ctx context.Context, sid string) (*session.Store, error) {
	uid, err := a.sessions.Resolve(ctx, sid)
	if errors.Is(err, session.ErrNotFound) {
		return nil, apiErrors.New(apiErrors.Unauthorized, "session expired")
	}
	if err != nil {
		return nil, apiErrors.Store("session registry", err)
	}
	if s, ok := a.sessions.Store(sid); ok {
		return s, nil
	}
	u, err := a.users.GetUser(ctx, uid)
	if err != nil {
		return nil, apiErrors.Store("load user", err)
	}
	return a.sessions.Attach(sid, u), nil
}

// SubscribeAuthState delivers the session's user right away and on every
// change, and nil once the session ends.
func (a *Adapter) SubscribeAuthState(ctx context.Context, sid string, cb session.Listener) (func(), error) {
	s, err := a.SessionStore(ctx, sid)
	if err != nil {
		return nil, err
	}
	return s.Subscribe(cb), nil
}

// UserChanged pushes a stored user to its open sessions.
func (a *Adapter) UserChanged(u model.User) {
	a.sessions.Publish(u)
}

func (a *Adapter) EndSession(ctx context.Context, sid string) error {
	if err := a.sessions.Close(ctx, sid); err != nil {
		return apiErrors.Store("close session", err)
	}
	return nil
}
