package identity

import (
	"errors"
	"time"

	"github.com/go-chi/jwtauth/v5"
	"github.com/golang-jwt/jwt/v5"
)

const (
	ClaimUserID    = "user_id"
	ClaimSessionID = "sid"
)

type TokenIssuer struct {
	auth *jwtauth.JWTAuth
	exp  time.Duration
	now  func() time.Time
}

func NewTokenIssuer(key []byte, exp time.Duration) *TokenIssuer {
	return &TokenIssuer{
		auth: jwtauth.New("HS256", key, nil),
		exp:  exp,
		now:  time.Now,
	}
}

// JWTAuth is used by the HTTP verifier middleware.
func (t *TokenIssuer) JWTAuth() *jwtauth.JWTAuth {
	return t.auth
}

func (t *TokenIssuer) Issue(uid, sid string) (string, error) {
	now := t.now()
	claims := jwt.MapClaims{
		ClaimUserID:    uid,
		ClaimSessionID: sid,
		"exp":          now.Add(t.exp).Unix(),
		"iat":          now.Unix(),
	}
	_, token, err := t.auth.Encode(claims)
	return token, err
}

// SessionFromClaims extracts the user and session ids from verified claims.
func SessionFromClaims(claims map[string]interface{}) (uid, sid string, err error) {
	uid, ok := claims[ClaimUserID].(string)
	if !ok || uid == "" {
		return "", "", errors.New("user_id claim is missing or not a string")
	}
	sid, ok = claims[ClaimSessionID].(string)
	if !ok || sid == "" {
		return "", "", errors.New("sid claim is missing or not a string")
	}
	return uid, sid, nil
}
