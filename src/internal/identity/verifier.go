// Package identity signs users in through the external identity provider,
// mirrors their GitHub profile and issues the app's own session tokens.
package identity

import (
	"context"
	"errors"
	"strings"

	"firebase.google.com/go/auth"
)

var ErrInvalidToken = errors.New("invalid id token")

// Identity is what the provider vouches for.
type Identity struct {
	UID         string
	Email       string
	DisplayName string
	PhotoURL    string
}

type Verifier interface {
	Verify(ctx context.Context, idToken string) (Identity, error)
}

type FirebaseVerifier struct {
	client *auth.Client
}

func NewFirebaseVerifier(client *auth.Client) *FirebaseVerifier {
	return &FirebaseVerifier{client: client}
}

func (v *FirebaseVerifier) Verify(ctx context.Context, idToken string) (Identity, error) {
	tok, err := v.client.VerifyIDToken(ctx, idToken)
	if err != nil {
		return Identity{}, errors.Join(ErrInvalidToken, err)
	}
	return Identity{
		UID:         tok.UID,
		Email:       claim(tok.Claims, "email"),
		DisplayName: claim(tok.Claims, "name"),
		PhotoURL:    claim(tok.Claims, "picture"),
	}, nil
}

func claim(claims map[string]interface{}, key string) string {
	v, _ := claims[key].(string)
	return v
}

const devPrefix = "dev:"

// DevVerifier accepts unsigned "dev:<uid>" or "dev:<uid>:<name>" tokens.
// Local runs only.
type DevVerifier struct{}

func (DevVerifier) Verify(_ context.Context, idToken string) (Identity, error) {
	rest, ok := strings.CutPrefix(idToken, devPrefix)
	if !ok {
		return Identity{}, ErrInvalidToken
	}
	uid, name, _ := strings.Cut(rest, ":")
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return Identity{}, ErrInvalidToken
	}
	if name == "" {
		name = uid
	}
	return Identity{
		UID:         uid,
		Email:       uid + "@dev.local",
		DisplayName: name,
	}, nil
}
