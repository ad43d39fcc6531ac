package service

import (
	"errors"
	"strings"
	"time"

	"github.com/ce-fello/codeclash-service/src/internal/api/apiErrors"
	"github.com/ce-fello/codeclash-service/src/internal/blob"
	"github.com/ce-fello/codeclash-service/src/internal/cache"
	"github.com/ce-fello/codeclash-service/src/internal/model"
	"github.com/ce-fello/codeclash-service/src/internal/store"

	"go.uber.org/zap"
)

// Service holds the challenge, team and application rules. Every mutation
// reads the current document, derives the new one and writes it back with a
// version check; a lost race surfaces as CONFLICT and is not retried.
type Service struct {
	repo  store.Repository
	cache cache.ChallengeCache
	blobs blob.Storage
	log   *zap.Logger
	now   func() time.Time
}

type Option func(*Service)

func WithCache(c cache.ChallengeCache) Option {
	return func(s *Service) { s.cache = c }
}

func WithBlobStorage(b blob.Storage) Option {
	return func(s *Service) { s.blobs = b }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(repo store.Repository, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		repo:  repo,
		cache: cache.Nop{},
		log:   logger,
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func requireActor(actor string) error {
	if strings.TrimSpace(actor) == "" {
		return apiErrors.New(apiErrors.Unauthorized, "sign in required")
	}
	return nil
}

// storeErr classifies a repository failure for the entity named what.
func storeErr(err error, what string) error {
	var apiErr apiErrors.APIError
	switch {
	case errors.As(err, &apiErr):
		return err
	case errors.Is(err, model.ErrNotFound):
		return apiErrors.APIError{Code: apiErrors.NotFound, Message: what + " not found", Err: err}
	case errors.Is(err, model.ErrConflict):
		return apiErrors.APIError{Code: apiErrors.Conflict, Message: what + " was changed by another request, reload and try again", Err: err}
	}
	return apiErrors.Store("store "+what, err)
}

func notEligible(msg string) error {
	return apiErrors.New(apiErrors.NotEligible, msg)
}

func invalid(msg string) error {
	return apiErrors.New(apiErrors.Validation, msg)
}

// cleanList trims entries and drops the blank ones.
func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
