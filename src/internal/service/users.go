package service

import (
	"context"
	"errors"
	"io"

	"github.com/ce-fello/codeclash-service/src/internal/api/apiErrors"
	"github.com/ce-fello/codeclash-service/src/internal/blob"
	"github.com/ce-fello/codeclash-service/src/internal/model"

	"go.uber.org/zap"
)

const (
	defaultLeaderboardSize = 50
	maxLeaderboardSize     = 200
)

type LeaderboardEntry struct {
	Rank int        `json:"rank"`
	User model.User `json:"user"`
}

// PreferencesPatch changes only the fields that are set.
type PreferencesPatch struct {
	EmailNotifications *bool     `json:"email_notifications"`
	PublicProfile      *bool     `json:"public_profile"`
	PreferredLanguages *[]string `json:"preferred_languages"`
}

// Upload is a file received from a client.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

func (s *Service) GetUser(ctx context.Context, uid string) (model.User, error) {
	u, err := s.repo.GetUser(ctx, uid)
	if err != nil {
		return model.User{}, storeErr(err, "user")
	}
	return u, nil
}

func (s *Service) UpdatePreferences(ctx context.Context, uid string, patch PreferencesPatch) (model.User, error) {
	if err := requireActor(uid); err != nil {
		return model.User{}, err
	}
	u, err := s.repo.GetUser(ctx, uid)
	if err != nil {
		return model.User{}, storeErr(err, "user")
	}
	prefs := &u.Platform.Preferences
	if patch.EmailNotifications != nil {
		prefs.EmailNotifications = *patch.EmailNotifications
	}
	if patch.PublicProfile != nil {
		prefs.PublicProfile = *patch.PublicProfile
	}
	if patch.PreferredLanguages != nil {
		prefs.PreferredLanguages = cleanList(*patch.PreferredLanguages)
	}
	u.Touch(s.now())
	saved, err := s.repo.UpdateUser(ctx, u)
	if err != nil {
		return model.User{}, storeErr(err, "user")
	}
	return saved, nil
}

func (s *Service) Leaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	switch {
	case limit <= 0:
		limit = defaultLeaderboardSize
	case limit > maxLeaderboardSize:
		limit = maxLeaderboardSize
	}
	users, err := s.repo.ListTopUsers(ctx, limit)
	if err != nil {
		return nil, storeErr(err, "users")
	}
	out := make([]LeaderboardEntry, 0, len(users))
	for i, u := range users {
		out = append(out, LeaderboardEntry{Rank: i + 1, User: u})
	}
	return out, nil
}

func (s *Service) UploadAvatar(ctx context.Context, uid string, up Upload) (model.User, error) {
	if err := requireActor(uid); err != nil {
		return model.User{}, err
	}
	ext, err := s.checkImage(up)
	if err != nil {
		return model.User{}, err
	}
	u, err := s.repo.GetUser(ctx, uid)
	if err != nil {
		return model.User{}, storeErr(err, "user")
	}

	url, err := s.blobs.Put(ctx, blob.AvatarKey(uid, ext, s.now()), up.Body, up.Size, up.ContentType)
	if err != nil {
		return model.User{}, apiErrors.Store("upload avatar", err)
	}
	previous := u.Platform.ProfileImageURL
	u.Platform.ProfileImageURL = url
	u.Touch(s.now())
	saved, err := s.repo.UpdateUser(ctx, u)
	if err != nil {
		s.dropBlob(ctx, url)
		return model.User{}, storeErr(err, "user")
	}
	s.dropBlob(ctx, previous)
	return saved, nil
}

func (s *Service) UploadChallengeBanner(ctx context.Context, actor, challengeID string, up Upload) (model.Challenge, error) {
	if err := requireActor(actor); err != nil {
		return model.Challenge{}, err
	}
	ext, err := s.checkImage(up)
	if err != nil {
		return model.Challenge{}, err
	}
	c, err := s.repo.GetChallenge(ctx, challengeID)
	if err != nil {
		return model.Challenge{}, storeErr(err, "challenge")
	}
	if c.CreatorUID != actor {
		return model.Challenge{}, apiErrors.New(apiErrors.Forbidden, "only the creator can change the banner")
	}

	url, err := s.blobs.Put(ctx, blob.BannerKey(challengeID, c.Title, ext, s.now()), up.Body, up.Size, up.ContentType)
	if err != nil {
		return model.Challenge{}, apiErrors.Store("upload banner", err)
	}
	previous := c.BannerImageURL
	c.BannerImageURL = url
	saved, err := s.saveChallenge(ctx, c)
	if err != nil {
		s.dropBlob(ctx, url)
		return model.Challenge{}, err
	}
	s.dropBlob(ctx, previous)
	return saved, nil
}

// UploadSubmissionFile stores a participant's file and returns the URL to submit.
func (s *Service) UploadSubmissionFile(ctx context.Context, actor, challengeID string, up Upload) (string, error) {
	if err := requireActor(actor); err != nil {
		return "", err
	}
	if s.blobs == nil {
		return "", apiErrors.New(apiErrors.NotEligible, "file uploads are disabled")
	}
	if err := blob.ValidateSubmission(up.Size); err != nil {
		return "", invalid(err.Error())
	}
	c, err := s.repo.GetChallenge(ctx, challengeID)
	if err != nil {
		return "", storeErr(err, "challenge")
	}
	if _, ok := c.Participant(actor); !ok {
		return "", notEligible("only participants can upload submission files")
	}
	url, err := s.blobs.Put(ctx, blob.SubmissionKey(challengeID, actor, up.Filename, s.now()), up.Body, up.Size, up.ContentType)
	if err != nil {
		return "", apiErrors.Store("upload submission", err)
	}
	return url, nil
}

func (s *Service) checkImage(up Upload) (string, error) {
	if s.blobs == nil {
		return "", apiErrors.New(apiErrors.NotEligible, "file uploads are disabled")
	}
	ext, err := blob.ValidateImage(up.ContentType, up.Size)
	if err != nil {
		return "", invalid(err.Error())
	}
	return ext, nil
}

// dropBlob deletes an object this service uploaded earlier. Foreign URLs are ignored.
func (s *Service) dropBlob(ctx context.Context, url string) {
	if url == "" {
		return
	}
	key, ok := s.blobs.KeyOf(url)
	if !ok {
		return
	}
	if err := s.blobs.Delete(ctx, key); err != nil && !errors.Is(err, context.Canceled) {
		s.log.Warn("dropBlob: delete failed", zap.String("key", key), zap.Error(err))
	}
}
