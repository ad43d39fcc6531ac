package service

import (
	"context"
	"strings"

	"github.com/ce-fello/codeclash-service/src/internal/api/apiErrors"
	"github.com/ce-fello/codeclash-service/src/internal/model"

	"go.uber.org/zap"
)

// SubmitApplication files a pending request to join a private challenge.
// It does not look for an earlier application; callers check UserApplication first.
func (s *Service) SubmitApplication(ctx context.Context, actor, challengeID, message string) (model.Application, error) {
	if err := requireActor(actor); err != nil {
		return model.Application{}, err
	}
	c, err := s.repo.GetChallenge(ctx, challengeID)
	if err != nil {
		return model.Application{}, storeErr(err, "challenge")
	}
	if c.Privacy != model.PrivacyPrivate {
		return model.Application{}, notEligible("only private challenges take applications")
	}
	if c.CreatorUID == actor {
		return model.Application{}, notEligible("the creator cannot apply to their own challenge")
	}

	a := model.Application{
		ChallengeID:  challengeID,
		ApplicantUID: actor,
		Message:      strings.TrimSpace(message),
		Status:       model.ApplicationPending,
	}
	a.Touch(s.now())
	created, err := s.repo.CreateApplication(ctx, a)
	if err != nil {
		s.log.Error("SubmitApplication: store failed", zap.String("challenge", challengeID), zap.Error(err))
		return model.Application{}, storeErr(err, "application")
	}
	s.log.Info("SubmitApplication: success", zap.String("application", created.ID), zap.String("applicant", actor))
	return created, nil
}

// UserApplication returns uid's application for the challenge.
func (s *Service) UserApplication(ctx context.Context, challengeID, uid string) (model.Application, error) {
	a, err := s.repo.FindApplication(ctx, challengeID, uid)
	if err != nil {
		return model.Application{}, storeErr(err, "application")
	}
	return a, nil
}

func (s *Service) UserApplications(ctx context.Context, uid string) ([]model.Application, error) {
	apps, err := s.repo.ListApplicationsByApplicant(ctx, uid)
	if err != nil {
		return nil, storeErr(err, "applications")
	}
	return apps, nil
}

func (s *Service) ChallengeApplications(ctx context.Context, actor, challengeID string) ([]model.Application, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	c, err := s.repo.GetChallenge(ctx, challengeID)
	if err != nil {
		return nil, storeErr(err, "challenge")
	}
	if c.CreatorUID != actor {
		return nil, apiErrors.New(apiErrors.Forbidden, "only the creator can see applications")
	}
	apps, err := s.repo.ListApplicationsByChallenge(ctx, challengeID)
	if err != nil {
		return nil, storeErr(err, "applications")
	}
	return apps, nil
}

// ReviewApplication moves a pending application to approved or rejected. It
// never touches the participant list: an approved applicant joins afterwards.
func (s *Service) ReviewApplication(ctx context.Context, actor, applicationID string, decision model.ApplicationStatus) (model.Application, error) {
	if err := requireActor(actor); err != nil {
		return model.Application{}, err
	}
	if !decision.Decided() {
		return model.Application{}, invalid("decision must be approved or rejected")
	}
	a, err := s.repo.GetApplication(ctx, applicationID)
	if err != nil {
		return model.Application{}, storeErr(err, "application")
	}
	c, err := s.repo.GetChallenge(ctx, a.ChallengeID)
	if err != nil {
		return model.Application{}, storeErr(err, "challenge")
	}
	if c.CreatorUID != actor {
		return model.Application{}, apiErrors.New(apiErrors.Forbidden, "only the creator can review applications")
	}
	if a.Status != model.ApplicationPending {
		return model.Application{}, notEligible("application was already " + string(a.Status))
	}

	a.Status = decision
	a.Touch(s.now())
	saved, err := s.repo.UpdateApplication(ctx, a)
	if err != nil {
		return model.Application{}, storeErr(err, "application")
	}
	s.log.Info("ReviewApplication: success", zap.String("application", a.ID), zap.String("status", string(decision)))
	return saved, nil
}
