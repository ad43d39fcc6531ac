package service

import (
	"context"
	"strings"

	"github.com/ce-fello/codeclash-service/src/internal/api/apiErrors"
	"github.com/ce-fello/codeclash-service/src/internal/model"

	"go.uber.org/zap"
)

type TeamPatch struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	IsOpen      *bool   `json:"is_open"`
}

func (s *Service) CreateTeam(ctx context.Context, actor, challengeID, name, description string) (model.Team, error) {
	if err := requireActor(actor); err != nil {
		return model.Team{}, err
	}
	c, err := s.repo.GetChallenge(ctx, challengeID)
	if err != nil {
		return model.Team{}, storeErr(err, "challenge")
	}
	if !c.SupportsTeams() {
		return model.Team{}, notEligible("challenge does not use teams")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return model.Team{}, invalid("team name is required")
	}

	now := s.now()
	t := model.Team{
		ChallengeID: challengeID,
		Name:        name,
		Description: strings.TrimSpace(description),
		LeaderUID:   actor,
		Members: []model.TeamMember{{
			UserUID:  actor,
			Role:     model.RoleLeader,
			JoinedAt: now,
			Status:   model.MemberActive,
		}},
		MaxSize: c.MaxTeamSize,
		IsOpen:  true,
	}
	t.Touch(now)

	created, err := s.repo.CreateTeam(ctx, t)
	if err != nil {
		s.log.Error("CreateTeam: store failed", zap.String("challenge", challengeID), zap.Error(err))
		return model.Team{}, storeErr(err, "team")
	}
	s.log.Info("CreateTeam: success", zap.String("team", created.ID), zap.String("leader", actor))
	return created, nil
}

func (s *Service) GetTeam(ctx context.Context, id string) (model.Team, error) {
	t, err := s.repo.GetTeam(ctx, id)
	if err != nil {
		return model.Team{}, storeErr(err, "team")
	}
	return t, nil
}

func (s *Service) JoinTeam(ctx context.Context, teamID, actor string) (model.Team, error) {
	if err := requireActor(actor); err != nil {
		return model.Team{}, err
	}
	t, err := s.repo.GetTeam(ctx, teamID)
	if err != nil {
		return model.Team{}, storeErr(err, "team")
	}
	switch {
	case t.ActiveCount() >= t.MaxSize:
		return model.Team{}, apiErrors.New(apiErrors.TeamFull, "team is full")
	case t.ActiveIndex(actor) >= 0:
		return model.Team{}, apiErrors.New(apiErrors.AlreadyMember, "already a member of this team")
	case !t.IsOpen:
		return model.Team{}, notEligible("team is not open for joining")
	}

	t.Members = append(t.Members, model.TeamMember{
		UserUID:  actor,
		Role:     model.RoleMember,
		JoinedAt: s.now(),
		Status:   model.MemberActive,
	})
	saved, err := s.saveTeam(ctx, t)
	if err != nil {
		return model.Team{}, err
	}
	s.log.Info("JoinTeam: success", zap.String("team", teamID), zap.String("user", actor))
	return saved, nil
}

// LeaveTeam marks the actor's membership left. A departing leader hands over
// to the first other active member in list order, or deletes the team when
// nobody is left. deleted reports the latter.
func (s *Service) LeaveTeam(ctx context.Context, teamID, actor string) (team model.Team, deleted bool, err error) {
	if err := requireActor(actor); err != nil {
		return model.Team{}, false, err
	}
	t, err := s.repo.GetTeam(ctx, teamID)
	if err != nil {
		return model.Team{}, false, storeErr(err, "team")
	}
	idx := t.ActiveIndex(actor)
	if idx < 0 {
		return model.Team{}, false, apiErrors.New(apiErrors.NotFound, "not a member of this team")
	}

	if t.Members[idx].Role == model.RoleLeader {
		next := t.Successor(actor)
		if next < 0 {
			// a member who joined since the read turns this into a conflict
			if err := s.repo.DeleteTeam(ctx, teamID, t.Version); err != nil {
				return model.Team{}, false, storeErr(err, "team")
			}
			s.log.Info("LeaveTeam: last member left, team deleted", zap.String("team", teamID))
			return model.Team{}, true, nil
		}
		t.Members[next].Role = model.RoleLeader
		t.Members[idx].Role = model.RoleMember
		t.LeaderUID = t.Members[next].UserUID
	}
	t.Members[idx].Status = model.MemberLeft

	saved, err := s.saveTeam(ctx, t)
	if err != nil {
		return model.Team{}, false, err
	}
	s.log.Info("LeaveTeam: success", zap.String("team", teamID), zap.String("user", actor), zap.String("leader", saved.LeaderUID))
	return saved, false, nil
}

func (s *Service) RemoveTeamMember(ctx context.Context, teamID, requester, target string) (model.Team, error) {
	if err := requireActor(requester); err != nil {
		return model.Team{}, err
	}
	t, err := s.repo.GetTeam(ctx, teamID)
	if err != nil {
		return model.Team{}, storeErr(err, "team")
	}
	if t.LeaderUID != requester {
		return model.Team{}, apiErrors.New(apiErrors.Forbidden, "only the team leader can remove members")
	}
	if target == t.LeaderUID {
		return model.Team{}, apiErrors.New(apiErrors.Forbidden, "the leader cannot be removed")
	}
	idx := t.ActiveIndex(target)
	if idx < 0 {
		return model.Team{}, apiErrors.New(apiErrors.NotFound, "member not found")
	}
	t.Members[idx].Status = model.MemberRemoved

	saved, err := s.saveTeam(ctx, t)
	if err != nil {
		return model.Team{}, err
	}
	s.log.Info("RemoveTeamMember: success", zap.String("team", teamID), zap.String("removed", target))
	return saved, nil
}

func (s *Service) UpdateTeam(ctx context.Context, actor, teamID string, patch TeamPatch) (model.Team, error) {
	t, err := s.leaderTeam(ctx, actor, teamID)
	if err != nil {
		return model.Team{}, err
	}
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return model.Team{}, invalid("team name must not be empty")
		}
		t.Name = name
	}
	if patch.Description != nil {
		t.Description = strings.TrimSpace(*patch.Description)
	}
	if patch.IsOpen != nil {
		t.IsOpen = *patch.IsOpen
	}
	return s.saveTeam(ctx, t)
}

func (s *Service) DeleteTeam(ctx context.Context, actor, teamID string) error {
	t, err := s.leaderTeam(ctx, actor, teamID)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteTeam(ctx, teamID, t.Version); err != nil {
		return storeErr(err, "team")
	}
	s.log.Info("DeleteTeam: success", zap.String("team", teamID))
	return nil
}

func (s *Service) ChallengeTeams(ctx context.Context, challengeID string) ([]model.Team, error) {
	teams, err := s.repo.ListTeamsByChallenge(ctx, challengeID)
	if err != nil {
		return nil, storeErr(err, "teams")
	}
	return teams, nil
}

// UserTeams lists the teams uid is an active member of.
func (s *Service) UserTeams(ctx context.Context, uid string) ([]model.Team, error) {
	teams, err := s.repo.ListTeamsByMember(ctx, uid)
	if err != nil {
		return nil, storeErr(err, "teams")
	}
	return teams, nil
}

func (s *Service) leaderTeam(ctx context.Context, actor, teamID string) (model.Team, error) {
	if err := requireActor(actor); err != nil {
		return model.Team{}, err
	}
	t, err := s.repo.GetTeam(ctx, teamID)
	if err != nil {
		return model.Team{}, storeErr(err, "team")
	}
	if t.LeaderUID != actor {
		return model.Team{}, apiErrors.New(apiErrors.Forbidden, "only the team leader can change the team")
	}
	return t, nil
}

func (s *Service) saveTeam(ctx context.Context, t model.Team) (model.Team, error) {
	t.Touch(s.now())
	saved, err := s.repo.UpdateTeam(ctx, t)
	if err != nil {
		s.log.Debug("saveTeam: write rejected", zap.String("team", t.ID), zap.Error(err))
		return model.Team{}, storeErr(err, "team")
	}
	return saved, nil
}
