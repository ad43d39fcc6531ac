package service

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/ce-fello/codeclash-service/src/internal/api/apiErrors"
	"github.com/ce-fello/codeclash-service/src/internal/cache"
	"github.com/ce-fello/codeclash-service/src/internal/model"

	"go.uber.org/zap"
)

const defaultDurationHours = 24

type NewChallenge struct {
	Type             model.ChallengeType `json:"type"`
	Title            string              `json:"title"`
	Description      string              `json:"description"`
	BannerImageURL   string              `json:"banner_image_url"`
	Difficulty       model.Difficulty    `json:"difficulty"`
	DurationHours    int                 `json:"duration_hours"`
	LanguagesAllowed []string            `json:"languages_allowed"`
	Privacy          model.Privacy       `json:"privacy"`
	MaxTeamSize      int                 `json:"max_team_size"`
	PrizeAmount      float64             `json:"prize_amount"`
	Problem          model.Problem       `json:"problem"`
}

// ChallengePatch is the creator's free-form update. Nil fields are left alone.
type ChallengePatch struct {
	Title              *string                `json:"title"`
	Description        *string                `json:"description"`
	BannerImageURL     *string                `json:"banner_image_url"`
	Status             *model.ChallengeStatus `json:"status"`
	StartedAt          *time.Time             `json:"started_at"`
	SubmissionDeadline *time.Time             `json:"submission_deadline"`
	EndedAt            *time.Time             `json:"ended_at"`
}

type SolutionInput struct {
	SubmissionURL string `json:"submission_url"`
	GitHubRepo    string `json:"github_repo"`
	Description   string `json:"description"`
}

type UserChallenges struct {
	Created       []model.Challenge `json:"created"`
	Participating []model.Challenge `json:"participating"`
}

type DashboardStats struct {
	TotalChallenges     int     `json:"total_challenges"`
	ActiveChallenges    int     `json:"active_challenges"`
	CompletedChallenges int     `json:"completed_challenges"`
	WinRate             float64 `json:"win_rate"`
	Rating              int     `json:"rating"`
	TotalEarnings       float64 `json:"total_earnings"`
}

func (s *Service) CreateChallenge(ctx context.Context, actor string, in NewChallenge) (model.Challenge, error) {
	if err := requireActor(actor); err != nil {
		return model.Challenge{}, err
	}
	c, err := buildChallenge(actor, in)
	if err != nil {
		s.log.Debug("CreateChallenge: rejected", zap.String("creator", actor), zap.Error(err))
		return model.Challenge{}, err
	}
	c.Touch(s.now())

	created, err := s.repo.CreateChallenge(ctx, c)
	if err != nil {
		s.log.Error("CreateChallenge: store failed", zap.String("creator", actor), zap.Error(err))
		return model.Challenge{}, storeErr(err, "challenge")
	}
	s.cache.Put(ctx, created)
	s.cache.InvalidateLists(ctx)
	s.bumpUser(ctx, actor, func(p *model.Platform) { p.ChallengesCreated++ })

	s.log.Info("CreateChallenge: success", zap.String("challenge", created.ID), zap.String("type", string(created.Type)))
	return created, nil
}

func buildChallenge(actor string, in NewChallenge) (model.Challenge, error) {
	if !in.Type.Valid() {
		return model.Challenge{}, invalid("type must be one of duel, team-event, bounty")
	}
	if !in.Difficulty.Valid() {
		return model.Challenge{}, invalid("difficulty must be one of easy, medium, hard")
	}
	if in.Privacy == "" {
		in.Privacy = model.PrivacyPublic
	}
	if !in.Privacy.Valid() {
		return model.Challenge{}, invalid("privacy must be public or private")
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return model.Challenge{}, invalid("title is required")
	}
	switch {
	case in.DurationHours == 0:
		in.DurationHours = defaultDurationHours
	case in.DurationHours < 0:
		return model.Challenge{}, invalid("duration_hours must be positive")
	}
	languages := cleanList(in.LanguagesAllowed)
	if len(languages) == 0 {
		return model.Challenge{}, invalid("at least one language must be allowed")
	}

	problem := in.Problem
	problem.Statement = strings.TrimSpace(problem.Statement)
	problem.SubmissionFormat = strings.TrimSpace(problem.SubmissionFormat)
	problem.Requirements = cleanList(problem.Requirements)
	problem.JudgingCriteria = cleanList(problem.JudgingCriteria)
	switch {
	case problem.Statement == "":
		return model.Challenge{}, invalid("problem statement is required")
	case len(problem.Requirements) == 0:
		return model.Challenge{}, invalid("at least one requirement is required")
	case problem.SubmissionFormat == "":
		return model.Challenge{}, invalid("submission format is required")
	case len(problem.JudgingCriteria) == 0:
		return model.Challenge{}, invalid("at least one judging criterion is required")
	}

	c := model.Challenge{
		CreatorUID:       actor,
		Type:             in.Type,
		Title:            title,
		Description:      strings.TrimSpace(in.Description),
		BannerImageURL:   in.BannerImageURL,
		Difficulty:       in.Difficulty,
		DurationHours:    in.DurationHours,
		LanguagesAllowed: languages,
		Privacy:          in.Privacy,
		Status:           model.StatusPending,
		MaxParticipants:  model.ParticipantCap(in.Type),
		Problem:          problem,
	}
	switch in.Type {
	case model.ChallengeTeamEvent:
		if in.MaxTeamSize < 0 {
			return model.Challenge{}, invalid("max_team_size must not be negative")
		}
		c.MaxTeamSize = in.MaxTeamSize
	case model.ChallengeBounty:
		if in.PrizeAmount < 0 {
			return model.Challenge{}, invalid("prize_amount must not be negative")
		}
		c.PrizeAmount = in.PrizeAmount
	}
	c.Reindex()
	return c, nil
}

// GetChallenge serves from the cache when it can.
func (s *Service) GetChallenge(ctx context.Context, id string) (model.Challenge, error) {
	if c, ok := s.cache.Get(ctx, id); ok {
		return c, nil
	}
	c, err := s.repo.GetChallenge(ctx, id)
	if err != nil {
		return model.Challenge{}, storeErr(err, "challenge")
	}
	s.cache.Put(ctx, c)
	return c, nil
}

func (s *Service) ListChallenges(ctx context.Context, f model.ChallengeFilter) (model.ChallengePage, error) {
	key := cache.ListKey(f)
	if page, ok := s.cache.GetList(ctx, key); ok {
		return page, nil
	}
	page, err := s.repo.ListChallenges(ctx, f)
	if err != nil {
		s.log.Error("ListChallenges: store failed", zap.Error(err))
		return model.ChallengePage{}, storeErr(err, "challenges")
	}
	s.cache.PutList(ctx, key, page)
	return page, nil
}

// UserChallenges splits the user's challenges into the ones they created and
// the ones they take part in without having created them.
func (s *Service) UserChallenges(ctx context.Context, uid string) (UserChallenges, error) {
	out := UserChallenges{Created: []model.Challenge{}, Participating: []model.Challenge{}}
	f := model.ChallengeFilter{CreatorUID: uid, Limit: model.MaxPageSize}
	for {
		page, err := s.repo.ListChallenges(ctx, f)
		if err != nil {
			return UserChallenges{}, storeErr(err, "challenges")
		}
		out.Created = append(out.Created, page.Items...)
		if page.NextCursor == "" {
			break
		}
		f.Cursor = page.NextCursor
	}

	joined, err := s.repo.ListChallengesByParticipant(ctx, uid)
	if err != nil {
		return UserChallenges{}, storeErr(err, "challenges")
	}
	for _, c := range joined {
		if c.CreatorUID != uid {
			out.Participating = append(out.Participating, c)
		}
	}
	return out, nil
}

// DeleteChallenge removes the document. No lifecycle transition calls it.
func (s *Service) DeleteChallenge(ctx context.Context, actor, id string) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	c, err := s.repo.GetChallenge(ctx, id)
	if err != nil {
		return storeErr(err, "challenge")
	}
	if c.CreatorUID != actor {
		return apiErrors.New(apiErrors.Forbidden, "only the creator can delete the challenge")
	}
	if err := s.repo.DeleteChallenge(ctx, id); err != nil {
		return storeErr(err, "challenge")
	}
	s.cache.Invalidate(ctx, id)
	s.cache.InvalidateLists(ctx)
	s.log.Info("DeleteChallenge: success", zap.String("challenge", id))
	return nil
}

// joinCheck validates the join preconditions of actor against c.
// Private challenges also need an approved application unless approved is set.
func (s *Service) joinCheck(ctx context.Context, c model.Challenge, actor, teamID string, approved bool) error {
	switch {
	case c.Status != model.StatusPending:
		return notEligible("challenge is not open for joining")
	case c.CreatorUID == actor:
		return notEligible("the creator cannot join their own challenge")
	case c.Full():
		return notEligible("challenge is full")
	}
	if _, ok := c.Participant(actor); ok {
		return notEligible("already participating")
	}

	if c.Privacy == model.PrivacyPrivate && !approved {
		apps, err := s.repo.ListApplicationsByApplicant(ctx, actor)
		if err != nil {
			return storeErr(err, "applications")
		}
		ok := false
		for _, a := range apps {
			if a.ChallengeID == c.ID && a.Status == model.ApplicationApproved {
				ok = true
				break
			}
		}
		if !ok {
			return notEligible("private challenge requires an approved application")
		}
	}

	if teamID != "" {
		team, err := s.repo.GetTeam(ctx, teamID)
		if err != nil {
			if errors.Is(err, model.ErrNotFound) {
				return notEligible("team does not exist")
			}
			return storeErr(err, "team")
		}
		if team.ChallengeID != c.ID || team.ActiveIndex(actor) < 0 {
			return notEligible("not an active member of that team")
		}
	}
	return nil
}

func (s *Service) JoinChallenge(ctx context.Context, id, actor, teamID string) (model.Challenge, error) {
	if err := requireActor(actor); err != nil {
		return model.Challenge{}, err
	}
	c, err := s.repo.GetChallenge(ctx, id)
	if err != nil {
		return model.Challenge{}, storeErr(err, "challenge")
	}
	if err := s.joinCheck(ctx, c, actor, teamID, false); err != nil {
		s.log.Debug("JoinChallenge: rejected", zap.String("challenge", id), zap.String("user", actor), zap.Error(err))
		return model.Challenge{}, err
	}

	c.Participants = append(c.Participants, model.Participant{
		UserUID:  actor,
		TeamID:   teamID,
		JoinedAt: s.now(),
		Status:   model.ParticipantActive,
	})
	saved, err := s.saveChallenge(ctx, c)
	if err != nil {
		return model.Challenge{}, err
	}
	s.bumpUser(ctx, actor, func(p *model.Platform) { p.ChallengesParticipated++ })

	s.log.Info("JoinChallenge: success", zap.String("challenge", id), zap.String("user", actor),
		zap.Int("participants", len(saved.Participants)))
	return saved, nil
}

// LeaveChallenge removes the actor's participant record, matched by user id,
// and takes back the participation counted on join.
func (s *Service) LeaveChallenge(ctx context.Context, id, actor string) (model.Challenge, error) {
	if err := requireActor(actor); err != nil {
		return model.Challenge{}, err
	}
	c, err := s.repo.GetChallenge(ctx, id)
	if err != nil {
		return model.Challenge{}, storeErr(err, "challenge")
	}
	if !c.RemoveParticipant(actor) {
		return model.Challenge{}, apiErrors.New(apiErrors.NotFound, "not a participant of this challenge")
	}
	saved, err := s.saveChallenge(ctx, c)
	if err != nil {
		return model.Challenge{}, err
	}
	s.bumpUser(ctx, actor, func(p *model.Platform) {
		if p.ChallengesParticipated > 0 {
			p.ChallengesParticipated--
		}
	})
	s.log.Info("LeaveChallenge: success", zap.String("challenge", id), zap.String("user", actor))
	return saved, nil
}

func (s *Service) SubmitSolution(ctx context.Context, id, actor string, in SolutionInput, teamID string) (model.Challenge, error) {
	if err := requireActor(actor); err != nil {
		return model.Challenge{}, err
	}
	c, err := s.repo.GetChallenge(ctx, id)
	if err != nil {
		return model.Challenge{}, storeErr(err, "challenge")
	}
	if c.Status != model.StatusActive && c.Status != model.StatusSubmissionPhase {
		return model.Challenge{}, notEligible("challenge is not accepting submissions")
	}
	p, ok := c.Participant(actor)
	if !ok {
		return model.Challenge{}, notEligible("only participants can submit")
	}
	if c.HasSubmitted(actor) {
		return model.Challenge{}, apiErrors.New(apiErrors.AlreadySubmitted, "solution already submitted")
	}
	if p.Status != model.ParticipantActive {
		return model.Challenge{}, notEligible("participant is not active")
	}

	in.SubmissionURL = strings.TrimSpace(in.SubmissionURL)
	in.Description = strings.TrimSpace(in.Description)
	if in.SubmissionURL == "" || in.Description == "" {
		return model.Challenge{}, invalid("submission_url and description are required")
	}
	if u, err := url.ParseRequestURI(in.SubmissionURL); err != nil || u.Host == "" {
		return model.Challenge{}, invalid("submission_url must be an absolute URL")
	}
	if teamID == "" {
		teamID = p.TeamID
	}

	c.Submissions = append(c.Submissions, model.Submission{
		UserUID:       actor,
		TeamID:        teamID,
		SubmissionURL: in.SubmissionURL,
		GitHubRepo:    strings.TrimSpace(in.GitHubRepo),
		Description:   in.Description,
		SubmittedAt:   s.now(),
	})
	for i := range c.Participants {
		if c.Participants[i].UserUID == actor {
			c.Participants[i].Status = model.ParticipantSubmitted
		}
	}
	saved, err := s.saveChallenge(ctx, c)
	if err != nil {
		return model.Challenge{}, err
	}
	s.log.Info("SubmitSolution: success", zap.String("challenge", id), zap.String("user", actor))
	return saved, nil
}

// UpdateChallenge applies the creator's patch. A status change must follow the lifecycle.
func (s *Service) UpdateChallenge(ctx context.Context, actor, id string, patch ChallengePatch) (model.Challenge, error) {
	if err := requireActor(actor); err != nil {
		return model.Challenge{}, err
	}
	c, err := s.repo.GetChallenge(ctx, id)
	if err != nil {
		return model.Challenge{}, storeErr(err, "challenge")
	}
	if c.CreatorUID != actor {
		return model.Challenge{}, apiErrors.New(apiErrors.Forbidden, "only the creator can update the challenge")
	}

	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return model.Challenge{}, invalid("title must not be empty")
		}
		c.Title = title
	}
	if patch.Description != nil {
		c.Description = strings.TrimSpace(*patch.Description)
	}
	if patch.BannerImageURL != nil {
		c.BannerImageURL = *patch.BannerImageURL
	}
	if patch.StartedAt != nil {
		c.StartedAt = patch.StartedAt
	}
	if patch.SubmissionDeadline != nil {
		c.SubmissionDeadline = patch.SubmissionDeadline
	}
	if patch.EndedAt != nil {
		c.EndedAt = patch.EndedAt
	}
	if patch.Status != nil && *patch.Status != c.Status {
		next := *patch.Status
		if !c.Status.CanTransitionTo(next) {
			return model.Challenge{}, invalid("cannot move challenge from " + string(c.Status) + " to " + string(next))
		}
		now := s.now()
		switch {
		case next == model.StatusActive && c.StartedAt == nil:
			c.StartedAt = &now
		case next.Terminal() && c.EndedAt == nil:
			c.EndedAt = &now
		}
		c.Status = next
	}

	saved, err := s.saveChallenge(ctx, c)
	if err != nil {
		return model.Challenge{}, err
	}
	s.log.Info("UpdateChallenge: success", zap.String("challenge", id), zap.String("status", string(saved.Status)))
	return saved, nil
}

// DashboardStats summarises the challenges uid takes part in.
func (s *Service) DashboardStats(ctx context.Context, uid string) (DashboardStats, error) {
	u, err := s.repo.GetUser(ctx, uid)
	if err != nil {
		return DashboardStats{}, storeErr(err, "user")
	}
	mine, err := s.UserChallenges(ctx, uid)
	if err != nil {
		return DashboardStats{}, err
	}

	st := DashboardStats{TotalChallenges: len(mine.Participating), Rating: u.Platform.Rating}
	for _, c := range mine.Participating {
		switch c.Status {
		case model.StatusActive, model.StatusSubmissionPhase:
			st.ActiveChallenges++
		case model.StatusCompleted:
			st.CompletedChallenges++
			if c.Type == model.ChallengeBounty {
				st.TotalEarnings += c.PrizeAmount
			}
		}
	}
	if st.TotalChallenges > 0 {
		st.WinRate = float64(u.Platform.ChallengesWon) / float64(st.TotalChallenges) * 100
	}
	return st, nil
}

func (s *Service) saveChallenge(ctx context.Context, c model.Challenge) (model.Challenge, error) {
	c.Touch(s.now())
	saved, err := s.repo.UpdateChallenge(ctx, c)
	if err != nil {
		if errors.Is(err, model.ErrConflict) {
			s.log.Debug("saveChallenge: lost race", zap.String("challenge", c.ID))
		} else {
			s.log.Error("saveChallenge: store failed", zap.String("challenge", c.ID), zap.Error(err))
		}
		s.cache.Invalidate(ctx, c.ID)
		return model.Challenge{}, storeErr(err, "challenge")
	}
	s.cache.Put(ctx, saved)
	s.cache.InvalidateLists(ctx)
	return saved, nil
}

// bumpUser applies a counter change to the user's platform record. Failures
// are logged and never fail the operation that triggered them.
func (s *Service) bumpUser(ctx context.Context, uid string, fn func(*model.Platform)) {
	u, err := s.repo.GetUser(ctx, uid)
	if err != nil {
		s.log.Debug("bumpUser: user unavailable", zap.String("user", uid), zap.Error(err))
		return
	}
	fn(&u.Platform)
	u.Touch(s.now())
	if _, err := s.repo.UpdateUser(ctx, u); err != nil {
		s.log.Warn("bumpUser: update failed", zap.String("user", uid), zap.Error(err))
	}
}
