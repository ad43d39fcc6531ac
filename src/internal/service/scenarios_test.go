package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/ce-fello/codeclash-service/src/internal/api/apiErrors"
	"github.com/ce-fello/codeclash-service/src/internal/blob"
	"github.com/ce-fello/codeclash-service/src/internal/cache"
	"github.com/ce-fello/codeclash-service/src/internal/model"
	"github.com/ce-fello/codeclash-service/src/internal/store/memstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func tickingClock() func() time.Time {
	now := fixedNow
	return func() time.Time {
		now = now.Add(time.Second)
		return now
	}
}

func newMemService(t *testing.T, opts ...Option) (*Service, *memstore.Store) {
	t.Helper()
	repo := memstore.New()
	opts = append([]Option{WithClock(tickingClock())}, opts...)
	return NewService(repo, zap.NewNop(), opts...), repo
}

func seedUsers(t *testing.T, repo *memstore.Store, uids ...string) {
	t.Helper()
	for _, uid := range uids {
		_, err := repo.CreateUser(context.Background(), model.NewUser(uid, uid+"@x.io", uid, "", model.GitHubProfile{}, fixedNow))
		require.NoError(t, err)
	}
}

func mustCreate(t *testing.T, s *Service, actor string, in NewChallenge) model.Challenge {
	t.Helper()
	c, err := s.CreateChallenge(context.Background(), actor, in)
	require.NoError(t, err)
	return c
}

func assertCode(t *testing.T, err error, code apiErrors.ErrorCode) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, apiErrors.Is(err, code), "want %s, got %v", code, err)
}

func TestJoin_SequentialJoinsStopAtCap(t *testing.T) {
	s, repo := newMemService(t)
	ctx := context.Background()

	c, err := buildChallenge("creator", validChallenge(model.ChallengeBounty))
	require.NoError(t, err)
	c.MaxParticipants = 3
	c.Touch(fixedNow)
	c, err = repo.CreateChallenge(ctx, c)
	require.NoError(t, err)

	for i := 1; i <= 3; i++ {
		joined, err := s.JoinChallenge(ctx, c.ID, fmt.Sprintf("u%d", i), "")
		require.NoError(t, err)
		assert.Len(t, joined.Participants, i)
	}
	_, err = s.JoinChallenge(ctx, c.ID, "u4", "")
	assertCode(t, err, apiErrors.NotEligible)

	stored, err := repo.GetChallenge(ctx, c.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Participants, 3)
}

func TestJoin_DuelScenario(t *testing.T) {
	s, repo := newMemService(t)
	ctx := context.Background()
	seedUsers(t, repo, "alice", "bob", "carol")

	duel := mustCreate(t, s, "alice", validChallenge(model.ChallengeDuel))
	assert.Equal(t, 2, duel.MaxParticipants)

	_, err := s.JoinChallenge(ctx, duel.ID, "alice", "")
	assertCode(t, err, apiErrors.NotEligible)

	joined, err := s.JoinChallenge(ctx, duel.ID, "bob", "")
	require.NoError(t, err)
	assert.True(t, joined.Full())

	_, err = s.JoinChallenge(ctx, duel.ID, "carol", "")
	assertCode(t, err, apiErrors.NotEligible)

	_, err = s.LeaveChallenge(ctx, duel.ID, "bob")
	require.NoError(t, err)
	joined, err = s.JoinChallenge(ctx, duel.ID, "carol", "")
	require.NoError(t, err)
	assert.Equal(t, "carol", joined.Participants[0].UserUID)

	bob, err := repo.GetUser(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 0, bob.Platform.ChallengesParticipated)
	carol, err := repo.GetUser(ctx, "carol")
	require.NoError(t, err)
	assert.Equal(t, 1, carol.Platform.ChallengesParticipated)
	alice, err := repo.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, alice.Platform.ChallengesCreated)
}

func TestLeave_RejoinRestoresCount(t *testing.T) {
	s, repo := newMemService(t)
	seedUsers(t, repo, "b")
	ctx := context.Background()
	c := mustCreate(t, s, "creator", validChallenge(model.ChallengeBounty))

	for _, uid := range []string{"a", "b", "c"} {
		_, err := s.JoinChallenge(ctx, c.ID, uid, "")
		require.NoError(t, err)
	}
	left, err := s.LeaveChallenge(ctx, c.ID, "b")
	require.NoError(t, err)
	assert.Len(t, left.Participants, 2)
	assert.NotContains(t, left.ParticipantUIDs, "b")

	back, err := s.JoinChallenge(ctx, c.ID, "b", "")
	require.NoError(t, err)
	assert.Len(t, back.Participants, 3)

	// a leave and rejoin cycle counts once
	u, err := s.GetUser(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, 1, u.Platform.ChallengesParticipated)

	_, err = s.LeaveChallenge(ctx, c.ID, "stranger")
	assertCode(t, err, apiErrors.NotFound)
}

func TestJoin_OnlyWhilePending(t *testing.T) {
	s, _ := newMemService(t)
	ctx := context.Background()
	c := mustCreate(t, s, "creator", validChallenge(model.ChallengeBounty))

	active := model.StatusActive
	_, err := s.UpdateChallenge(ctx, "creator", c.ID, ChallengePatch{Status: &active})
	require.NoError(t, err)

	_, err = s.JoinChallenge(ctx, c.ID, "late", "")
	assertCode(t, err, apiErrors.NotEligible)
}

func TestSubmitSolution(t *testing.T) {
	s, _ := newMemService(t)
	ctx := context.Background()
	c := mustCreate(t, s, "creator", validChallenge(model.ChallengeBounty))
	_, err := s.JoinChallenge(ctx, c.ID, "dev", "")
	require.NoError(t, err)

	sol := SolutionInput{SubmissionURL: "https://example.com/sol.zip", Description: "my answer"}
	_, err = s.SubmitSolution(ctx, c.ID, "dev", sol, "")
	assertCode(t, err, apiErrors.NotEligible)

	active := model.StatusActive
	_, err = s.UpdateChallenge(ctx, "creator", c.ID, ChallengePatch{Status: &active})
	require.NoError(t, err)

	_, err = s.SubmitSolution(ctx, c.ID, "dev", SolutionInput{SubmissionURL: "https://example.com"}, "")
	assertCode(t, err, apiErrors.Validation)
	_, err = s.SubmitSolution(ctx, c.ID, "dev", SolutionInput{SubmissionURL: "not a url", Description: "x"}, "")
	assertCode(t, err, apiErrors.Validation)

	saved, err := s.SubmitSolution(ctx, c.ID, "dev", sol, "")
	require.NoError(t, err)
	require.Len(t, saved.Submissions, 1)
	assert.Equal(t, model.ParticipantSubmitted, saved.Participants[0].Status)

	_, err = s.SubmitSolution(ctx, c.ID, "dev", sol, "")
	assertCode(t, err, apiErrors.AlreadySubmitted)

	_, err = s.SubmitSolution(ctx, c.ID, "outsider", sol, "")
	assertCode(t, err, apiErrors.NotEligible)
}

func TestUpdateChallenge_Lifecycle(t *testing.T) {
	s, _ := newMemService(t)
	ctx := context.Background()
	c := mustCreate(t, s, "creator", validChallenge(model.ChallengeBounty))

	judging := model.StatusJudging
	_, err := s.UpdateChallenge(ctx, "creator", c.ID, ChallengePatch{Status: &judging})
	assertCode(t, err, apiErrors.Validation)

	title := "Renamed"
	_, err = s.UpdateChallenge(ctx, "someone", c.ID, ChallengePatch{Title: &title})
	assertCode(t, err, apiErrors.Forbidden)

	active := model.StatusActive
	updated, err := s.UpdateChallenge(ctx, "creator", c.ID, ChallengePatch{Status: &active, Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Title)
	require.NotNil(t, updated.StartedAt)

	cancelled := model.StatusCancelled
	updated, err = s.UpdateChallenge(ctx, "creator", c.ID, ChallengePatch{Status: &cancelled})
	require.NoError(t, err)
	require.NotNil(t, updated.EndedAt)

	_, err = s.UpdateChallenge(ctx, "creator", c.ID, ChallengePatch{Status: &active})
	assertCode(t, err, apiErrors.Validation)
}

func TestTeams_SuccessionScenario(t *testing.T) {
	s, _ := newMemService(t)
	ctx := context.Background()
	event := mustCreate(t, s, "host", validChallenge(model.ChallengeTeamEvent))

	team, err := s.CreateTeam(ctx, "ann", event.ID, "  Gophers ", "")
	require.NoError(t, err)
	assert.Equal(t, "Gophers", team.Name)
	assert.Equal(t, 3, team.MaxSize)
	assert.True(t, team.IsOpen)

	_, err = s.JoinTeam(ctx, team.ID, "ben")
	require.NoError(t, err)
	_, err = s.JoinTeam(ctx, team.ID, "ben")
	assertCode(t, err, apiErrors.AlreadyMember)
	_, err = s.JoinTeam(ctx, team.ID, "cat")
	require.NoError(t, err)
	_, err = s.JoinTeam(ctx, team.ID, "dan")
	assertCode(t, err, apiErrors.TeamFull)

	team, deleted, err := s.LeaveTeam(ctx, team.ID, "ann")
	require.NoError(t, err)
	assert.False(t, deleted)
	assert.Equal(t, "ben", team.LeaderUID)

	leaders := 0
	for _, m := range team.Members {
		if m.Status == model.MemberActive && m.Role == model.RoleLeader {
			leaders++
			assert.Equal(t, "ben", m.UserUID)
		}
		if m.UserUID == "ann" {
			assert.Equal(t, model.MemberLeft, m.Status)
		}
	}
	assert.Equal(t, 1, leaders)

	_, _, err = s.LeaveTeam(ctx, team.ID, "ann")
	assertCode(t, err, apiErrors.NotFound)

	_, deleted, err = s.LeaveTeam(ctx, team.ID, "cat")
	require.NoError(t, err)
	assert.False(t, deleted)

	_, deleted, err = s.LeaveTeam(ctx, team.ID, "ben")
	require.NoError(t, err)
	assert.True(t, deleted)
	_, err = s.GetTeam(ctx, team.ID)
	assertCode(t, err, apiErrors.NotFound)
}

func TestTeams_RemoveMemberAndLeaderOnlyChanges(t *testing.T) {
	s, _ := newMemService(t)
	ctx := context.Background()
	event := mustCreate(t, s, "host", validChallenge(model.ChallengeTeamEvent))
	team, err := s.CreateTeam(ctx, "ann", event.ID, "Gophers", "")
	require.NoError(t, err)
	_, err = s.JoinTeam(ctx, team.ID, "ben")
	require.NoError(t, err)

	_, err = s.RemoveTeamMember(ctx, team.ID, "ben", "ann")
	assertCode(t, err, apiErrors.Forbidden)
	_, err = s.RemoveTeamMember(ctx, team.ID, "ann", "ann")
	assertCode(t, err, apiErrors.Forbidden)
	_, err = s.RemoveTeamMember(ctx, team.ID, "ann", "zed")
	assertCode(t, err, apiErrors.NotFound)

	team, err = s.RemoveTeamMember(ctx, team.ID, "ann", "ben")
	require.NoError(t, err)
	assert.Equal(t, 1, team.ActiveCount())

	mine, err := s.UserTeams(ctx, "ben")
	require.NoError(t, err)
	assert.Empty(t, mine)

	closed := false
	_, err = s.UpdateTeam(ctx, "ben", team.ID, TeamPatch{IsOpen: &closed})
	assertCode(t, err, apiErrors.Forbidden)
	_, err = s.UpdateTeam(ctx, "ann", team.ID, TeamPatch{IsOpen: &closed})
	require.NoError(t, err)
	_, err = s.JoinTeam(ctx, team.ID, "cat")
	assertCode(t, err, apiErrors.NotEligible)

	assertCode(t, s.DeleteTeam(ctx, "ben", team.ID), apiErrors.Forbidden)
	require.NoError(t, s.DeleteTeam(ctx, "ann", team.ID))
}

func TestTeams_OnlyInTeamEvents(t *testing.T) {
	s, _ := newMemService(t)
	ctx := context.Background()

	bounty := mustCreate(t, s, "host", validChallenge(model.ChallengeBounty))
	_, err := s.CreateTeam(ctx, "ann", bounty.ID, "Solo", "")
	assertCode(t, err, apiErrors.NotEligible)

	in := validChallenge(model.ChallengeTeamEvent)
	in.MaxTeamSize = 1
	tiny := mustCreate(t, s, "host", in)
	_, err = s.CreateTeam(ctx, "ann", tiny.ID, "Solo", "")
	assertCode(t, err, apiErrors.NotEligible)
}

func TestJoin_WithTeam(t *testing.T) {
	s, _ := newMemService(t)
	ctx := context.Background()
	event := mustCreate(t, s, "host", validChallenge(model.ChallengeTeamEvent))
	team, err := s.CreateTeam(ctx, "ann", event.ID, "Gophers", "")
	require.NoError(t, err)

	_, err = s.JoinChallenge(ctx, event.ID, "ben", team.ID)
	assertCode(t, err, apiErrors.NotEligible)
	_, err = s.JoinChallenge(ctx, event.ID, "ann", "no-such-team")
	assertCode(t, err, apiErrors.NotEligible)

	joined, err := s.JoinChallenge(ctx, event.ID, "ann", team.ID)
	require.NoError(t, err)
	assert.Equal(t, team.ID, joined.Participants[0].TeamID)
}

func TestApplications_Workflow(t *testing.T) {
	s, _ := newMemService(t)
	ctx := context.Background()

	public := mustCreate(t, s, "host", validChallenge(model.ChallengeBounty))
	_, err := s.SubmitApplication(ctx, "ann", public.ID, "let me in")
	assertCode(t, err, apiErrors.NotEligible)

	in := validChallenge(model.ChallengeBounty)
	in.Privacy = model.PrivacyPrivate
	private := mustCreate(t, s, "host", in)

	_, err = s.SubmitApplication(ctx, "host", private.ID, "")
	assertCode(t, err, apiErrors.NotEligible)

	_, err = s.JoinChallenge(ctx, private.ID, "ann", "")
	assertCode(t, err, apiErrors.NotEligible)

	app, err := s.SubmitApplication(ctx, "ann", private.ID, " please ")
	require.NoError(t, err)
	assert.Equal(t, model.ApplicationPending, app.Status)
	assert.Equal(t, "please", app.Message)

	found, err := s.UserApplication(ctx, private.ID, "ann")
	require.NoError(t, err)
	assert.Equal(t, app.ID, found.ID)
	_, err = s.UserApplication(ctx, private.ID, "ben")
	assertCode(t, err, apiErrors.NotFound)

	_, err = s.ChallengeApplications(ctx, "ann", private.ID)
	assertCode(t, err, apiErrors.Forbidden)
	_, err = s.ReviewApplication(ctx, "ann", app.ID, model.ApplicationApproved)
	assertCode(t, err, apiErrors.Forbidden)

	approved, err := s.ReviewApplication(ctx, "host", app.ID, model.ApplicationApproved)
	require.NoError(t, err)
	assert.Equal(t, model.ApplicationApproved, approved.Status)

	// approval alone does not admit; the applicant joins next
	c, err := s.GetChallenge(ctx, private.ID)
	require.NoError(t, err)
	_, ok := c.Participant("ann")
	assert.False(t, ok)

	c, err = s.JoinChallenge(ctx, private.ID, "ann", "")
	require.NoError(t, err)
	_, ok = c.Participant("ann")
	assert.True(t, ok)

	// decided applications never move again
	_, err = s.ReviewApplication(ctx, "host", app.ID, model.ApplicationRejected)
	assertCode(t, err, apiErrors.NotEligible)

	other, err := s.SubmitApplication(ctx, "ben", private.ID, "")
	require.NoError(t, err)
	rejected, err := s.ReviewApplication(ctx, "host", other.ID, model.ApplicationRejected)
	require.NoError(t, err)
	assert.Equal(t, model.ApplicationRejected, rejected.Status)
	_, err = s.ReviewApplication(ctx, "host", other.ID, model.ApplicationApproved)
	assertCode(t, err, apiErrors.NotEligible)

	apps, err := s.ChallengeApplications(ctx, "host", private.ID)
	require.NoError(t, err)
	assert.Len(t, apps, 2)
	mine, err := s.UserApplications(ctx, "ben")
	require.NoError(t, err)
	assert.Len(t, mine, 1)
}

func TestApplications_ApproveAfterChallengeStarted(t *testing.T) {
	s, _ := newMemService(t)
	ctx := context.Background()

	in := validChallenge(model.ChallengeDuel)
	in.Privacy = model.PrivacyPrivate
	duel := mustCreate(t, s, "host", in)

	first, err := s.SubmitApplication(ctx, "ann", duel.ID, "")
	require.NoError(t, err)
	late, err := s.SubmitApplication(ctx, "ben", duel.ID, "")
	require.NoError(t, err)
	_, err = s.ReviewApplication(ctx, "host", first.ID, model.ApplicationApproved)
	require.NoError(t, err)
	_, err = s.JoinChallenge(ctx, duel.ID, "ann", "")
	require.NoError(t, err)

	active := model.StatusActive
	_, err = s.UpdateChallenge(ctx, "host", duel.ID, ChallengePatch{Status: &active})
	require.NoError(t, err)

	// full and no longer pending, yet the decision still lands
	approved, err := s.ReviewApplication(ctx, "host", late.ID, model.ApplicationApproved)
	require.NoError(t, err)
	assert.Equal(t, model.ApplicationApproved, approved.Status)

	_, err = s.JoinChallenge(ctx, duel.ID, "ben", "")
	assertCode(t, err, apiErrors.NotEligible)
	c, err := s.GetChallenge(ctx, duel.ID)
	require.NoError(t, err)
	assert.Len(t, c.Participants, 1)
}

func TestUserChallengesAndStats(t *testing.T) {
	s, repo := newMemService(t)
	ctx := context.Background()
	seedUsers(t, repo, "ann", "host")

	own := mustCreate(t, s, "ann", validChallenge(model.ChallengeBounty))
	in := validChallenge(model.ChallengeBounty)
	in.PrizeAmount = 250
	prize := mustCreate(t, s, "host", in)
	_, err := s.JoinChallenge(ctx, prize.ID, "ann", "")
	require.NoError(t, err)

	for _, st := range []model.ChallengeStatus{model.StatusActive, model.StatusSubmissionPhase, model.StatusJudging, model.StatusCompleted} {
		st := st
		_, err := s.UpdateChallenge(ctx, "host", prize.ID, ChallengePatch{Status: &st})
		require.NoError(t, err)
	}

	mine, err := s.UserChallenges(ctx, "ann")
	require.NoError(t, err)
	require.Len(t, mine.Created, 1)
	assert.Equal(t, own.ID, mine.Created[0].ID)
	require.Len(t, mine.Participating, 1)
	assert.Equal(t, prize.ID, mine.Participating[0].ID)

	stats, err := s.DashboardStats(ctx, "ann")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalChallenges)
	assert.Equal(t, 1, stats.CompletedChallenges)
	assert.Equal(t, 250.0, stats.TotalEarnings)
	assert.Equal(t, model.InitialRating, stats.Rating)
}

func TestDeleteChallenge_CreatorOnly(t *testing.T) {
	s, _ := newMemService(t)
	ctx := context.Background()
	c := mustCreate(t, s, "host", validChallenge(model.ChallengeBounty))

	assertCode(t, s.DeleteChallenge(ctx, "ann", c.ID), apiErrors.Forbidden)
	require.NoError(t, s.DeleteChallenge(ctx, "host", c.ID))
	_, err := s.GetChallenge(ctx, c.ID)
	assertCode(t, err, apiErrors.NotFound)
}

func TestCachedReadsFollowWrites(t *testing.T) {
	s, _ := newMemService(t, WithCache(cache.NewMemory(time.Minute)))
	ctx := context.Background()
	c := mustCreate(t, s, "host", validChallenge(model.ChallengeBounty))

	page, err := s.ListChallenges(ctx, model.ChallengeFilter{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)

	_, err = s.JoinChallenge(ctx, c.ID, "ann", "")
	require.NoError(t, err)

	got, err := s.GetChallenge(ctx, c.ID)
	require.NoError(t, err)
	assert.Len(t, got.Participants, 1)

	page, err = s.ListChallenges(ctx, model.ChallengeFilter{})
	require.NoError(t, err)
	assert.Len(t, page.Items[0].Participants, 1)
}

func TestUploads(t *testing.T) {
	store := blob.NewMemory("https://cdn.test")
	s, repo := newMemService(t, WithBlobStorage(store))
	ctx := context.Background()
	seedUsers(t, repo, "ann")

	png := func() Upload {
		return Upload{Filename: "me.png", ContentType: "image/png", Size: 4, Body: strings.NewReader("\x89PNG")}
	}

	u, err := s.UploadAvatar(ctx, "ann", png())
	require.NoError(t, err)
	first := u.Platform.ProfileImageURL
	assert.True(t, strings.HasPrefix(first, "https://cdn.test/users/ann/avatar/"))

	u, err = s.UploadAvatar(ctx, "ann", png())
	require.NoError(t, err)
	require.NotEqual(t, first, u.Platform.ProfileImageURL)
	firstKey, _ := store.KeyOf(first)
	_, ok := store.Object(firstKey)
	assert.False(t, ok, "replaced avatar is deleted")

	_, err = s.UploadAvatar(ctx, "ann", Upload{ContentType: "application/pdf", Size: 3, Body: strings.NewReader("pdf")})
	assertCode(t, err, apiErrors.Validation)

	c := mustCreate(t, s, "host", validChallenge(model.ChallengeBounty))
	_, err = s.UploadChallengeBanner(ctx, "ann", c.ID, png())
	assertCode(t, err, apiErrors.Forbidden)
	banner, err := s.UploadChallengeBanner(ctx, "host", c.ID, png())
	require.NoError(t, err)
	assert.Contains(t, banner.BannerImageURL, "/challenges/"+c.ID+"/banner/fastest-parser-")

	_, err = s.UploadSubmissionFile(ctx, "ann", c.ID, Upload{Filename: "sol.zip", Size: 3, Body: strings.NewReader("zip")})
	assertCode(t, err, apiErrors.NotEligible)
	_, err = s.JoinChallenge(ctx, c.ID, "ann", "")
	require.NoError(t, err)
	url, err := s.UploadSubmissionFile(ctx, "ann", c.ID, Upload{Filename: "sol.zip", Size: 3, Body: strings.NewReader("zip")})
	require.NoError(t, err)
	assert.Contains(t, url, "/challenges/"+c.ID+"/submissions/ann/")
}

func TestUploads_DisabledWithoutStorage(t *testing.T) {
	s, repo := newMemService(t)
	seedUsers(t, repo, "ann")

	_, err := s.UploadAvatar(context.Background(), "ann", Upload{ContentType: "image/png", Size: 1, Body: strings.NewReader("x")})
	assertCode(t, err, apiErrors.NotEligible)
}

func TestUpdatePreferences(t *testing.T) {
	s, repo := newMemService(t)
	seedUsers(t, repo, "ann")
	off := false
	langs := []string{" Go ", "", "Rust"}

	u, err := s.UpdatePreferences(context.Background(), "ann", PreferencesPatch{
		PublicProfile:      &off,
		PreferredLanguages: &langs,
	})
	require.NoError(t, err)
	assert.False(t, u.Platform.Preferences.PublicProfile)
	assert.True(t, u.Platform.Preferences.EmailNotifications)
	assert.Equal(t, []string{"Go", "Rust"}, u.Platform.Preferences.PreferredLanguages)
}

func TestUpdatePreferences_PartialPatchKeepsOtherFlags(t *testing.T) {
	s, repo := newMemService(t)
	seedUsers(t, repo, "ann")
	langs := []string{"Go"}

	u, err := s.UpdatePreferences(context.Background(), "ann", PreferencesPatch{PreferredLanguages: &langs})
	require.NoError(t, err)
	assert.True(t, u.Platform.Preferences.PublicProfile)
	assert.True(t, u.Platform.Preferences.EmailNotifications)
	assert.Equal(t, []string{"Go"}, u.Platform.Preferences.PreferredLanguages)
}
