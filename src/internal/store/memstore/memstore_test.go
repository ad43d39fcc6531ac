package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/ce-fello/codeclash-service/src/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateChallenge_RejectsStaleVersion(t *testing.T) {
	ctx := context.Background()
	s := New()

	c, err := s.CreateChallenge(ctx, model.Challenge{Title: "duel", Status: model.StatusPending})
	require.NoError(t, err)
	assert.EqualValues(t, 1, c.Version)

	first := c
	first.Participants = append(first.Participants, model.Participant{UserUID: "b"})
	updated, err := s.UpdateChallenge(ctx, first)
	require.NoError(t, err)
	assert.EqualValues(t, 2, updated.Version)
	assert.Equal(t, []string{"b"}, updated.ParticipantUIDs)

	second := c
	second.Participants = append(second.Participants, model.Participant{UserUID: "c"})
	_, err = s.UpdateChallenge(ctx, second)
	assert.ErrorIs(t, err, model.ErrConflict)

	_, err = s.UpdateChallenge(ctx, model.Challenge{ID: "missing"})
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestReadsAreCopies(t *testing.T) {
	ctx := context.Background()
	s := New()
	c, err := s.CreateChallenge(ctx, model.Challenge{LanguagesAllowed: []string{"go"}})
	require.NoError(t, err)

	c.LanguagesAllowed[0] = "rust"
	got, err := s.GetChallenge(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"go"}, got.LanguagesAllowed)
}

func TestListChallenges_FiltersAndPages(t *testing.T) {
	ctx := context.Background()
	s := New()
	base := time.Now()
	var ids []string
	for i := 0; i < 5; i++ {
		typ := model.ChallengeBounty
		if i%2 == 0 {
			typ = model.ChallengeDuel
		}
		c := model.Challenge{Type: typ}
		c.Touch(base.Add(time.Duration(i) * time.Minute))
		created, err := s.CreateChallenge(ctx, c)
		require.NoError(t, err)
		ids = append(ids, created.ID)
	}

	page, err := s.ListChallenges(ctx, model.ChallengeFilter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, ids[4], page.Items[0].ID)
	assert.Equal(t, ids[3], page.Items[1].ID)
	assert.Equal(t, ids[3], page.NextCursor)

	page, err = s.ListChallenges(ctx, model.ChallengeFilter{Limit: 2, Cursor: page.NextCursor})
	require.NoError(t, err)
	assert.Equal(t, ids[2], page.Items[0].ID)

	page, err = s.ListChallenges(ctx, model.ChallengeFilter{Type: model.ChallengeDuel})
	require.NoError(t, err)
	assert.Len(t, page.Items, 3)
	assert.Empty(t, page.NextCursor)
}

func TestTeamsByMember_OnlyActive(t *testing.T) {
	ctx := context.Background()
	s := New()
	_, err := s.CreateTeam(ctx, model.Team{ChallengeID: "c1", Members: []model.TeamMember{
		{UserUID: "a", Status: model.MemberActive},
		{UserUID: "b", Status: model.MemberLeft},
	}})
	require.NoError(t, err)

	teams, err := s.ListTeamsByMember(ctx, "a")
	require.NoError(t, err)
	assert.Len(t, teams, 1)

	teams, err = s.ListTeamsByMember(ctx, "b")
	require.NoError(t, err)
	assert.Empty(t, teams)
}

func TestDeleteTeam_RejectsStaleVersion(t *testing.T) {
	ctx := context.Background()
	s := New()
	team, err := s.CreateTeam(ctx, model.Team{ChallengeID: "c1", Members: []model.TeamMember{
		{UserUID: "a", Role: model.RoleLeader, Status: model.MemberActive},
	}})
	require.NoError(t, err)

	joined := team
	joined.Members = append(joined.Members, model.TeamMember{UserUID: "b", Status: model.MemberActive})
	_, err = s.UpdateTeam(ctx, joined)
	require.NoError(t, err)

	assert.ErrorIs(t, s.DeleteTeam(ctx, team.ID, team.Version), model.ErrConflict)
	kept, err := s.GetTeam(ctx, team.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, kept.ActiveCount())

	require.NoError(t, s.DeleteTeam(ctx, team.ID, kept.Version))
	assert.ErrorIs(t, s.DeleteTeam(ctx, team.ID, kept.Version), model.ErrNotFound)
}

func TestFindApplication_ReturnsOldest(t *testing.T) {
	ctx := context.Background()
	s := New()
	now := time.Now()

	first := model.Application{ChallengeID: "c1", ApplicantUID: "u", Status: model.ApplicationPending}
	first.Touch(now)
	created, err := s.CreateApplication(ctx, first)
	require.NoError(t, err)

	dup := first
	dup.Touch(now.Add(time.Second))
	dup.CreatedAt = now.Add(time.Second)
	_, err = s.CreateApplication(ctx, dup)
	require.NoError(t, err)

	found, err := s.FindApplication(ctx, "c1", "u")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)

	_, err = s.FindApplication(ctx, "c1", "other")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestListTopUsers_ByRating(t *testing.T) {
	ctx := context.Background()
	s := New()
	for uid, rating := range map[string]int{"low": 1100, "high": 1600, "mid": 1300} {
		u := model.NewUser(uid, "", uid, "", model.GitHubProfile{}, time.Now())
		u.Platform.Rating = rating
		_, err := s.CreateUser(ctx, u)
		require.NoError(t, err)
	}

	users, err := s.ListTopUsers(ctx, 2)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "high", users[0].UID)
	assert.Equal(t, "mid", users[1].UID)
}
