package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestChallengeStatus_CanTransitionTo(t *testing.T) {
	cases := []struct {
		from, to ChallengeStatus
		ok       bool
	}{
		{StatusPending, StatusActive, true},
		{StatusActive, StatusSubmissionPhase, true},
		{StatusSubmissionPhase, StatusJudging, true},
		{StatusJudging, StatusCompleted, true},
		{StatusPending, StatusJudging, false},
		{StatusActive, StatusPending, false},
		{StatusJudging, StatusCancelled, true},
		{StatusCompleted, StatusCancelled, false},
		{StatusCancelled, StatusPending, false},
		{StatusPending, ChallengeStatus("archived"), false},
	}
	for _, c := range cases {
		assert.Equal(t, c.ok, c.from.CanTransitionTo(c.to), "%s -> %s", c.from, c.to)
	}
}

func TestParticipantCap(t *testing.T) {
	assert.Equal(t, 2, ParticipantCap(ChallengeDuel))
	assert.Equal(t, 999, ParticipantCap(ChallengeBounty))
	assert.Equal(t, 999, ParticipantCap(ChallengeTeamEvent))
}

func TestChallenge_DuelCreatorHoldsASeat(t *testing.T) {
	duel := Challenge{Type: ChallengeDuel, MaxParticipants: ParticipantCap(ChallengeDuel)}
	assert.False(t, duel.Full())
	duel.Participants = append(duel.Participants, Participant{UserUID: "b"})
	assert.True(t, duel.Full())

	bounty := Challenge{Type: ChallengeBounty, MaxParticipants: 2, Participants: []Participant{{UserUID: "b"}}}
	assert.False(t, bounty.Full())
}

func TestChallenge_RemoveParticipant(t *testing.T) {
	c := Challenge{Participants: []Participant{
		{UserUID: "b", JoinedAt: time.Unix(1, 0)},
		{UserUID: "c"},
		{UserUID: "b", JoinedAt: time.Unix(2, 0)},
	}}

	assert.True(t, c.RemoveParticipant("b"))
	assert.Equal(t, []Participant{{UserUID: "c"}, {UserUID: "b", JoinedAt: time.Unix(2, 0)}}, c.Participants)
	assert.False(t, c.RemoveParticipant("x"))
}

func TestTeam_SuccessorFollowsListOrder(t *testing.T) {
	team := Team{Members: []TeamMember{
		{UserUID: "m0", Status: MemberLeft},
		{UserUID: "l", Role: RoleLeader, Status: MemberActive},
		{UserUID: "m1", Status: MemberActive},
		{UserUID: "m2", Status: MemberActive},
	}}

	assert.Equal(t, 2, team.Successor("l"))
	assert.Equal(t, 3, team.ActiveCount())

	team.Reindex()
	assert.Equal(t, []string{"l", "m1", "m2"}, team.MemberUIDs)
}

func TestNewUser_Defaults(t *testing.T) {
	now := time.Now()
	u := NewUser("u1", "a@b.c", "Alice", "", GitHubProfile{Languages: []string{"Go", "Rust", "C", "Zig"}}, now)

	assert.Equal(t, InitialRating, u.Platform.Rating)
	assert.True(t, u.Platform.Preferences.EmailNotifications)
	assert.True(t, u.Platform.Preferences.PublicProfile)
	assert.Equal(t, []string{"Go", "Rust", "C"}, u.Platform.Preferences.PreferredLanguages)
	assert.Equal(t, now, u.CreatedAt)
}

func TestUser_MergeLoginKeepsStoredValues(t *testing.T) {
	joined := time.Now().Add(-time.Hour)
	u := NewUser("u1", "a@b.c", "Alice", "http://img", GitHubProfile{Username: "alice"}, joined)
	u.Platform.Rating = 1500

	now := time.Now()
	u.MergeLogin("", "Alice B", "", GitHubProfile{Username: "alice", PublicRepos: 4}, now)

	assert.Equal(t, "a@b.c", u.Email)
	assert.Equal(t, "Alice B", u.DisplayName)
	assert.Equal(t, "http://img", u.PhotoURL)
	assert.Equal(t, 4, u.GitHub.PublicRepos)
	assert.Equal(t, 1500, u.Platform.Rating)
	assert.Equal(t, now, u.Platform.LastActive)
	assert.Equal(t, joined, u.CreatedAt)
}
