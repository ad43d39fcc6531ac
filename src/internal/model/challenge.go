package model

import "time"

type ChallengeType string

const (
	ChallengeDuel      ChallengeType = "duel"
	ChallengeTeamEvent ChallengeType = "team-event"
	ChallengeBounty    ChallengeType = "bounty"
)

func (t ChallengeType) Valid() bool {
	switch t {
	case ChallengeDuel, ChallengeTeamEvent, ChallengeBounty:
		return true
	}
	return false
}

const (
	DuelParticipantCap      = 2
	UnlimitedParticipantCap = 999
)

// ParticipantCap is the participant limit a new challenge of type t gets.
func ParticipantCap(t ChallengeType) int {
	if t == ChallengeDuel {
		return DuelParticipantCap
	}
	return UnlimitedParticipantCap
}

type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

type Privacy string

const (
	PrivacyPublic  Privacy = "public"
	PrivacyPrivate Privacy = "private"
)

func (p Privacy) Valid() bool {
	return p == PrivacyPublic || p == PrivacyPrivate
}

type ChallengeStatus string

const (
	StatusPending         ChallengeStatus = "pending"
	StatusActive          ChallengeStatus = "active"
	StatusSubmissionPhase ChallengeStatus = "submission_phase"
	StatusJudging         ChallengeStatus = "judging"
	StatusCompleted       ChallengeStatus = "completed"
	StatusCancelled       ChallengeStatus = "cancelled"
)

var statusOrder = []ChallengeStatus{
	StatusPending,
	StatusActive,
	StatusSubmissionPhase,
	StatusJudging,
	StatusCompleted,
}

func (s ChallengeStatus) Valid() bool {
	return s == StatusCancelled || s.position() >= 0
}

func (s ChallengeStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanTransitionTo allows one step forward along the lifecycle, or cancellation of a non-terminal challenge.
func (s ChallengeStatus) CanTransitionTo(next ChallengeStatus) bool {
	if s.Terminal() || !next.Valid() {
		return false
	}
	if next == StatusCancelled {
		return true
	}
	return next.position() == s.position()+1
}

func (s ChallengeStatus) position() int {
	for i, st := range statusOrder {
		if st == s {
			return i
		}
	}
	return -1
}

type ParticipantStatus string

const (
	ParticipantActive       ParticipantStatus = "active"
	ParticipantSubmitted    ParticipantStatus = "submitted"
	ParticipantDisqualified ParticipantStatus = "disqualified"
)

type Participant struct {
	UserUID  string            `json:"user_uid" firestore:"user_uid"`
	TeamID   string            `json:"team_id,omitempty" firestore:"team_id,omitempty"`
	JoinedAt time.Time         `json:"joined_at" firestore:"joined_at"`
	Status   ParticipantStatus `json:"status" firestore:"status"`
}

type TestCase struct {
	Input          string `json:"input" firestore:"input"`
	ExpectedOutput string `json:"expected_output" firestore:"expected_output"`
	IsPublic       bool   `json:"is_public" firestore:"is_public"`
}

type Problem struct {
	Statement        string     `json:"statement" firestore:"statement"`
	Requirements     []string   `json:"requirements" firestore:"requirements"`
	SubmissionFormat string     `json:"submission_format" firestore:"submission_format"`
	JudgingCriteria  []string   `json:"judging_criteria" firestore:"judging_criteria"`
	TestCases        []TestCase `json:"test_cases,omitempty" firestore:"test_cases,omitempty"`
}

type Submission struct {
	UserUID       string    `json:"user_uid" firestore:"user_uid"`
	TeamID        string    `json:"team_id,omitempty" firestore:"team_id,omitempty"`
	SubmissionURL string    `json:"submission_url" firestore:"submission_url"`
	GitHubRepo    string    `json:"github_repo,omitempty" firestore:"github_repo,omitempty"`
	Description   string    `json:"description" firestore:"description"`
	SubmittedAt   time.Time `json:"submitted_at" firestore:"submitted_at"`
	Score         *float64  `json:"score,omitempty" firestore:"score,omitempty"`
	Feedback      string    `json:"feedback,omitempty" firestore:"feedback,omitempty"`
}

type Challenge struct {
	ID                 string          `json:"id" firestore:"-"`
	CreatorUID         string          `json:"creator_uid" firestore:"creator_uid"`
	Type               ChallengeType   `json:"type" firestore:"type"`
	Title              string          `json:"title" firestore:"title"`
	Description        string          `json:"description" firestore:"description"`
	BannerImageURL     string          `json:"banner_image_url,omitempty" firestore:"banner_image_url,omitempty"`
	Difficulty         Difficulty      `json:"difficulty" firestore:"difficulty"`
	DurationHours      int             `json:"duration_hours" firestore:"duration_hours"`
	LanguagesAllowed   []string        `json:"languages_allowed" firestore:"languages_allowed"`
	Privacy            Privacy         `json:"privacy" firestore:"privacy"`
	Status             ChallengeStatus `json:"status" firestore:"status"`
	MaxParticipants    int             `json:"max_participants" firestore:"max_participants"`
	MaxTeamSize        int             `json:"max_team_size,omitempty" firestore:"max_team_size,omitempty"`
	PrizeAmount        float64         `json:"prize_amount,omitempty" firestore:"prize_amount,omitempty"`
	Participants       []Participant   `json:"participants" firestore:"participants"`
	Problem            Problem         `json:"problem" firestore:"problem"`
	Submissions        []Submission    `json:"submissions" firestore:"submissions"`
	StartedAt          *time.Time      `json:"started_at,omitempty" firestore:"started_at,omitempty"`
	SubmissionDeadline *time.Time      `json:"submission_deadline,omitempty" firestore:"submission_deadline,omitempty"`
	EndedAt            *time.Time      `json:"ended_at,omitempty" firestore:"ended_at,omitempty"`
	ParticipantUIDs    []string        `json:"-" firestore:"participant_uids"`
	Meta
}

// Reindex refreshes the derived fields the stores query on.
func (c *Challenge) Reindex() {
	if c.Participants == nil {
		c.Participants = []Participant{}
	}
	if c.Submissions == nil {
		c.Submissions = []Submission{}
	}
	c.ParticipantUIDs = make([]string, 0, len(c.Participants))
	for _, p := range c.Participants {
		c.ParticipantUIDs = append(c.ParticipantUIDs, p.UserUID)
	}
}

func (c *Challenge) Participant(uid string) (Participant, bool) {
	for _, p := range c.Participants {
		if p.UserUID == uid {
			return p, true
		}
	}
	return Participant{}, false
}

func (c *Challenge) HasSubmitted(uid string) bool {
	for _, s := range c.Submissions {
		if s.UserUID == uid {
			return true
		}
	}
	return false
}

// RemoveParticipant drops the first record of uid, the one a lookup by uid
// finds, and reports whether there was one.
func (c *Challenge) RemoveParticipant(uid string) bool {
	for i, p := range c.Participants {
		if p.UserUID == uid {
			c.Participants = append(c.Participants[:i:i], c.Participants[i+1:]...)
			return true
		}
	}
	return false
}

// SeatsTaken counts occupied seats. In a duel the creator holds one of the two.
func (c *Challenge) SeatsTaken() int {
	if c.Type == ChallengeDuel {
		return len(c.Participants) + 1
	}
	return len(c.Participants)
}

func (c *Challenge) Full() bool {
	return c.SeatsTaken() >= c.MaxParticipants
}

// SupportsTeams reports whether teams can be formed inside the challenge.
func (c *Challenge) SupportsTeams() bool {
	return c.Type == ChallengeTeamEvent && c.MaxTeamSize > 1
}

type ChallengeFilter struct {
	Type       ChallengeType
	Difficulty Difficulty
	Status     ChallengeStatus
	CreatorUID string
	Privacy    Privacy
	Limit      int
	Cursor     string
}

type ChallengePage struct {
	Items      []Challenge `json:"items"`
	NextCursor string      `json:"next_cursor,omitempty"`
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// PageSize clamps the requested limit.
func (f ChallengeFilter) PageSize() int {
	switch {
	case f.Limit <= 0:
		return DefaultPageSize
	case f.Limit > MaxPageSize:
		return MaxPageSize
	}
	return f.Limit
}
