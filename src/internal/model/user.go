package model

import "time"

const (
	InitialRating           = 1200
	preferredLanguagesLimit = 3
)

type User struct {
	UID         string        `json:"uid" firestore:"uid"`
	Email       string        `json:"email" firestore:"email"`
	DisplayName string        `json:"display_name" firestore:"display_name"`
	PhotoURL    string        `json:"photo_url" firestore:"photo_url"`
	GitHub      GitHubProfile `json:"github" firestore:"github"`
	Platform    Platform      `json:"platform" firestore:"platform"`
	Meta
}

// GitHubProfile is the snapshot mirrored from the external profile on every login.
type GitHubProfile struct {
	Username    string    `json:"username" firestore:"username"`
	AvatarURL   string    `json:"avatar_url" firestore:"avatar_url"`
	Bio         string    `json:"bio" firestore:"bio"`
	PublicRepos int       `json:"public_repos" firestore:"public_repos"`
	Followers   int       `json:"followers" firestore:"followers"`
	Following   int       `json:"following" firestore:"following"`
	Languages   []string  `json:"languages" firestore:"languages"`
	HTMLURL     string    `json:"html_url" firestore:"html_url"`
	CreatedAt   time.Time `json:"created_at" firestore:"created_at"`
}

type Platform struct {
	Rating                 int         `json:"rating" firestore:"rating"`
	ChallengesCreated      int         `json:"challenges_created" firestore:"challenges_created"`
	ChallengesWon          int         `json:"challenges_won" firestore:"challenges_won"`
	ChallengesParticipated int         `json:"challenges_participated" firestore:"challenges_participated"`
	ProfileImageURL        string      `json:"profile_image_url,omitempty" firestore:"profile_image_url,omitempty"`
	JoinedAt               time.Time   `json:"joined_at" firestore:"joined_at"`
	LastActive             time.Time   `json:"last_active" firestore:"last_active"`
	Preferences            Preferences `json:"preferences" firestore:"preferences"`
}

type Preferences struct {
	EmailNotifications bool     `json:"email_notifications" firestore:"email_notifications"`
	PublicProfile      bool     `json:"public_profile" firestore:"public_profile"`
	PreferredLanguages []string `json:"preferred_languages" firestore:"preferred_languages"`
}

// NewUser builds the document stored on a first login.
func NewUser(uid, email, displayName, photoURL string, gh GitHubProfile, now time.Time) User {
	preferred := gh.Languages
	if len(preferred) > preferredLanguagesLimit {
		preferred = preferred[:preferredLanguagesLimit]
	}
	u := User{
		UID:         uid,
		Email:       email,
		DisplayName: displayName,
		PhotoURL:    photoURL,
		GitHub:      gh,
		Platform: Platform{
			Rating:     InitialRating,
			JoinedAt:   now,
			LastActive: now,
			Preferences: Preferences{
				EmailNotifications: true,
				PublicProfile:      true,
				PreferredLanguages: append([]string{}, preferred...),
			},
		},
	}
	u.Touch(now)
	return u
}

// MergeLogin folds a fresh login into a stored user. Empty provider values keep what is stored.
func (u *User) MergeLogin(email, displayName, photoURL string, gh GitHubProfile, now time.Time) {
	if email != "" {
		u.Email = email
	}
	if displayName != "" {
		u.DisplayName = displayName
	}
	if photoURL != "" {
		u.PhotoURL = photoURL
	}
	u.GitHub = gh
	u.Platform.LastActive = now
	u.Touch(now)
}
