package model

type ApplicationStatus string

const (
	ApplicationPending  ApplicationStatus = "pending"
	ApplicationApproved ApplicationStatus = "approved"
	ApplicationRejected ApplicationStatus = "rejected"
)

// Decided reports whether the creator already ruled on the application.
func (s ApplicationStatus) Decided() bool {
	return s == ApplicationApproved || s == ApplicationRejected
}

type Application struct {
	ID           string            `json:"id" firestore:"-"`
	ChallengeID  string            `json:"challenge_id" firestore:"challenge_id"`
	ApplicantUID string            `json:"applicant_uid" firestore:"applicant_uid"`
	Message      string            `json:"message,omitempty" firestore:"message,omitempty"`
	Status       ApplicationStatus `json:"status" firestore:"status"`
	Meta
}
