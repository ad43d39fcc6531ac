package model

import "time"

type MemberRole string

const (
	RoleLeader MemberRole = "leader"
	RoleMember MemberRole = "member"
)

type MemberStatus string

const (
	MemberActive  MemberStatus = "active"
	MemberLeft    MemberStatus = "left"
	MemberRemoved MemberStatus = "removed"
)

type TeamMember struct {
	UserUID  string       `json:"user_uid" firestore:"user_uid"`
	Role     MemberRole   `json:"role" firestore:"role"`
	JoinedAt time.Time    `json:"joined_at" firestore:"joined_at"`
	Status   MemberStatus `json:"status" firestore:"status"`
}

type Team struct {
	ID          string       `json:"id" firestore:"-"`
	ChallengeID string       `json:"challenge_id" firestore:"challenge_id"`
	Name        string       `json:"name" firestore:"name"`
	Description string       `json:"description,omitempty" firestore:"description,omitempty"`
	LeaderUID   string       `json:"leader_uid" firestore:"leader_uid"`
	Members     []TeamMember `json:"members" firestore:"members"`
	MaxSize     int          `json:"max_size" firestore:"max_size"`
	IsOpen      bool         `json:"is_open" firestore:"is_open"`
	MemberUIDs  []string     `json:"-" firestore:"member_uids"`
	Meta
}

// Reindex refreshes MemberUIDs with the currently active members.
func (t *Team) Reindex() {
	if t.Members == nil {
		t.Members = []TeamMember{}
	}
	t.MemberUIDs = make([]string, 0, len(t.Members))
	for _, m := range t.Members {
		if m.Status == MemberActive {
			t.MemberUIDs = append(t.MemberUIDs, m.UserUID)
		}
	}
}

func (t *Team) ActiveCount() int {
	n := 0
	for _, m := range t.Members {
		if m.Status == MemberActive {
			n++
		}
	}
	return n
}

// ActiveIndex returns the list position of uid's active record, or -1.
func (t *Team) ActiveIndex(uid string) int {
	for i, m := range t.Members {
		if m.UserUID == uid && m.Status == MemberActive {
			return i
		}
	}
	return -1
}

// Successor is the first active member other than uid in stored order, or -1.
func (t *Team) Successor(uid string) int {
	for i, m := range t.Members {
		if m.UserUID != uid && m.Status == MemberActive {
			return i
		}
	}
	return -1
}
