package entity

import "time"

type ParticipantRole string

const (
	RoleTraveller ParticipantRole = "traveller"
	RoleGuide     ParticipantRole = "guide"
)

type Participant struct {
	UserID      string          `json:"user_id" firestore:"userId"`
	Role        ParticipantRole `json:"role" firestore:"role"`
	DisplayName string          `json:"display_name" firestore:"displayName"`
	AvatarURL   string          `json:"avatar_url,omitempty" firestore:"avatarURL,omitempty"`
}

// ChatRoom is the negotiation thread between one traveller and one guide.
// The participant set never changes after creation.
type ChatRoom struct {
	ID             string        `json:"id" firestore:"id"`
	Participants   []Participant `json:"participants" firestore:"participants"`
	ParticipantIDs []string      `json:"-" firestore:"participantIds"` // query helper
	ContextRef     string        `json:"context_ref,omitempty" firestore:"contextRef,omitempty"`
	CreatedAt      time.Time     `json:"created_at" firestore:"createdAt"`
	UpdatedAt      time.Time     `json:"updated_at" firestore:"updatedAt"`
	LastMessageAt  time.Time     `json:"last_message_at" firestore:"lastMessageAt"`
	LastMessage    string        `json:"last_message,omitempty" firestore:"lastMessage,omitempty"`
}

func (r *ChatRoom) Participant(userID string) (Participant, bool) {
	for _, p := range r.Participants {
		if p.UserID == userID {
			return p, true
		}
	}
	return Participant{}, false
}

func (r *ChatRoom) ParticipantByRole(role ParticipantRole) (Participant, bool) {
	for _, p := range r.Participants {
		if p.Role == role {
			return p, true
		}
	}
	return Participant{}, false
}

func (r *ChatRoom) HasRole(userID string, role ParticipantRole) bool {
	p, ok := r.Participant(userID)
	return ok && p.Role == role
}
