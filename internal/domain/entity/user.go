package entity

import (
	"time"
)

const (
	UserRoleTraveller = "traveller"
	UserRoleGuide     = "guide"
	UserRoleAdmin     = "admin"
)

type User struct {
	ID          string `json:"id" firestore:"id"`
	Email       string `json:"email" firestore:"email"`
	DisplayName string `json:"display_name" firestore:"displayName"`
	Role        string `json:"role" firestore:"role"`
	AvatarURL   string `json:"avatar_url,omitempty" firestore:"avatarURL,omitempty"`

	// Guides only. Zero means the profile has no configured rate yet.
	HourlyRate float64 `json:"hourly_rate,omitempty" firestore:"hourlyRate,omitempty"`
	Currency   string  `json:"currency,omitempty" firestore:"currency,omitempty"`

	CreatedAt time.Time `json:"created_at" firestore:"createdAt"`
	UpdatedAt time.Time `json:"updated_at" firestore:"updatedAt"`
}
