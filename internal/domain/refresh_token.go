package domain

import (
	"time"

	"github.com/google/uuid"
)

// RefreshToken is the persisted form of a refresh token. Only the keyed hash of
// the bearer value is stored.
type RefreshToken struct {
	ID         uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	UserID     uuid.UUID `json:"userId" gorm:"type:uuid;index;not null"`
	TokenHash  string    `json:"-" gorm:"uniqueIndex;not null"`
	ExpiresAt  time.Time `json:"expiresAt" gorm:"index;not null"`
	LastUsedAt time.Time `json:"lastUsedAt" gorm:"not null"`
	CreatedAt  time.Time `json:"createdAt"`
}

func (t *RefreshToken) Expired(now time.Time) bool {
	return !t.ExpiresAt.After(now)
}
