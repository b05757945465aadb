package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID                uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	ExternalSubjectID string    `json:"externalSubjectId" gorm:"uniqueIndex;not null"`
	Email             string    `json:"email" gorm:"uniqueIndex;not null"`
	DisplayName       *string   `json:"displayName"`
	AvatarURL         *string   `json:"avatarUrl"`
	LastLoginAt       time.Time `json:"lastLoginAt" gorm:"not null"`
	// TokensValidAfter rejects identity assertions issued before it.
	TokensValidAfter *time.Time `json:"-"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// NormalizeEmail lowercases and trims an address so the unique index is case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

type UserStats struct {
	UserID       uuid.UUID `json:"userId"`
	Email        string    `json:"email"`
	MemberSince  time.Time `json:"memberSince"`
	LastLogin    time.Time `json:"lastLogin"`
	SnippetCount int64     `json:"snippetCount"`
}
