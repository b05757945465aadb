package domain

import (
	"time"

	"github.com/google/uuid"
)

// Snippet is a stored keyword substitution. The value is never persisted in
// clear text; ValueCiphertext, ValueTag and ValueIV hold the hex encoded
// output of the encryption service.
type Snippet struct {
	ID              uuid.UUID  `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	UserID          uuid.UUID  `json:"userId" gorm:"type:uuid;not null;uniqueIndex:idx_snippets_user_keyword"`
	Keyword         string     `json:"keyword" gorm:"not null;uniqueIndex:idx_snippets_user_keyword"`
	ValueCiphertext string     `json:"-" gorm:"not null"`
	ValueTag        string     `json:"-" gorm:"not null"`
	ValueIV         string     `json:"-" gorm:"column:value_iv;not null"`
	UsageCount      int        `json:"usageCount" gorm:"not null;default:0"`
	LastUsed        *time.Time `json:"lastUsed"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// DecryptedSnippet is a snippet with its value opened for the owner.
type DecryptedSnippet struct {
	ID         uuid.UUID  `json:"id"`
	Keyword    string     `json:"keyword"`
	Value      string     `json:"value"`
	UsageCount int        `json:"usageCount"`
	LastUsed   *time.Time `json:"lastUsed"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}
