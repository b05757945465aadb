package domain

import "errors"

// User errors
var (
	ErrUserNotFound  = errors.New("user not found")
	ErrEmailConflict = errors.New("email already registered to another subject")
	ErrMissingEmail  = errors.New("identity has no email")
)

// Snippet errors
var (
	ErrSnippetNotFound  = errors.New("snippet not found")
	ErrDuplicateKeyword = errors.New("a snippet with this keyword already exists")
	ErrInvalidKeyword   = errors.New("keyword must start with /")
	ErrKeywordRequired  = errors.New("keyword and value are required")
)

// Refresh token errors
var (
	// ErrRefreshTokenNotFound is returned by storage when no live record matches.
	ErrRefreshTokenNotFound = errors.New("refresh token not found")
)
