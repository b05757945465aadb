// Package identity verifies identity assertions issued by the external
// provider and normalizes them into Claims.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Verification failures. Callers match these with errors.Is; the wrapped
// cause is for server-side logs only.
var (
	ErrAssertionExpired   = errors.New("identity assertion expired")
	ErrAssertionRevoked   = errors.New("identity assertion revoked")
	ErrAssertionMalformed = errors.New("identity assertion malformed")
	ErrAssertionInvalid   = errors.New("identity assertion invalid")
)

// Assertion is what the verification oracle vouches for.
type Assertion struct {
	Subject       string
	IssuedAt      time.Time
	Email         string
	EmailVerified bool
	Name          string
	Picture       string
}

// TokenVerifier is the external verification oracle.
type TokenVerifier interface {
	Verify(ctx context.Context, rawToken string) (*Assertion, error)
}

// RevocationChecker reports the instant up to which assertions for a subject
// are no longer honored. ok is false when the subject has no cutoff.
type RevocationChecker interface {
	ValidAfter(ctx context.Context, subject string) (cutoff time.Time, ok bool, err error)
}

type Claims struct {
	SubjectID   string
	Email       string
	DisplayName *string
	AvatarURL   *string
}

type Broker struct {
	verifier    TokenVerifier
	revocations RevocationChecker
}

type Option func(*Broker)

func WithRevocationChecker(c RevocationChecker) Option {
	return func(b *Broker) {
		b.revocations = c
	}
}

func NewBroker(verifier TokenVerifier, opts ...Option) *Broker {
	b := &Broker{verifier: verifier}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Broker) VerifyAssertion(ctx context.Context, token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrAssertionMalformed
	}

	a, err := b.verifier.Verify(ctx, token)
	if err != nil {
		return nil, classify(err)
	}
	if a.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrAssertionMalformed)
	}

	if b.revocations != nil {
		cutoff, ok, err := b.revocations.ValidAfter(ctx, a.Subject)
		if err != nil {
			return nil, fmt.Errorf("%w: revocation lookup: %v", ErrAssertionInvalid, err)
		}
		if ok && !a.IssuedAt.After(cutoff) {
			return nil, ErrAssertionRevoked
		}
	}

	claims := &Claims{
		SubjectID: a.Subject,
		Email:     strings.TrimSpace(a.Email),
	}
	if name := strings.TrimSpace(a.Name); name != "" {
		claims.DisplayName = &name
	}
	if pic := strings.TrimSpace(a.Picture); pic != "" {
		claims.AvatarURL = &pic
	}
	return claims, nil
}

// classify keeps verifier errors inside the closed set.
func classify(err error) error {
	for _, known := range []error{ErrAssertionExpired, ErrAssertionRevoked, ErrAssertionMalformed, ErrAssertionInvalid} {
		if errors.Is(err, known) {
			return err
		}
	}
	return fmt.Errorf("%w: %v", ErrAssertionInvalid, err)
}
