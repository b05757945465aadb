package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
)

// OIDCVerifier verifies ID tokens against an OpenID Connect issuer, e.g.
// https://securetoken.google.com/<project-id> for Firebase.
type OIDCVerifier struct {
	verifier *oidc.IDTokenVerifier
}

// NewOIDCVerifier performs provider discovery and returns a ready verifier.
func NewOIDCVerifier(ctx context.Context, issuer, audience string) (*OIDCVerifier, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to create OIDC provider: %w", err)
	}
	return &OIDCVerifier{
		verifier: provider.Verifier(&oidc.Config{ClientID: audience}),
	}, nil
}

// NewOIDCVerifierFromKeySet builds a verifier without discovery.
func NewOIDCVerifierFromKeySet(issuer, audience string, keySet oidc.KeySet, cfg *oidc.Config) *OIDCVerifier {
	if cfg == nil {
		cfg = &oidc.Config{}
	}
	cfg.ClientID = audience
	return &OIDCVerifier{verifier: oidc.NewVerifier(issuer, keySet, cfg)}
}

type idTokenClaims struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

func (v *OIDCVerifier) Verify(ctx context.Context, rawToken string) (*Assertion, error) {
	idToken, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		var expired *oidc.TokenExpiredError
		if errors.As(err, &expired) {
			return nil, fmt.Errorf("%w: %v", ErrAssertionExpired, err)
		}
		if strings.Contains(err.Error(), "malformed jwt") {
			return nil, fmt.Errorf("%w: %v", ErrAssertionMalformed, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrAssertionInvalid, err)
	}

	var claims idTokenClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%w: claims: %v", ErrAssertionMalformed, err)
	}

	return &Assertion{
		Subject:       idToken.Subject,
		IssuedAt:      idToken.IssuedAt,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
		Name:          claims.Name,
		Picture:       claims.Picture,
	}, nil
}
