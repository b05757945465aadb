package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dom/slash-backend/internal/identity"
	"github.com/google/uuid"
)

// FakeIdentity is an in-memory identity oracle. Tokens it issues verify to the
// registered assertion; anything else is rejected as invalid.
type FakeIdentity struct {
	mu     sync.Mutex
	tokens map[string]identity.Assertion
	errs   map[string]error
}

func NewFakeIdentity() *FakeIdentity {
	return &FakeIdentity{
		tokens: make(map[string]identity.Assertion),
		errs:   make(map[string]error),
	}
}

// Issue registers a and returns a token that verifies to it. A zero IssuedAt
// becomes now.
func (f *FakeIdentity) Issue(a identity.Assertion) string {
	if a.IssuedAt.IsZero() {
		a.IssuedAt = time.Now()
	}
	token := "idt_" + uuid.NewString()

	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens[token] = a
	return token
}

// Fail returns a token whose verification fails with err.
func (f *FakeIdentity) Fail(err error) string {
	token := "idt_" + uuid.NewString()

	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[token] = err
	return token
}

func (f *FakeIdentity) Verify(ctx context.Context, rawToken string) (*identity.Assertion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err, ok := f.errs[rawToken]; ok {
		return nil, err
	}
	a, ok := f.tokens[rawToken]
	if !ok {
		return nil, fmt.Errorf("%w: unknown token", identity.ErrAssertionInvalid)
	}
	return &a, nil
}
