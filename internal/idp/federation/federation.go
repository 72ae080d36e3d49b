// Package federation brokers logins against upstream OpenID Connect
// providers. The rest of the server only ever sees the Adapter interface and
// the opaque Identity it returns; provider-specific claims never cross this
// boundary.
package federation

import (
	"context"
	"errors"
	"time"
)

// ErrUnknownProvider is returned for a provider name with no configuration.
var ErrUnknownProvider = errors.New("federation: unknown provider")

// Identity is the upstream principal resolved from a code exchange or
// refresh. ExternalSubject is the provider's stable sub claim.
type Identity struct {
	ExternalSubject string
	Email           string
	AccessToken     string
	RefreshToken    string
	ExpiresAt       time.Time
}

// Adapter exchanges upstream grants for identities.
type Adapter interface {
	// Exchange redeems an upstream authorization code.
	Exchange(ctx context.Context, provider, code string) (Identity, error)

	// Refresh obtains fresh upstream tokens past expiry.
	Refresh(ctx context.Context, provider, refreshToken string) (Identity, error)
}
