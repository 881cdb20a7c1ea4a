package opaque

import (
	"context"
	"errors"

	"github.com/giantswarm/phnx-homeserver/internal/ids"
)

// ErrExchangeNotConfigured is returned by UnconfiguredExchange's methods.
var ErrExchangeNotConfigured = errors.New("opaque: no Exchange implementation wired for this deployment")

// UnconfiguredExchange is the zero-value Exchange a serve-as process falls
// back to when no real OPAQUE implementation has been wired in. It lets the
// process start and serve every other AS operation; only the OPAQUE
// registration round trip itself fails, with a clear, distinguishable error
// rather than a nil-pointer panic.
type UnconfiguredExchange struct{}

func (UnconfiguredExchange) CreateRegistrationResponse(ctx context.Context, userID ids.UserId, req RegistrationRequest) (RegistrationResponse, error) {
	return RegistrationResponse{}, ErrExchangeNotConfigured
}

func (UnconfiguredExchange) FinalizeRegistration(ctx context.Context, userID ids.UserId, upload RegistrationUpload) (RegistrationRecord, error) {
	return RegistrationRecord{}, ErrExchangeNotConfigured
}
