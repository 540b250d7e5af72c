package auth

import (
	"errors"

	"msgboard/pkg/config"
)

var (
	// ErrUnauthorized is matched by every *Rejection via errors.Is.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrConfigurationMissing is returned by NewCodec without an access
	// secret. It is the same value config.LoadConfig reports.
	ErrConfigurationMissing = config.ErrConfigurationMissing
)

// Kind classifies why an authentication step was rejected. It is meant for
// logs; callers outside this package answer every kind the same way.
type Kind int

const (
	KindInvalidCredentials Kind = iota + 1
	KindMissingToken
	KindInvalidOrExpiredToken
	KindWrongTokenType
	KindBindingMismatch
)

func (k Kind) String() string {
	switch k {
	case KindInvalidCredentials:
		return "invalid_credentials"
	case KindMissingToken:
		return "missing_token"
	case KindInvalidOrExpiredToken:
		return "invalid_or_expired"
	case KindWrongTokenType:
		return "wrong_token_type"
	case KindBindingMismatch:
		return "binding_mismatch"
	default:
		return "unknown"
	}
}

// Rejection is the failure value returned by Verify, Login, Authenticate and
// Refresh. Its Error text never varies with Kind.
type Rejection struct {
	Kind   Kind
	Reason string
}

func reject(kind Kind, reason string) *Rejection {
	return &Rejection{Kind: kind, Reason: reason}
}

func (r *Rejection) Error() string {
	return ErrUnauthorized.Error()
}

func (r *Rejection) Is(target error) bool {
	return target == ErrUnauthorized
}

// KindOf extracts the rejection kind from err, or 0 if err is not a rejection.
func KindOf(err error) Kind {
	var r *Rejection
	if errors.As(err, &r) {
		return r.Kind
	}
	return 0
}
