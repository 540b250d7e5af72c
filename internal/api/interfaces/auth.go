package interfaces

import (
	"context"
	"time"

	"msgboard/internal/auth"
)

// SessionManager is the part of auth.Manager the HTTP layer depends on.
type SessionManager interface {
	Login(ctx context.Context, in auth.LoginAttempt) (auth.Session, error)
	Authenticate(accessToken, presentedTimezone string) (auth.Identity, error)
	Refresh(refreshToken string) (auth.Token, error)
	Logout(ctx context.Context, id auth.Identity, clientIP string)
	AccessTTL() time.Duration
	RefreshTTL() time.Duration
}
