package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"msgboard/pkg/logger"
)

const (
	DefaultAccessTTL  = 30 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

// Audit actions and outcomes recorded by the manager.
const (
	ActionLogin  = "login"
	ActionLogout = "logout"

	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

var ErrTimezoneRequired = errors.New("declared timezone is required")

// CredentialVerifier checks a username/secret pair.
type CredentialVerifier interface {
	VerifyCredential(username, secret string) bool
}

// AuditEvent is one entry of the authentication audit trail. It never carries
// the presented secret.
type AuditEvent struct {
	Action   string
	Username string
	Outcome  string
	ClientIP string
	Details  string
}

// AuditTrail persists audit events.
type AuditTrail interface {
	Record(ctx context.Context, event AuditEvent) error
}

// LoginAttempt is the input of Login.
type LoginAttempt struct {
	Username string
	Secret   string
	Timezone string
	ClientIP string
}

// Session is the access/refresh pair issued together at login.
type Session struct {
	Access  Token
	Refresh Token
}

type ManagerConfig struct {
	Credentials CredentialVerifier
	Codec       *Codec
	AccessTTL   time.Duration
	RefreshTTL  time.Duration
	Audit       AuditTrail
	Logger      *logger.Logger
}

// Manager runs login, per-request authentication and refresh. It keeps no
// per-session state and is safe for concurrent use.
type Manager struct {
	creds      CredentialVerifier
	codec      *Codec
	accessTTL  time.Duration
	refreshTTL time.Duration
	audit      AuditTrail
	log        *logger.Logger
}

func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Credentials == nil {
		return nil, errors.New("credential verifier is required")
	}
	if cfg.Codec == nil {
		return nil, errors.New("token codec is required")
	}
	if cfg.AccessTTL == 0 {
		cfg.AccessTTL = DefaultAccessTTL
	}
	if cfg.RefreshTTL == 0 {
		cfg.RefreshTTL = DefaultRefreshTTL
	}
	if cfg.AccessTTL < 0 || cfg.RefreshTTL < 0 {
		return nil, errors.New("token ttl must be > 0")
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewLogger("info", "")
	}

	return &Manager{
		creds:      cfg.Credentials,
		codec:      cfg.Codec,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		audit:      cfg.Audit,
		log:        cfg.Logger.WithComponent("auth"),
	}, nil
}

// AccessTTL is the lifetime of issued access tokens.
func (m *Manager) AccessTTL() time.Duration { return m.accessTTL }

// RefreshTTL is the lifetime of issued refresh tokens.
func (m *Manager) RefreshTTL() time.Duration { return m.refreshTTL }

// Login verifies the credential and issues an access and a refresh token,
// both bound to the declared timezone.
func (m *Manager) Login(ctx context.Context, in LoginAttempt) (Session, error) {
	if in.Timezone == "" {
		return Session{}, ErrTimezoneRequired
	}

	if !m.creds.VerifyCredential(in.Username, in.Secret) {
		m.record(ctx, AuditEvent{
			Action:   ActionLogin,
			Username: in.Username,
			Outcome:  OutcomeFailure,
			ClientIP: in.ClientIP,
			Details:  KindInvalidCredentials.String(),
		})
		m.log.SecurityLogger("login_failed", in.Username, "client_ip="+in.ClientIP)
		return Session{}, reject(KindInvalidCredentials, "credential mismatch")
	}

	id := Identity{Subject: in.Username, Timezone: in.Timezone}
	access, err := m.codec.Issue(id, TokenAccess, m.accessTTL)
	if err != nil {
		return Session{}, fmt.Errorf("issue access token: %w", err)
	}
	refresh, err := m.codec.Issue(id, TokenRefresh, m.refreshTTL)
	if err != nil {
		return Session{}, fmt.Errorf("issue refresh token: %w", err)
	}

	m.record(ctx, AuditEvent{
		Action:   ActionLogin,
		Username: in.Username,
		Outcome:  OutcomeSuccess,
		ClientIP: in.ClientIP,
		Details:  "timezone=" + in.Timezone,
	})
	m.log.WithFields(map[string]interface{}{
		"user":       in.Username,
		"access_id":  access.Claims.ID,
		"refresh_id": refresh.Claims.ID,
	}).Info("Login succeeded")

	return Session{Access: access, Refresh: refresh}, nil
}

// Authenticate resolves the identity behind an access token. The presented
// timezone must equal the one bound into the token at login.
func (m *Manager) Authenticate(accessToken, presentedTimezone string) (Identity, error) {
	if accessToken == "" {
		return Identity{}, m.rejected(reject(KindMissingToken, "no access token"))
	}

	claims, err := m.codec.Verify(accessToken, TokenAccess)
	if err != nil {
		return Identity{}, m.rejected(err)
	}

	if claims.Timezone != presentedTimezone {
		return Identity{}, m.rejected(reject(KindBindingMismatch,
			fmt.Sprintf("token %s bound to %q, presented %q", claims.ID, claims.Timezone, presentedTimezone)))
	}

	return claims.Identity(), nil
}

// Refresh issues a new access token from a valid refresh token. The refresh
// token itself is neither reissued nor extended.
func (m *Manager) Refresh(refreshToken string) (Token, error) {
	if refreshToken == "" {
		return Token{}, m.rejected(reject(KindMissingToken, "no refresh token"))
	}

	claims, err := m.codec.Verify(refreshToken, TokenRefresh)
	if err != nil {
		return Token{}, m.rejected(err)
	}

	access, err := m.codec.Issue(claims.Identity(), TokenAccess, m.accessTTL)
	if err != nil {
		return Token{}, fmt.Errorf("issue access token: %w", err)
	}

	m.log.WithFields(map[string]interface{}{
		"user":       claims.Subject,
		"refresh_id": claims.ID,
		"access_id":  access.Claims.ID,
	}).Info("Access token refreshed")

	return access, nil
}

// Logout records the event. Issued tokens stay valid until they expire.
func (m *Manager) Logout(ctx context.Context, id Identity, clientIP string) {
	m.record(ctx, AuditEvent{
		Action:   ActionLogout,
		Username: id.Subject,
		Outcome:  OutcomeSuccess,
		ClientIP: clientIP,
	})
}

func (m *Manager) rejected(err error) error {
	var r *Rejection
	if errors.As(err, &r) {
		m.log.WithFields(map[string]interface{}{
			"kind":   r.Kind.String(),
			"reason": r.Reason,
		}).Warning("Authentication rejected")
	}
	return err
}

func (m *Manager) record(ctx context.Context, ev AuditEvent) {
	if m.audit == nil {
		return
	}
	if err := m.audit.Record(ctx, ev); err != nil {
		m.log.StructuredError(err, map[string]interface{}{
			"action":  ev.Action,
			"user_id": ev.Username,
		})
	}
}
