package auth

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenType distinguishes the two credentials issued at login.
type TokenType string

const (
	TokenAccess  TokenType = "access"
	TokenRefresh TokenType = "refresh"
)

const (
	claimsVersion = 1
	defaultIssuer = "msgboard"
)

// Identity is what a token binds: the principal and the client's declared
// timezone.
type Identity struct {
	Subject  string
	Timezone string
}

// Claims is the decoded, verified payload of a token.
type Claims struct {
	ID        string
	Subject   string
	Timezone  string
	Type      TokenType
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Identity returns the bound part of the claims.
func (c Claims) Identity() Identity {
	return Identity{Subject: c.Subject, Timezone: c.Timezone}
}

// Token is an encoded token together with the claims it carries.
type Token struct {
	Value  string
	Claims Claims
}

// tokenClaims is the wire payload. Decoding rejects unknown fields.
type tokenClaims struct {
	Version  int    `json:"ver"`
	Timezone string `json:"tz"`
	Type     string `json:"typ"`
	jwt.RegisteredClaims
}

func (c *tokenClaims) UnmarshalJSON(b []byte) error {
	type plain tokenClaims
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	var p plain
	if err := dec.Decode(&p); err != nil {
		return err
	}
	*c = tokenClaims(p)
	return nil
}

// Validate is invoked by the jwt parser after the registered claims checks.
func (c *tokenClaims) Validate() error {
	if c.Version != claimsVersion {
		return fmt.Errorf("unsupported claims version %d", c.Version)
	}
	if c.Subject == "" {
		return errors.New("missing subject")
	}
	switch TokenType(c.Type) {
	case TokenAccess, TokenRefresh:
	default:
		return fmt.Errorf("unknown token type %q", c.Type)
	}
	return nil
}

func (c *tokenClaims) claims() Claims {
	out := Claims{
		ID:       c.ID,
		Subject:  c.Subject,
		Timezone: c.Timezone,
		Type:     TokenType(c.Type),
	}
	if c.IssuedAt != nil {
		out.IssuedAt = c.IssuedAt.Time.UTC()
	}
	if c.ExpiresAt != nil {
		out.ExpiresAt = c.ExpiresAt.Time.UTC()
	}
	return out
}

// CodecConfig configures a Codec. AccessSecret and RefreshSecret are
// required and must differ.
type CodecConfig struct {
	AccessSecret  []byte
	RefreshSecret []byte
	Issuer        string
	Now           func() time.Time
}

// Codec signs and verifies HS256 tokens, using a separate secret per token
// type.
type Codec struct {
	accessSecret  []byte
	refreshSecret []byte
	issuer        string
	now           func() time.Time
}

func NewCodec(cfg CodecConfig) (*Codec, error) {
	if len(cfg.AccessSecret) == 0 {
		return nil, ErrConfigurationMissing
	}
	if len(cfg.RefreshSecret) == 0 {
		return nil, errors.New("refresh token secret is required")
	}
	if bytes.Equal(cfg.AccessSecret, cfg.RefreshSecret) {
		return nil, errors.New("access and refresh token secrets must differ")
	}
	if cfg.Issuer == "" {
		cfg.Issuer = defaultIssuer
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Codec{
		accessSecret:  append([]byte(nil), cfg.AccessSecret...),
		refreshSecret: append([]byte(nil), cfg.RefreshSecret...),
		issuer:        cfg.Issuer,
		now:           cfg.Now,
	}, nil
}

func (c *Codec) secretFor(typ TokenType) ([]byte, bool) {
	switch typ {
	case TokenAccess:
		return c.accessSecret, true
	case TokenRefresh:
		return c.refreshSecret, true
	default:
		return nil, false
	}
}

func otherType(typ TokenType) TokenType {
	if typ == TokenAccess {
		return TokenRefresh
	}
	return TokenAccess
}

// Issue encodes id as a token of the given type expiring ttl from now. Token
// times have whole-second precision, so now is truncated to the second first
// and ExpiresAt is exactly IssuedAt plus ttl.
func (c *Codec) Issue(id Identity, typ TokenType, ttl time.Duration) (Token, error) {
	secret, ok := c.secretFor(typ)
	if !ok {
		return Token{}, fmt.Errorf("unknown token type %q", typ)
	}
	if id.Subject == "" {
		return Token{}, errors.New("token subject is required")
	}
	if ttl <= 0 {
		return Token{}, errors.New("token ttl must be > 0")
	}

	now := c.now().Truncate(time.Second)
	payload := &tokenClaims{
		Version:  claimsVersion,
		Timezone: id.Timezone,
		Type:     string(typ),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    c.issuer,
			Subject:   id.Subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, payload).SignedString(secret)
	if err != nil {
		return Token{}, fmt.Errorf("sign %s token: %w", typ, err)
	}

	return Token{Value: signed, Claims: payload.claims()}, nil
}

// Verify decodes raw and checks signature, type and expiry against the
// expected type. Every failure is a *Rejection.
func (c *Codec) Verify(raw string, expected TokenType) (Claims, error) {
	secret, ok := c.secretFor(expected)
	if !ok {
		return Claims{}, reject(KindInvalidOrExpiredToken, fmt.Sprintf("unknown expected type %q", expected))
	}

	tc, err := c.parse(raw, secret)
	if err != nil {
		// A token that verifies under the other type's secret was presented
		// in the wrong context.
		other := otherType(expected)
		otherSecret, _ := c.secretFor(other)
		if oc, oerr := c.parse(raw, otherSecret); oerr == nil && TokenType(oc.Type) == other {
			return Claims{}, reject(KindWrongTokenType, fmt.Sprintf("%s token presented as %s", other, expected))
		}
		return Claims{}, reject(KindInvalidOrExpiredToken, err.Error())
	}

	if TokenType(tc.Type) != expected {
		return Claims{}, reject(KindWrongTokenType, fmt.Sprintf("%s token presented as %s", tc.Type, expected))
	}

	return tc.claims(), nil
}

func (c *Codec) parse(raw string, secret []byte) (*tokenClaims, error) {
	tc := &tokenClaims{}
	_, err := jwt.ParseWithClaims(raw, tc, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(c.issuer),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return nil, err
	}
	return tc, nil
}
