package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// maxSecretBytes is the longest input bcrypt hashes in full. Longer inputs
// are truncated by the algorithm.
const maxSecretBytes = 72

// Principal is the single provisioned identity.
type Principal struct {
	Username     string
	PasswordHash string
}

// CredentialStore holds the principal whose password was hashed once at
// startup. It is read-only after construction.
type CredentialStore struct {
	principal Principal
}

// NewCredentialStore hashes password with bcrypt at the given cost. A zero
// cost selects bcrypt.DefaultCost.
func NewCredentialStore(username, password string, cost int) (*CredentialStore, error) {
	if username == "" {
		return nil, errors.New("principal username is required")
	}
	if password == "" {
		return nil, errors.New("principal password is required")
	}
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return nil, fmt.Errorf("hash principal password: %w", err)
	}

	return &CredentialStore{
		principal: Principal{
			Username:     username,
			PasswordHash: string(hash),
		},
	}, nil
}

// Principal returns a copy of the provisioned principal.
func (s *CredentialStore) Principal() Principal {
	return s.principal
}

// VerifyCredential reports whether username and secret match the principal.
// The bcrypt comparison runs whether or not the username matched. A secret
// longer than bcrypt's input limit never matches, since only its prefix
// would be compared.
func (s *CredentialStore) VerifyCredential(username, secret string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.principal.Username))
	passOK := 0
	if bcrypt.CompareHashAndPassword([]byte(s.principal.PasswordHash), []byte(secret)) == nil {
		passOK = 1
	}
	if len(secret) > maxSecretBytes {
		passOK = 0
	}
	return userOK&passOK == 1
}
