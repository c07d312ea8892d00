// Package secret holds the shared secret used by the privileged bind.
package secret

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Secret is established once at startup and never mutated afterwards.
type Secret struct {
	plain     string
	bcrypt    []byte
	generated bool
}

// New uses the configured plain secret and/or hex encoded bcrypt hash. When
// neither is configured a fresh random secret is generated.
func New(plain, bcryptHex string) (*Secret, error) {
	s := &Secret{plain: plain}

	if bcryptHex != "" {
		decoded, err := hex.DecodeString(bcryptHex)
		if err != nil {
			return nil, fmt.Errorf("invalid bcrypt secret: %w", err)
		}
		if _, err := bcrypt.Cost(decoded); err != nil {
			return nil, fmt.Errorf("invalid bcrypt secret: %w", err)
		}
		s.bcrypt = decoded
	}

	if s.plain == "" && s.bcrypt == nil {
		generated, err := generate()
		if err != nil {
			return nil, err
		}
		s.plain = generated
		s.generated = true
	}

	return s, nil
}

func generate() (string, error) {
	seed := make([]byte, 32)
	if _, err := rand.Read(seed); err != nil {
		return "", fmt.Errorf("unable to generate secret: %w", err)
	}
	sum := sha256.Sum256(seed)
	return hex.EncodeToString(sum[:]), nil
}

// Generated reports whether no secret was configured
func (s *Secret) Generated() bool {
	return s.generated
}

// Plain returns the clear text secret, empty when only a hash is configured.
// Only meant to surface a generated secret to the operator once.
func (s *Secret) Plain() string {
	return s.plain
}

// Matches compares an offered credential against the secret
func (s *Secret) Matches(offered string) bool {
	if s.plain != "" && subtle.ConstantTimeCompare([]byte(s.plain), []byte(offered)) == 1 {
		return true
	}
	if s.bcrypt != nil && bcrypt.CompareHashAndPassword(s.bcrypt, []byte(offered)) == nil {
		return true
	}
	return false
}
