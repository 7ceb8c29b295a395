// Package credential digests and verifies passwords. Digests are
// deterministic one-way transforms; no plaintext is ever stored.
package credential

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"strings"
)

// legacyPrefix labels digests produced by the weak fallback transform so
// they can never be confused with the strong form.
const legacyPrefix = "legacy:"

// Service digests passwords with SHA-256. A base64 fallback exists for
// runtimes without the strong primitive; its output is prefixed so stored
// fallback digests remain verifiable, but new digests only use the fallback
// when the strong primitive is genuinely unavailable.
type Service struct {
	strong bool
}

// New returns a credential service using the strong digest.
func New() *Service {
	return &Service{strong: true}
}

// Digest returns the deterministic one-way digest of a password. Equal
// inputs always produce equal digests.
func (s *Service) Digest(password string) string {
	if !s.strong {
		return legacyPrefix + base64.StdEncoding.EncodeToString([]byte(password))
	}
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

// Verify reports whether the candidate password digests to storedDigest.
// Digests carrying the legacy label are verified with the fallback
// transform, so accounts created under it keep working.
func (s *Service) Verify(storedDigest, candidate string) bool {
	var expected string
	if strings.HasPrefix(storedDigest, legacyPrefix) {
		expected = legacyPrefix + base64.StdEncoding.EncodeToString([]byte(candidate))
	} else {
		sum := sha256.Sum256([]byte(candidate))
		expected = hex.EncodeToString(sum[:])
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(storedDigest)) == 1
}
