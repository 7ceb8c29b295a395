package credential

import (
	"strings"
	"testing"
)

func TestDigestIsDeterministic(t *testing.T) {
	svc := New()
	first := svc.Digest("NELSON11!")
	second := svc.Digest("NELSON11!")
	if first != second {
		t.Errorf("equal inputs produced different digests: %q vs %q", first, second)
	}
	if first == "NELSON11!" {
		t.Error("digest must not equal the plaintext")
	}
}

func TestVerify(t *testing.T) {
	svc := New()
	stored := svc.Digest("secret-password")

	if !svc.Verify(stored, "secret-password") {
		t.Error("correct password should verify")
	}
	if svc.Verify(stored, "wrong-password") {
		t.Error("wrong password should not verify")
	}
	if svc.Verify(stored, "") {
		t.Error("empty password should not verify")
	}
}

func TestLegacyDigestsStillVerify(t *testing.T) {
	weak := &Service{strong: false}
	stored := weak.Digest("gamecocks")
	if !strings.HasPrefix(stored, legacyPrefix) {
		t.Fatalf("fallback digest missing label, got %q", stored)
	}

	// A strong service must still accept accounts created under the
	// fallback transform.
	svc := New()
	if !svc.Verify(stored, "gamecocks") {
		t.Error("labeled legacy digest should verify with correct password")
	}
	if svc.Verify(stored, "spurs-up") {
		t.Error("labeled legacy digest should reject wrong password")
	}
}

func TestStrongAndLegacyDigestsNeverCollide(t *testing.T) {
	strong := New()
	weak := &Service{strong: false}
	if strong.Digest("password") == weak.Digest("password") {
		t.Error("strong and fallback digests of the same input must differ")
	}
}
