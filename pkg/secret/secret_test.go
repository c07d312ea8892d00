package secret

import (
	"encoding/hex"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestConfiguredSecret(t *testing.T) {
	s, err := New("mysecret", "")
	if err != nil {
		t.Fatal(err)
	}

	if s.Generated() {
		t.Error("configured secret reported as generated")
	}
	if !s.Matches("mysecret") {
		t.Error("exact secret must match")
	}
	for _, offered := range []string{"", "mysecret ", "MYSECRET", "mysecre"} {
		if s.Matches(offered) {
			t.Errorf("%q must not match", offered)
		}
	}
}

func TestGeneratedSecret(t *testing.T) {
	a, err := New("", "")
	if err != nil {
		t.Fatal(err)
	}
	b, err := New("", "")
	if err != nil {
		t.Fatal(err)
	}

	if !a.Generated() || len(a.Plain()) != 64 {
		t.Fatalf("expected a 64 char generated secret, got %q", a.Plain())
	}
	if a.Plain() == b.Plain() {
		t.Error("two generated secrets should differ")
	}
	if !a.Matches(a.Plain()) || a.Matches("") {
		t.Error("generated secret does not match itself")
	}
}

func TestBcryptSecret(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}

	s, err := New("", hex.EncodeToString(hash))
	if err != nil {
		t.Fatal(err)
	}

	if s.Generated() || s.Plain() != "" {
		t.Error("a hashed secret must not generate a plain one")
	}
	if !s.Matches("hunter2") || s.Matches("hunter3") {
		t.Error("bcrypt comparison failed")
	}

	if _, err := New("", "not-hex"); err == nil {
		t.Error("expected an error for a non hex hash")
	}
	if _, err := New("", hex.EncodeToString([]byte("plain"))); err == nil {
		t.Error("expected an error for a non bcrypt hash")
	}
}
