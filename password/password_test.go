package password

import (
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestHashVerify(t *testing.T) {
	h, err := Hash("correct horse")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	ok, err := Verify(h, "correct horse")
	if err != nil || !ok {
		t.Fatalf("expected match, got ok=%v err=%v", ok, err)
	}
	ok, err = Verify(h, "wrong horse")
	if err != nil || ok {
		t.Fatalf("expected mismatch, got ok=%v err=%v", ok, err)
	}
}

func TestVerify_Bcrypt(t *testing.T) {
	b, err := bcrypt.GenerateFromPassword([]byte("legacy-pass"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	if ok, err := Verify(string(b), "legacy-pass"); err != nil || !ok {
		t.Fatalf("expected bcrypt match, got ok=%v err=%v", ok, err)
	}
	if ok, _ := Verify(string(b), "nope"); ok {
		t.Fatalf("expected bcrypt mismatch")
	}
}

func TestVerify_UnknownFormat(t *testing.T) {
	if _, err := Verify("plaintext", "plaintext"); !errors.Is(err, ErrUnknownHash) {
		t.Fatalf("expected ErrUnknownHash, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	if err := Validate("short"); !errors.Is(err, ErrTooShort) {
		t.Fatalf("expected ErrTooShort, got %v", err)
	}
	if err := Validate("longenough"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
