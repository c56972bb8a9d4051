package security

import (
	"errors"
	"testing"
)

const testKey = "0123456789abcdef0123456789abcdef"

func TestEncryptionService_RoundTrip(t *testing.T) {
	svc, err := NewEncryptionService(testKey)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	secret := "whsec_abcdefghijklmnopqrstuvwxyz012345"

	a, err := svc.Encrypt(secret)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	b, _ := svc.Encrypt(secret)
	if a == b {
		t.Fatal("expected distinct ciphertexts for the same plaintext")
	}
	got, err := svc.Decrypt(a)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if got != secret {
		t.Fatalf("got %q, want %q", got, secret)
	}
}

func TestEncryptionService_Rejects(t *testing.T) {
	if _, err := NewEncryptionService("short"); err == nil {
		t.Fatal("expected key length error")
	}
	svc, _ := NewEncryptionService(testKey)
	if _, err := svc.Decrypt("AAAA"); !errors.Is(err, ErrCiphertextTooShort) {
		t.Fatalf("expected ErrCiphertextTooShort, got %v", err)
	}
	other, _ := NewEncryptionService("fedcba9876543210fedcba9876543210")
	ct, _ := other.Encrypt("x")
	if _, err := svc.Decrypt(ct); err == nil {
		t.Fatal("expected authentication failure with the wrong key")
	}
	if _, err := svc.Decrypt("not base64!"); err == nil {
		t.Fatal("expected decode error")
	}
}
