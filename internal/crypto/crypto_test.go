package crypto

import (
	"strings"
	"testing"
)

func testSet() CredentialSet {
	return CredentialSet{
		"coinex":  {APIKey: "ck-key", APISecret: "ck-secret"},
		"nobitex": {APIToken: "nb-token"},
		"wallex":  {APIKey: "wx-key"},
	}
}

func TestCredentialsRoundTrip(t *testing.T) {
	blob, err := EncryptCredentials(testSet(), "hunter2")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	got, err := DecryptCredentials(blob, "hunter2")
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if got["coinex"].APISecret != "ck-secret" {
		t.Errorf("coinex secret = %q, want ck-secret", got["coinex"].APISecret)
	}
	if got["nobitex"].APIToken != "nb-token" {
		t.Errorf("nobitex token = %q, want nb-token", got["nobitex"].APIToken)
	}
}

func TestDecryptWrongPassword(t *testing.T) {
	blob, err := EncryptCredentials(testSet(), "hunter2")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if _, err := DecryptCredentials(blob, "wrong"); err == nil {
		t.Fatal("expected error with wrong password")
	}
}

func TestEncryptRejectsEmptyInputs(t *testing.T) {
	if _, err := EncryptCredentials(testSet(), ""); err == nil {
		t.Error("expected error for empty password")
	}
	if _, err := EncryptCredentials(nil, "pw"); err == nil {
		t.Error("expected error for empty credential set")
	}
}

func TestSignHexDeterministic(t *testing.T) {
	auth := &HMACAuth{Key: "k", Secret: "s"}
	msg := "GET/v2/spot/market1700000000000"
	if auth.SignHex(msg) != auth.SignHex(msg) {
		t.Fatal("same message must produce same signature")
	}
	if auth.SignHex(msg) == auth.SignHex(msg+"x") {
		t.Fatal("different messages must produce different signatures")
	}
	if len(auth.SignHex(msg)) != 64 {
		t.Fatalf("hex digest length = %d, want 64", len(auth.SignHex(msg)))
	}
}

func TestRedactedString(t *testing.T) {
	auth := &HMACAuth{Key: "abcdef123456", Secret: "topsecretvalue"}
	s := auth.String()
	if strings.Contains(s, "topsecretvalue") || strings.Contains(s, "abcdef123456") {
		t.Fatalf("String leaked a credential: %s", s)
	}
}
