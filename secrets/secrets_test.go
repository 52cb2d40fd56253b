package secrets

import (
	"context"
	"strings"
	"testing"

	"flowforge/runtime"
	"flowforge/store/memory"
)

const testKey = "0000000000000000000000000000000000000000000000000000000000000000"

func TestNewCipherKeyValidation(t *testing.T) {
	testCases := []struct {
		name   string
		hexKey string
		wantOK bool
	}{
		{name: "valid 32 byte key", hexKey: testKey, wantOK: true},
		{name: "empty key", hexKey: ""},
		{name: "not hex", hexKey: "zz"},
		{name: "too short", hexKey: "00ff"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewCipher(tc.hexKey)
			if tc.wantOK && err != nil {
				t.Errorf("expected key to be accepted, got %v", err)
			}
			if !tc.wantOK && err == nil {
				t.Error("expected key to be rejected")
			}
		})
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	c, err := NewCipher(testKey)
	if err != nil {
		t.Fatalf("creating cipher: %v", err)
	}

	for _, plaintext := range []string{"", "a", "sk-secret-api-key", strings.Repeat("x", 100)} {
		encrypted, err := c.Encrypt(plaintext)
		if err != nil {
			t.Fatalf("encrypting %q: %v", plaintext, err)
		}
		if !strings.Contains(encrypted, ":") {
			t.Fatalf("expected iv:cipher format, got %q", encrypted)
		}
		if strings.Contains(encrypted, plaintext) && plaintext != "" {
			t.Errorf("ciphertext leaks plaintext: %q", encrypted)
		}

		decrypted, err := c.Decrypt(encrypted)
		if err != nil {
			t.Fatalf("decrypting %q: %v", encrypted, err)
		}
		if decrypted != plaintext {
			t.Errorf("round trip mismatch: expected %q, got %q", plaintext, decrypted)
		}
	}
}

func TestEncryptUsesFreshIV(t *testing.T) {
	c, _ := NewCipher(testKey)
	first, _ := c.Encrypt("same value")
	second, _ := c.Encrypt("same value")
	if first == second {
		t.Error("expected distinct ciphertexts for the same plaintext")
	}
}

func TestDecryptRejectsMalformedInput(t *testing.T) {
	c, _ := NewCipher(testKey)

	testCases := []struct {
		name  string
		input string
	}{
		{name: "no separator", input: "deadbeef"},
		{name: "iv not hex", input: "zz:deadbeef"},
		{name: "iv wrong length", input: "00ff:deadbeef"},
		{name: "cipher not hex", input: strings.Repeat("00", 16) + ":zz"},
		{name: "cipher not block aligned", input: strings.Repeat("00", 16) + ":00ff"},
		{name: "empty cipher", input: strings.Repeat("00", 16) + ":"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := c.Decrypt(tc.input); err == nil {
				t.Errorf("expected %q to be rejected", tc.input)
			}
		})
	}
}

func TestCredentialSourcePlaintext(t *testing.T) {
	ctx := context.Background()
	c, _ := NewCipher(testKey)
	store := memory.NewStore()

	encrypted, err := c.Encrypt("sk-test")
	if err != nil {
		t.Fatalf("encrypting: %v", err)
	}
	cred := &runtime.Credential{UserID: "user-1", Name: "openai", Value: encrypted}
	if err := store.CreateCredential(ctx, cred); err != nil {
		t.Fatalf("creating credential: %v", err)
	}

	source := NewCredentialSource(store, c)
	got, err := source.Plaintext(ctx, "user-1", cred.ID)
	if err != nil {
		t.Fatalf("resolving credential: %v", err)
	}
	if got != "sk-test" {
		t.Errorf("expected sk-test, got %q", got)
	}

	if _, err := source.Plaintext(ctx, "user-2", cred.ID); err == nil {
		t.Error("expected foreign user lookup to fail")
	}
	if _, err := source.Plaintext(ctx, "user-1", "missing"); err == nil {
		t.Error("expected unknown credential lookup to fail")
	}
}
