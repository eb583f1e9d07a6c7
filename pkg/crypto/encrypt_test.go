package crypto

import (
	"errors"
	"strings"
	"testing"
)

var testKey = []byte(strings.Repeat("k", 32))

func TestEncryptDecryptSecret(t *testing.T) {
	secrets := []string{"binance-secret", "", strings.Repeat("x", 1024)}
	for _, s := range secrets {
		enc, err := EncryptSecret(s, testKey)
		if err != nil {
			t.Fatalf("EncryptSecret: %v", err)
		}
		got, err := DecryptSecret(enc, testKey)
		if err != nil {
			t.Fatalf("DecryptSecret: %v", err)
		}
		if got != s {
			t.Errorf("round trip mismatch: got %q", got)
		}
	}
}

func TestEncryptSecretNonceDiffers(t *testing.T) {
	a, _ := EncryptSecret("same", testKey)
	b, _ := EncryptSecret("same", testKey)
	if a == b {
		t.Error("two encryptions of the same secret must differ")
	}
}

func TestDecryptSecretErrors(t *testing.T) {
	valid, _ := EncryptSecret("secret", testKey)
	otherKey := []byte(strings.Repeat("z", 32))

	tests := []struct {
		name    string
		encoded string
		key     []byte
		want    error
	}{
		{"short key", valid, []byte("short"), ErrInvalidKeyLength},
		{"bad base64", "%%%", testKey, ErrInvalidCiphertext},
		{"too short", "AAAA", testKey, ErrCiphertextTooShort},
		{"wrong key", valid, otherKey, ErrDecryptionFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecryptSecret(tt.encoded, tt.key); !errors.Is(err, tt.want) {
				t.Errorf("DecryptSecret error = %v, want %v", err, tt.want)
			}
		})
	}
}
