package patient

import (
	"strings"
	"testing"
)

const testKeyHex = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func newTestCrypto(t *testing.T) *Crypto {
	t.Helper()
	c, err := NewCrypto(testKeyHex, "test-hmac-secret")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	return c
}

func TestCryptoRoundTrip(t *testing.T) {
	c := newTestCrypto(t)

	enc, err := c.Encrypt("123456789")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if strings.Contains(enc, "123456789") {
		t.Fatal("Expected ciphertext to not contain plaintext")
	}

	dec, err := c.Decrypt(enc)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if dec != "123456789" {
		t.Fatalf("Expected 123456789, got %s", dec)
	}
}

func TestCryptoEncryptNonDeterministic(t *testing.T) {
	c := newTestCrypto(t)

	a, _ := c.Encrypt("123456789")
	b, _ := c.Encrypt("123456789")
	if a == b {
		t.Fatal("Expected distinct ciphertexts for repeated encryption")
	}
}

func TestLookupHashDeterministic(t *testing.T) {
	c := newTestCrypto(t)

	if c.LookupHash("123456789") != c.LookupHash("123456789") {
		t.Fatal("Expected stable lookup hash for the same key")
	}
	if c.LookupHash("123456789") == c.LookupHash("987654321") {
		t.Fatal("Expected different hashes for different keys")
	}
}

func TestLookupHashKeyed(t *testing.T) {
	a, _ := NewCrypto(testKeyHex, "secret-a")
	b, _ := NewCrypto(testKeyHex, "secret-b")

	if a.LookupHash("123456789") == b.LookupHash("123456789") {
		t.Fatal("Expected hashes under different secrets to differ")
	}
}

func TestNewCryptoValidation(t *testing.T) {
	tests := []struct {
		name    string
		keyHex  string
		hmacKey string
	}{
		{"not hex", "zz", "secret"},
		{"wrong length", "0001", "secret"},
		{"missing hmac key", testKeyHex, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewCrypto(tt.keyHex, tt.hmacKey); err == nil {
				t.Fatal("Expected error, got nil")
			}
		})
	}
}

func TestDecryptGarbage(t *testing.T) {
	c := newTestCrypto(t)

	if _, err := c.Decrypt("not base64!!!"); err == nil {
		t.Fatal("Expected error for invalid base64")
	}
	if _, err := c.Decrypt("YWJj"); err == nil {
		t.Fatal("Expected error for truncated ciphertext")
	}
}
