package patient

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
)

// DecryptSentinel replaces an identity key that cannot be decrypted in
// batch listings. A single corrupt row must not abort the listing.
const DecryptSentinel = "***"

// Crypto protects the patient identity key at rest. AES-GCM ciphertext
// is stored for recovery; because GCM output is non-deterministic, a
// separate keyed HMAC-SHA256 digest is stored for equality lookups.
type Crypto struct {
	aesKey  []byte
	hmacKey []byte
}

// NewCrypto creates a Crypto from a hex-encoded AES key (16, 24, or 32
// bytes once decoded) and an HMAC secret.
func NewCrypto(encryptionKeyHex, hmacKey string) (*Crypto, error) {
	key, err := hex.DecodeString(encryptionKeyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid encryption key: %w", err)
	}
	if len(key) != 16 && len(key) != 24 && len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 16, 24, or 32 bytes (got %d)", len(key))
	}
	if hmacKey == "" {
		return nil, fmt.Errorf("hmac key is required")
	}
	return &Crypto{aesKey: key, hmacKey: []byte(hmacKey)}, nil
}

// Encrypt encrypts the identity key and returns base64 ciphertext
func (c *Crypto) Encrypt(plaintext string) (string, error) {
	block, err := aes.NewCipher(c.aesKey)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, aesGCM.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := aesGCM.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Decrypt decrypts base64 ciphertext produced by Encrypt
func (c *Crypto) Decrypt(encoded string) (string, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("failed to decode base64: %w", err)
	}

	block, err := aes.NewCipher(c.aesKey)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %w", err)
	}

	nonceSize := aesGCM.NonceSize()
	if len(ciphertext) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := aesGCM.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}

	return string(plaintext), nil
}

// LookupHash returns the deterministic digest used for equality lookups
// and the unique constraint on patients.
func (c *Crypto) LookupHash(identityKey string) string {
	mac := hmac.New(sha256.New, c.hmacKey)
	mac.Write([]byte(identityKey))
	return hex.EncodeToString(mac.Sum(nil))
}
