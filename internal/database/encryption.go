package database

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	keySize        = 32
	nonceSize      = 12
	kdfIterations  = 100000
	encryptionSalt = "wapool-token-salt-v1"
	cipherPrefix   = "enc:v1:"

	envEnableEncryption = "WAPOOL_ENABLE_ENCRYPTION"
	envEncryptionSecret = "WAPOOL_ENCRYPTION_SECRET"
)

// encryptor seals app tokens at rest. A nil gcm stores plaintext.
type encryptor struct {
	gcm cipher.AEAD
}

func newEncryptor() (*encryptor, error) {
	if os.Getenv(envEnableEncryption) != "true" {
		return &encryptor{}, nil
	}

	secret := os.Getenv(envEncryptionSecret)
	if secret == "" {
		return nil, fmt.Errorf("%s environment variable is required when encryption is enabled", envEncryptionSecret)
	}
	if len(secret) < 32 {
		return nil, fmt.Errorf("encryption secret must be at least 32 characters long")
	}

	key := pbkdf2.Key([]byte(secret), []byte(encryptionSalt), kdfIterations, keySize, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &encryptor{gcm: gcm}, nil
}

func (e *encryptor) enabled() bool {
	return e.gcm != nil
}

// seal returns a prefixed ciphertext, or plaintext when encryption is off.
func (e *encryptor) seal(plaintext string) (string, error) {
	if plaintext == "" || e.gcm == nil {
		return plaintext, nil
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := e.gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return cipherPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// open accepts both sealed and legacy plaintext values.
func (e *encryptor) open(stored string) (string, error) {
	if !strings.HasPrefix(stored, cipherPrefix) {
		return stored, nil
	}
	if e.gcm == nil {
		return "", fmt.Errorf("value is encrypted but %s is not enabled", envEnableEncryption)
	}

	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(stored, cipherPrefix))
	if err != nil {
		return "", fmt.Errorf("failed to decode base64: %w", err)
	}
	if len(data) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	plaintext, err := e.gcm.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}
	return string(plaintext), nil
}
