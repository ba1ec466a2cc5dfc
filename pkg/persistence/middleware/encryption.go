package middleware

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/aretw0/crosschain/pkg/ports"
)

// EnvelopeKey holds the ciphertext inside the stored envelope.
const EnvelopeKey = "__encrypted__"

// ErrInvalidKey is returned for keys that are not 32 bytes long.
var ErrInvalidKey = errors.New("encryption key must be 32 bytes (AES-256)")

// EncryptionConfig holds the keys for encryption and decryption.
type EncryptionConfig struct {
	// ActiveKey encrypts new values. Must be 32 bytes.
	ActiveKey []byte

	// FallbackKeys are tried in order when ActiveKey cannot decrypt a value.
	// This enables zero-downtime key rotation.
	FallbackKeys [][]byte
}

// Validate checks key sizes.
func (c EncryptionConfig) Validate() error {
	if len(c.ActiveKey) != 32 {
		return ErrInvalidKey
	}
	for _, k := range c.FallbackKeys {
		if len(k) != 32 {
			return fmt.Errorf("fallback key: %w", ErrInvalidKey)
		}
	}
	return nil
}

type encryptionMiddleware struct {
	base
	config EncryptionConfig
}

// NewEncryptionMiddleware encrypts every value with AES-GCM before it reaches the backend.
// The backend only sees an envelope {"__encrypted__": base64}; keys stay in the clear.
func NewEncryptionMiddleware(config EncryptionConfig) (Middleware, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return func(next ports.StateBackend) ports.StateBackend {
		return &encryptionMiddleware{base: base{next}, config: config}
	}, nil
}

func (m *encryptionMiddleware) Store(ctx context.Context, key string, value any) error {
	plainText, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	ciphertext, err := encrypt(plainText, m.config.ActiveKey)
	if err != nil {
		return fmt.Errorf("failed to encrypt value: %w", err)
	}

	envelope := map[string]any{
		EnvelopeKey: base64.StdEncoding.EncodeToString(ciphertext),
	}
	return m.StateBackend.Store(ctx, key, envelope)
}

func (m *encryptionMiddleware) Load(ctx context.Context, key string) (any, error) {
	stored, err := m.StateBackend.Load(ctx, key)
	if err != nil {
		return nil, err
	}

	envelope, _ := stored.(map[string]any)
	encryptedStr, ok := envelope[EnvelopeKey].(string)
	if !ok {
		// Fail closed on plaintext values.
		return nil, fmt.Errorf("value for key %s is missing encrypted data envelope", key)
	}

	ciphertext, err := base64.StdEncoding.DecodeString(encryptedStr)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ciphertext base64: %w", err)
	}

	plainText, err := decryptWithRotation(ciphertext, m.config.ActiveKey, m.config.FallbackKeys)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt value for key %s: %w", key, err)
	}

	var v any
	if err := json.Unmarshal(plainText, &v); err != nil {
		return nil, fmt.Errorf("failed to unmarshal decrypted value: %w", err)
	}
	return v, nil
}

func encrypt(plaintext []byte, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func decryptWithRotation(ciphertext []byte, activeKey []byte, fallbackKeys [][]byte) ([]byte, error) {
	if plain, err := decrypt(ciphertext, activeKey); err == nil {
		return plain, nil
	}
	for _, key := range fallbackKeys {
		if plain, err := decrypt(ciphertext, key); err == nil {
			return plain, nil
		}
	}
	return nil, errors.New("decryption failed with all available keys")
}

func decrypt(ciphertext []byte, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}
	nonce, body := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	return gcm.Open(nil, nonce, body, nil)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
