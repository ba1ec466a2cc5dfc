package middleware_test

import (
	"context"
	"crypto/rand"
	"errors"
	"io"
	"testing"

	"github.com/aretw0/crosschain/pkg/adapters/memory"
	"github.com/aretw0/crosschain/pkg/domain"
	"github.com/aretw0/crosschain/pkg/persistence/middleware"
	"github.com/aretw0/crosschain/pkg/ports"
)

func generateKey(t *testing.T) []byte {
	k := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, k); err != nil {
		t.Fatal(err)
	}
	return k
}

func encrypted(t *testing.T, next ports.StateBackend, cfg middleware.EncryptionConfig) ports.StateBackend {
	t.Helper()
	mw, err := middleware.NewEncryptionMiddleware(cfg)
	if err != nil {
		t.Fatalf("NewEncryptionMiddleware failed: %v", err)
	}
	return mw(next)
}

func TestEncryptionMiddleware_Contract(t *testing.T) {
	ports.RunStateBackendContract(t, encrypted(t, memory.NewStore(), middleware.EncryptionConfig{ActiveKey: generateKey(t)}))
}

func TestEncryptionMiddleware_Roundtrip(t *testing.T) {
	underlying := memory.NewStore()
	secure := encrypted(t, underlying, middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	ctx := context.Background()

	if err := secure.Store(ctx, "credentials", map[string]any{"secret": "my-secret-sauce"}); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	stored, err := underlying.Load(ctx, "credentials")
	if err != nil {
		t.Fatalf("Underlying load failed: %v", err)
	}
	envelope := stored.(map[string]any)
	if _, ok := envelope["secret"]; ok {
		t.Fatalf("Expected secret to be hidden, found: %v", envelope)
	}
	if _, ok := envelope[middleware.EnvelopeKey]; !ok {
		t.Fatal("Expected __encrypted__ field in envelope")
	}

	loaded, err := secure.Load(ctx, "credentials")
	if err != nil {
		t.Fatalf("Load via middleware failed: %v", err)
	}
	if loaded.(map[string]any)["secret"] != "my-secret-sauce" {
		t.Errorf("Expected 'my-secret-sauce', got %v", loaded)
	}
}

func TestEncryptionMiddleware_KeyRotation(t *testing.T) {
	underlying := memory.NewStore()
	oldKey := generateKey(t)
	newKey := generateKey(t)
	ctx := context.Background()

	secureOld := encrypted(t, underlying, middleware.EncryptionConfig{ActiveKey: oldKey})
	if err := secureOld.Store(ctx, "data", "encrypted-with-old-key"); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	secureNew := encrypted(t, underlying, middleware.EncryptionConfig{
		ActiveKey:    newKey,
		FallbackKeys: [][]byte{oldKey},
	})
	loaded, err := secureNew.Load(ctx, "data")
	if err != nil {
		t.Fatalf("Load with rotated key failed: %v", err)
	}
	if loaded != "encrypted-with-old-key" {
		t.Errorf("Decryption with fallback key failed, got %v", loaded)
	}

	if err := secureNew.Store(ctx, "data", "encrypted-with-new-key"); err != nil {
		t.Fatalf("Store with new key failed: %v", err)
	}
	if _, err := secureOld.Load(ctx, "data"); err == nil {
		t.Error("Expected failure when loading new-key encryption with old-key middleware")
	}
}

func TestEncryptionMiddleware_RejectsPlaintext(t *testing.T) {
	underlying := memory.NewStore()
	secure := encrypted(t, underlying, middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	ctx := context.Background()

	if err := underlying.Store(ctx, "legacy", "plain"); err != nil {
		t.Fatal(err)
	}
	if _, err := secure.Load(ctx, "legacy"); err == nil {
		t.Error("Expected plaintext value to be rejected")
	}
	if _, err := secure.Load(ctx, "missing"); !errors.Is(err, domain.ErrUnknownKey) {
		t.Errorf("Expected ErrUnknownKey, got %v", err)
	}
}

func TestEncryptionMiddleware_InvalidKey(t *testing.T) {
	_, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: []byte("short-key")})
	if !errors.Is(err, middleware.ErrInvalidKey) {
		t.Errorf("Expected ErrInvalidKey, got %v", err)
	}

	_, err = middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
		ActiveKey:    generateKey(t),
		FallbackKeys: [][]byte{[]byte("short")},
	})
	if !errors.Is(err, middleware.ErrInvalidKey) {
		t.Errorf("Expected ErrInvalidKey for fallback, got %v", err)
	}
}
