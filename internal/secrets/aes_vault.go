package secrets

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/pbkdf2"
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"github.com/jonboulle/clockwork"

	"github.com/rendis/lendflow/pkg/schema"
)

const defaultIterations = 100_000

// VaultConfig configures key derivation.
// Provide either MasterKey (raw 32 bytes) or Passphrase + Salt.
type VaultConfig struct {
	MasterKey  []byte
	Passphrase string
	Salt       []byte
	Iterations int // PBKDF2 iterations, default 100_000
}

// Enabled reports whether any key material is configured.
func (c VaultConfig) Enabled() bool {
	return len(c.MasterKey) > 0 || c.Passphrase != ""
}

// Vault seals credentials with AES-256-GCM.
type Vault struct {
	store CredentialStore
	aead  cipher.AEAD
	clock clockwork.Clock
}

// NewVault derives the key and builds the cipher. A nil clock uses the real clock.
func NewVault(s CredentialStore, cfg VaultConfig, clock clockwork.Clock) (*Vault, error) {
	key, err := deriveKey(cfg)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gcm: %w", err)
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Vault{store: s, aead: aead, clock: clock}, nil
}

func deriveKey(cfg VaultConfig) ([]byte, error) {
	if len(cfg.MasterKey) > 0 {
		if len(cfg.MasterKey) != 32 {
			return nil, schema.NewErrorf(schema.ErrCodeCredential,
				"master key must be 32 bytes, got %d", len(cfg.MasterKey))
		}
		return cfg.MasterKey, nil
	}
	if cfg.Passphrase == "" {
		return nil, schema.NewError(schema.ErrCodeCredential, "either a master key or a passphrase is required")
	}
	if len(cfg.Salt) == 0 {
		return nil, schema.NewError(schema.ErrCodeCredential, "salt is required with passphrase")
	}
	iterations := cfg.Iterations
	if iterations <= 0 {
		iterations = defaultIterations
	}
	return pbkdf2.Key(sha256.New, cfg.Passphrase, cfg.Salt, iterations, 32)
}

func (v *Vault) seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, v.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return v.aead.Seal(nonce, nonce, plaintext, nil), nil
}

func (v *Vault) open(sealed []byte) ([]byte, error) {
	n := v.aead.NonceSize()
	if len(sealed) < n {
		return nil, schema.NewError(schema.ErrCodeCredential, "ciphertext too short")
	}
	plaintext, err := v.aead.Open(nil, sealed[:n], sealed[n:], nil)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeCredential, "decrypt failed: %s", err.Error())
	}
	return plaintext, nil
}

// Put encrypts and stores value under name, replacing any previous value.
func (v *Vault) Put(ctx context.Context, name, value string) error {
	if !ValidName(name) {
		return schema.NewErrorf(schema.ErrCodeValidation, "invalid credential name %q", name)
	}
	sealed, err := v.seal([]byte(value))
	if err != nil {
		return err
	}
	return v.store.PutCredential(ctx, name, sealed, v.clock.Now())
}

// Resolve returns the decrypted value of name.
func (v *Vault) Resolve(ctx context.Context, name string) (string, error) {
	sealed, err := v.store.GetCredential(ctx, name)
	if err != nil {
		if schema.IsCode(err, schema.ErrCodeNotFound) {
			return "", unknownCredential(name)
		}
		return "", err
	}
	plaintext, err := v.open(sealed)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

func (v *Vault) Delete(ctx context.Context, name string) error {
	return v.store.DeleteCredential(ctx, name)
}

func (v *Vault) List(ctx context.Context) ([]string, error) {
	return v.store.ListCredentials(ctx)
}

// Expand replaces every ${{secrets.NAME}} in text with its decrypted value.
// Text without references is returned unchanged.
func (v *Vault) Expand(ctx context.Context, text string) (string, error) {
	return expand(text, func(name string) (string, error) {
		return v.Resolve(ctx, name)
	})
}
