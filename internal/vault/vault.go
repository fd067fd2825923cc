// Package vault stores per-user provider credentials encrypted at rest.
package vault

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/chacha20poly1305"
	"gorm.io/gorm"
)

// ErrNotFound signals that no secret is stored for the (user, vendor) pair.
var ErrNotFound = errors.New("secret not found")

// credentialModel maps to the api_credentials table. Ciphertext is sealed
// with XChaCha20-Poly1305 under the vault master key.
type credentialModel struct {
	UserID     string `gorm:"primaryKey"`
	Vendor     string `gorm:"primaryKey"`
	Ciphertext []byte
	UpdatedAt  time.Time
}

func (credentialModel) TableName() string {
	return "api_credentials"
}

// Vault is the credential boundary: callers see plaintext secrets, the
// database only sees sealed bytes.
type Vault struct {
	db  *gorm.DB
	key []byte
}

// New creates a Vault. masterKey is the base64-encoded 32-byte key from
// configuration.
func New(db *gorm.DB, masterKey string) (*Vault, error) {
	key, err := base64.StdEncoding.DecodeString(masterKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decode vault master key: %w", err)
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("vault master key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	if err := db.AutoMigrate(&credentialModel{}); err != nil {
		return nil, fmt.Errorf("failed to migrate credential table: %w", err)
	}
	return &Vault{db: db, key: key}, nil
}

// PutSecret seals and stores the credential for a (user, vendor) pair.
func (v *Vault) PutSecret(ctx context.Context, userID, vendor, secret string) error {
	sealed, err := v.seal([]byte(secret))
	if err != nil {
		return err
	}
	record := credentialModel{
		UserID:     userID,
		Vendor:     vendor,
		Ciphertext: sealed,
		UpdatedAt:  time.Now().UTC(),
	}
	if err := v.db.WithContext(ctx).Save(&record).Error; err != nil {
		return fmt.Errorf("failed to save credential: %w", err)
	}
	return nil
}

// GetSecret returns the plaintext credential, or ErrNotFound.
func (v *Vault) GetSecret(ctx context.Context, userID, vendor string) (string, error) {
	var record credentialModel
	err := v.db.WithContext(ctx).
		Where("user_id = ? AND vendor = ?", userID, vendor).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to load credential: %w", err)
	}
	plain, err := v.open(record.Ciphertext)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

// DeleteSecret removes a stored credential.
func (v *Vault) DeleteSecret(ctx context.Context, userID, vendor string) error {
	if err := v.db.WithContext(ctx).
		Delete(&credentialModel{}, "user_id = ? AND vendor = ?", userID, vendor).Error; err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	return nil
}

func (v *Vault) seal(plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(v.key)
	if err != nil {
		return nil, fmt.Errorf("failed to init cipher: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

func (v *Vault) open(sealed []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(v.key)
	if err != nil {
		return nil, fmt.Errorf("failed to init cipher: %w", err)
	}
	if len(sealed) < aead.NonceSize() {
		return nil, fmt.Errorf("sealed credential too short")
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to unseal credential: %w", err)
	}
	return plain, nil
}
