// Package cryptoutil provides symmetric encryption for secrets stored on
// disk (refresh tokens, admin passwords) and stable ID generation for
// requests, warmup sessions and device profiles.
package cryptoutil

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"
)

// deriveKey expands a machine-bound seed into a 32-byte AES-256 key using
// HKDF-SHA256. Unlike the original source's fixed device-id-hash key, this
// folds in a fixed application salt so the derivation is a proper KDF
// rather than a bare digest.
func deriveKey(seed string) ([32]byte, error) {
	var key [32]byte
	h := hkdf.New(sha256.New, []byte(seed), []byte("oauth-llm-nexus/secrets-at-rest"), nil)
	if _, err := io.ReadFull(h, key[:]); err != nil {
		return key, err
	}
	return key, nil
}

// machineSeed returns a stable per-host seed. It never fails: falling back
// to a constant keeps encryption available even when the hostname can't be
// read, matching the original's own "default" fallback.
func machineSeed() string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return "default"
}

// EncryptSecret encrypts plaintext with AES-256-GCM under a key derived
// from the local machine seed. A fresh random nonce is generated per call
// and prepended to the ciphertext; GCM nonce reuse is a real confidentiality
// break, so unlike the original source (which hardcoded a fixed nonce) this
// always draws from crypto/rand.
func EncryptSecret(plaintext string) (string, error) {
	key, err := deriveKey(machineSeed())
	if err != nil {
		return "", fmt.Errorf("derive key: %w", err)
	}
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return "", fmt.Errorf("new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("new gcm: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("read nonce: %w", err)
	}
	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// DecryptSecret reverses EncryptSecret.
func DecryptSecret(encoded string) (string, error) {
	key, err := deriveKey(machineSeed())
	if err != nil {
		return "", fmt.Errorf("derive key: %w", err)
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("base64 decode: %w", err)
	}
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return "", fmt.Errorf("new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("new gcm: %w", err)
	}
	if len(raw) < gcm.NonceSize() {
		return "", errors.New("ciphertext too short")
	}
	nonce, ciphertext := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}
	return string(plaintext), nil
}

// HashSchemaKey returns the first 16 hex characters of the SHA-256 digest
// of the serialized schema, used as the cache-key suffix in
// "tool_name:hash16" (spec §3 SchemaCacheEntry, §4.1 caching).
func HashSchemaKey(serialized []byte) string {
	sum := sha256.Sum256(serialized)
	return hex.EncodeToString(sum[:])[:16]
}

// NewRequestID returns a stable per-request identifier in the teacher's
// "agent-<uuid>" shape (internal/proxy/handlers/common.go).
func NewRequestID() string {
	return "agent-" + uuid.New().String()
}

// NewToolUseID returns a Claude-style tool_use id: "<funcName>-<8 hex>".
func NewToolUseID(funcName string) string {
	var b [4]byte
	_, _ = rand.Read(b[:])
	return fmt.Sprintf("%s-%s", funcName, hex.EncodeToString(b[:]))
}

// NewDeviceID returns a random hex ID of the given byte length, used for
// device-profile fields (machine_id, mac_machine_id, dev_device_id, sqm_id).
// Uses crypto/rand rather than the original's rand::distributions::Alphanumeric,
// which does not matter for a non-secret fingerprint but keeps one RNG
// source across the package.
func NewDeviceID(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// NewWarmupSessionID returns "warmup_<unixTs>_<uuid8>" per spec §4.8.
func NewWarmupSessionID(unixTs int64) string {
	id := uuid.New().String()
	return fmt.Sprintf("warmup_%d_%s", unixTs, id[:8])
}
