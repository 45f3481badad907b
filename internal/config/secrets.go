// RailAtlas - Minecraft Rail Network Telemetry and Geometry Mirror
// Copyright 2026 RailAtlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/railatlas/railatlas

// Beacon shared secrets can be stored encrypted in config files so that a
// checked-in config.yaml does not leak credentials. Format:
//
//	key: enc:<base64(nonce || ciphertext)>
//
// AES-256-GCM with the key derived from the master key via HKDF-SHA256.
package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const (
	// encryptedPrefix marks an encrypted value in a config file.
	encryptedPrefix = "enc:"

	// secretSalt binds derived keys to this application's use case.
	secretSalt = "railatlas-beacon-secrets"

	// secretInfo is the HKDF info parameter for key derivation.
	secretInfo = "beacon-key-encryption-v1"

	aesKeySize   = 32
	gcmNonceSize = 12
)

var (
	// ErrEmptyMasterKey is returned when an empty master key is provided.
	ErrEmptyMasterKey = errors.New("master key cannot be empty")

	// ErrDecryptFailed is returned when decryption fails (wrong key or
	// tampered ciphertext).
	ErrDecryptFailed = errors.New("decryption failed: invalid ciphertext or authentication tag")

	// ErrCiphertextTooShort is returned for ciphertexts shorter than a nonce.
	ErrCiphertextTooShort = errors.New("ciphertext too short")
)

// SecretBox encrypts and decrypts config secrets with AES-256-GCM using a
// key derived from the operator's master key.
type SecretBox struct {
	aead cipher.AEAD
}

// NewSecretBox derives the encryption key from masterKey and prepares the
// AEAD cipher.
func NewSecretBox(masterKey string) (*SecretBox, error) {
	if masterKey == "" {
		return nil, ErrEmptyMasterKey
	}

	key := make([]byte, aesKeySize)
	kdf := hkdf.New(sha256.New, []byte(masterKey), []byte(secretSalt), []byte(secretInfo))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}

	return &SecretBox{aead: aead}, nil
}

// Encrypt returns plaintext encrypted and encoded as "enc:<base64>".
func (b *SecretBox) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", errors.New("plaintext cannot be empty")
	}

	nonce := make([]byte, gcmNonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := b.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return encryptedPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. The input must carry the "enc:" prefix.
func (b *SecretBox) Decrypt(value string) (string, error) {
	encoded := strings.TrimPrefix(value, encryptedPrefix)
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}
	if len(raw) < gcmNonceSize {
		return "", ErrCiphertextTooShort
	}

	nonce, ciphertext := raw[:gcmNonceSize], raw[gcmNonceSize:]
	plain, err := b.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrDecryptFailed
	}
	return string(plain), nil
}
