// Package secrets handles symmetric encryption of stored credentials and
// exposes them to task executors as a decrypt-and-fetch capability.
package secrets

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"flowforge/runtime"
)

// Cipher encrypts and decrypts credential values with AES-256-CBC. The wire
// format is "ivhex:cipherhex" with PKCS#7 padding, matching what the editor
// stores.
type Cipher struct {
	key []byte
}

// NewCipher takes the hex-encoded 32-byte key.
func NewCipher(hexKey string) (*Cipher, error) {
	if hexKey == "" {
		return nil, errors.New("encryption key not provided")
	}
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("invalid encryption key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes, got %d", len(key))
	}
	return &Cipher{key: key}, nil
}

func (c *Cipher) Encrypt(plaintext string) (string, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", err
	}
	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return "", err
	}

	padded := pkcs7Pad([]byte(plaintext), aes.BlockSize)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)

	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(out), nil
}

func (c *Cipher) Decrypt(encrypted string) (string, error) {
	ivPart, cipherPart, ok := strings.Cut(encrypted, ":")
	if !ok {
		return "", errors.New("malformed ciphertext")
	}
	iv, err := hex.DecodeString(ivPart)
	if err != nil || len(iv) != aes.BlockSize {
		return "", errors.New("malformed initialization vector")
	}
	data, err := hex.DecodeString(cipherPart)
	if err != nil || len(data) == 0 || len(data)%aes.BlockSize != 0 {
		return "", errors.New("malformed ciphertext")
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", err
	}
	out := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, data)

	unpadded, err := pkcs7Unpad(out, aes.BlockSize)
	if err != nil {
		return "", err
	}
	return string(unpadded), nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, errors.New("invalid padded length")
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, errors.New("invalid padding")
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, errors.New("invalid padding")
		}
	}
	return data[:len(data)-n], nil
}

// CredentialSource resolves a stored credential id to its plaintext value.
type CredentialSource struct {
	store  runtime.Store
	cipher *Cipher
}

func NewCredentialSource(store runtime.Store, cipher *Cipher) *CredentialSource {
	return &CredentialSource{store: store, cipher: cipher}
}

// Plaintext fetches and decrypts the credential owned by userID.
func (s *CredentialSource) Plaintext(ctx context.Context, userID, id string) (string, error) {
	cred, err := s.store.GetCredential(ctx, userID, id)
	if err != nil {
		return "", fmt.Errorf("credential not found: %w", err)
	}
	value, err := s.cipher.Decrypt(cred.Value)
	if err != nil {
		return "", fmt.Errorf("cannot decrypt credential: %w", err)
	}
	return value, nil
}
