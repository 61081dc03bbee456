// Package auth provides API key generation and verification for the
// hostsweep API. Keys are never stored; the configuration carries bcrypt
// hashes only.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base32"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// API key generation and validation constants
const (
	// APIKeyLength is the length of the random part of an API key
	APIKeyLength = 32
	// APIKeyPrefix is the standard prefix for all API keys
	APIKeyPrefix = "hsk"
	// DisplayPrefixLength is the length of prefix shown in listings (e.g., "hsk_abcdefgh...")
	DisplayPrefixLength = 12

	// BcryptCost is the bcrypt cost for hashing API keys
	BcryptCost = 12
	// BcryptMaxInputLength is the maximum input length for bcrypt (72 bytes)
	BcryptMaxInputLength = 72
)

// GeneratedAPIKey contains a newly generated API key and its hash.
type GeneratedAPIKey struct {
	Key       string `json:"key"`        // shown once, never persisted
	Hash      string `json:"hash"`       // goes into api.api_key_hashes
	KeyPrefix string `json:"key_prefix"` // display-safe prefix
}

// GenerateAPIKey creates a new random API key and its bcrypt hash.
func GenerateAPIKey() (*GeneratedAPIKey, error) {
	randomBytes := make([]byte, APIKeyLength)
	if _, err := rand.Read(randomBytes); err != nil {
		return nil, fmt.Errorf("failed to generate random key: %w", err)
	}

	// base32 avoids ambiguous characters
	randomPart := strings.ToLower(base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(randomBytes))
	if len(randomPart) > APIKeyLength {
		randomPart = randomPart[:APIKeyLength]
	}

	fullKey := fmt.Sprintf("%s_%s", APIKeyPrefix, randomPart)

	hash, err := HashAPIKey(fullKey)
	if err != nil {
		return nil, err
	}

	return &GeneratedAPIKey{
		Key:       fullKey,
		Hash:      hash,
		KeyPrefix: CreateDisplayPrefix(fullKey),
	}, nil
}

// HashAPIKey creates a bcrypt hash of an API key for storage in the config.
func HashAPIKey(apiKey string) (string, error) {
	return hashWithCost(apiKey, BcryptCost)
}

func hashWithCost(apiKey string, cost int) (string, error) {
	if apiKey == "" {
		return "", fmt.Errorf("API key cannot be empty")
	}

	hash, err := bcrypt.GenerateFromPassword(keyBytes(apiKey), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash API key: %w", err)
	}

	return string(hash), nil
}

// ValidateAPIKey checks if a provided API key matches the stored hash
func ValidateAPIKey(apiKey, storedHash string) bool {
	if apiKey == "" || storedHash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(storedHash), keyBytes(apiKey)) == nil
}

// keyBytes applies the pre-hash used for keys beyond bcrypt's 72-byte limit.
func keyBytes(apiKey string) []byte {
	b := []byte(apiKey)
	if len(b) > BcryptMaxInputLength {
		sum := sha256.Sum256(b)
		b = sum[:]
	}
	return b
}

// IsValidAPIKeyFormat checks if an API key has the correct format
func IsValidAPIKeyFormat(apiKey string) bool {
	if !strings.HasPrefix(apiKey, APIKeyPrefix+"_") {
		return false
	}

	if len(apiKey) < 15 || len(apiKey) > 50 {
		return false
	}

	for _, char := range apiKey {
		if (char < 'a' || char > 'z') &&
			(char < 'A' || char > 'Z') &&
			(char < '0' || char > '9') &&
			char != '_' {
			return false
		}
	}

	return true
}

// CreateDisplayPrefix creates a safe-to-display prefix from a full API key
func CreateDisplayPrefix(apiKey string) string {
	if !IsValidAPIKeyFormat(apiKey) {
		return "invalid_key"
	}

	random := strings.TrimPrefix(apiKey, APIKeyPrefix+"_")
	if len(random) >= 8 {
		return fmt.Sprintf("%s_%s...", APIKeyPrefix, random[:8])
	}
	return fmt.Sprintf("%s_%s...", APIKeyPrefix, random)
}

// Verifier checks presented keys against a fixed set of bcrypt hashes.
// Successful matches are cached by SHA-256 digest so repeated requests with
// the same key skip the bcrypt comparison.
type Verifier struct {
	hashes []string

	mu       sync.RWMutex
	verified map[[sha256.Size]byte]struct{}
}

// NewVerifier creates a verifier for the given hashes. A verifier with no
// hashes is disabled and accepts every request.
func NewVerifier(hashes []string) *Verifier {
	kept := make([]string, 0, len(hashes))
	for _, h := range hashes {
		if h = strings.TrimSpace(h); h != "" {
			kept = append(kept, h)
		}
	}
	return &Verifier{
		hashes:   kept,
		verified: make(map[[sha256.Size]byte]struct{}),
	}
}

// Enabled reports whether any hashes are configured.
func (v *Verifier) Enabled() bool {
	return len(v.hashes) > 0
}

// Verify reports whether apiKey matches one of the configured hashes.
func (v *Verifier) Verify(apiKey string) bool {
	if apiKey == "" {
		return false
	}

	digest := sha256.Sum256([]byte(apiKey))
	v.mu.RLock()
	_, ok := v.verified[digest]
	v.mu.RUnlock()
	if ok {
		return true
	}

	for _, h := range v.hashes {
		if ValidateAPIKey(apiKey, h) {
			v.mu.Lock()
			v.verified[digest] = struct{}{}
			v.mu.Unlock()
			return true
		}
	}
	return false
}
