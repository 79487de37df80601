package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	// KeyPrefix starts every generated API key.
	KeyPrefix = "tb_"
	// PrefixLen is how many leading characters are stored in clear for lookup.
	PrefixLen = 8
)

// GeneratedKey is a new API key. Raw is shown to the user once.
type GeneratedKey struct {
	Raw    string
	Prefix string
	Hash   string
}

// GenerateAPIKey creates a random key and its bcrypt hash.
func GenerateAPIKey() (GeneratedKey, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return GeneratedKey{}, fmt.Errorf("generate api key: %w", err)
	}
	raw := KeyPrefix + hex.EncodeToString(buf)

	hash, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.DefaultCost)
	if err != nil {
		return GeneratedKey{}, fmt.Errorf("hash api key: %w", err)
	}
	return GeneratedKey{Raw: raw, Prefix: raw[:PrefixLen], Hash: string(hash)}, nil
}

// KeyLookupPrefix returns the stored prefix of a raw key, or false when the
// key cannot be one of ours.
func KeyLookupPrefix(raw string) (string, bool) {
	if len(raw) < PrefixLen || !strings.HasPrefix(raw, KeyPrefix) {
		return "", false
	}
	return raw[:PrefixLen], true
}

// MatchAPIKey reports whether raw hashes to hash.
func MatchAPIKey(hash, raw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(raw)) == nil
}
