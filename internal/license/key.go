// Package license issues and verifies HippoMind license keys: the key
// format, the license record and its stores, the verification server with
// the Stripe checkout webhook, and the client-side gate that caches an
// activated key.
package license

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// KeyPrefix starts every license key.
const KeyPrefix = "HIPPO"

const keyAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

var keyPattern = regexp.MustCompile(`^HIPPO-[A-Z0-9]{4}-[A-Z0-9]{4}-[A-Z0-9]{4}$`)

// keyRule validates the HIPPO-XXXX-XXXX-XXXX shape.
var keyRule = validation.Match(keyPattern).Error("must look like HIPPO-XXXX-XXXX-XXXX")

// ValidateKey returns a validation error for a missing or malformed key.
func ValidateKey(key string) error {
	return validation.Validate(key, validation.Required, keyRule)
}

// ValidFormat reports whether key has the HIPPO-XXXX-XXXX-XXXX shape.
func ValidFormat(key string) bool {
	return ValidateKey(key) == nil
}

// Normalize trims and upper-cases user input.
func Normalize(key string) string {
	return strings.ToUpper(strings.TrimSpace(key))
}

// GenerateKey returns a random key.
func GenerateKey() (string, error) {
	groups := make([]string, 3)
	size := big.NewInt(int64(len(keyAlphabet)))
	for i := range groups {
		var b [4]byte
		for j := range b {
			n, err := rand.Int(rand.Reader, size)
			if err != nil {
				return "", fmt.Errorf("license: generate key: %w", err)
			}
			b[j] = keyAlphabet[n.Int64()]
		}
		groups[i] = string(b[:])
	}
	return KeyPrefix + "-" + strings.Join(groups, "-"), nil
}

// KeyFromSession derives the key for a checkout session. A webhook that is
// delivered twice issues the same key.
func KeyFromSession(sessionID string) string {
	sum := sha256.Sum256([]byte(sessionID))
	h := strings.ToUpper(hex.EncodeToString(sum[:]))[:12]
	return fmt.Sprintf("%s-%s-%s-%s", KeyPrefix, h[0:4], h[4:8], h[8:12])
}
