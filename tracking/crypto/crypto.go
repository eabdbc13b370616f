package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"hash"
	"strings"
	"unicode"

	"github.com/LerianStudio/lib-tracking/tracking/channel"
	"github.com/LerianStudio/lib-tracking/tracking/security"
	"golang.org/x/text/unicode/norm"
)

// ErrNilHasher is returned when a Hasher method is called on a nil receiver.
var ErrNilHasher = errors.New("hasher is nil")

// PersonalFields are the user data keys HashUserData hashes.
var PersonalFields = []string{
	channel.UserEmail,
	channel.UserPhone,
	channel.UserFirstName,
	channel.UserLastName,
	channel.UserExternalID,
}

// Hasher hashes personal fields. The zero value uses plain SHA-256.
type Hasher struct {
	// Secret switches hashing to HMAC-SHA256 keyed with Secret.
	Secret string
}

// Hash normalizes value and returns its hex digest. Empty input returns "".
func (h *Hasher) Hash(value string) string {
	if h == nil {
		return Hash(value)
	}

	return h.hash(Normalize(value))
}

// HashField normalizes value according to key (phones keep digits only) and hashes it.
func (h *Hasher) HashField(key, value string) string {
	if h == nil {
		return HashField(key, value)
	}

	return h.hash(NormalizeField(key, value))
}

// HashUserData returns a copy of data with PersonalFields hashed.
func (h *Hasher) HashUserData(data channel.UserData) channel.UserData {
	if data == nil {
		return nil
	}

	hashed := data.Clone()

	for _, key := range PersonalFields {
		if value, ok := hashed[key]; ok && value != "" {
			hashed[key] = h.HashField(key, value)
		}
	}

	return hashed
}

// String hides the secret.
func (h *Hasher) String() string {
	if h == nil {
		return "<nil>"
	}

	if h.Secret == "" {
		return "crypto.Hasher{sha256}"
	}

	return "crypto.Hasher{hmac-sha256, secret=" + security.RedactedValue + "}"
}

// GoString hides the secret.
func (h *Hasher) GoString() string {
	return h.String()
}

func (h *Hasher) hash(normalized string) string {
	if normalized == "" {
		return ""
	}

	if security.IsHashed(normalized) {
		return normalized
	}

	var digest hash.Hash
	if h.Secret != "" {
		digest = hmac.New(sha256.New, []byte(h.Secret))
	} else {
		digest = sha256.New()
	}

	_, _ = digest.Write([]byte(normalized))

	return hex.EncodeToString(digest.Sum(nil))
}

var defaultHasher = &Hasher{}

// Hash hashes value with plain SHA-256.
func Hash(value string) string {
	return defaultHasher.hash(Normalize(value))
}

// HashField hashes value with plain SHA-256 after field-aware normalization.
func HashField(key, value string) string {
	return defaultHasher.hash(NormalizeField(key, value))
}

// HashUserData hashes PersonalFields of data with plain SHA-256.
func HashUserData(data channel.UserData) channel.UserData {
	return defaultHasher.HashUserData(data)
}

// Normalize applies NFKC, trims and lower-cases value.
func Normalize(value string) string {
	return strings.ToLower(strings.TrimSpace(norm.NFKC.String(value)))
}

// NormalizeField is Normalize plus per-field rules: phones keep digits only.
func NormalizeField(key, value string) string {
	normalized := Normalize(value)

	if key == channel.UserPhone && !security.IsHashed(normalized) {
		return strings.Map(func(r rune) rune {
			if unicode.IsDigit(r) {
				return r
			}

			return -1
		}, normalized)
	}

	return normalized
}
