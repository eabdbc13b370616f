package security

import (
	"regexp"
	"slices"
	"strings"
	"unicode"
)

// credentialFields name secrets that must never be logged.
var credentialFields = []string{
	"password",
	"token",
	"secret",
	"key",
	"authorization",
	"auth",
	"credential",
	"credentials",
	"apikey",
	"api_key",
	"api_secret",
	"access_token",
	"accesstoken",
	"refresh_token",
	"private_key",
	"client_secret",
}

// personalFields name visitor personal data carried in user data or form fields.
var personalFields = []string{
	"em",
	"ph",
	"fn",
	"ln",
	"email",
	"phone",
	"first_name",
	"last_name",
	"external_id",
	"client_ip_address",
	"ip_address",
	"cpf",
}

// shortSensitiveTokens only match whole tokens.
var shortSensitiveTokens = map[string]bool{
	"key":  true,
	"auth": true,
	"em":   true,
	"ph":   true,
	"fn":   true,
	"ln":   true,
	"cpf":  true,
}

var tokenSplitRegex = regexp.MustCompile(`[^a-zA-Z0-9]+`)

// DefaultSensitiveFields returns credential and personal field names, lowercase.
func DefaultSensitiveFields() []string {
	return slices.Concat(credentialFields, personalFields)
}

// IsPersonalField reports whether fieldName names visitor personal data.
func IsPersonalField(fieldName string) bool {
	return matchesAny(fieldName, personalFields)
}

// IsSensitiveField reports whether fieldName names a credential or personal
// data. Matching is case-insensitive and understands camelCase: "sessionToken"
// matches "token", while "keyboard" does not match "key".
func IsSensitiveField(fieldName string) bool {
	return matchesAny(fieldName, credentialFields) || matchesAny(fieldName, personalFields)
}

func matchesAny(fieldName string, fields []string) bool {
	if fieldName == "" {
		return false
	}

	lowerField := strings.ToLower(fieldName)
	normalized := normalizeFieldName(fieldName)
	tokens := tokenSplitRegex.Split(normalized, -1)

	for _, sensitive := range fields {
		if lowerField == sensitive || normalized == sensitive {
			return true
		}

		if shortSensitiveTokens[sensitive] {
			if slices.Contains(tokens, sensitive) {
				return true
			}

			continue
		}

		if matchesWordBoundary(normalized, sensitive) || matchesWordBoundary(lowerField, sensitive) {
			return true
		}
	}

	return false
}

// normalizeFieldName turns camelCase and PascalCase into lowercase
// underscore-delimited tokens: "APIKey" becomes "api_key".
func normalizeFieldName(fieldName string) string {
	var b strings.Builder

	runes := []rune(fieldName)

	for i, r := range runes {
		if i > 0 {
			prev := runes[i-1]

			var next rune
			if i+1 < len(runes) {
				next = runes[i+1]
			}

			if unicode.IsUpper(r) &&
				(unicode.IsLower(prev) || unicode.IsDigit(prev) ||
					(unicode.IsUpper(prev) && next != 0 && unicode.IsLower(next))) {
				b.WriteByte('_')
			}
		}

		b.WriteRune(r)
	}

	return strings.ToLower(b.String())
}

// matchesWordBoundary reports whether pattern occurs in field delimited by
// the string edges or non-alphanumeric characters.
func matchesWordBoundary(field, pattern string) bool {
	for offset := 0; offset < len(field); {
		idx := strings.Index(field[offset:], pattern)
		if idx == -1 {
			return false
		}

		start := offset + idx
		end := start + len(pattern)

		startOk := start == 0 || !isAlphanumeric(field[start-1])
		endOk := end == len(field) || !isAlphanumeric(field[end])

		if startOk && endOk {
			return true
		}

		offset = start + 1
	}

	return false
}

func isAlphanumeric(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}
