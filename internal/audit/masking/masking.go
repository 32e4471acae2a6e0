// Package masking redacts payer contact details and gateway secrets before
// they reach the audit log.
package masking

import "strings"

const maskToken = "****"

type rule func(string) string

// fieldRules maps metadata keys to the redaction applied to their string values.
var fieldRules = map[string]rule{
	"signature":      MaskSecret,
	"transaction_id": MaskSecret,
	"api_key":        MaskSecret,
	"email":          MaskEmail,
	"contact":        MaskPhone,
	"phone":          MaskPhone,
}

// Metadata returns a copy of the audit metadata with sensitive fields masked.
// Nested maps are walked; keys are matched case-insensitively.
func Metadata(input map[string]any) map[string]any {
	if len(input) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(input))
	for key, value := range input {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		out[key] = maskField(key, value)
	}
	return out
}

func maskField(key string, value any) any {
	switch v := value.(type) {
	case string:
		if apply, ok := fieldRules[strings.ToLower(key)]; ok {
			return apply(v)
		}
		return v
	case map[string]any:
		return Metadata(v)
	default:
		return value
	}
}

// MaskSecret keeps a provider prefix such as "pay_" and the last four characters.
func MaskSecret(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	prefix, rest := "", value
	if i := strings.LastIndex(value, "_"); i >= 0 && i < len(value)-1 {
		prefix, rest = value[:i+1], value[i+1:]
	}
	if len(rest) <= 4 {
		return prefix + maskToken
	}
	return prefix + maskToken + rest[len(rest)-4:]
}

// MaskEmail keeps the first letter of the mailbox and the domain.
func MaskEmail(value string) string {
	value = strings.TrimSpace(value)
	at := strings.LastIndex(value, "@")
	if at <= 0 {
		return MaskSecret(value)
	}
	return value[:1] + maskToken + value[at:]
}

// MaskPhone keeps the last four digits.
func MaskPhone(value string) string {
	digits := make([]byte, 0, len(value))
	for i := 0; i < len(value); i++ {
		if value[i] >= '0' && value[i] <= '9' {
			digits = append(digits, value[i])
		}
	}
	if len(digits) <= 4 {
		if len(digits) == 0 {
			return ""
		}
		return maskToken
	}
	return maskToken + string(digits[len(digits)-4:])
}
