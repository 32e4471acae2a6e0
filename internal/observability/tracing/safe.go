package tracing

import (
	"errors"
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

var blockedAttributeFragments = []string{
	"secret",
	"signature",
	"token",
	"password",
	"authorization",
	"api_key",
	"email",
	"phone",
}

// SafeAttributes drops attributes whose key looks like it carries credentials or PII.
func SafeAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		key := strings.ToLower(string(attr.Key))
		if blocked(key) {
			continue
		}
		out = append(out, attr)
	}
	return out
}

func blocked(key string) bool {
	for _, fragment := range blockedAttributeFragments {
		if strings.Contains(key, fragment) {
			return true
		}
	}
	return false
}

// SafeError returns an error suitable for span recording. Messages that mention
// gateway credentials are replaced with a generic one.
func SafeError(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	if blocked(msg) {
		return errors.New("redacted error")
	}
	return err
}
