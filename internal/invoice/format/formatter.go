// Package format renders invoice and receipt numbers from school templates.
package format

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultInvoiceNumberTemplate = "INV-{YYYY}{MM}-{SEQ5}"
	DefaultReceiptNumberTemplate = "{PREFIX}-{YYYY}-{SEQ6}"

	maxSeqWidth = 18
)

var (
	ErrEmptyTemplate   = errors.New("number template is empty")
	ErrInvalidSequence = errors.New("number sequence must be positive")

	tokenRe = regexp.MustCompile(`\{([A-Z]+)(\d*)\}`)
)

// FormatNumber substitutes every {TOKEN} in template. Date tokens come from
// issuedAt, {SEQ} and the zero padded {SEQn} from seq, and any other name from
// vars. A token that cannot be resolved is an error.
//
// Supported tokens: {YYYY} {YY} {MM} {DD} {SEQ} {SEQn}.
func FormatNumber(template string, issuedAt time.Time, seq int64, vars map[string]string) (string, error) {
	if strings.TrimSpace(template) == "" {
		return "", ErrEmptyTemplate
	}
	if seq <= 0 {
		return "", fmt.Errorf("%w: %d", ErrInvalidSequence, seq)
	}

	var unresolved []string
	out := tokenRe.ReplaceAllStringFunc(template, func(token string) string {
		m := tokenRe.FindStringSubmatch(token)
		value, ok := resolve(m[1], m[2], issuedAt, seq, vars)
		if !ok {
			unresolved = append(unresolved, token)
			return token
		}
		return value
	})
	if len(unresolved) > 0 {
		return "", fmt.Errorf("unresolved token in number template %q: %s", template, strings.Join(unresolved, ", "))
	}
	if strings.ContainsAny(out, "{}") {
		return "", fmt.Errorf("malformed number template %q", template)
	}
	return out, nil
}

func resolve(name, width string, issuedAt time.Time, seq int64, vars map[string]string) (string, bool) {
	if name == "SEQ" {
		if width == "" {
			return strconv.FormatInt(seq, 10), true
		}
		n, err := strconv.Atoi(width)
		if err != nil || n <= 0 || n > maxSeqWidth {
			return "", false
		}
		return fmt.Sprintf("%0*d", n, seq), true
	}
	if width != "" {
		return "", false
	}
	switch name {
	case "YYYY":
		return issuedAt.Format("2006"), true
	case "YY":
		return issuedAt.Format("06"), true
	case "MM":
		return issuedAt.Format("01"), true
	case "DD":
		return issuedAt.Format("02"), true
	}
	value, ok := vars[name]
	return value, ok
}
