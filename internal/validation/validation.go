// Package validation holds the shared input validation and
// sanitization helpers used on every write boundary. Pure functions,
// no state: the same checks run identically wherever they are called.
package validation

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Rule binds a field to an ordered list of rule names. Rules run in
// order and evaluation stops at the field's first failure; failures
// from different fields are all collected.
type Rule struct {
	Field string
	Value any
	Rules []string
	// Param overrides the default bound for minLength/maxLength.
	Param int
}

type Result struct {
	IsValid bool
	Errors  []string
}

var (
	emailRe    = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	nameRe     = regexp.MustCompile(`^[a-zA-Z\s]{2,50}$`)
	scriptRe   = regexp.MustCompile(`(?i)<script|javascript:|on\w+=`)
	angleRe    = regexp.MustCompile(`[<>]`)
	lowerRe    = regexp.MustCompile(`[a-z]`)
	upperRe    = regexp.MustCompile(`[A-Z]`)
	digitRe    = regexp.MustCompile(`\d`)
	dateFloor  = time.Date(1900, 1, 2, 0, 0, 0, 0, time.UTC)
)

// SanitizeString trims whitespace and strips angle brackets. Baseline
// tag-injection mitigation, not HTML sanitization.
func SanitizeString(s string) string {
	return angleRe.ReplaceAllString(strings.TrimSpace(s), "")
}

// SanitizeEmail lowercases on top of SanitizeString.
func SanitizeEmail(s string) string {
	return strings.ToLower(SanitizeString(s))
}

// SanitizeNumber parses input as float; non-numeric becomes 0 and
// negative values are floored to 0.
func SanitizeNumber(v any) float64 {
	var n float64
	switch x := v.(type) {
	case float64:
		n = x
	case float32:
		n = float64(x)
	case int:
		n = float64(x)
	case int64:
		n = float64(x)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0
		}
		n = parsed
	default:
		return 0
	}
	if math.IsNaN(n) || n < 0 {
		return 0
	}
	return n
}

func ValidEmail(email string) bool {
	return emailRe.MatchString(email) && len(email) <= 254
}

// ValidPassword requires at least 8 characters with one lowercase,
// one uppercase and one digit.
func ValidPassword(password string) bool {
	return len(password) >= 8 &&
		lowerRe.MatchString(password) &&
		upperRe.MatchString(password) &&
		digitRe.MatchString(password)
}

func ValidName(name string) bool {
	return nameRe.MatchString(strings.TrimSpace(name))
}

func ValidAmount(amount float64) bool {
	return amount > 0 && amount <= 999999.99 && !math.IsNaN(amount) && !math.IsInf(amount, 0)
}

// ParseDate accepts the date formats the clients send.
func ParseDate(s string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func ValidDate(s string) bool {
	t, ok := ParseDate(s)
	return ok && t.After(dateFloor)
}

func ValidDescription(desc string) bool {
	return len(desc) <= 500 && !scriptRe.MatchString(desc)
}

func isEmpty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	case []string:
		return len(x) == 0
	case []any:
		return len(x) == 0
	}
	return false
}

// isBlank additionally treats numeric zero as absent. Every rule
// except required skips blank values, so a zero amount passes through
// validation and downstream code substitutes the outstanding balance.
func isBlank(v any) bool {
	if isEmpty(v) {
		return true
	}
	switch x := v.(type) {
	case float64:
		return x == 0
	case float32:
		return x == 0
	case int:
		return x == 0
	case int64:
		return x == 0
	}
	return false
}

func asString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func asFloat(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case float32:
		return float64(x)
	case int:
		return float64(x)
	case int64:
		return float64(x)
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return math.NaN()
		}
		return n
	}
	return math.NaN()
}

// Validate runs every field's rules in order. The per-field loop stops
// at the first failing rule; fields after a failed one are still
// evaluated, so Errors holds one message per offending field.
func Validate(rules []Rule) Result {
	var errs []string

	for _, r := range rules {
		for _, kind := range r.Rules {
			msg := ""

			switch kind {
			case "required":
				if isEmpty(r.Value) {
					msg = r.Field + " is required"
				}
			case "email":
				if !isBlank(r.Value) && !ValidEmail(asString(r.Value)) {
					msg = "Please enter a valid email address"
				}
			case "password":
				if !isBlank(r.Value) && !ValidPassword(asString(r.Value)) {
					msg = "Password must be at least 8 characters with uppercase, lowercase, and number"
				}
			case "name":
				if !isBlank(r.Value) && !ValidName(asString(r.Value)) {
					msg = "Name must be 2-50 characters and contain only letters and spaces"
				}
			case "amount":
				if !isBlank(r.Value) && !ValidAmount(asFloat(r.Value)) {
					msg = "Amount must be between 0.01 and 999,999.99"
				}
			case "date":
				if !isBlank(r.Value) && !ValidDate(asString(r.Value)) {
					msg = "Please enter a valid date"
				}
			case "futureDate":
				if !isBlank(r.Value) {
					if t, ok := ParseDate(asString(r.Value)); !ok || !t.After(time.Now()) {
						msg = r.Field + " must be a future date"
					}
				}
			case "description":
				if !isBlank(r.Value) && !ValidDescription(asString(r.Value)) {
					msg = "Description must be less than 500 characters and contain no scripts"
				}
			case "minLength":
				min := r.Param
				if min == 0 {
					min = 3
				}
				if !isBlank(r.Value) && len(asString(r.Value)) < min {
					msg = fmt.Sprintf("%s must be at least %d characters", r.Field, min)
				}
			case "maxLength":
				max := r.Param
				if max == 0 {
					max = 100
				}
				if !isBlank(r.Value) && len(asString(r.Value)) > max {
					msg = fmt.Sprintf("%s must be less than %d characters", r.Field, max)
				}
			case "positive":
				if !isBlank(r.Value) && !(asFloat(r.Value) > 0) {
					msg = r.Field + " must be greater than 0"
				}
			}

			if msg != "" {
				errs = append(errs, msg)
				break // first failure wins for this field
			}
		}
	}

	return Result{IsValid: len(errs) == 0, Errors: errs}
}

// First returns the first collected error, or "" when valid. The API
// surfaces one message at a time.
func (r Result) First() string {
	if len(r.Errors) == 0 {
		return ""
	}
	return r.Errors[0]
}
