package api

import (
	"fmt"
	"html"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/HsiangNianian/matrixpanel/internal/apierr"
	"github.com/HsiangNianian/matrixpanel/internal/baseurl"
)

const (
	SSIDMaxLength     = 32
	PasswordMinLength = 8
)

var (
	filenamePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)
	colorPattern    = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)
	unsafeFilename  = regexp.MustCompile(`[^a-zA-Z0-9._-]`)
)

// Input kinds understood by Rule.Type.
const (
	TypeIP       = "ip"
	TypeSSID     = "ssid"
	TypePassword = "password"
	TypeFilename = "filename"
	TypeColor    = "color"
	TypeNumber   = "number"
	TypeBoolean  = "boolean"
	TypeString   = "string"
)

type Rule struct {
	Required bool
	Type     string
	Message  string
	Sanitize bool
	Default  any
}

type Rules map[string]Rule

// Validate checks data against rules and returns a sanitised copy. Keys
// without a rule pass through unchanged. All failures are reported together.
func Validate(data map[string]any, rules Rules) (map[string]any, error) {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string]any, len(data))
	var fields []apierr.FieldError
	for _, key := range keys {
		value := data[key]
		rule, ok := rules[key]
		if !ok {
			out[key] = value
			continue
		}

		if isEmpty(value) {
			if rule.Required {
				fields = append(fields, apierr.FieldError{Field: key, Message: key + " is required"})
				continue
			}
			if rule.Default != nil {
				out[key] = rule.Default
			} else {
				out[key] = value
			}
			continue
		}

		if rule.Type != "" && !ValidInput(value, rule.Type) {
			msg := rule.Message
			if msg == "" {
				msg = "Invalid format"
			}
			fields = append(fields, apierr.FieldError{Field: key, Message: fmt.Sprintf("Invalid %s: %s", key, msg)})
			continue
		}

		if s, isString := value.(string); isString && rule.Sanitize {
			out[key] = SanitizeHTML(s)
		} else {
			out[key] = value
		}
	}

	if len(fields) > 0 {
		return nil, &apierr.ValidationError{Fields: fields}
	}
	return out, nil
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}

// ValidInput reports whether value is acceptable for the given kind.
func ValidInput(value any, kind string) bool {
	s, isString := value.(string)
	switch kind {
	case TypeIP:
		return isString && baseurl.ValidIPv4(s)
	case TypeSSID:
		return isString && len(s) <= SSIDMaxLength && strings.TrimSpace(s) != ""
	case TypePassword:
		return isString && len(s) >= PasswordMinLength
	case TypeFilename:
		return isString && filenamePattern.MatchString(s)
	case TypeColor:
		return isString && colorPattern.MatchString(s)
	case TypeNumber:
		switch v := value.(type) {
		case int, int32, int64, float32, float64:
			return true
		case string:
			_, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			return err == nil
		}
		return false
	case TypeBoolean:
		switch v := value.(type) {
		case bool:
			return true
		case string:
			return v == "true" || v == "false"
		}
		return false
	}
	return true
}

func SanitizeHTML(s string) string {
	return html.EscapeString(s)
}

// SanitizeFilename replaces anything outside [a-zA-Z0-9._-] and caps the
// length at 255.
func SanitizeFilename(name string) string {
	name = unsafeFilename.ReplaceAllString(name, "_")
	if len(name) > 255 {
		name = name[:255]
	}
	return name
}
