package redact

import (
	"net/url"
	"regexp"
	"strings"
)

const placeholder = "[REDACTED]"

// sensitiveParams are query parameters whose values never reach a log line.
var sensitiveParams = map[string]bool{
	"access_token": true,
	"token":        true,
	"key":          true,
	"api_key":      true,
	"apikey":       true,
	"secret":       true,
}

// secretPatterns are regex heuristics for common secret types.
var secretPatterns = []*regexp.Regexp{
	// Mapbox public, secret and temporary tokens
	regexp.MustCompile(`\b[pst]k\.eyJ[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}`),
	// Bearer tokens
	regexp.MustCompile(`(?i)Bearer\s+[A-Za-z0-9._-]{20,}`),
	// JWTs (three base64 segments separated by dots)
	regexp.MustCompile(`eyJ[A-Za-z0-9_-]{10,}\.eyJ[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}`),
	// Generic secrets/tokens in assignments
	regexp.MustCompile(`(?i)(access_token|secret|token|api[_-]?key)\s*[:=]\s*["']?([A-Za-z0-9._-]{16,})["']?`),
}

// Secrets replaces detected secrets in text with [REDACTED].
func Secrets(text string) string {
	result := text
	for _, pat := range secretPatterns {
		result = pat.ReplaceAllString(result, placeholder)
	}
	return result
}

// URL masks sensitive query parameter values in raw. Unparseable input falls
// back to pattern-based redaction.
func URL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return Secrets(raw)
	}
	if u.User != nil {
		u.User = url.User(placeholder)
	}
	if u.RawQuery == "" {
		return u.String()
	}
	parts := strings.Split(u.RawQuery, "&")
	for i, p := range parts {
		name, _, found := strings.Cut(p, "=")
		key, err := url.QueryUnescape(name)
		if err != nil {
			key = name
		}
		if found && sensitiveParams[strings.ToLower(key)] {
			parts[i] = name + "=" + placeholder
		}
	}
	u.RawQuery = strings.Join(parts, "&")
	return u.String()
}
