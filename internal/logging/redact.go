package logging

import (
	"net/url"
	"strings"
)

// RedactedValue replaces sensitive values in logged URLs. It contains
// only characters that survive URL encoding, so masked URLs stay
// readable.
const RedactedValue = "xxxxx"

// Query parameters whose values never belong in a log line. Private
// peer registries commonly pass access tokens this way.
var sensitiveParams = []string{
	"token",
	"key",
	"apikey",
	"api_key",
	"secret",
	"password",
	"auth",
	"signature",
}

// IsSensitiveParam reports whether a query parameter name should be
// redacted.
func IsSensitiveParam(name string) bool {
	lower := strings.ToLower(name)
	for _, param := range sensitiveParams {
		if strings.Contains(lower, param) {
			return true
		}
	}
	return false
}

// RedactURL returns raw with credentials masked: basic-auth passwords
// and sensitive query parameter values are replaced, everything else
// is preserved. Input that does not parse as a URL comes back
// unchanged, so logging never chokes on a bad registry setting.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}

	if u.User != nil {
		if _, hasPassword := u.User.Password(); hasPassword {
			u.User = url.UserPassword(u.User.Username(), RedactedValue)
		}
	}

	query := u.Query()
	changed := false
	for name, values := range query {
		if !IsSensitiveParam(name) {
			continue
		}
		for i := range values {
			values[i] = RedactedValue
		}
		query[name] = values
		changed = true
	}
	if changed {
		u.RawQuery = query.Encode()
	}

	return u.String()
}
