// Package shared provides common utility functions used across multiple
// packages in the webkernel-modules codebase.
package shared

import (
	"fmt"
	"net/url"
	"strings"
)

// HTTPStatusError creates a formatted error for non-2xx HTTP responses.
func HTTPStatusError(status int, rawURL string) error {
	return fmt.Errorf("status=%d url=%s", status, RedactURL(rawURL))
}

// HTTPStatusErrorWithBody creates a formatted error that includes the
// response body for non-2xx HTTP responses.
func HTTPStatusErrorWithBody(status int, rawURL string, body string) error {
	return fmt.Errorf("status=%d url=%s response=%s", status, RedactURL(rawURL), strings.TrimSpace(body))
}

// CommandError wraps a command execution error with its trimmed output
// for cleaner error messages.
func CommandError(output []byte, err error) error {
	return fmt.Errorf("%s: %w", strings.TrimSpace(string(output)), err)
}

// RedactURL strips credentials and query parameters, which may carry
// signed download tokens, before a URL is logged.
func RedactURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "<invalid url>"
	}
	parsed.User = nil
	parsed.RawQuery = ""
	parsed.Fragment = ""
	return parsed.String()
}
