package validation

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ValidateEmail performs a structural check of a single address: one @ with
// non-empty local and domain parts.
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return fmt.Errorf("email cannot be empty")
	}
	local, domain, ok := strings.Cut(email, "@")
	if !ok {
		return fmt.Errorf("invalid email format: %s (missing @)", email)
	}
	if local == "" || domain == "" || strings.Contains(domain, "@") {
		return fmt.Errorf("invalid email format: %s", email)
	}
	return nil
}

// ValidateEmails validates every address in emails and names the offending
// field in the error.
func ValidateEmails(emails []string, fieldName string) error {
	for _, email := range emails {
		if err := ValidateEmail(email); err != nil {
			return fmt.Errorf("%s contains invalid email: %w", fieldName, err)
		}
	}
	return nil
}

// ValidateFilePath checks that path names an accessible regular file.
// Relative paths may not climb out of the working directory. An empty path is
// accepted so optional settings can be passed straight through.
func ValidateFilePath(path, fieldName string) error {
	if path == "" {
		return nil
	}

	cleanPath := filepath.Clean(path)
	if !filepath.IsAbs(path) && strings.Contains(cleanPath, "..") {
		return fmt.Errorf("%s: path contains directory traversal (..) which is not allowed", fieldName)
	}

	absPath, err := filepath.Abs(cleanPath)
	if err != nil {
		return fmt.Errorf("%s: invalid path: %w", fieldName, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		switch {
		case os.IsNotExist(err):
			return fmt.Errorf("%s: file not found: %s", fieldName, path)
		case os.IsPermission(err):
			return fmt.Errorf("%s: permission denied: %s", fieldName, path)
		}
		return fmt.Errorf("%s: cannot access file: %w", fieldName, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%s: not a regular file (is it a directory?): %s", fieldName, path)
	}
	return nil
}

// ValidateHostname accepts DNS names and IPv4/IPv6 literals.
func ValidateHostname(hostname string) error {
	hostname = strings.TrimSpace(hostname)
	if hostname == "" {
		return fmt.Errorf("hostname cannot be empty")
	}
	if net.ParseIP(hostname) != nil {
		return nil
	}
	if len(hostname) > 253 {
		return fmt.Errorf("hostname too long (max 253 characters)")
	}
	for _, ch := range hostname {
		if !((ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') ||
			(ch >= '0' && ch <= '9') || ch == '.' || ch == '-') {
			return fmt.Errorf("hostname contains invalid character: %c", ch)
		}
	}
	if strings.HasPrefix(hostname, "-") || strings.HasSuffix(hostname, "-") ||
		strings.HasPrefix(hostname, ".") || strings.HasSuffix(hostname, ".") {
		return fmt.Errorf("hostname cannot start or end with hyphen or dot")
	}
	return nil
}

// ValidatePort validates that a port number is in the valid range (1-65535).
func ValidatePort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535 (got %d)", port)
	}
	return nil
}

// ParsePort converts a textual port setting and range-checks it.
func ParsePort(s string) (int, error) {
	port, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("port %q is not a number", s)
	}
	if err := ValidatePort(port); err != nil {
		return 0, err
	}
	return port, nil
}

// ValidateBaseURL checks an API endpoint: http or https with a valid host.
func ValidateBaseURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("base URL cannot be empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid base URL format: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported base URL scheme %q (expected http or https)", u.Scheme)
	}
	if err := ValidateHostname(u.Hostname()); err != nil {
		return fmt.Errorf("invalid base URL hostname: %w", err)
	}
	return nil
}

// ValidateProxyURL checks a proxy URL of the form scheme://[user[:pass]@]host[:port].
// An empty string means no proxy and is accepted.
func ValidateProxyURL(proxyURL string) error {
	if proxyURL == "" {
		return nil
	}

	u, err := url.Parse(proxyURL)
	if err != nil {
		return fmt.Errorf("invalid proxy URL format: %w", err)
	}

	switch u.Scheme {
	case "http", "https", "socks5":
	default:
		return fmt.Errorf("unsupported proxy scheme %q (expected http, https or socks5)", u.Scheme)
	}

	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("proxy URL must include hostname")
	}
	if err := ValidateHostname(host); err != nil {
		return fmt.Errorf("invalid proxy hostname: %w", err)
	}

	if p := u.Port(); p != "" {
		if _, err := ParsePort(p); err != nil {
			return fmt.Errorf("invalid proxy port: %w", err)
		}
	}

	if u.User != nil {
		if _, hasPassword := u.User.Password(); hasPassword && u.User.Username() == "" {
			return fmt.Errorf("proxy URL has password but empty username")
		}
	}
	return nil
}
