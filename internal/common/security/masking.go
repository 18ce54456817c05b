// Package security masks credentials and addresses before they reach logs.
package security

import "strings"

const mask = "****"

// MaskPassword shows the first and last two characters of a password.
// Passwords of four characters or fewer are fully masked; empty stays empty.
func MaskPassword(password string) string {
	if password == "" {
		return ""
	}
	if len(password) <= 4 {
		return mask
	}
	return password[:2] + mask + password[len(password)-2:]
}

// MaskSecret keeps the first four characters of a client secret.
func MaskSecret(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 4 {
		return mask
	}
	return secret[:4] + mask
}

// MaskIdentifier keeps the first eight characters of a client or tenant id,
// enough to tell registrations apart.
func MaskIdentifier(id string) string {
	if len(id) <= 8 {
		return id + mask
	}
	return id[:8] + mask
}

// MaskAccessToken shows the first eight and last four characters of a
// bearer token. Tokens of sixteen characters or fewer are fully masked.
func MaskAccessToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 16 {
		return mask
	}
	return token[:8] + "..." + token[len(token)-4:]
}

// MaskEmail keeps two characters of the local part and of the domain.
// "user@example.com" becomes "us****@ex****".
func MaskEmail(email string) string {
	if email == "" {
		return ""
	}

	at := strings.IndexByte(email, '@')
	if at < 0 {
		return MaskPassword(email)
	}

	return maskPrefix(email[:at]) + "@" + maskPrefix(email[at+1:])
}

// MaskEmails masks every address in a list.
func MaskEmails(emails []string) []string {
	masked := make([]string, len(emails))
	for i, e := range emails {
		masked[i] = MaskEmail(e)
	}
	return masked
}

func maskPrefix(s string) string {
	if len(s) > 2 {
		return s[:2] + mask
	}
	return mask
}
