package incontrol

import (
	"fmt"
	"strings"
)

// maxErrorBody caps how much of an upstream response body is quoted in an
// error message. The full body stays available on the error value.
const maxErrorBody = 512

// AuthErrorKind distinguishes the ways a token exchange can fail.
type AuthErrorKind int

const (
	// AuthRequestFailed: transport failure or non-2xx status.
	AuthRequestFailed AuthErrorKind = iota + 1
	// AuthMalformedResponse: 2xx status but the body is not a JSON object.
	AuthMalformedResponse
	// AuthMissingToken: JSON body without a non-empty access_token.
	AuthMissingToken
)

func (k AuthErrorKind) String() string {
	switch k {
	case AuthRequestFailed:
		return "request failed"
	case AuthMalformedResponse:
		return "malformed response"
	case AuthMissingToken:
		return "missing token"
	default:
		return fmt.Sprintf("AuthErrorKind(%d)", int(k))
	}
}

// AuthError is returned by AcquireToken. It is always fatal to a run.
type AuthError struct {
	Kind       AuthErrorKind
	StatusCode int
	Body       string
	Err        error
}

func (e *AuthError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "token acquisition %s", e.Kind)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if body := truncate(e.Body); body != "" {
		fmt.Fprintf(&b, ": %s", body)
	}
	return b.String()
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// FetchScope tells which inventory read failed.
type FetchScope int

const (
	ScopeOrganizations FetchScope = iota + 1
	ScopeDevices
)

func (s FetchScope) String() string {
	switch s {
	case ScopeOrganizations:
		return "organizations"
	case ScopeDevices:
		return "devices"
	default:
		return fmt.Sprintf("FetchScope(%d)", int(s))
	}
}

// FetchError is returned by the inventory reads. A ScopeOrganizations error
// ends the run; a ScopeDevices error only drops that organization.
type FetchError struct {
	Scope      FetchScope
	OrgID      string
	StatusCode int
	Body       string
	Err        error
}

func (e *FetchError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "fetch %s", e.Scope)
	if e.OrgID != "" {
		fmt.Fprintf(&b, " for organization %s", e.OrgID)
	}
	b.WriteString(" failed")
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if body := truncate(e.Body); body != "" {
		fmt.Fprintf(&b, ": %s", body)
	}
	return b.String()
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

func truncate(body string) string {
	body = strings.TrimSpace(body)
	if len(body) <= maxErrorBody {
		return body
	}
	return body[:maxErrorBody] + "..."
}
