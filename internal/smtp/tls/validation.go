package tls

import (
	"crypto/tls"
	"fmt"
	"strings"
	"time"
)

// ParseTLSVersion converts "1.2" or "1.3" to the crypto/tls constant.
// An empty string selects TLS 1.2. Versions below 1.2 are refused.
func ParseTLSVersion(versionStr string) (uint16, error) {
	switch strings.TrimSpace(versionStr) {
	case "", "1.2":
		return tls.VersionTLS12, nil
	case "1.3":
		return tls.VersionTLS13, nil
	default:
		return 0, fmt.Errorf("unsupported TLS version %q (expected 1.2 or 1.3)", versionStr)
	}
}

// TLSVersionString converts a TLS version constant to a human-readable string.
func TLSVersionString(version uint16) string {
	switch version {
	case tls.VersionTLS10:
		return "TLS 1.0"
	case tls.VersionTLS11:
		return "TLS 1.1"
	case tls.VersionTLS12:
		return "TLS 1.2"
	case tls.VersionTLS13:
		return "TLS 1.3"
	default:
		return fmt.Sprintf("Unknown (0x%04X)", version)
	}
}

// Info is a loggable summary of a negotiated TLS session.
type Info struct {
	Version     string
	CipherSuite string
	ServerName  string
	// CertExpiry is the leaf certificate's NotAfter, zero when no
	// certificate was presented.
	CertExpiry time.Time
}

// Summarize extracts Info from a connection state.
func Summarize(state tls.ConnectionState) Info {
	info := Info{
		Version:     TLSVersionString(state.Version),
		CipherSuite: tls.CipherSuiteName(state.CipherSuite),
		ServerName:  state.ServerName,
	}
	if len(state.PeerCertificates) > 0 {
		info.CertExpiry = state.PeerCertificates[0].NotAfter
	}
	return info
}

// Warnings lists conditions worth surfacing in the log: an expired or soon
// to expire server certificate and disabled verification.
func (i Info) Warnings(now time.Time, skipVerify bool) []string {
	var warnings []string
	if !i.CertExpiry.IsZero() {
		switch days := int(i.CertExpiry.Sub(now).Hours() / 24); {
		case i.CertExpiry.Before(now):
			warnings = append(warnings, fmt.Sprintf("server certificate expired on %s", i.CertExpiry.Format("2006-01-02")))
		case days < 30:
			warnings = append(warnings, fmt.Sprintf("server certificate expires in %d days (%s)", days, i.CertExpiry.Format("2006-01-02")))
		}
	}
	if skipVerify {
		warnings = append(warnings, "certificate verification disabled")
	}
	return warnings
}
