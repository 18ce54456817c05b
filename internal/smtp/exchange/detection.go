// Package exchange recognizes Microsoft Exchange SMTP servers from their
// greeting and EHLO extensions.
package exchange

import (
	"regexp"
	"strings"

	"warrantyreport/internal/smtp/protocol"
)

// Info describes what could be learned about an Exchange server.
type Info struct {
	IsExchange bool
	Version    string
}

// extensions only Exchange advertises.
var exchangeExtensions = []string{"X-EXPS", "XEXCH50", "X-ANONYMOUSTLS", "X-EXCH50"}

var (
	buildVersion  = regexp.MustCompile(`Version:\s*(\d+\.\d+\.\d+\.\d+)`)
	productYear   = regexp.MustCompile(`Microsoft Exchange Server (\d+)`)
	parenthesized = regexp.MustCompile(`\((\d+\.\d+\.\d+)`)
)

// Detect reports whether banner or caps identify Microsoft Exchange.
func Detect(banner string, caps protocol.Capabilities) Info {
	lower := strings.ToLower(banner)
	if strings.Contains(lower, "microsoft esmtp mail service") || strings.Contains(lower, "microsoft exchange") {
		return Info{IsExchange: true, Version: version(banner)}
	}
	for _, ext := range exchangeExtensions {
		if caps.Has(ext) {
			return Info{IsExchange: true, Version: version(banner)}
		}
	}
	return Info{Version: "Unknown"}
}

// AuthHint is logged next to an authentication failure against Exchange.
func (i Info) AuthHint() string {
	if !i.IsExchange {
		return ""
	}
	return "Exchange Online rejects basic SMTP AUTH unless it is enabled for the mailbox; consider -transport graph"
}

func version(banner string) string {
	if m := buildVersion.FindStringSubmatch(banner); len(m) > 1 {
		return releaseName(m[1])
	}
	if m := productYear.FindStringSubmatch(banner); len(m) > 1 {
		return "Exchange " + m[1]
	}
	if m := parenthesized.FindStringSubmatch(banner); len(m) > 1 {
		return releaseName(m[1])
	}
	return "Unknown"
}

// releaseName maps an Exchange build number to its product release.
func releaseName(build string) string {
	switch {
	case strings.HasPrefix(build, "15.2."):
		return "Exchange 2019 (" + build + ")"
	case strings.HasPrefix(build, "15.1."):
		return "Exchange 2016 (" + build + ")"
	case strings.HasPrefix(build, "15.0."):
		return "Exchange 2013 (" + build + ")"
	case strings.HasPrefix(build, "14."):
		return "Exchange 2010 (" + build + ")"
	case strings.HasPrefix(build, "8."):
		return "Exchange 2007 (" + build + ")"
	default:
		return "Exchange (" + build + ")"
	}
}
