package protocol

import (
	"sort"
	"strconv"
	"strings"
)

// Capabilities holds the EHLO keywords announced by a server, upper-cased,
// mapped to their parameters. For example "250-AUTH PLAIN LOGIN" becomes
// {"AUTH": ["PLAIN", "LOGIN"]}.
type Capabilities map[string][]string

// ParseCapabilities parses the lines of an EHLO reply. The first line is the
// server greeting and is skipped.
func ParseCapabilities(lines []string) Capabilities {
	caps := make(Capabilities)
	for i, line := range lines {
		if i == 0 {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		caps[strings.ToUpper(fields[0])] = fields[1:]
	}
	return caps
}

func (c Capabilities) Has(capability string) bool {
	_, ok := c[strings.ToUpper(capability)]
	return ok
}

// Get returns the parameters of capability, or nil when it is absent.
func (c Capabilities) Get(capability string) []string {
	return c[strings.ToUpper(capability)]
}

func (c Capabilities) AuthMechanisms() []string {
	return c.Get("AUTH")
}

// MaxMessageSize returns the SIZE limit in bytes, or 0 when the server does
// not declare one.
func (c Capabilities) MaxMessageSize() int64 {
	params := c.Get("SIZE")
	if len(params) == 0 {
		return 0
	}
	size, err := strconv.ParseInt(params[0], 10, 64)
	if err != nil || size < 0 {
		return 0
	}
	return size
}

func (c Capabilities) SupportsSTARTTLS() bool {
	return c.Has("STARTTLS")
}

// String lists capabilities in sorted order, for logging.
func (c Capabilities) String() string {
	names := make([]string, 0, len(c))
	for name := range c {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		if params := c[name]; len(params) > 0 {
			parts = append(parts, name+" "+strings.Join(params, " "))
		} else {
			parts = append(parts, name)
		}
	}
	return strings.Join(parts, "; ")
}
