package version

import (
	_ "embed"
	"strings"
)

// The VERSION file sits next to this source file and is embedded at compile time.

//go:embed VERSION
var versionRaw string

// Version is the current release of warrantyreport, trimmed of whitespace.
var Version = strings.TrimSpace(versionRaw)

// Get returns the current version string.
func Get() string {
	return Version
}
