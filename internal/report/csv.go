// Package report renders warranty rows as the CSV attachment.
package report

import (
	"fmt"
	"strconv"
	"strings"

	"warrantyreport/internal/warranty"
)

// AttachmentName is the file name the report is delivered under.
const AttachmentName = "peplink_ic2_warranty_report.csv"

// Header lists the report columns in output order.
var Header = []string{"org_name", "serial_number", "warranty_expiry_date", "days_until_expiry", "is_expired"}

// Quoting selects how fields are quoted.
type Quoting string

const (
	// QuotingLegacy wraps every data field in double quotes and leaves
	// embedded quotes untouched.
	QuotingLegacy Quoting = "legacy"
	// QuotingStandard also doubles embedded quotes (RFC 4180).
	QuotingStandard Quoting = "standard"
)

// ParseQuoting maps a setting value to a Quoting. Empty means legacy.
func ParseQuoting(s string) (Quoting, error) {
	switch q := Quoting(strings.ToLower(strings.TrimSpace(s))); q {
	case "":
		return QuotingLegacy, nil
	case QuotingLegacy, QuotingStandard:
		return q, nil
	default:
		return "", fmt.Errorf("invalid CSV quoting %q (expected %s or %s)", s, QuotingLegacy, QuotingStandard)
	}
}

// HeaderLine is the fixed first line of every report. Column names are
// written bare; only data fields are quoted.
var HeaderLine = strings.Join(Header, ",") + "\n"

// FormatCSV renders the header plus one line per row, in row order. Every
// line ends in "\n", so the result has exactly len(rows)+1 lines.
func FormatCSV(rows []warranty.ReportRow, quoting Quoting) string {
	var b strings.Builder
	b.WriteString(HeaderLine)
	for _, r := range rows {
		writeLine(&b, Fields(r), quoting)
	}
	return b.String()
}

// Fields returns the values of r in Header order.
func Fields(r warranty.ReportRow) []string {
	return []string{
		r.OrganizationName,
		r.SerialNumber,
		r.ExpiryDate,
		strconv.Itoa(r.DaysUntilExpiry),
		r.Expired,
	}
}

func writeLine(b *strings.Builder, fields []string, quoting Quoting) {
	for i, f := range fields {
		if i > 0 {
			b.WriteByte(',')
		}
		if quoting == QuotingStandard {
			f = strings.ReplaceAll(f, `"`, `""`)
		}
		b.WriteByte('"')
		b.WriteString(f)
		b.WriteByte('"')
	}
	b.WriteByte('\n')
}
