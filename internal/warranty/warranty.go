// Package warranty selects devices whose warranty expires within a horizon
// and turns them into report rows. Everything here is pure.
package warranty

import (
	"fmt"
	"strings"
	"time"

	"warrantyreport/internal/incontrol"
)

// DefaultHorizonDays is how far ahead of now an expiry still qualifies.
const DefaultHorizonDays = 90

const day = 24 * time.Hour

// Expired flag values.
const (
	FlagExpired    = "YES"
	FlagNotExpired = "NO"
)

// ReportRow is one line of the report.
type ReportRow struct {
	OrganizationName string
	SerialNumber     string
	// ExpiryDate is the expiry exactly as the API returned it.
	ExpiryDate      string
	DaysUntilExpiry int
	Expired         string
}

// SkipStats counts devices dropped as malformed. These never raise errors.
type SkipStats struct {
	MissingSerial int
	MissingExpiry int
	InvalidExpiry int
}

// Total is the number of skipped devices.
func (s SkipStats) Total() int {
	return s.MissingSerial + s.MissingExpiry + s.InvalidExpiry
}

// Add accumulates other into s.
func (s *SkipStats) Add(other SkipStats) {
	s.MissingSerial += other.MissingSerial
	s.MissingExpiry += other.MissingExpiry
	s.InvalidExpiry += other.InvalidExpiry
}

func (s SkipStats) String() string {
	return fmt.Sprintf("missing_serial=%d missing_expiry=%d invalid_expiry=%d",
		s.MissingSerial, s.MissingExpiry, s.InvalidExpiry)
}

// SelectExpiring returns a row for every device of one organization whose
// expiry is at or before now + horizonDays, in input order. Devices without
// a serial or with a missing or unparseable expiry are skipped and counted.
// The row's expired flag mirrors the API's own flag, not the date check.
func SelectExpiring(devices []incontrol.Device, orgName string, now time.Time, horizonDays int) ([]ReportRow, SkipStats) {
	var (
		rows  []ReportRow
		stats SkipStats
	)
	cutoff := now.Add(time.Duration(horizonDays) * day)

	for _, d := range devices {
		if d.SerialNumber == "" {
			stats.MissingSerial++
			continue
		}
		if strings.TrimSpace(d.ExpiryDate) == "" {
			stats.MissingExpiry++
			continue
		}
		expiry, err := ParseExpiry(d.ExpiryDate)
		if err != nil {
			stats.InvalidExpiry++
			continue
		}
		if expiry.After(cutoff) {
			continue
		}

		rows = append(rows, ReportRow{
			OrganizationName: orgName,
			SerialNumber:     NormalizeSerial(d.SerialNumber),
			ExpiryDate:       d.ExpiryDate,
			DaysUntilExpiry:  DaysUntil(expiry, now),
			Expired:          ExpiredFlag(d.Expired),
		})
	}
	return rows, stats
}

// NormalizeSerial keeps only ASCII letters and digits.
func NormalizeSerial(serial string) string {
	var b strings.Builder
	b.Grow(len(serial))
	for i := 0; i < len(serial); i++ {
		c := serial[i]
		if ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9') {
			b.WriteByte(c)
		}
	}
	return b.String()
}

// DaysUntil is the number of days from now to expiry rounded up, so any
// part of a remaining day counts as a whole day. Past expiries are negative.
func DaysUntil(expiry, now time.Time) int {
	d := expiry.Sub(now)
	days := d / day
	if d%day > 0 {
		days++
	}
	return int(days)
}

// ExpiredFlag renders the API's expired indicator.
func ExpiredFlag(expired bool) string {
	if expired {
		return FlagExpired
	}
	return FlagNotExpired
}

// expiryLayouts are tried in order. Layouts without a zone are read as UTC.
var expiryLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseExpiry parses an API expiry date.
func ParseExpiry(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range expiryLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized expiry date %q", s)
}
