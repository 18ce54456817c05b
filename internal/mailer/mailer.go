// Package mailer delivers the warranty report. The default transport is
// SMTP over implicit TLS; Microsoft Graph sendMail is the alternative, and a
// copy of the sent message can optionally be appended to an IMAP folder.
package mailer

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Subject is the fixed subject line of every report message.
const Subject = "Peplink InControl2 Warranty Report"

// BodyText is the plain-text part that accompanies the attachment.
const BodyText = "Attached is the Peplink InControl2 warranty report listing devices " +
	"whose warranty has expired or expires within the reporting window.\r\n"

// Report is one rendered report ready for delivery.
type Report struct {
	// CSV is the attachment content.
	CSV string
	// AttachmentName is the file name of the attachment.
	AttachmentName string
	// Rows is the number of data rows in CSV, for logging.
	Rows        int
	GeneratedAt time.Time
}

// Envelope names the sender and recipients.
type Envelope struct {
	From string
	To   []string
}

// Dispatcher sends a report. Implementations return *DeliveryError on failure.
type Dispatcher interface {
	Send(ctx context.Context, r *Report) error
}

// Archiver stores a copy of a message that was sent.
type Archiver interface {
	Archive(ctx context.Context, msg []byte, sentAt time.Time) error
}

// DeliveryError reports that the report did not reach its recipients.
// Missing is set when delivery was not attempted because settings were
// absent.
type DeliveryError struct {
	Transport string
	Missing   []string
	Err       error
}

func (e *DeliveryError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("%s delivery skipped: missing %s", e.Transport, strings.Join(e.Missing, ", "))
	}
	return fmt.Sprintf("%s delivery failed: %v", e.Transport, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// SplitAddresses splits a comma or semicolon separated recipient list and
// drops empty entries.
func SplitAddresses(list string) []string {
	fields := strings.FieldsFunc(list, func(r rune) bool { return r == ',' || r == ';' })
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// missing returns the names whose values are blank, in argument order.
// Arguments alternate name, value.
func missing(pairs ...string) []string {
	var names []string
	for i := 0; i+1 < len(pairs); i += 2 {
		if strings.TrimSpace(pairs[i+1]) == "" {
			names = append(names, pairs[i])
		}
	}
	return names
}
