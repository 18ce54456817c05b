package mailer

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/google/uuid"
)

// BuildMessage renders r as a multipart/mixed RFC 5322 message: a short
// text part followed by the CSV attachment. It returns the message and its
// Message-ID (without angle brackets).
func BuildMessage(env Envelope, r *Report, domain string) ([]byte, string, error) {
	from, err := mail.ParseAddress(env.From)
	if err != nil {
		return nil, "", fmt.Errorf("invalid sender address %q: %w", env.From, err)
	}
	to := make([]*mail.Address, 0, len(env.To))
	for _, addr := range env.To {
		parsed, err := mail.ParseAddress(addr)
		if err != nil {
			return nil, "", fmt.Errorf("invalid recipient address %q: %w", addr, err)
		}
		to = append(to, parsed)
	}

	date := r.GeneratedAt
	if date.IsZero() {
		date = time.Now()
	}
	messageID := newMessageID(domain, from.Address)

	var h mail.Header
	h.SetDate(date)
	h.SetAddressList("From", []*mail.Address{from})
	h.SetAddressList("To", to)
	h.SetSubject(Subject)
	h.SetMessageID(messageID)

	var buf bytes.Buffer
	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create message writer: %w", err)
	}

	var th mail.InlineHeader
	th.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	th.Set("Content-Transfer-Encoding", "quoted-printable")
	if err := writePart(func() (io.WriteCloser, error) { return mw.CreateSingleInline(th) }, BodyText); err != nil {
		return nil, "", fmt.Errorf("failed to write body: %w", err)
	}

	var ah mail.AttachmentHeader
	ah.SetContentType("text/csv", map[string]string{"charset": "utf-8"})
	ah.Set("Content-Transfer-Encoding", "base64")
	ah.SetFilename(r.AttachmentName)
	if err := writePart(func() (io.WriteCloser, error) { return mw.CreateAttachment(ah) }, r.CSV); err != nil {
		return nil, "", fmt.Errorf("failed to write attachment: %w", err)
	}

	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finish message: %w", err)
	}
	return buf.Bytes(), messageID, nil
}

func writePart(create func() (io.WriteCloser, error), content string) error {
	w, err := create()
	if err != nil {
		return err
	}
	if _, err := io.WriteString(w, content); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

// newMessageID builds "<uuid>@<domain>". The domain falls back to the
// sender's domain and then to "localhost".
func newMessageID(domain, sender string) string {
	if domain == "" {
		if at := strings.LastIndexByte(sender, '@'); at >= 0 {
			domain = sender[at+1:]
		}
	}
	if domain == "" {
		domain = "localhost"
	}
	return uuid.NewString() + "@" + domain
}
