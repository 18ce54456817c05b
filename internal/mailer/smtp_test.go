//go:build !integration
// +build !integration

package mailer

import (
	"context"
	"errors"
	"io"
	"net"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/emersion/go-message/mail"

	"warrantyreport/internal/smtp/protocol"
)

const testCSV = "\"org_name\",\"serial_number\",\"warranty_expiry_date\",\"days_until_expiry\",\"is_expired\"\n" +
	"\"Acme\",\"AB1234\",\"2026-04-24\",\"45\",\"NO\"\n"

func testReport() *Report {
	return &Report{
		CSV:            testCSV,
		AttachmentName: "peplink_ic2_warranty_report.csv",
		Rows:           1,
		GeneratedAt:    time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
	}
}

func testSMTPConfig(port string) SMTPConfig {
	return SMTPConfig{
		Host:     "127.0.0.1",
		Port:     port,
		Username: "reporter@example.com",
		Password: "hunter22",
		Envelope: Envelope{
			From: "reporter@example.com",
			To:   []string{"ops@example.com", "noc@example.com"},
		},
		Security:   SecurityNone,
		HeloName:   "report.test",
		Timeout:    5 * time.Second,
		RetryDelay: 10 * time.Millisecond,
	}
}

type recordingArchiver struct {
	mu    sync.Mutex
	calls int
	msg   []byte
	err   error
}

func (a *recordingArchiver) Archive(_ context.Context, msg []byte, _ time.Time) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	a.msg = msg
	return a.err
}

func TestSMTPDispatcherSend(t *testing.T) {
	srv := startFakeSMTP(t)
	archiver := &recordingArchiver{}
	d := NewSMTPDispatcher(testSMTPConfig(srv.port()), nil, archiver, nil)

	if err := d.Send(context.Background(), testReport()); err != nil {
		t.Fatalf("Send() error: %v", err)
	}

	rec := srv.snapshot()
	if rec.ehlos != 2 {
		t.Errorf("EHLO count = %d, want 2", rec.ehlos)
	}
	if len(rec.authLines) != 1 || rec.authLines[0] != "\x00reporter@example.com\x00hunter22" {
		t.Errorf("AUTH PLAIN payload = %q", rec.authLines)
	}
	if rec.from != "reporter@example.com" {
		t.Errorf("MAIL FROM = %q", rec.from)
	}
	if !reflect.DeepEqual(rec.rcpts, []string{"ops@example.com", "noc@example.com"}) {
		t.Errorf("RCPT TO = %v", rec.rcpts)
	}

	subject, attachments := parseMessage(t, rec.data)
	if subject != Subject {
		t.Errorf("Subject = %q", subject)
	}
	if got := attachments["peplink_ic2_warranty_report.csv"]; got != testCSV {
		t.Errorf("attachment = %q, want %q", got, testCSV)
	}

	if archiver.calls != 1 {
		t.Errorf("archiver calls = %d, want 1", archiver.calls)
	}
}

func TestSMTPDispatcherLoginAuth(t *testing.T) {
	srv := startFakeSMTP(t)
	cfg := testSMTPConfig(srv.port())
	cfg.AuthMethod = "login"

	if err := NewSMTPDispatcher(cfg, nil, nil, nil).Send(context.Background(), testReport()); err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	rec := srv.snapshot()
	if !reflect.DeepEqual(rec.authLines, []string{"reporter@example.com", "hunter22"}) {
		t.Errorf("AUTH LOGIN exchange = %q", rec.authLines)
	}
}

func TestSMTPDispatcherArchiveFailureIsNotFatal(t *testing.T) {
	srv := startFakeSMTP(t)
	archiver := &recordingArchiver{err: errors.New("imap down")}
	d := NewSMTPDispatcher(testSMTPConfig(srv.port()), nil, archiver, nil)

	if err := d.Send(context.Background(), testReport()); err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	if archiver.calls != 1 {
		t.Errorf("archiver calls = %d, want 1", archiver.calls)
	}
}

func TestSMTPDispatcherPermanentRejection(t *testing.T) {
	srv := startFakeSMTP(t)
	srv.rejectRcpt(550)
	cfg := testSMTPConfig(srv.port())
	cfg.MaxRetries = 2
	archiver := &recordingArchiver{}

	err := NewSMTPDispatcher(cfg, nil, archiver, nil).Send(context.Background(), testReport())

	var de *DeliveryError
	if !errors.As(err, &de) {
		t.Fatalf("expected *DeliveryError, got %T (%v)", err, err)
	}
	var reply *protocol.ReplyError
	if !errors.As(err, &reply) || reply.Code != 550 {
		t.Errorf("expected 550 reply error, got %v", err)
	}
	if got := srv.snapshot().connections; got != 1 {
		t.Errorf("connections = %d, want 1 (5xx must not be retried)", got)
	}
	if archiver.calls != 0 {
		t.Error("archiver must not run after a failed delivery")
	}
}

func TestSMTPDispatcherRetriesTemporaryFailure(t *testing.T) {
	srv := startFakeSMTP(t)
	srv.rejectRcpt(451)
	cfg := testSMTPConfig(srv.port())
	cfg.MaxRetries = 1

	err := NewSMTPDispatcher(cfg, nil, nil, nil).Send(context.Background(), testReport())
	if err == nil || !strings.Contains(err.Error(), "operation failed after 1 retries") {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := srv.snapshot().connections; got != 2 {
		t.Errorf("connections = %d, want 2", got)
	}
}

func TestSMTPDispatcherMessageTooLarge(t *testing.T) {
	srv := startFakeSMTP(t, "AUTH PLAIN", "SIZE 64")

	err := NewSMTPDispatcher(testSMTPConfig(srv.port()), nil, nil, nil).Send(context.Background(), testReport())
	if err == nil || !strings.Contains(err.Error(), "exceeds server limit 64") {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec := srv.snapshot(); rec.from != "" {
		t.Error("MAIL FROM must not be sent for an oversized message")
	}
}

func TestSMTPDispatcherSTARTTLSNotOffered(t *testing.T) {
	srv := startFakeSMTP(t)
	cfg := testSMTPConfig(srv.port())
	cfg.Security = SecuritySTARTTLS

	err := NewSMTPDispatcher(cfg, nil, nil, nil).Send(context.Background(), testReport())
	if err == nil || !strings.Contains(err.Error(), "does not advertise STARTTLS") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSMTPDispatcherNoCompatibleAuth(t *testing.T) {
	srv := startFakeSMTP(t, "AUTH GSSAPI")

	err := NewSMTPDispatcher(testSMTPConfig(srv.port()), nil, nil, nil).Send(context.Background(), testReport())
	if err == nil || !strings.Contains(err.Error(), "no compatible authentication mechanism") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSMTPDispatcherConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := testPort(ln)
	ln.Close()

	err = NewSMTPDispatcher(testSMTPConfig(port), nil, nil, nil).Send(context.Background(), testReport())
	var de *DeliveryError
	if !errors.As(err, &de) || de.Err == nil {
		t.Fatalf("expected *DeliveryError with cause, got %v", err)
	}
}

func TestSMTPDispatcherPreflight(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*SMTPConfig)
		wantMissing []string
		wantErr     string
	}{
		{
			name:        "host and password missing",
			mutate:      func(c *SMTPConfig) { c.Host = ""; c.Password = "" },
			wantMissing: []string{"SMTP_HOST", "SMTP_PASS"},
		},
		{
			name:        "no recipients",
			mutate:      func(c *SMTPConfig) { c.Envelope.To = nil },
			wantMissing: []string{"SMTP_TO"},
		},
		{
			name:        "everything missing",
			mutate:      func(c *SMTPConfig) { *c = SMTPConfig{} },
			wantMissing: []string{"SMTP_HOST", "SMTP_PORT", "SMTP_USER", "SMTP_PASS", "SMTP_TO", "SMTP_FROM"},
		},
		{
			name:    "port not a number",
			mutate:  func(c *SMTPConfig) { c.Port = "smtps" },
			wantErr: "SMTP_PORT",
		},
		{
			name:    "bad TLS version",
			mutate:  func(c *SMTPConfig) { c.TLSVersion = "1.0" },
			wantErr: "unsupported TLS version",
		},
		{
			name:    "bad security mode",
			mutate:  func(c *SMTPConfig) { c.Security = "ssl" },
			wantErr: "unknown security mode",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testSMTPConfig("465")
			tt.mutate(&cfg)

			err := NewSMTPDispatcher(cfg, nil, nil, nil).Send(context.Background(), testReport())
			var de *DeliveryError
			if !errors.As(err, &de) {
				t.Fatalf("expected *DeliveryError, got %T (%v)", err, err)
			}
			if tt.wantMissing != nil && !reflect.DeepEqual(de.Missing, tt.wantMissing) {
				t.Errorf("Missing = %v, want %v", de.Missing, tt.wantMissing)
			}
			if tt.wantErr != "" && !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestSelectAuthMechanism(t *testing.T) {
	tests := []struct {
		requested string
		available []string
		want      string
	}{
		{"", []string{"LOGIN", "PLAIN", "CRAM-MD5"}, "CRAM-MD5"},
		{"auto", []string{"login", "plain"}, "PLAIN"},
		{"", []string{"LOGIN"}, "LOGIN"},
		{"login", []string{"PLAIN", "LOGIN"}, "LOGIN"},
		{"CRAM-MD5", []string{"PLAIN"}, ""},
		{"", []string{"XOAUTH2"}, ""},
		{"", nil, ""},
	}
	for _, tt := range tests {
		if got := selectAuthMechanism(tt.requested, tt.available); got != tt.want {
			t.Errorf("selectAuthMechanism(%q, %v) = %q, want %q", tt.requested, tt.available, got, tt.want)
		}
	}
}

func testPort(ln net.Listener) string {
	_, port, _ := net.SplitHostPort(ln.Addr().String())
	return port
}

// parseMessage returns the subject and the decoded attachments by file name.
func parseMessage(t *testing.T, raw string) (string, map[string]string) {
	t.Helper()
	mr, err := mail.CreateReader(strings.NewReader(raw))
	if err != nil {
		t.Fatalf("CreateReader: %v", err)
	}
	subject, err := mr.Header.Subject()
	if err != nil {
		t.Fatalf("Subject: %v", err)
	}

	attachments := make(map[string]string)
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("NextPart: %v", err)
		}
		if h, ok := p.Header.(*mail.AttachmentHeader); ok {
			name, _ := h.Filename()
			body, err := io.ReadAll(p.Body)
			if err != nil {
				t.Fatalf("read attachment: %v", err)
			}
			attachments[name] = string(body)
		}
	}
	return subject, attachments
}
