package mailer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"warrantyreport/internal/common/logger"
	"warrantyreport/internal/common/ratelimit"
	"warrantyreport/internal/common/retry"
	"warrantyreport/internal/common/security"
	"warrantyreport/internal/common/validation"
	smtptls "warrantyreport/internal/smtp/tls"
)

const (
	defaultSMTPTimeout = 30 * time.Second
	defaultRetryDelay  = 2 * time.Second
)

// SMTPConfig holds everything the SMTP transport needs. Port is kept as
// text so a malformed value surfaces as a delivery failure, not a startup
// failure.
type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	Envelope Envelope

	// Security is SecuritySMTPS (default), SecuritySTARTTLS or SecurityNone.
	Security   string
	TLSVersion string
	SkipVerify bool
	// AuthMethod is "auto" (default), PLAIN, LOGIN or CRAM-MD5.
	AuthMethod string
	HeloName   string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

// SMTPDispatcher delivers reports over SMTP.
type SMTPDispatcher struct {
	cfg      SMTPConfig
	limiter  *ratelimit.Limiter
	archiver Archiver
	logger   *slog.Logger
}

// NewSMTPDispatcher returns a dispatcher for cfg. archiver and limiter may
// be nil.
func NewSMTPDispatcher(cfg SMTPConfig, limiter *ratelimit.Limiter, archiver Archiver, log *slog.Logger) *SMTPDispatcher {
	if cfg.Security == "" {
		cfg.Security = SecuritySMTPS
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultSMTPTimeout
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	if cfg.HeloName == "" {
		cfg.HeloName = localHostname()
	}
	return &SMTPDispatcher{cfg: cfg, limiter: limiter, archiver: archiver, logger: log}
}

// preflight re-checks the settings delivery depends on and resolves the
// session options.
func (d *SMTPDispatcher) preflight() (sessionOptions, error) {
	to := ""
	if len(d.cfg.Envelope.To) > 0 {
		to = d.cfg.Envelope.To[0]
	}
	if names := missing(
		"SMTP_HOST", d.cfg.Host,
		"SMTP_PORT", d.cfg.Port,
		"SMTP_USER", d.cfg.Username,
		"SMTP_PASS", d.cfg.Password,
		"SMTP_TO", to,
		"SMTP_FROM", d.cfg.Envelope.From,
	); len(names) > 0 {
		return sessionOptions{}, &DeliveryError{Transport: "smtp", Missing: names}
	}

	port, err := validation.ParsePort(d.cfg.Port)
	if err != nil {
		return sessionOptions{}, &DeliveryError{Transport: "smtp", Err: fmt.Errorf("SMTP_PORT: %w", err)}
	}
	tlsVersion, err := smtptls.ParseTLSVersion(d.cfg.TLSVersion)
	if err != nil {
		return sessionOptions{}, &DeliveryError{Transport: "smtp", Err: err}
	}
	switch d.cfg.Security {
	case SecuritySMTPS, SecuritySTARTTLS, SecurityNone:
	default:
		return sessionOptions{}, &DeliveryError{Transport: "smtp", Err: fmt.Errorf("unknown security mode %q", d.cfg.Security)}
	}

	return sessionOptions{
		Host:       d.cfg.Host,
		Port:       port,
		Security:   d.cfg.Security,
		TLSVersion: tlsVersion,
		SkipVerify: d.cfg.SkipVerify,
		HeloName:   d.cfg.HeloName,
		Timeout:    d.cfg.Timeout,
		Limiter:    d.limiter,
		Logger:     d.logger,
	}, nil
}

// Send builds the report message and delivers it, retrying transient
// failures up to MaxRetries times. On success the message is handed to the
// archiver, whose failure is only logged.
func (d *SMTPDispatcher) Send(ctx context.Context, r *Report) error {
	opts, err := d.preflight()
	if err != nil {
		return err
	}

	msg, messageID, err := BuildMessage(d.cfg.Envelope, r, d.cfg.HeloName)
	if err != nil {
		return &DeliveryError{Transport: "smtp", Err: err}
	}

	logger.LogInfo(d.logger, "Sending report via SMTP",
		"server", opts.Host,
		"port", opts.Port,
		"security", opts.Security,
		"from", security.MaskEmail(d.cfg.Envelope.From),
		"to", security.MaskEmails(d.cfg.Envelope.To),
		"attachment", r.AttachmentName,
		"rows", r.Rows)

	err = retry.Do(ctx, d.logger, d.cfg.MaxRetries, d.cfg.RetryDelay, func() error {
		return d.deliver(ctx, opts, msg)
	})
	if err != nil {
		return &DeliveryError{Transport: "smtp", Err: err}
	}
	logger.LogInfo(d.logger, "Report delivered", "message_id", messageID)

	if d.archiver != nil {
		if err := d.archiver.Archive(ctx, msg, time.Now()); err != nil {
			logger.LogWarn(d.logger, "Failed to archive sent report", "error", err)
		}
	}
	return nil
}

func (d *SMTPDispatcher) deliver(ctx context.Context, opts sessionOptions, msg []byte) error {
	s, err := dialSession(ctx, opts)
	if err != nil {
		return err
	}
	defer s.close()

	mechanism, err := s.auth(ctx, d.cfg.Username, d.cfg.Password, d.cfg.AuthMethod)
	if err != nil {
		logger.LogDebug(d.logger, "SMTP authentication failed",
			"username", security.MaskEmail(d.cfg.Username),
			"password", security.MaskPassword(d.cfg.Password),
			"mechanism", mechanism)
		return err
	}
	logger.LogDebug(d.logger, "SMTP authenticated", "mechanism", mechanism)

	return s.send(ctx, d.cfg.Envelope.From, d.cfg.Envelope.To, msg)
}

func localHostname() string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return "localhost"
}
