package mailer

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-sasl"

	"warrantyreport/internal/common/logger"
	"warrantyreport/internal/common/ratelimit"
	"warrantyreport/internal/smtp/exchange"
	"warrantyreport/internal/smtp/protocol"
	smtptls "warrantyreport/internal/smtp/tls"
)

// Security modes for the SMTP connection.
const (
	SecuritySMTPS    = "smtps"
	SecuritySTARTTLS = "starttls"
	SecurityNone     = "none"
)

// smtpSession is one SMTP connection. The greeting, EHLO and STARTTLS are
// driven by hand so replies can be read with a deadline; the transaction
// itself goes through a net/smtp.Client layered on the same buffered reader.
type smtpSession struct {
	conn     net.Conn
	reader   *bufio.Reader
	host     string
	heloName string
	timeout  time.Duration
	banner   string
	caps     protocol.Capabilities
	server   exchange.Info
	tlsState *tls.ConnectionState
	client   *smtp.Client
	limiter  *ratelimit.Limiter
	logger   *slog.Logger
}

type sessionOptions struct {
	Host       string
	Port       int
	Security   string
	TLSVersion uint16
	SkipVerify bool
	HeloName   string
	Timeout    time.Duration
	Limiter    *ratelimit.Limiter
	Logger     *slog.Logger
}

func (o sessionOptions) tlsConfig() *tls.Config {
	return &tls.Config{
		ServerName:         o.Host,
		InsecureSkipVerify: o.SkipVerify,
		MinVersion:         o.TLSVersion,
	}
}

// dialSession connects, reads the banner, says EHLO and secures the
// connection according to opts.Security. The returned session is ready for
// authentication.
func dialSession(ctx context.Context, opts sessionOptions) (*smtpSession, error) {
	if err := opts.Limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait failed: %w", err)
	}

	addr := net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port))
	dialer := &net.Dialer{Timeout: opts.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	s := &smtpSession{
		conn:     conn,
		host:     opts.Host,
		heloName: opts.HeloName,
		timeout:  opts.Timeout,
		limiter:  opts.Limiter,
		logger:   opts.Logger,
	}

	if opts.Security == SecuritySMTPS {
		if err := s.handshake(ctx, opts.tlsConfig()); err != nil {
			conn.Close()
			return nil, err
		}
	}
	s.reader = bufio.NewReader(s.conn)

	resp, err := protocol.ReadResponseWithTimeout(s.conn, s.reader, s.timeout)
	if err != nil {
		s.conn.Close()
		return nil, fmt.Errorf("failed to read banner: %w", err)
	}
	if resp.Code != 220 {
		s.conn.Close()
		return nil, resp.Err("greeting")
	}
	s.banner = resp.Message()
	logger.LogDebug(s.logger, "SMTP banner", "banner", s.banner)

	if err := s.ehlo(ctx); err != nil {
		s.conn.Close()
		return nil, err
	}
	if s.server = exchange.Detect(s.banner, s.caps); s.server.IsExchange {
		logger.LogDebug(s.logger, "Microsoft Exchange server detected", "version", s.server.Version)
	}

	if opts.Security == SecuritySTARTTLS {
		if err := s.startTLS(ctx, opts.tlsConfig()); err != nil {
			s.conn.Close()
			return nil, err
		}
	}

	s.client = &smtp.Client{Text: textproto.NewConn(&connWrapper{reader: s.reader, conn: s.conn})}
	if err := s.client.Hello(s.heloName); err != nil {
		s.conn.Close()
		return nil, fmt.Errorf("EHLO failed: %w", asReplyError("EHLO", err))
	}
	return s, nil
}

func (s *smtpSession) handshake(ctx context.Context, cfg *tls.Config) error {
	tlsConn := tls.Client(s.conn, cfg)
	hctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := tlsConn.HandshakeContext(hctx); err != nil {
		return fmt.Errorf("TLS handshake failed: %w", err)
	}
	state := tlsConn.ConnectionState()
	s.conn = tlsConn
	s.tlsState = &state

	info := smtptls.Summarize(state)
	logger.LogDebug(s.logger, "TLS established",
		"version", info.Version,
		"cipher", info.CipherSuite,
		"server", info.ServerName)
	for _, w := range info.Warnings(time.Now(), cfg.InsecureSkipVerify) {
		logger.LogWarn(s.logger, "TLS warning", "warning", w)
	}
	return nil
}

func (s *smtpSession) command(ctx context.Context, name, cmd string) (*protocol.Response, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait failed: %w", err)
	}
	logger.LogDebug(s.logger, "SMTP >>>", "command", strings.TrimRight(cmd, "\r\n"))
	if _, err := s.conn.Write([]byte(cmd)); err != nil {
		return nil, fmt.Errorf("failed to send %s: %w", name, err)
	}
	resp, err := protocol.ReadResponseWithTimeout(s.conn, s.reader, s.timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", name, err)
	}
	logger.LogDebug(s.logger, "SMTP <<<", "reply", resp.String())
	return resp, nil
}

func (s *smtpSession) ehlo(ctx context.Context) error {
	resp, err := s.command(ctx, "EHLO", protocol.EHLO(s.heloName))
	if err != nil {
		return err
	}
	if !resp.IsSuccess() {
		return resp.Err("EHLO")
	}
	s.caps = protocol.ParseCapabilities(resp.Lines)
	logger.LogDebug(s.logger, "SMTP capabilities", "capabilities", s.caps.String())
	return nil
}

func (s *smtpSession) startTLS(ctx context.Context, cfg *tls.Config) error {
	if !s.caps.SupportsSTARTTLS() {
		return errors.New("server does not advertise STARTTLS")
	}
	resp, err := s.command(ctx, "STARTTLS", protocol.STARTTLS())
	if err != nil {
		return err
	}
	if resp.Code != 220 {
		return resp.Err("STARTTLS")
	}
	if err := s.handshake(ctx, cfg); err != nil {
		return err
	}
	s.reader = bufio.NewReader(s.conn)
	return s.ehlo(ctx)
}

// connWrapper lets textproto share the session's buffered reader so bytes
// already buffered during the manual phase are not lost.
type connWrapper struct {
	reader *bufio.Reader
	conn   net.Conn
}

func (cw *connWrapper) Read(p []byte) (int, error) {
	return cw.reader.Read(p)
}

func (cw *connWrapper) Write(p []byte) (int, error) {
	return cw.conn.Write(p)
}

// Close is a no-op; the session closes the connection itself.
func (cw *connWrapper) Close() error {
	return nil
}

// auth authenticates with the mechanism chosen from requested and the
// server's AUTH list.
func (s *smtpSession) auth(ctx context.Context, username, password, requested string) (string, error) {
	mechanism := selectAuthMechanism(requested, s.caps.AuthMechanisms())
	if mechanism == "" {
		return "", fmt.Errorf("no compatible authentication mechanism (server offers %q)", strings.Join(s.caps.AuthMechanisms(), " "))
	}
	if s.tlsState == nil {
		logger.LogWarn(s.logger, "Authenticating over an unencrypted connection", "mechanism", mechanism)
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait failed: %w", err)
	}

	var a smtp.Auth
	switch mechanism {
	case "PLAIN":
		a = saslAuth{sasl.NewPlainClient("", username, password)}
	case "LOGIN":
		a = saslAuth{sasl.NewLoginClient(username, password)}
	case "CRAM-MD5":
		a = smtp.CRAMMD5Auth(username, password)
	default:
		return "", fmt.Errorf("unsupported authentication mechanism: %s", mechanism)
	}

	s.setDeadline()
	if err := s.client.Auth(a); err != nil {
		if hint := s.server.AuthHint(); hint != "" {
			logger.LogWarn(s.logger, hint)
		}
		return mechanism, fmt.Errorf("authentication failed: %w", asReplyError("AUTH", err))
	}
	return mechanism, nil
}

// send runs MAIL, RCPT and DATA for one message.
func (s *smtpSession) send(ctx context.Context, from string, to []string, msg []byte) error {
	if size := s.caps.MaxMessageSize(); size > 0 && int64(len(msg)) > size {
		return fmt.Errorf("message size %d exceeds server limit %d", len(msg), size)
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait failed: %w", err)
	}

	s.setDeadline()
	if err := s.client.Mail(from); err != nil {
		return fmt.Errorf("MAIL FROM failed: %w", asReplyError("MAIL", err))
	}
	for _, rcpt := range to {
		if err := s.client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("RCPT TO failed for %s: %w", rcpt, asReplyError("RCPT", err))
		}
	}
	w, err := s.client.Data()
	if err != nil {
		return fmt.Errorf("DATA command failed: %w", asReplyError("DATA", err))
	}
	if _, err := w.Write(msg); err != nil {
		w.Close()
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("message rejected: %w", asReplyError("DATA", err))
	}
	logger.LogDebug(s.logger, "SMTP message accepted", "bytes", len(msg), "recipients", len(to))
	return nil
}

// setDeadline bounds the next net/smtp exchange by the session timeout.
func (s *smtpSession) setDeadline() {
	if s.timeout > 0 {
		s.conn.SetDeadline(time.Now().Add(s.timeout))
	}
}

// close sends QUIT and closes the connection. The QUIT reply is not
// required for the delivery to count.
func (s *smtpSession) close() error {
	if s.client != nil {
		s.setDeadline()
		if err := s.client.Quit(); err != nil {
			logger.LogDebug(s.logger, "QUIT failed", "error", err)
		}
	}
	return s.conn.Close()
}

// selectAuthMechanism returns the requested mechanism if the server offers
// it. With "" or "auto" it picks the strongest of CRAM-MD5, PLAIN and LOGIN.
func selectAuthMechanism(requested string, available []string) string {
	offers := func(mech string) bool {
		for _, a := range available {
			if strings.EqualFold(a, mech) {
				return true
			}
		}
		return false
	}

	if requested != "" && !strings.EqualFold(requested, "auto") {
		if offers(requested) {
			return strings.ToUpper(requested)
		}
		return ""
	}
	for _, preferred := range []string{"CRAM-MD5", "PLAIN", "LOGIN"} {
		if offers(preferred) {
			return preferred
		}
	}
	return ""
}

// saslAuth adapts a go-sasl client to net/smtp.Auth. smtp.PlainAuth cannot
// be used: it requires TLS state that the hand-built client never records.
type saslAuth struct {
	client sasl.Client
}

func (a saslAuth) Start(*smtp.ServerInfo) (string, []byte, error) {
	return a.client.Start()
}

func (a saslAuth) Next(fromServer []byte, more bool) ([]byte, error) {
	if !more {
		return nil, nil
	}
	return a.client.Next(fromServer)
}

// asReplyError converts a net/smtp reply error to *protocol.ReplyError so
// retry classification can see the code.
func asReplyError(command string, err error) error {
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		return &protocol.ReplyError{Command: command, Code: tpErr.Code, Message: tpErr.Msg}
	}
	return err
}
