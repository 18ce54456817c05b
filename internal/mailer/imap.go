package mailer

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-sasl"

	"warrantyreport/internal/common/logger"
	"warrantyreport/internal/common/ratelimit"
	"warrantyreport/internal/common/security"
)

// DefaultArchiveFolder is where sent reports are appended.
const DefaultArchiveFolder = "Sent"

// IMAPConfig configures the sent-copy archive. The connection is always
// implicit TLS (IMAPS).
type IMAPConfig struct {
	Host       string
	Port       int
	Username   string
	Password   string
	Folder     string
	SkipVerify bool
	TLSVersion uint16
}

// Enabled reports whether an archive host is configured.
func (c IMAPConfig) Enabled() bool {
	return c.Host != ""
}

// IMAPArchiver appends sent reports to an IMAP folder, marked \Seen.
type IMAPArchiver struct {
	cfg     IMAPConfig
	limiter *ratelimit.Limiter
	logger  *slog.Logger
}

func NewIMAPArchiver(cfg IMAPConfig, limiter *ratelimit.Limiter, log *slog.Logger) *IMAPArchiver {
	if cfg.Port == 0 {
		cfg.Port = 993
	}
	if cfg.Folder == "" {
		cfg.Folder = DefaultArchiveFolder
	}
	return &IMAPArchiver{cfg: cfg, limiter: limiter, logger: log}
}

// Archive logs in, appends msg to the folder and logs out.
func (a *IMAPArchiver) Archive(ctx context.Context, msg []byte, sentAt time.Time) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	addr := net.JoinHostPort(a.cfg.Host, strconv.Itoa(a.cfg.Port))
	client, err := imapclient.DialTLS(addr, &imapclient.Options{
		TLSConfig: &tls.Config{
			ServerName:         a.cfg.Host,
			InsecureSkipVerify: a.cfg.SkipVerify,
			MinVersion:         a.cfg.TLSVersion,
		},
	})
	if err != nil {
		return fmt.Errorf("IMAP connection failed: %w", err)
	}
	defer client.Close()

	if err := a.login(client); err != nil {
		return err
	}

	cmd := client.Append(a.cfg.Folder, int64(len(msg)), &imap.AppendOptions{
		Flags: []imap.Flag{imap.FlagSeen},
		Time:  sentAt,
	})
	if _, err := cmd.Write(msg); err != nil {
		cmd.Close()
		return fmt.Errorf("IMAP append write failed: %w", err)
	}
	if err := cmd.Close(); err != nil {
		return fmt.Errorf("IMAP append failed: %w", err)
	}
	if _, err := cmd.Wait(); err != nil {
		return fmt.Errorf("IMAP append to %q failed: %w", a.cfg.Folder, err)
	}

	logger.LogInfo(a.logger, "Report archived", "folder", a.cfg.Folder, "bytes", len(msg))
	if err := client.Logout().Wait(); err != nil {
		logger.LogDebug(a.logger, "IMAP logout failed", "error", err)
	}
	return nil
}

// login prefers AUTHENTICATE PLAIN when advertised and falls back to LOGIN.
func (a *IMAPArchiver) login(client *imapclient.Client) error {
	if _, ok := client.Caps()[imap.Cap("AUTH=PLAIN")]; ok {
		if err := client.Authenticate(sasl.NewPlainClient("", a.cfg.Username, a.cfg.Password)); err != nil {
			return fmt.Errorf("IMAP PLAIN authentication failed for %s: %w", security.MaskEmail(a.cfg.Username), err)
		}
		return nil
	}
	if err := client.Login(a.cfg.Username, a.cfg.Password).Wait(); err != nil {
		return fmt.Errorf("IMAP LOGIN failed for %s: %w", security.MaskEmail(a.cfg.Username), err)
	}
	return nil
}
