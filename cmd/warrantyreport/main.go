package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"warrantyreport/internal/common/logger"
	"warrantyreport/internal/common/ratelimit"
	"warrantyreport/internal/common/security"
	"warrantyreport/internal/common/version"
	"warrantyreport/internal/incontrol"
	"warrantyreport/internal/mailer"
	smtptls "warrantyreport/internal/smtp/tls"
)

const toolName = "warrantyreport"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := setupSignalHandling()
	defer cancel()

	config := parseAndConfigureFlags()

	if config.ShowVersion {
		fmt.Printf("Peplink InControl2 Warranty Report - Version %s\n", version.Get())
		return nil
	}

	if err := validateConfiguration(config); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	runID := uuid.NewString()
	slogLogger := logger.SetupLogger(config.VerboseMode, config.LogLevel).With("run_id", runID)
	logger.LogInfo(slogLogger, "Warranty report started",
		"version", version.Get(),
		"api", config.APIURL,
		"client_id", security.MaskIdentifier(config.ClientID),
		"transport", config.Transport,
		"horizon_days", config.HorizonDays)

	auditLogger := openAuditLog(config.LogFormat, slogLogger)
	defer auditLogger.Close()

	limiter := ratelimit.New(config.RateLimit)
	if limiter.Enabled() {
		logger.LogDebug(slogLogger, "Mail server rate limiting enabled", "limit", limiter.String())
	}

	client, err := incontrol.NewClient(incontrol.Options{
		BaseURL:   config.APIURL,
		ProxyURL:  config.ProxyURL,
		Timeout:   config.APITimeout,
		UserAgent: toolName + "/" + version.Get(),
		Logger:    slogLogger,
	})
	if err != nil {
		return fmt.Errorf("failed to create API client: %w", err)
	}

	dispatcher := newDispatcher(config, limiter, slogLogger)

	summary, runErr := runReport(ctx, config, client, dispatcher, time.Now().UTC(), slogLogger)
	summary.RunID = runID
	writeAudit(auditLogger, summary, runErr, slogLogger)

	if runErr != nil {
		logger.LogError(slogLogger, "Warranty report failed", "error", runErr)
		return runErr
	}
	logger.LogInfo(slogLogger, "Warranty report finished",
		"organizations", summary.Organizations,
		"failed_organizations", summary.FailedOrganizations,
		"devices", summary.Devices,
		"rows", summary.Rows,
		"skipped", summary.Skipped.Total(),
		"delivery", summary.Delivery)
	return nil
}

// newDispatcher builds the configured transport. A Graph transport that
// cannot be set up becomes a dispatcher that reports the setup error.
func newDispatcher(config *Config, limiter *ratelimit.Limiter, log *slog.Logger) mailer.Dispatcher {
	if config.Transport == TransportGraph {
		d, err := mailer.NewGraphDispatcher(mailer.GraphConfig{
			TenantID:   config.GraphTenantID,
			ClientID:   config.GraphClientID,
			Secret:     config.GraphSecret,
			PFXPath:    config.GraphPFX,
			PFXPass:    config.GraphPFXPass,
			Mailbox:    config.GraphMailbox,
			To:         config.SMTPTo,
			MaxRetries: config.MaxRetries,
		}, log)
		if err != nil {
			return unavailableDispatcher{err: err}
		}
		return d
	}

	var archiver mailer.Archiver
	if imapCfg := imapConfig(config); imapCfg.Enabled() {
		archiver = mailer.NewIMAPArchiver(imapCfg, limiter, log)
	}
	return mailer.NewSMTPDispatcher(mailer.SMTPConfig{
		Host:       config.SMTPHost,
		Port:       config.SMTPPort,
		Username:   config.SMTPUser,
		Password:   config.SMTPPass,
		Envelope:   mailer.Envelope{From: config.SMTPFrom, To: config.SMTPTo},
		Security:   config.SMTPSecurity,
		TLSVersion: config.SMTPTLSVersion,
		SkipVerify: config.SkipVerify,
		AuthMethod: config.AuthMethod,
		Timeout:    config.SMTPTimeout,
		MaxRetries: config.MaxRetries,
		RetryDelay: config.RetryDelay,
	}, limiter, archiver, log)
}

func imapConfig(config *Config) mailer.IMAPConfig {
	// Already validated, the error cannot occur here.
	tlsVersion, _ := smtptls.ParseTLSVersion(config.SMTPTLSVersion)
	return mailer.IMAPConfig{
		Host:       config.IMAPHost,
		Port:       config.IMAPPort,
		Username:   config.IMAPUser,
		Password:   config.IMAPPass,
		Folder:     config.IMAPFolder,
		SkipVerify: config.SkipVerify,
		TLSVersion: tlsVersion,
	}
}

// openAuditLog opens the run audit log. A log that cannot be opened is
// reported and replaced by a discarding one; the run continues.
func openAuditLog(format string, log *slog.Logger) logger.Logger {
	audit, err := logger.NewAuditLogger(format, toolName, "run")
	if err != nil {
		logger.LogWarn(log, "Could not initialize audit log, continuing without it", "error", err)
		audit, _ = logger.NewAuditLogger(logger.FormatNone, toolName, "run")
	}
	return audit
}

func writeAudit(audit logger.Logger, summary runSummary, runErr error, log *slog.Logger) {
	if shouldWrite, _ := audit.ShouldWriteHeader(); shouldWrite {
		if err := audit.WriteHeader(auditColumns); err != nil {
			logger.LogWarn(log, "Failed to write audit header", "error", err)
		}
	}
	if err := audit.WriteRow(summary.auditRow(runErr)); err != nil {
		logger.LogWarn(log, "Failed to write audit row", "error", err)
	}
}

// setupSignalHandling sets up graceful shutdown on SIGINT/SIGTERM.
func setupSignalHandling() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nReceived interrupt signal. Shutting down...")
		cancel()
	}()

	return ctx, cancel
}
