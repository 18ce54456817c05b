package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"warrantyreport/internal/common/logger"
	"warrantyreport/internal/common/validation"
	"warrantyreport/internal/incontrol"
	"warrantyreport/internal/mailer"
	"warrantyreport/internal/report"
	smtptls "warrantyreport/internal/smtp/tls"
	"warrantyreport/internal/warranty"
)

// Config holds all warrantyreport configuration. It is built once at
// startup and handed to each component.
type Config struct {
	ShowVersion bool

	// InControl2 API
	ClientID     string
	ClientSecret string
	APIURL       string
	ProxyURL     string
	APITimeout   time.Duration

	// Report delivery
	Transport      string // smtp or graph
	SMTPHost       string
	SMTPPort       string // kept as text, checked again before dialing
	SMTPUser       string
	SMTPPass       string
	SMTPFrom       string
	SMTPTo         []string
	SMTPSecurity   string // smtps, starttls or none
	SMTPTLSVersion string
	SkipVerify     bool
	AuthMethod     string
	SMTPTimeout    time.Duration
	MaxRetries     int
	RetryDelay     time.Duration

	// Microsoft Graph transport
	GraphTenantID string
	GraphClientID string
	GraphSecret   string
	GraphPFX      string
	GraphPFXPass  string
	GraphMailbox  string

	// Optional IMAP copy of the sent report
	IMAPHost   string
	IMAPPort   int
	IMAPUser   string
	IMAPPass   string
	IMAPFolder string

	// Report contents
	HorizonDays int
	CSVQuoting  string
	SendEmpty   bool

	// Runtime configuration
	VerboseMode bool
	LogLevel    string
	LogFormat   string  // Audit log format: csv, json, none
	RateLimit   float64 // Maximum mail server commands per second (0 = unlimited)
}

// Transport names.
const (
	TransportSMTP  = "smtp"
	TransportGraph = "graph"
)

// ConfigurationError lists every required setting that was not provided.
type ConfigurationError struct {
	Missing []string
}

func (e *ConfigurationError) Error() string {
	return "missing required settings: " + strings.Join(e.Missing, ", ")
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		APIURL:         incontrol.DefaultBaseURL,
		APITimeout:     60 * time.Second,
		Transport:      TransportSMTP,
		SMTPSecurity:   mailer.SecuritySMTPS,
		SMTPTLSVersion: "1.2",
		AuthMethod:     "auto",
		SMTPTimeout:    30 * time.Second,
		MaxRetries:     0,
		RetryDelay:     2000 * time.Millisecond,
		IMAPPort:       993,
		IMAPFolder:     mailer.DefaultArchiveFolder,
		HorizonDays:    warranty.DefaultHorizonDays,
		CSVQuoting:     string(report.QuotingLegacy),
		SendEmpty:      true,
		LogLevel:       "INFO",
		LogFormat:      logger.FormatCSV,
	}
}

// parseAndConfigureFlags parses command-line flags and environment variables.
func parseAndConfigureFlags() *Config {
	config := NewConfig()

	flag.Usage = func() {
		out := flag.CommandLine.Output()
		fmt.Fprintf(out, "Peplink InControl2 Warranty Report\n\n")
		fmt.Fprintf(out, "Lists devices whose warranty has expired or expires within the horizon\n")
		fmt.Fprintf(out, "and mails the list as a CSV attachment.\n\n")
		fmt.Fprintf(out, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(out, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(out, "\nRequired environment variables (or the matching flags):\n")
		fmt.Fprintf(out, "  PEPLINK_CLIENT_ID, PEPLINK_CLIENT_SECRET\n")
		fmt.Fprintf(out, "  SMTP_HOST, SMTP_PORT, SMTP_USER, SMTP_PASS, SMTP_TO\n")
		fmt.Fprintf(out, "  SMTP_FROM is optional and defaults to SMTP_USER\n\n")
		fmt.Fprintf(out, "Examples:\n")
		fmt.Fprintf(out, "  %s\n", os.Args[0])
		fmt.Fprintf(out, "  %s -horizon 30 -sendempty=false\n", os.Args[0])
		fmt.Fprintf(out, "  %s -transport graph -graphtenant <tenant> -graphclient <app> -graphsecret <secret> -graphmailbox reports@example.com\n", os.Args[0])
	}

	showVersion := flag.Bool("version", false, "Show version information")
	clientID := flag.String("clientid", "", "InControl2 OAuth client ID (env: PEPLINK_CLIENT_ID)")
	clientSecret := flag.String("clientsecret", "", "InControl2 OAuth client secret (env: PEPLINK_CLIENT_SECRET)")
	apiURL := flag.String("apiurl", incontrol.DefaultBaseURL, "InControl2 API base URL (env: PEPLINK_API_URL)")
	proxyURL := flag.String("proxy", "", "HTTP/HTTPS proxy URL for API calls (env: PEPLINK_PROXY)")
	apiTimeout := flag.Int("apitimeout", 60, "API request timeout in seconds (env: PEPLINK_TIMEOUT)")
	transport := flag.String("transport", TransportSMTP, "Report transport: smtp, graph (env: REPORT_TRANSPORT)")
	smtpHost := flag.String("smtphost", "", "SMTP server hostname (env: SMTP_HOST)")
	smtpPort := flag.String("smtpport", "", "SMTP server port (env: SMTP_PORT)")
	smtpUser := flag.String("smtpuser", "", "SMTP username (env: SMTP_USER)")
	smtpPass := flag.String("smtppass", "", "SMTP password (env: SMTP_PASS)")
	smtpFrom := flag.String("from", "", "Sender address, defaults to the SMTP username (env: SMTP_FROM)")
	smtpTo := flag.String("to", "", "Comma-separated recipient addresses (env: SMTP_TO)")
	smtpSecurity := flag.String("smtpsecurity", mailer.SecuritySMTPS, "SMTP security: smtps, starttls, none (env: SMTP_SECURITY)")
	tlsVersion := flag.String("tlsversion", "1.2", "Minimum TLS version: 1.2, 1.3 (env: SMTP_TLS_VERSION)")
	skipVerify := flag.Bool("skipverify", false, "Skip TLS certificate verification (insecure) (env: SMTP_SKIP_VERIFY)")
	authMethod := flag.String("authmethod", "auto", "SMTP AUTH mechanism: PLAIN, LOGIN, CRAM-MD5, auto (env: SMTP_AUTH_METHOD)")
	smtpTimeout := flag.Int("smtptimeout", 30, "SMTP timeout in seconds (env: SMTP_TIMEOUT)")
	maxRetries := flag.Int("maxretries", 0, "Retries for transient SMTP failures (env: SMTP_MAX_RETRIES)")
	retryDelay := flag.Int("retrydelay", 2000, "Retry delay in milliseconds (env: SMTP_RETRY_DELAY)")
	graphTenant := flag.String("graphtenant", "", "Graph tenant ID (env: MSGRAPH_TENANT_ID)")
	graphClient := flag.String("graphclient", "", "Graph application ID (env: MSGRAPH_CLIENT_ID)")
	graphSecret := flag.String("graphsecret", "", "Graph client secret (env: MSGRAPH_SECRET)")
	graphPFX := flag.String("graphpfx", "", "Path to a .pfx certificate for Graph (env: MSGRAPH_PFX)")
	graphPFXPass := flag.String("graphpfxpass", "", "Password of the .pfx file (env: MSGRAPH_PFX_PASS)")
	graphMailbox := flag.String("graphmailbox", "", "Sending mailbox, defaults to the sender address (env: MSGRAPH_MAILBOX)")
	imapHost := flag.String("imaphost", "", "IMAP server for a copy of the sent report (env: IMAP_HOST)")
	imapPort := flag.Int("imapport", 993, "IMAP server port (env: IMAP_PORT)")
	imapUser := flag.String("imapuser", "", "IMAP username, defaults to the SMTP username (env: IMAP_USER)")
	imapPass := flag.String("imappass", "", "IMAP password, defaults to the SMTP password (env: IMAP_PASS)")
	imapFolder := flag.String("imapfolder", mailer.DefaultArchiveFolder, "IMAP folder for the copy (env: IMAP_FOLDER)")
	horizon := flag.Int("horizon", warranty.DefaultHorizonDays, "Report devices expiring within this many days (env: REPORT_HORIZON_DAYS)")
	csvQuoting := flag.String("csvquoting", string(report.QuotingLegacy), "CSV quoting: legacy, standard (env: REPORT_CSV_QUOTING)")
	sendEmpty := flag.Bool("sendempty", true, "Send the report even when it has no rows (env: REPORT_SEND_EMPTY)")
	verbose := flag.Bool("verbose", false, "Enable verbose output")
	logLevel := flag.String("loglevel", "INFO", "Logging level: DEBUG, INFO, WARN, ERROR (env: LOG_LEVEL)")
	logFormat := flag.String("logformat", logger.FormatCSV, "Run audit log format: csv, json, none (env: LOG_FORMAT)")
	rateLimit := flag.Float64("ratelimit", 0, "Maximum SMTP/IMAP commands per second, the API is never paced (0 = unlimited) (env: REPORT_RATELIMIT)")

	flag.Parse()

	config.ShowVersion = *showVersion
	config.ClientID = *clientID
	config.ClientSecret = *clientSecret
	config.APIURL = *apiURL
	config.ProxyURL = *proxyURL
	config.APITimeout = time.Duration(*apiTimeout) * time.Second
	config.Transport = *transport
	config.SMTPHost = *smtpHost
	config.SMTPPort = *smtpPort
	config.SMTPUser = *smtpUser
	config.SMTPPass = *smtpPass
	config.SMTPFrom = *smtpFrom
	config.SMTPTo = mailer.SplitAddresses(*smtpTo)
	config.SMTPSecurity = *smtpSecurity
	config.SMTPTLSVersion = *tlsVersion
	config.SkipVerify = *skipVerify
	config.AuthMethod = *authMethod
	config.SMTPTimeout = time.Duration(*smtpTimeout) * time.Second
	config.MaxRetries = *maxRetries
	config.RetryDelay = time.Duration(*retryDelay) * time.Millisecond
	config.GraphTenantID = *graphTenant
	config.GraphClientID = *graphClient
	config.GraphSecret = *graphSecret
	config.GraphPFX = *graphPFX
	config.GraphPFXPass = *graphPFXPass
	config.GraphMailbox = *graphMailbox
	config.IMAPHost = *imapHost
	config.IMAPPort = *imapPort
	config.IMAPUser = *imapUser
	config.IMAPPass = *imapPass
	config.IMAPFolder = *imapFolder
	config.HorizonDays = *horizon
	config.CSVQuoting = *csvQuoting
	config.SendEmpty = *sendEmpty
	config.VerboseMode = *verbose
	config.LogLevel = *logLevel
	config.LogFormat = *logFormat
	config.RateLimit = *rateLimit

	// Apply environment variables (if flags not set)
	applyEnvironmentVariables(config)
	applyDefaults(config)

	return config
}

// applyEnvironmentVariables fills settings that were left at their default
// from the environment.
func applyEnvironmentVariables(config *Config) {
	setString(&config.ClientID, "", "PEPLINK_CLIENT_ID")
	setString(&config.ClientSecret, "", "PEPLINK_CLIENT_SECRET")
	setString(&config.APIURL, incontrol.DefaultBaseURL, "PEPLINK_API_URL")
	setString(&config.ProxyURL, "", "PEPLINK_PROXY")
	setSeconds(&config.APITimeout, 60*time.Second, "PEPLINK_TIMEOUT")
	setString(&config.Transport, TransportSMTP, "REPORT_TRANSPORT")

	setString(&config.SMTPHost, "", "SMTP_HOST")
	setString(&config.SMTPPort, "", "SMTP_PORT")
	setString(&config.SMTPUser, "", "SMTP_USER")
	setString(&config.SMTPPass, "", "SMTP_PASS")
	setString(&config.SMTPFrom, "", "SMTP_FROM")
	if len(config.SMTPTo) == 0 {
		config.SMTPTo = mailer.SplitAddresses(os.Getenv("SMTP_TO"))
	}
	setString(&config.SMTPSecurity, mailer.SecuritySMTPS, "SMTP_SECURITY")
	setString(&config.SMTPTLSVersion, "1.2", "SMTP_TLS_VERSION")
	if !config.SkipVerify {
		config.SkipVerify = envBool("SMTP_SKIP_VERIFY", false)
	}
	setString(&config.AuthMethod, "auto", "SMTP_AUTH_METHOD")
	setSeconds(&config.SMTPTimeout, 30*time.Second, "SMTP_TIMEOUT")
	setInt(&config.MaxRetries, 0, "SMTP_MAX_RETRIES")
	if v := os.Getenv("SMTP_RETRY_DELAY"); v != "" && config.RetryDelay == 2000*time.Millisecond {
		if ms, err := strconv.Atoi(v); err == nil {
			config.RetryDelay = time.Duration(ms) * time.Millisecond
		}
	}

	setString(&config.GraphTenantID, "", "MSGRAPH_TENANT_ID")
	setString(&config.GraphClientID, "", "MSGRAPH_CLIENT_ID")
	setString(&config.GraphSecret, "", "MSGRAPH_SECRET")
	setString(&config.GraphPFX, "", "MSGRAPH_PFX")
	setString(&config.GraphPFXPass, "", "MSGRAPH_PFX_PASS")
	setString(&config.GraphMailbox, "", "MSGRAPH_MAILBOX")

	setString(&config.IMAPHost, "", "IMAP_HOST")
	setInt(&config.IMAPPort, 993, "IMAP_PORT")
	setString(&config.IMAPUser, "", "IMAP_USER")
	setString(&config.IMAPPass, "", "IMAP_PASS")
	setString(&config.IMAPFolder, mailer.DefaultArchiveFolder, "IMAP_FOLDER")

	setInt(&config.HorizonDays, warranty.DefaultHorizonDays, "REPORT_HORIZON_DAYS")
	setString(&config.CSVQuoting, string(report.QuotingLegacy), "REPORT_CSV_QUOTING")
	if config.SendEmpty {
		config.SendEmpty = envBool("REPORT_SEND_EMPTY", true)
	}
	setString(&config.LogLevel, "INFO", "LOG_LEVEL")
	setString(&config.LogFormat, logger.FormatCSV, "LOG_FORMAT")
	if v := os.Getenv("REPORT_RATELIMIT"); v != "" && config.RateLimit == 0 {
		if rps, err := strconv.ParseFloat(v, 64); err == nil {
			config.RateLimit = rps
		}
	}
}

// applyDefaults derives settings that default to other settings.
func applyDefaults(config *Config) {
	if config.SMTPFrom == "" {
		config.SMTPFrom = config.SMTPUser
	}
	if config.GraphMailbox == "" {
		config.GraphMailbox = config.SMTPFrom
	}
	if config.IMAPUser == "" {
		config.IMAPUser = config.SMTPUser
	}
	if config.IMAPPass == "" {
		config.IMAPPass = config.SMTPPass
	}
}

func setString(dst *string, def, key string) {
	if *dst != def {
		return
	}
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, def int, key string) {
	if *dst != def {
		return
	}
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			*dst = n
		}
	}
}

func setSeconds(dst *time.Duration, def time.Duration, key string) {
	if *dst != def {
		return
	}
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			*dst = time.Duration(n) * time.Second
		}
	}
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return b
}

// requiredSettings checks presence only. Under the graph transport the SMTP
// connection settings are not needed but SMTP_TO still names the recipients.
func requiredSettings(config *Config) error {
	var missing []string
	need := func(name, value string) {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}

	need("PEPLINK_CLIENT_ID", config.ClientID)
	need("PEPLINK_CLIENT_SECRET", config.ClientSecret)
	if config.Transport != TransportGraph {
		need("SMTP_HOST", config.SMTPHost)
		need("SMTP_PORT", config.SMTPPort)
		need("SMTP_USER", config.SMTPUser)
		need("SMTP_PASS", config.SMTPPass)
	}
	need("SMTP_TO", strings.Join(config.SMTPTo, ","))

	if len(missing) > 0 {
		return &ConfigurationError{Missing: missing}
	}
	return nil
}

// validateConfiguration reports missing required settings first, then checks
// the optional ones.
func validateConfiguration(config *Config) error {
	if err := requiredSettings(config); err != nil {
		return err
	}

	switch config.Transport {
	case TransportSMTP, TransportGraph:
	default:
		return fmt.Errorf("invalid transport %q (must be smtp or graph)", config.Transport)
	}

	if err := validation.ValidateBaseURL(config.APIURL); err != nil {
		return fmt.Errorf("PEPLINK_API_URL: %w", err)
	}
	if err := validation.ValidateProxyURL(config.ProxyURL); err != nil {
		return fmt.Errorf("PEPLINK_PROXY: %w", err)
	}
	if config.APITimeout <= 0 {
		return fmt.Errorf("API timeout must be positive")
	}

	if _, err := report.ParseQuoting(config.CSVQuoting); err != nil {
		return err
	}
	if config.HorizonDays < 0 {
		return fmt.Errorf("horizon must not be negative (got %d)", config.HorizonDays)
	}

	switch config.SMTPSecurity {
	case mailer.SecuritySMTPS, mailer.SecuritySTARTTLS, mailer.SecurityNone:
	default:
		return fmt.Errorf("invalid SMTP security %q (must be smtps, starttls or none)", config.SMTPSecurity)
	}
	if _, err := smtptls.ParseTLSVersion(config.SMTPTLSVersion); err != nil {
		return err
	}
	if config.MaxRetries < 0 {
		return fmt.Errorf("maxretries must not be negative")
	}

	if config.IMAPHost != "" {
		if err := validation.ValidateHostname(config.IMAPHost); err != nil {
			return fmt.Errorf("IMAP_HOST: %w", err)
		}
		if err := validation.ValidatePort(config.IMAPPort); err != nil {
			return fmt.Errorf("IMAP_PORT: %w", err)
		}
	}

	switch strings.ToLower(config.LogFormat) {
	case logger.FormatCSV, logger.FormatJSON, logger.FormatNone:
	default:
		return fmt.Errorf("invalid log format %q (must be csv, json or none)", config.LogFormat)
	}
	if config.RateLimit < 0 {
		return fmt.Errorf("ratelimit must not be negative")
	}
	return nil
}
