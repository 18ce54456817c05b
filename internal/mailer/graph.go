package mailer

import (
	"context"
	"crypto"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	msgraphsdk "github.com/microsoftgraph/msgraph-sdk-go"
	"github.com/microsoftgraph/msgraph-sdk-go/models"
	"github.com/microsoftgraph/msgraph-sdk-go/models/odataerrors"
	"github.com/microsoftgraph/msgraph-sdk-go/users"
	"software.sslmate.com/src/go-pkcs12"

	"warrantyreport/internal/common/logger"
	"warrantyreport/internal/common/retry"
	"warrantyreport/internal/common/security"
	"warrantyreport/internal/common/validation"
)

const graphScope = "https://graph.microsoft.com/.default"

// GraphConfig configures delivery through Microsoft Graph sendMail with an
// application registration. Either Secret or PFXPath must be set.
type GraphConfig struct {
	TenantID string
	ClientID string
	Secret   string
	PFXPath  string
	PFXPass  string
	// Mailbox is the sending user; it is also the From address.
	Mailbox    string
	To         []string
	MaxRetries int
}

// mailSender is the slice of the Graph SDK that sends mail.
type mailSender interface {
	SendMail(ctx context.Context, mailbox string, body users.ItemSendMailPostRequestBodyable) error
}

type sdkSender struct {
	client *msgraphsdk.GraphServiceClient
}

func (s sdkSender) SendMail(ctx context.Context, mailbox string, body users.ItemSendMailPostRequestBodyable) error {
	return s.client.Users().ByUserId(mailbox).SendMail().Post(ctx, body, nil)
}

// GraphDispatcher delivers reports through Microsoft Graph.
type GraphDispatcher struct {
	cfg    GraphConfig
	sender mailSender
	logger *slog.Logger
}

// NewGraphDispatcher validates cfg, builds the credential and the Graph
// client. No network traffic happens until Send.
func NewGraphDispatcher(cfg GraphConfig, log *slog.Logger) (*GraphDispatcher, error) {
	if names := graphMissing(cfg); len(names) > 0 {
		return nil, &DeliveryError{Transport: "graph", Missing: names}
	}
	if err := validation.ValidateEmails(append([]string{cfg.Mailbox}, cfg.To...), "graph addresses"); err != nil {
		return nil, &DeliveryError{Transport: "graph", Err: err}
	}

	logger.LogDebug(log, "Setting up Microsoft Graph client",
		"tenantID", security.MaskIdentifier(cfg.TenantID),
		"clientID", security.MaskIdentifier(cfg.ClientID))

	cred, err := graphCredential(cfg, log)
	if err != nil {
		return nil, &DeliveryError{Transport: "graph", Err: fmt.Errorf("authentication setup failed: %w", err)}
	}
	client, err := msgraphsdk.NewGraphServiceClientWithCredentials(cred, []string{graphScope})
	if err != nil {
		return nil, &DeliveryError{Transport: "graph", Err: fmt.Errorf("graph client initialization failed: %w", err)}
	}
	return &GraphDispatcher{cfg: cfg, sender: sdkSender{client}, logger: log}, nil
}

func graphMissing(cfg GraphConfig) []string {
	to := ""
	if len(cfg.To) > 0 {
		to = cfg.To[0]
	}
	names := missing(
		"MSGRAPH_TENANT_ID", cfg.TenantID,
		"MSGRAPH_CLIENT_ID", cfg.ClientID,
		"MSGRAPH_MAILBOX", cfg.Mailbox,
		"SMTP_TO", to,
	)
	if cfg.Secret == "" && cfg.PFXPath == "" {
		names = append(names, "MSGRAPH_SECRET or MSGRAPH_PFX")
	}
	return names
}

func graphCredential(cfg GraphConfig, log *slog.Logger) (azcore.TokenCredential, error) {
	if cfg.Secret != "" {
		logger.LogDebug(log, "Graph authentication method: client secret",
			"secret", security.MaskSecret(cfg.Secret))
		return azidentity.NewClientSecretCredential(cfg.TenantID, cfg.ClientID, cfg.Secret, nil)
	}

	if err := validation.ValidateFilePath(cfg.PFXPath, "MSGRAPH_PFX"); err != nil {
		return nil, err
	}
	pfxData, err := os.ReadFile(cfg.PFXPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read PFX file: %w", err)
	}
	logger.LogDebug(log, "Graph authentication method: certificate", "path", cfg.PFXPath, "bytes", len(pfxData))
	return certCredential(cfg.TenantID, cfg.ClientID, pfxData, cfg.PFXPass)
}

// certCredential decodes a PKCS#12 bundle and builds a certificate
// credential that sends the full chain, leaf first.
func certCredential(tenantID, clientID string, pfxData []byte, password string) (*azidentity.ClientCertificateCredential, error) {
	key, cert, caCerts, err := pkcs12.DecodeChain(pfxData, password)
	if err != nil {
		return nil, fmt.Errorf("failed to decode PFX: %w", err)
	}
	privKey, ok := key.(crypto.PrivateKey)
	if !ok {
		return nil, errors.New("decoded key is not a valid crypto.PrivateKey")
	}
	certs := append([]*x509.Certificate{cert}, caCerts...)
	return azidentity.NewClientCertificateCredential(tenantID, clientID, certs, privKey,
		&azidentity.ClientCertificateCredentialOptions{SendCertificateChain: true})
}

// Send posts the report to /users/{mailbox}/sendMail.
func (d *GraphDispatcher) Send(ctx context.Context, r *Report) error {
	body := users.NewItemSendMailPostRequestBody()
	body.SetMessage(buildGraphMessage(d.cfg.To, r))
	saveToSent := true
	body.SetSaveToSentItems(&saveToSent)

	logger.LogInfo(d.logger, "Sending report via Microsoft Graph",
		"mailbox", security.MaskEmail(d.cfg.Mailbox),
		"to", security.MaskEmails(d.cfg.To),
		"attachment", r.AttachmentName,
		"rows", r.Rows)

	err := retry.Do(ctx, d.logger, d.cfg.MaxRetries, defaultRetryDelay, func() error {
		return d.sender.SendMail(ctx, d.cfg.Mailbox, body)
	})
	if err != nil {
		return &DeliveryError{Transport: "graph", Err: describeGraphError(err)}
	}
	logger.LogInfo(d.logger, "Report delivered via Microsoft Graph")
	return nil
}

func buildGraphMessage(to []string, r *Report) models.Messageable {
	message := models.NewMessage()
	subject := Subject
	message.SetSubject(&subject)

	content := BodyText
	contentType := models.TEXT_BODYTYPE
	itemBody := models.NewItemBody()
	itemBody.SetContent(&content)
	itemBody.SetContentType(&contentType)
	message.SetBody(itemBody)

	recipients := make([]models.Recipientable, len(to))
	for i, addr := range to {
		address := addr
		email := models.NewEmailAddress()
		email.SetAddress(&address)
		recipient := models.NewRecipient()
		recipient.SetEmailAddress(email)
		recipients[i] = recipient
	}
	message.SetToRecipients(recipients)

	attachment := models.NewFileAttachment()
	odataType := "#microsoft.graph.fileAttachment"
	attachment.SetOdataType(&odataType)
	name := r.AttachmentName
	attachment.SetName(&name)
	mimeType := "text/csv"
	attachment.SetContentType(&mimeType)
	attachment.SetContentBytes([]byte(r.CSV))
	message.SetAttachments([]models.Attachmentable{attachment})

	return message
}

// describeGraphError adds the OData error code and message when present.
func describeGraphError(err error) error {
	var odataErr *odataerrors.ODataError
	if !errors.As(err, &odataErr) || odataErr.GetErrorEscaped() == nil {
		return err
	}
	info := odataErr.GetErrorEscaped()
	code, msg := "", ""
	if info.GetCode() != nil {
		code = *info.GetCode()
	}
	if info.GetMessage() != nil {
		msg = *info.GetMessage()
	}
	if code == "" {
		return err
	}
	return fmt.Errorf("graph error %s: %s: %w", code, msg, err)
}
