//go:build !integration
// +build !integration

package mailer

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/microsoftgraph/msgraph-sdk-go/models"
	"github.com/microsoftgraph/msgraph-sdk-go/users"
)

type fakeSender struct {
	calls   int
	mailbox string
	body    users.ItemSendMailPostRequestBodyable
	err     error
}

func (f *fakeSender) SendMail(_ context.Context, mailbox string, body users.ItemSendMailPostRequestBodyable) error {
	f.calls++
	f.mailbox = mailbox
	f.body = body
	return f.err
}

func TestBuildGraphMessage(t *testing.T) {
	r := testReport()
	msg := buildGraphMessage([]string{"ops@example.com", "noc@example.com"}, r)

	if got := *msg.GetSubject(); got != Subject {
		t.Errorf("subject = %q", got)
	}
	if got := *msg.GetBody().GetContentType(); got != models.TEXT_BODYTYPE {
		t.Errorf("body type = %v", got)
	}

	var to []string
	for _, rcpt := range msg.GetToRecipients() {
		to = append(to, *rcpt.GetEmailAddress().GetAddress())
	}
	if !reflect.DeepEqual(to, []string{"ops@example.com", "noc@example.com"}) {
		t.Errorf("recipients = %v", to)
	}

	attachments := msg.GetAttachments()
	if len(attachments) != 1 {
		t.Fatalf("got %d attachments, want 1", len(attachments))
	}
	file, ok := attachments[0].(*models.FileAttachment)
	if !ok {
		t.Fatalf("attachment type = %T", attachments[0])
	}
	if *file.GetName() != r.AttachmentName || *file.GetContentType() != "text/csv" {
		t.Errorf("attachment = %s (%s)", *file.GetName(), *file.GetContentType())
	}
	if string(file.GetContentBytes()) != r.CSV {
		t.Errorf("attachment content = %q", file.GetContentBytes())
	}
	if *file.GetOdataType() != "#microsoft.graph.fileAttachment" {
		t.Errorf("odata type = %q", *file.GetOdataType())
	}
}

func TestGraphDispatcherSend(t *testing.T) {
	sender := &fakeSender{}
	d := &GraphDispatcher{
		cfg:    GraphConfig{Mailbox: "reports@example.com", To: []string{"ops@example.com"}},
		sender: sender,
	}

	if err := d.Send(context.Background(), testReport()); err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	if sender.calls != 1 || sender.mailbox != "reports@example.com" {
		t.Errorf("calls = %d, mailbox = %q", sender.calls, sender.mailbox)
	}
	if save := sender.body.GetSaveToSentItems(); save == nil || !*save {
		t.Error("saveToSentItems should be true")
	}
	if got := *sender.body.GetMessage().GetSubject(); got != Subject {
		t.Errorf("subject = %q", got)
	}
}

func TestGraphDispatcherSendFailure(t *testing.T) {
	d := &GraphDispatcher{
		cfg:    GraphConfig{Mailbox: "reports@example.com", To: []string{"ops@example.com"}},
		sender: &fakeSender{err: errors.New("403 forbidden")},
	}

	err := d.Send(context.Background(), testReport())
	var de *DeliveryError
	if !errors.As(err, &de) || de.Transport != "graph" {
		t.Fatalf("expected graph *DeliveryError, got %v", err)
	}
}

func TestNewGraphDispatcherValidation(t *testing.T) {
	_, err := NewGraphDispatcher(GraphConfig{To: []string{"ops@example.com"}}, nil)
	var de *DeliveryError
	if !errors.As(err, &de) {
		t.Fatalf("expected *DeliveryError, got %v", err)
	}
	want := []string{"MSGRAPH_TENANT_ID", "MSGRAPH_CLIENT_ID", "MSGRAPH_MAILBOX", "MSGRAPH_SECRET or MSGRAPH_PFX"}
	if !reflect.DeepEqual(de.Missing, want) {
		t.Errorf("Missing = %v, want %v", de.Missing, want)
	}

	_, err = NewGraphDispatcher(GraphConfig{
		TenantID: "tenant", ClientID: "client", Secret: "s",
		Mailbox: "not-an-address", To: []string{"ops@example.com"},
	}, nil)
	if err == nil {
		t.Error("expected error for invalid mailbox")
	}

	_, err = NewGraphDispatcher(GraphConfig{
		TenantID: "tenant", ClientID: "client", PFXPath: "missing.pfx",
		Mailbox: "reports@example.com", To: []string{"ops@example.com"},
	}, nil)
	if err == nil {
		t.Error("expected error for missing PFX file")
	}
}

func TestCertCredentialRejectsGarbage(t *testing.T) {
	if _, err := certCredential("tenant", "client", []byte("not a pfx"), ""); err == nil {
		t.Error("expected decode error")
	}
}
