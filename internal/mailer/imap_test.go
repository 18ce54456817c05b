//go:build !integration
// +build !integration

package mailer

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"
)

func TestNewIMAPArchiverDefaults(t *testing.T) {
	a := NewIMAPArchiver(IMAPConfig{Host: "imap.example.com"}, nil, nil)
	if a.cfg.Port != 993 || a.cfg.Folder != DefaultArchiveFolder {
		t.Errorf("defaults not applied: %+v", a.cfg)
	}
	if !a.cfg.Enabled() {
		t.Error("Enabled() = false with a host set")
	}
	if (IMAPConfig{}).Enabled() {
		t.Error("Enabled() = true without a host")
	}
}

func TestIMAPArchiverConnectionFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	a := NewIMAPArchiver(IMAPConfig{Host: "127.0.0.1", Port: port, Username: "u", Password: "p"}, nil, nil)
	err = a.Archive(context.Background(), []byte("Subject: x\r\n\r\nbody"), time.Now())
	if err == nil || !strings.Contains(err.Error(), "IMAP connection failed") {
		t.Fatalf("unexpected error: %v", err)
	}
}
