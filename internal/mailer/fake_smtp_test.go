//go:build !integration
// +build !integration

package mailer

import (
	"bufio"
	"encoding/base64"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// fakeSMTP is a minimal plaintext SMTP server for dispatcher tests.
type fakeSMTP struct {
	ln net.Listener

	extensions []string

	mu       sync.Mutex
	rcptCode int
	rec      smtpRecord
}

// smtpRecord is what the fake server observed.
type smtpRecord struct {
	connections int
	ehlos       int
	authLines   []string
	from        string
	rcpts       []string
	data        string
}

func startFakeSMTP(t *testing.T, extensions ...string) *fakeSMTP {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	if len(extensions) == 0 {
		extensions = []string{"AUTH PLAIN LOGIN", "SIZE 1048576", "8BITMIME"}
	}
	f := &fakeSMTP{ln: ln, extensions: extensions}
	t.Cleanup(func() { ln.Close() })
	go f.serve()
	return f
}

func (f *fakeSMTP) rejectRcpt(code int) {
	f.mu.Lock()
	f.rcptCode = code
	f.mu.Unlock()
}

func (f *fakeSMTP) port() string {
	return strconv.Itoa(f.ln.Addr().(*net.TCPAddr).Port)
}

func (f *fakeSMTP) serve() {
	for {
		conn, err := f.ln.Accept()
		if err != nil {
			return
		}
		f.mu.Lock()
		f.rec.connections++
		f.mu.Unlock()
		go f.handle(conn)
	}
}

func (f *fakeSMTP) handle(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	reply := func(s string) { fmt.Fprint(conn, s+"\r\n") }

	reply("220 fake.test ESMTP ready")
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		cmd := strings.TrimRight(line, "\r\n")
		upper := strings.ToUpper(cmd)

		f.mu.Lock()
		switch {
		case strings.HasPrefix(upper, "EHLO"):
			f.rec.ehlos++
			lines := append([]string{"fake.test greets you"}, f.extensions...)
			for i, l := range lines {
				sep := "-"
				if i == len(lines)-1 {
					sep = " "
				}
				reply("250" + sep + l)
			}
		case strings.HasPrefix(upper, "AUTH PLAIN"):
			f.rec.authLines = append(f.rec.authLines, decodeB64(strings.TrimSpace(cmd[len("AUTH PLAIN"):])))
			reply("235 2.7.0 Authentication successful")
		case strings.HasPrefix(upper, "AUTH LOGIN"):
			f.rec.authLines = append(f.rec.authLines, decodeB64(strings.TrimSpace(cmd[len("AUTH LOGIN"):])))
			f.mu.Unlock()
			reply("334 UGFzc3dvcmQ6")
			pass, err := r.ReadString('\n')
			if err != nil {
				return
			}
			f.mu.Lock()
			f.rec.authLines = append(f.rec.authLines, decodeB64(strings.TrimRight(pass, "\r\n")))
			reply("235 2.7.0 Authentication successful")
		case strings.HasPrefix(upper, "MAIL FROM:"):
			f.rec.from = addressOf(cmd)
			reply("250 2.1.0 Sender OK")
		case strings.HasPrefix(upper, "RCPT TO:"):
			if f.rcptCode != 0 {
				reply(fmt.Sprintf("%d recipient rejected", f.rcptCode))
				break
			}
			f.rec.rcpts = append(f.rec.rcpts, addressOf(cmd))
			reply("250 2.1.5 Recipient OK")
		case upper == "DATA":
			f.mu.Unlock()
			reply("354 Start mail input; end with <CRLF>.<CRLF>")
			var b strings.Builder
			for {
				l, err := r.ReadString('\n')
				if err != nil {
					return
				}
				if l == ".\r\n" {
					break
				}
				b.WriteString(strings.TrimPrefix(l, "."))
			}
			f.mu.Lock()
			f.rec.data = b.String()
			reply("250 2.0.0 Queued")
		case upper == "QUIT":
			reply("221 2.0.0 Bye")
			f.mu.Unlock()
			return
		default:
			reply("502 5.5.2 Command not recognized")
		}
		f.mu.Unlock()
	}
}

func (f *fakeSMTP) snapshot() smtpRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec := f.rec
	rec.authLines = append([]string(nil), f.rec.authLines...)
	rec.rcpts = append([]string(nil), f.rec.rcpts...)
	return rec
}

func decodeB64(s string) string {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return "!" + s
	}
	return string(b)
}

func addressOf(cmd string) string {
	start := strings.IndexByte(cmd, '<')
	end := strings.IndexByte(cmd, '>')
	if start < 0 || end < start {
		return ""
	}
	return cmd[start+1 : end]
}
