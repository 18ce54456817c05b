package protocol

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// DefaultResponseTimeout bounds a single reply read so a stalled server
// cannot hang the run.
const DefaultResponseTimeout = 30 * time.Second

// Response is one SMTP reply. Multiline replies share a single code.
type Response struct {
	Code  int
	Lines []string
}

// ReadResponse reads one complete reply (RFC 5321 section 4.2): lines of
// "NNN-text" terminated by a final "NNN text".
func ReadResponse(reader *bufio.Reader) (*Response, error) {
	resp := &Response{}
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}
		line = strings.TrimRight(line, "\r\n")
		if len(line) < 3 {
			return nil, fmt.Errorf("invalid SMTP response (too short): %q", line)
		}

		code, err := strconv.Atoi(line[:3])
		if err != nil {
			return nil, fmt.Errorf("invalid response code: %q", line)
		}
		if resp.Code == 0 {
			resp.Code = code
		} else if resp.Code != code {
			return nil, fmt.Errorf("response code mismatch: %d vs %d", resp.Code, code)
		}

		text := ""
		if len(line) > 4 {
			text = line[4:]
		}
		resp.Lines = append(resp.Lines, text)

		if len(line) == 3 || line[3] == ' ' {
			return resp, nil
		}
		if line[3] != '-' {
			return nil, fmt.Errorf("invalid response format (expected - or space after code): %q", line)
		}
	}
}

// ReadResponseWithTimeout sets a read deadline on conn before reading and
// clears it afterwards.
func ReadResponseWithTimeout(conn net.Conn, reader *bufio.Reader, timeout time.Duration) (*Response, error) {
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, fmt.Errorf("failed to set read deadline: %w", err)
	}
	defer conn.SetReadDeadline(time.Time{})

	resp, err := ReadResponse(reader)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, fmt.Errorf("timeout waiting for SMTP response after %v", timeout)
		}
		return nil, err
	}
	return resp, nil
}

// Message joins all reply lines with newlines.
func (r *Response) Message() string {
	return strings.Join(r.Lines, "\n")
}

func (r *Response) IsSuccess() bool {
	return r.Code >= 200 && r.Code < 300
}

func (r *Response) String() string {
	if len(r.Lines) <= 1 {
		return fmt.Sprintf("%d %s", r.Code, r.Message())
	}
	return fmt.Sprintf("%d (multiline, %d lines)", r.Code, len(r.Lines))
}

// Err converts an unexpected reply to a *ReplyError attributed to command.
func (r *Response) Err(command string) error {
	return &ReplyError{Command: command, Code: r.Code, Message: r.Message()}
}

// ReplyError is a negative or unexpected server reply.
type ReplyError struct {
	Command string
	Code    int
	Message string
}

func (e *ReplyError) Error() string {
	return fmt.Sprintf("%s failed: %d %s", e.Command, e.Code, e.Message)
}

// SMTPCode exposes the reply code to retry classification.
func (e *ReplyError) SMTPCode() int {
	return e.Code
}
