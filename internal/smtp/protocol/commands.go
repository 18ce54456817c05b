package protocol

import (
	"fmt"
	"strings"
)

// Command builders for the steps issued on the raw connection before
// net/smtp takes over. Arguments are stripped of CR and LF so a value can
// never terminate a command early.

func sanitizeCRLF(input string) string {
	return strings.NewReplacer("\r", "", "\n", "").Replace(input)
}

// EHLO builds "EHLO <hostname>".
func EHLO(hostname string) string {
	return fmt.Sprintf("EHLO %s\r\n", sanitizeCRLF(hostname))
}

func STARTTLS() string {
	return "STARTTLS\r\n"
}

func QUIT() string {
	return "QUIT\r\n"
}
