// Package mail sends plain-text notification email over SMTP.
package mail

import (
	"fmt"
	"net/smtp"
	"strings"
)

// Mailer sends one message. The automation executor depends on this rather
// than on a concrete transport.
type Mailer interface {
	Send(to, subject, body string) error
}

// SMTP is a Mailer backed by net/smtp without authentication, suitable for a
// local relay.
type SMTP struct {
	Host string
	Port int
	From string
}

func (s SMTP) Send(to, subject, body string) error {
	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", s.From)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	msg.WriteString(body)
	addr := fmt.Sprintf("%s:%d", s.Host, s.Port)
	if err := smtp.SendMail(addr, nil, s.From, []string{to}, []byte(msg.String())); err != nil {
		return fmt.Errorf("send mail via %s: %w", addr, err)
	}
	return nil
}

// Discard is a Mailer that drops every message. Used when no SMTP host is
// configured.
type Discard struct{}

func (Discard) Send(string, string, string) error { return nil }
