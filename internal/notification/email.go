package notification

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"strings"
)

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Email delivers plain text mail over SMTP.
type Email struct {
	host     string
	port     int
	username string
	password string
	from     string
	to       []string
	sendMail sendMailFunc
}

func NewEmail(host string, port int, username, password, from string, to []string) *Email {
	return &Email{
		host:     host,
		port:     port,
		username: username,
		password: password,
		from:     from,
		to:       to,
		sendMail: smtp.SendMail,
	}
}

func (e *Email) Name() string { return "email" }

func (e *Email) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	to := msg.To
	if len(to) == 0 {
		to = e.to
	}
	if len(to) == 0 {
		return errors.New("email: no recipients")
	}

	var auth smtp.Auth
	if e.username != "" {
		auth = smtp.PlainAuth("", e.username, e.password, e.host)
	}
	addr := fmt.Sprintf("%s:%d", e.host, e.port)
	body := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=\"UTF-8\"\r\n\r\n%s\r\n",
		e.from, strings.Join(to, ", "), msg.Subject, msg.Text)

	return e.sendMail(addr, auth, e.from, to, []byte(body))
}
