package email

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"
)

type Message struct {
	To       []string
	CC       []string
	Subject  string
	TextBody string
	HTMLBody string
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	SSL      bool
}

// SMTPSender delivers messages through gomail.
type SMTPSender struct {
	config SMTPConfig
	dialer *gomail.Dialer
}

func NewSMTPSender(config SMTPConfig) *SMTPSender {
	dialer := gomail.NewDialer(config.Host, config.Port, config.Username, config.Password)
	dialer.SSL = config.SSL

	return &SMTPSender{config: config, dialer: dialer}
}

func (s *SMTPSender) build(msg Message) *gomail.Message {
	m := gomail.NewMessage()

	if s.config.FromName != "" {
		m.SetAddressHeader("From", s.config.From, s.config.FromName)
	} else {
		m.SetHeader("From", s.config.From)
	}

	m.SetHeader("To", msg.To...)

	if len(msg.CC) > 0 {
		m.SetHeader("Cc", msg.CC...)
	}

	m.SetHeader("Subject", msg.Subject)

	switch {
	case msg.HTMLBody != "" && msg.TextBody != "":
		m.SetBody("text/plain", msg.TextBody)
		m.AddAlternative("text/html", msg.HTMLBody)
	case msg.HTMLBody != "":
		m.SetBody("text/html", msg.HTMLBody)
	default:
		m.SetBody("text/plain", msg.TextBody)
	}

	return m
}

// Send dials, sends and closes. gomail has no context support, so the call is
// abandoned (not interrupted) once ctx is done.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	m := s.build(msg)

	done := make(chan error, 1)

	go func() {
		done <- s.dialer.DialAndSend(m)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("smtp send to %s abandoned: %w", s.config.Host, ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to send email: %w", err)
		}

		return nil
	}
}
