// Package mail delivers report artifacts to the configured recipient over
// SMTP.
package mail

import (
	"bytes"
	"net/smtp"

	"github.com/jordan-wright/email"

	"github.com/autotech-nz/paymark-reporter/internal/config"
	"github.com/autotech-nz/paymark-reporter/internal/model"
)

// Attachment is one file to deliver with the report mail.
type Attachment struct {
	Filename    string
	Content     []byte
	ContentType string
}

// Message is a fully composed outbound mail.
type Message struct {
	From        string
	To          string
	Subject     string
	Text        string
	Attachments []Attachment
}

// Sender delivers one message. Implementations must not partially send; a
// returned error means nothing usable reached the recipient.
type Sender interface {
	Send(msg Message) error
}

// SMTPSender delivers mail through a plain-auth SMTP relay.
type SMTPSender struct {
	cfg config.MailConfig
}

// NewSMTPSender builds a sender from mail configuration. Completeness of
// the configuration is the orchestrator's concern, checked before any
// fetch work starts.
func NewSMTPSender(cfg config.MailConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg}
}

// Send composes and delivers msg.
func (s *SMTPSender) Send(msg Message) error {
	e := email.NewEmail()
	e.From = msg.From
	e.To = []string{msg.To}
	e.Subject = msg.Subject
	e.Text = []byte(msg.Text)

	for _, att := range msg.Attachments {
		if _, err := e.Attach(bytes.NewReader(att.Content), att.Filename, att.ContentType); err != nil {
			return model.NewRunError(model.ErrMailDelivery, err, "attaching %s", att.Filename)
		}
	}

	auth := smtp.PlainAuth("", s.cfg.SMTPUser, s.cfg.SMTPPass, s.cfg.SMTPHost)
	if err := e.Send(s.cfg.Addr(), auth); err != nil {
		return model.NewRunError(model.ErrMailDelivery, err, "sending report mail")
	}
	return nil
}
