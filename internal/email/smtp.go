// Package email delivers finished reports over the tenant's own SMTP server.
package email

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"time"

	gomail "github.com/wneessen/go-mail"

	"reportflow_backend/platform/config"
)

// Attachment is a file included with an outgoing email.
type Attachment struct {
	FileName string
	Content  []byte
}

// SMTPSender delivers report emails via a direct SMTP connection using go-mail.
type SMTPSender struct {
	host      string
	port      int
	username  string
	password  string
	fromName  string
	fromEmail string
}

// NewSMTPSender creates a sender from the SMTP configuration.
func NewSMTPSender(cfg config.SMTPConfig) *SMTPSender {
	return &SMTPSender{
		host:      cfg.GetSMTPHost(),
		port:      cfg.GetSMTPPort(),
		username:  cfg.GetSMTPUsername(),
		password:  cfg.GetSMTPPassword(),
		fromName:  cfg.GetEmailFromName(),
		fromEmail: cfg.GetEmailFromAddress(),
	}
}

func (s *SMTPSender) send(ctx context.Context, toEmail, subject, htmlContent string, attachments ...Attachment) error {
	msg := gomail.NewMsg()
	if err := msg.FromFormat(s.fromName, s.fromEmail); err != nil {
		return fmt.Errorf("smtp from: %w", err)
	}
	if err := msg.To(toEmail); err != nil {
		return fmt.Errorf("smtp to: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextHTML, htmlContent)

	for _, att := range attachments {
		msg.AttachReader(att.FileName, bytes.NewReader(att.Content))
	}

	client, err := gomail.NewClient(s.host,
		gomail.WithPort(s.port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(s.username),
		gomail.WithPassword(s.password),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(15*time.Second),
		gomail.WithDialContextFunc(func(dctx context.Context, _ string, addr string) (net.Conn, error) {
			return (&net.Dialer{}).DialContext(dctx, "tcp4", addr)
		}),
	)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}

	return nil
}

// SendReportEmail delivers a finished report to the lead, with the rendered
// PDF attached and an optional public share link.
func (s *SMTPSender) SendReportEmail(ctx context.Context, toEmail, leadName, companyName, reportTitle, shareURL string, pdf []byte) error {
	subject := fmt.Sprintf(subjectReportFmt, reportTitle)
	content, err := renderEmailTemplate("report_delivery.html", reportDeliveryEmailData{
		baseEmailData: baseEmailData{
			Title:    reportTitle,
			Heading:  reportTitle,
			CTALabel: "View your report online",
			CTAURL:   shareURL,
		},
		LeadName:    leadName,
		CompanyName: companyName,
		HasPDF:      len(pdf) > 0,
	})
	if err != nil {
		return err
	}

	var attachments []Attachment
	if len(pdf) > 0 {
		attachments = append(attachments, Attachment{FileName: "report.pdf", Content: pdf})
	}
	return s.send(ctx, toEmail, subject, content, attachments...)
}
