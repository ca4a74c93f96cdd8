package notify

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"

	"securekyc/internal/kyc/models"
	"securekyc/pkg/email"
)

// ErrNoRecipient is returned when a notice carries no email address.
var ErrNoRecipient = errors.New("notice has no recipient address")

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailChannel mails the decision to the applicant.
type EmailChannel struct {
	addr     string
	from     string
	auth     smtp.Auth
	sendMail sendMailFunc
}

// EmailConfig is the SMTP relay used by EmailChannel.
type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// NewEmailChannel returns nil when no host is configured.
func NewEmailChannel(cfg EmailConfig) *EmailChannel {
	if cfg.Host == "" {
		return nil
	}
	port := cfg.Port
	if port == 0 {
		port = 587
	}
	c := &EmailChannel{
		addr:     net.JoinHostPort(cfg.Host, strconv.Itoa(port)),
		from:     cfg.From,
		sendMail: smtp.SendMail,
	}
	if cfg.Username != "" {
		c.auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return c
}

func (c *EmailChannel) Name() string { return "email" }

// Send mails notice. net/smtp has no context support, so the send runs in its
// own goroutine and Send returns early when ctx ends.
func (c *EmailChannel) Send(ctx context.Context, notice models.DecisionNotice) error {
	if notice.Email == "" {
		return ErrNoRecipient
	}
	msg := composeMessage(c.from, notice)

	done := make(chan error, 1)
	go func() {
		done <- c.sendMail(c.addr, c.auth, c.from, []string{notice.Email}, msg)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("send mail: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func composeMessage(from string, notice models.DecisionNotice) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", notice.Email)
	fmt.Fprintf(&b, "Subject: KYC verification %s\r\n", notice.Status)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")

	b.WriteString(email.Greeting(notice.Email) + "\r\n\r\n")
	fmt.Fprintf(&b, "Your KYC %s has been processed.\r\n\r\n", operationNoun(notice.Operation))
	fmt.Fprintf(&b, "Status: %s\r\n", notice.Status)
	fmt.Fprintf(&b, "Risk score: %d\r\n", notice.RiskScore)
	fmt.Fprintf(&b, "Attempt: %d of %d\r\n", notice.AttemptNumber, models.MaxAttempts)
	if len(notice.Reasons) > 0 {
		b.WriteString("\r\nReasons:\r\n")
		for _, r := range notice.Reasons {
			b.WriteString("  - " + r + "\r\n")
		}
	}
	if notice.Status == models.StatusRejected && notice.AttemptNumber < models.MaxAttempts {
		b.WriteString("\r\nYou may correct your details and resubmit.\r\n")
	}
	b.WriteString("\r\nSecureKYC\r\n")
	return []byte(b.String())
}

func operationNoun(op models.Operation) string {
	if op == models.OperationResubmit {
		return "resubmission"
	}
	return "submission"
}
