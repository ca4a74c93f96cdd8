package notify

import (
	"context"
	"errors"
	"net/smtp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"securekyc/internal/kyc/models"
)

type capturedMail struct {
	addr string
	auth smtp.Auth
	from string
	to   []string
	msg  string
}

func rejectedNotice() models.DecisionNotice {
	return models.DecisionNotice{
		Email:         "asha.rao@example.com",
		Operation:     models.OperationSubmit,
		Status:        models.StatusRejected,
		RiskScore:     80,
		Reasons:       []string{"Invalid name - too short", "Invalid name - contains numbers or symbols"},
		AttemptNumber: 1,
	}
}

func TestNewEmailChannel(t *testing.T) {
	assert.Nil(t, NewEmailChannel(EmailConfig{}))

	c := NewEmailChannel(EmailConfig{Host: "smtp.example.com", From: "kyc@example.com"})
	require.NotNil(t, c)
	assert.Equal(t, "smtp.example.com:587", c.addr)
	assert.Nil(t, c.auth)

	c = NewEmailChannel(EmailConfig{Host: "smtp.example.com", Port: 2525, Username: "u", Password: "p"})
	assert.Equal(t, "smtp.example.com:2525", c.addr)
	assert.NotNil(t, c.auth)
}

func TestEmailChannel_Send(t *testing.T) {
	var got capturedMail
	c := NewEmailChannel(EmailConfig{Host: "smtp.example.com", From: "kyc@example.com"})
	c.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		got = capturedMail{addr: addr, auth: a, from: from, to: to, msg: string(msg)}
		return nil
	}

	require.NoError(t, c.Send(context.Background(), rejectedNotice()))

	assert.Equal(t, "smtp.example.com:587", got.addr)
	assert.Equal(t, "kyc@example.com", got.from)
	assert.Equal(t, []string{"asha.rao@example.com"}, got.to)
	assert.Contains(t, got.msg, "Subject: KYC verification REJECTED\r\n")
	assert.Contains(t, got.msg, "Hello Asha,")
	assert.Contains(t, got.msg, "Risk score: 80")
	assert.Contains(t, got.msg, "Attempt: 1 of 3")
	assert.Contains(t, got.msg, "  - Invalid name - too short\r\n")
	assert.Contains(t, got.msg, "You may correct your details and resubmit.")
}

func TestEmailChannel_FinalAttemptHasNoResubmitHint(t *testing.T) {
	notice := rejectedNotice()
	notice.AttemptNumber = models.MaxAttempts
	notice.Operation = models.OperationResubmit

	msg := string(composeMessage("kyc@example.com", notice))
	assert.Contains(t, msg, "Your KYC resubmission has been processed.")
	assert.NotContains(t, msg, "resubmit.")
}

func TestEmailChannel_Errors(t *testing.T) {
	c := NewEmailChannel(EmailConfig{Host: "smtp.example.com"})

	t.Run("missing recipient", func(t *testing.T) {
		notice := rejectedNotice()
		notice.Email = ""
		assert.ErrorIs(t, c.Send(context.Background(), notice), ErrNoRecipient)
	})

	t.Run("relay failure is wrapped", func(t *testing.T) {
		boom := errors.New("550 mailbox unavailable")
		c.sendMail = func(string, smtp.Auth, string, []string, []byte) error { return boom }
		err := c.Send(context.Background(), rejectedNotice())
		assert.ErrorIs(t, err, boom)
	})

	t.Run("slow relay returns when context ends", func(t *testing.T) {
		release := make(chan struct{})
		defer close(release)
		c.sendMail = func(string, smtp.Auth, string, []string, []byte) error {
			<-release
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		assert.ErrorIs(t, c.Send(ctx, rejectedNotice()), context.DeadlineExceeded)
	})
}
