package services

import (
	"context"
	"net/smtp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lac-hong-legacy/lms_api/model"
)

type sentMail struct {
	addr string
	from string
	to   []string
	msg  string
}

func newTestEmailService(sent *[]sentMail) *EmailService {
	svc := &EmailService{
		smtpHost:    "smtp.example.com",
		smtpPort:    "587",
		fromEmail:   "security@example.com",
		fromName:    "LMS Security",
		baseURL:     "https://lms.example.com/",
		recipients:  []string{"oncall@example.com", "ops@example.com"},
		minSeverity: model.SeverityHigh,
		sendMail: func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
			*sent = append(*sent, sentMail{addr: addr, from: from, to: to, msg: string(msg)})
			return nil
		},
	}
	return svc
}

func TestEmailService_PublishAlert(t *testing.T) {
	var sent []sentMail
	svc := newTestEmailService(&sent)
	require.NoError(t, svc.Start())

	alert := model.SecurityAlert{
		ID:         "alert-7",
		RuleID:     "data_scraping",
		RuleName:   "Data scraping",
		Identifier: "ip:203.0.113.9",
		Severity:   model.SeverityHigh,
		Message:    "Data scraping triggered for ip:203.0.113.9",
		CreatedAt:  time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, svc.PublishAlert(context.Background(), alert))
	require.Len(t, sent, 1)

	mail := sent[0]
	assert.Equal(t, "smtp.example.com:587", mail.addr)
	assert.Equal(t, "security@example.com", mail.from)
	assert.Equal(t, []string{"oncall@example.com", "ops@example.com"}, mail.to)
	assert.Contains(t, mail.msg, "Subject: [HIGH] Data scraping\r\n")
	assert.Contains(t, mail.msg, "To: oncall@example.com, ops@example.com\r\n")
	assert.Contains(t, mail.msg, "alert-7")
	assert.Contains(t, mail.msg, "https://lms.example.com/api/v1/admin/security/alerts")
}

func TestEmailService_SkipsBelowMinSeverity(t *testing.T) {
	var sent []sentMail
	svc := newTestEmailService(&sent)
	require.NoError(t, svc.Start())

	require.NoError(t, svc.PublishAlert(context.Background(), model.SecurityAlert{ID: "a", Severity: model.SeverityMedium}))
	assert.Empty(t, sent)

	require.NoError(t, svc.PublishAlert(context.Background(), model.SecurityAlert{ID: "b", Severity: model.SeverityCritical}))
	assert.Len(t, sent, 1)
}

func TestEmailService_DisabledIsNoop(t *testing.T) {
	var sent []sentMail
	svc := newTestEmailService(&sent)
	svc.recipients = nil
	require.NoError(t, svc.Start())

	assert.False(t, svc.Enabled())
	assert.NoError(t, svc.PublishAlert(context.Background(), model.SecurityAlert{ID: "a", Severity: model.SeverityCritical}))
	assert.Empty(t, sent)
}
