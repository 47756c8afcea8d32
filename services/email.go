package services

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/smtp"
	"os"
	"strings"
	"time"

	appContext "github.com/alphabatem/common/context"
	"github.com/lac-hong-legacy/lms_api/model"
	log "github.com/sirupsen/logrus"
)

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailService mails security alerts at or above a minimum severity to the
// on-call recipients. It is a no-op when SMTP_HOST or ALERT_EMAIL_TO is unset.
type EmailService struct {
	appContext.DefaultService

	smtpHost     string
	smtpPort     string
	smtpUsername string
	smtpPassword string
	fromEmail    string
	fromName     string
	baseURL      string

	recipients  []string
	minSeverity model.Severity

	template *template.Template
	sendMail sendMailFunc
}

const EMAIL_SVC = "email_svc"

func (svc EmailService) Id() string {
	return EMAIL_SVC
}

func (svc *EmailService) Configure(ctx *appContext.Context) error {
	svc.smtpHost = os.Getenv("SMTP_HOST")
	svc.smtpPort = os.Getenv("SMTP_PORT")
	svc.smtpUsername = os.Getenv("SMTP_USERNAME")
	svc.smtpPassword = os.Getenv("SMTP_PASSWORD")
	svc.fromEmail = os.Getenv("FROM_EMAIL")
	svc.fromName = os.Getenv("FROM_NAME")
	svc.baseURL = os.Getenv("BASE_URL")
	svc.recipients = splitList(os.Getenv("ALERT_EMAIL_TO"))
	svc.minSeverity = model.Severity(strings.ToLower(os.Getenv("ALERT_EMAIL_MIN_SEVERITY")))

	// Set defaults if not provided
	if svc.smtpPort == "" {
		svc.smtpPort = "587"
	}
	if svc.fromName == "" {
		svc.fromName = "LMS Security"
	}
	if svc.baseURL == "" {
		svc.baseURL = "http://localhost:8000"
	}
	if svc.minSeverity == "" {
		svc.minSeverity = model.SeverityHigh
	}
	if !svc.minSeverity.Valid() {
		return fmt.Errorf("ALERT_EMAIL_MIN_SEVERITY: unknown severity %q", svc.minSeverity)
	}

	return svc.DefaultService.Configure(ctx)
}

func (svc *EmailService) Start() error {
	if err := svc.loadTemplate(); err != nil {
		return err
	}
	if svc.sendMail == nil {
		svc.sendMail = smtp.SendMail
	}

	if !svc.Enabled() {
		log.Info("SMTP or alert recipients not configured, alert emails disabled")
		return nil
	}
	log.WithFields(log.Fields{"recipients": len(svc.recipients), "min_severity": svc.minSeverity}).Info("Alert emails enabled")
	return nil
}

func (svc *EmailService) Enabled() bool {
	return svc.smtpHost != "" && len(svc.recipients) > 0
}

// Email templates
const securityAlertEmailHTML = `
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>[{{.Severity}}] {{.RuleName}}</title>
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { background-color: #DC2626; color: white; padding: 20px; text-align: center; }
        .content { padding: 20px; background-color: #f9f9f9; }
        .details { background-color: white; padding: 15px; border-radius: 5px; margin: 15px 0; }
        .footer { padding: 20px; text-align: center; color: #666; font-size: 12px; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>Security Alert: {{.RuleName}}</h1>
        </div>
        <div class="content">
            <p>{{.Message}}</p>
            <div class="details">
                <strong>Alert ID:</strong> {{.AlertID}}<br>
                <strong>Severity:</strong> {{.Severity}}<br>
                <strong>Identifier:</strong> {{.Identifier}}<br>
                <strong>Raised at:</strong> {{.RaisedAt}}
            </div>
            <p>Review and acknowledge the alert at <a href="{{.AlertsURL}}">{{.AlertsURL}}</a>.</p>
        </div>
        <div class="footer">
            <p>Sent by {{.AppName}}.</p>
        </div>
    </div>
</body>
</html>
`

// Template data structures
type SecurityAlertEmailData struct {
	AppName    string
	AlertID    string
	RuleName   string
	Identifier string
	Severity   string
	Message    string
	RaisedAt   string
	AlertsURL  string
}

func (svc *EmailService) loadTemplate() error {
	tmpl, err := template.New("security_alert").Parse(securityAlertEmailHTML)
	if err != nil {
		return fmt.Errorf("failed to parse security alert email template: %v", err)
	}
	svc.template = tmpl
	return nil
}

// PublishAlert mails the alert when it meets the minimum severity.
func (svc *EmailService) PublishAlert(_ context.Context, alert model.SecurityAlert) error {
	if !svc.Enabled() || alert.Severity.Rank() < svc.minSeverity.Rank() {
		return nil
	}

	data := SecurityAlertEmailData{
		AppName:    svc.fromName,
		AlertID:    alert.ID,
		RuleName:   alert.RuleName,
		Identifier: alert.Identifier,
		Severity:   strings.ToUpper(string(alert.Severity)),
		Message:    alert.Message,
		RaisedAt:   alert.CreatedAt.UTC().Format(time.RFC1123),
		AlertsURL:  strings.TrimRight(svc.baseURL, "/") + "/api/v1/admin/security/alerts",
	}

	subject := fmt.Sprintf("[%s] %s", data.Severity, alert.RuleName)
	return svc.sendTemplateEmail(svc.recipients, subject, data)
}

func (svc *EmailService) sendTemplateEmail(to []string, subject string, data interface{}) error {
	if svc.template == nil {
		return fmt.Errorf("alert email template not loaded")
	}

	var body bytes.Buffer
	err := svc.template.Execute(&body, data)
	if err != nil {
		return fmt.Errorf("failed to execute template: %v", err)
	}

	return svc.sendEmail(to, subject, body.String())
}

// Send email using SMTP
func (svc *EmailService) sendEmail(to []string, subject, body string) error {
	auth := smtp.PlainAuth("", svc.smtpUsername, svc.smtpPassword, svc.smtpHost)

	msg := []byte(fmt.Sprintf(
		"From: %s <%s>\r\n"+
			"To: %s\r\n"+
			"Subject: %s\r\n"+
			"MIME-Version: 1.0\r\n"+
			"Content-Type: text/html; charset=UTF-8\r\n"+
			"\r\n"+
			"%s",
		svc.fromName, svc.fromEmail, strings.Join(to, ", "), subject, body))

	err := svc.sendMail(svc.smtpHost+":"+svc.smtpPort, auth, svc.fromEmail, to, msg)
	if err != nil {
		log.WithError(err).WithFields(log.Fields{"recipients": len(to), "subject": subject}).Error("Failed to send alert email")
		return fmt.Errorf("failed to send email: %v", err)
	}

	log.WithFields(log.Fields{"recipients": len(to), "subject": subject}).Info("Alert email sent")
	return nil
}
