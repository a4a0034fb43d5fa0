package notification

import (
	"bytes"
	"fmt"
	"html/template"
	"net/smtp"
	"time"

	"go.uber.org/zap"

	"github.com/plantops/telemetry-pipeline/internal/protocol"
	"github.com/plantops/telemetry-pipeline/pkg/config"
)

// EmailNotifier sends email notifications for triggered alarms
type EmailNotifier struct {
	config *config.SMTPConfig
	logger *zap.Logger
}

// NewEmailNotifier creates a new email notifier
func NewEmailNotifier(cfg *config.SMTPConfig, logger *zap.Logger) *EmailNotifier {
	return &EmailNotifier{config: cfg, logger: logger}
}

// SendAlarmNotification sends an email for an alarm notification
func (e *EmailNotifier) SendAlarmNotification(notification *protocol.AlarmNotification) error {
	if notification.Type != protocol.NotificationTypeTriggered {
		return fmt.Errorf("unknown notification type: %s", notification.Type)
	}

	subject := fmt.Sprintf("Alarm %s - %s (%s)",
		notification.AlarmCode, notification.DeviceName, notification.PlantName)

	body, err := e.renderTriggeredTemplate(notification)
	if err != nil {
		return fmt.Errorf("failed to render email template: %w", err)
	}

	return e.sendEmail(subject, body)
}

func (e *EmailNotifier) renderTriggeredTemplate(notification *protocol.AlarmNotification) (string, error) {
	tmpl := `
Plant Alarm Triggered
=====================

Device: {{.DeviceName}} ({{.PlantName}})
Alarm: {{.AlarmCode}}
Value: {{.AlarmValue}}
Time: {{.CreatedTimestamp}}

Description:
{{.AlarmDescription}}

Please take appropriate action.

---
Plant Telemetry Notification System
`

	t, err := template.New("triggered").Parse(tmpl)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, notification); err != nil {
		return "", err
	}

	return buf.String(), nil
}

func (e *EmailNotifier) sendEmail(subject, body string) error {
	// Skip sending if SMTP is not configured
	if e.config.Username == "" || e.config.Password == "" {
		e.logger.Info("SMTP not configured, logging notification instead",
			zap.String("subject", subject),
		)
		return nil
	}

	// Construct message
	message := fmt.Sprintf("From: %s\r\n", e.config.From)
	message += fmt.Sprintf("To: %s\r\n", e.config.To)
	message += fmt.Sprintf("Subject: %s\r\n", subject)
	message += fmt.Sprintf("Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	message += "\r\n"
	message += body

	// Setup authentication
	auth := smtp.PlainAuth("", e.config.Username, e.config.Password, e.config.Host)

	// Send email
	addr := fmt.Sprintf("%s:%d", e.config.Host, e.config.Port)
	err := smtp.SendMail(addr, auth, e.config.From, []string{e.config.To}, []byte(message))
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	e.logger.Info("email sent", zap.String("subject", subject))
	return nil
}

// TestConnection tests the SMTP connection
func (e *EmailNotifier) TestConnection() error {
	if e.config.Username == "" {
		return fmt.Errorf("SMTP not configured")
	}

	addr := fmt.Sprintf("%s:%d", e.config.Host, e.config.Port)
	client, err := smtp.Dial(addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer client.Close()

	return nil
}
