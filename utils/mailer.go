package utils

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"heartwise/config"

	"gopkg.in/gomail.v2"
)

type EmailData struct {
	Subject   string
	To        []string
	Template  string
	Data      interface{}
	Year      int
	FromName  string
	FromEmail string
}

// Embedded operational email templates (admin notifications, not the drip
// sequence content — that lives in the database)
var emailTemplates = map[string]string{
	"queue_alert": `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>{{.Subject}}</title>
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { color: #2c3e50; border-bottom: 1px solid #eee; padding-bottom: 10px; }
        .content { margin: 20px 0; }
        .count { font-size: 24px; font-weight: bold; color: #e74c3c; margin: 20px 0; text-align: center; }
        .footer { margin-top: 30px; font-size: 12px; color: #7f8c8d; text-align: center; }
    </style>
</head>
<body>
    <div class="header">
        <h2>Email Queue Alert</h2>
    </div>

    <div class="content">
        <p>Hello,</p>
        <p>The last queue processing pass reported failures:</p>

        <div class="count">{{.FailedCount}} failed</div>

        <p>Check the send history in the admin dashboard and re-trigger processing once the provider issue is resolved.</p>
    </div>

    <div class="footer">
        <p>© {{.Year}} HeartWise. All rights reserved.</p>
    </div>
</body>
</html>`,
}

// SendAdminEmail delivers an operational notification through the
// app-level SMTP settings, independent of the configured ESP adapters
func SendAdminEmail(data EmailData) error {
	if data.FromEmail == "" {
		data.FromEmail = config.AppConfig.SMTP.FromEmail
	}
	if data.FromName == "" {
		data.FromName = config.AppConfig.SMTP.FromName
	}
	if data.Year == 0 {
		data.Year = time.Now().Year()
	}

	tmplContent, ok := emailTemplates[data.Template]
	if !ok {
		return fmt.Errorf("template '%s' not found", data.Template)
	}

	tmpl, err := template.New("email").Parse(tmplContent)
	if err != nil {
		return fmt.Errorf("error parsing template: %v", err)
	}

	var body bytes.Buffer
	if err := tmpl.Execute(&body, data.Data); err != nil {
		return fmt.Errorf("error executing template: %v", err)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", fmt.Sprintf("%s <%s>", data.FromName, data.FromEmail))
	m.SetHeader("To", data.To...)
	m.SetHeader("Subject", data.Subject)
	m.SetBody("text/html", body.String())

	d := gomail.NewDialer(
		config.AppConfig.SMTP.Host,
		config.AppConfig.SMTP.Port,
		config.AppConfig.SMTP.Username,
		config.AppConfig.SMTP.Password,
	)

	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("error sending email: %v", err)
	}
	return nil
}

// SendQueueAlertEmail notifies the admin address about failed queue sends
func SendQueueAlertEmail(to string, failedCount int) error {
	data := EmailData{
		Subject:  "HeartWise: email queue failures",
		To:       []string{to},
		Template: "queue_alert",
		Data: struct {
			Subject     string
			FailedCount int
			Year        int
		}{
			Subject:     "HeartWise: email queue failures",
			FailedCount: failedCount,
			Year:        time.Now().Year(),
		},
	}
	return SendAdminEmail(data)
}
