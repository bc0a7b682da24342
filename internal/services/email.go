package services

import (
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

type EmailService struct {
	host    string
	port    string
	user    string
	pass    string
	from    string
	devMode bool
	logger  logrus.FieldLogger
}

func NewEmailService(host, port, user, pass, from string, logger logrus.FieldLogger) *EmailService {
	devMode := host == "" || user == ""
	if devMode {
		logger.Warn("email service running in dev mode, messages are logged instead of sent")
	}
	return &EmailService{
		host:    host,
		port:    port,
		user:    user,
		pass:    pass,
		from:    from,
		devMode: devMode,
		logger:  logger,
	}
}

// SendOTPEmail sends the account verification code.
func (s *EmailService) SendOTPEmail(to, firstName, code string, ttl time.Duration) error {
	if firstName == "" {
		firstName = "there"
	}

	subject := "Your GenStudio verification code"
	body := fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"></head>
<body style="font-family: 'Segoe UI', Arial, sans-serif; margin: 0; padding: 0; background-color: #f8fafc;">
  <div style="max-width: 480px; margin: 40px auto; background: white; border-radius: 12px; overflow: hidden;">
    <div style="background: #0f766e; padding: 32px; text-align: center;">
      <h1 style="color: white; margin: 0; font-size: 24px;">GenStudio</h1>
    </div>
    <div style="padding: 32px;">
      <p style="color: #334155; font-size: 14px;">Hi %s,</p>
      <p style="color: #64748b; font-size: 14px; line-height: 1.6;">Enter this code in the app to activate your account:</p>
      <p style="font-size: 32px; letter-spacing: 8px; font-weight: 700; color: #0f172a; text-align: center;">%s</p>
      <p style="color: #94a3b8; font-size: 12px;">This code expires in %d minutes.</p>
    </div>
  </div>
</body>
</html>`, firstName, code, int(ttl.Minutes()))

	if s.devMode {
		s.logger.WithFields(logrus.Fields{"to": to, "code": code}).Info("dev email: verification code")
		return nil
	}
	return s.sendHTML(to, subject, body)
}

func (s *EmailService) sendHTML(to, subject, htmlBody string) error {
	headers := []string{
		fmt.Sprintf("From: %s", s.from),
		fmt.Sprintf("To: %s", to),
		fmt.Sprintf("Subject: %s", subject),
		"MIME-Version: 1.0",
		"Content-Type: text/html; charset=UTF-8",
	}

	message := strings.Join(headers, "\r\n") + "\r\n\r\n" + htmlBody

	auth := smtp.PlainAuth("", s.user, s.pass, s.host)
	addr := fmt.Sprintf("%s:%s", s.host, s.port)

	if err := smtp.SendMail(addr, auth, s.from, []string{to}, []byte(message)); err != nil {
		return fmt.Errorf("failed to send email to %s: %w", to, err)
	}

	s.logger.WithFields(logrus.Fields{"to": to, "subject": subject}).Info("email sent")
	return nil
}
