package notification

import (
	"fmt"
	"log"
	"net/smtp"
	"os"

	"github.com/clinova/backend/internal/models"
)

// EmailService handles sending affiliate-facing emails. Recipients are
// affiliates, never patients; nothing patient-related may appear in a
// message body.
type EmailService struct {
	smtpHost     string
	smtpPort     string
	smtpUsername string
	smtpPassword string
	fromEmail    string
}

// NewEmailService creates a new email service
func NewEmailService() *EmailService {
	return &EmailService{
		smtpHost:     os.Getenv("SMTP_HOST"),
		smtpPort:     os.Getenv("SMTP_PORT"),
		smtpUsername: os.Getenv("SMTP_USERNAME"),
		smtpPassword: os.Getenv("SMTP_PASSWORD"),
		fromEmail:    os.Getenv("FROM_EMAIL"),
	}
}

// SendWelcomeEmail sends a new affiliate their referral code
func (s *EmailService) SendWelcomeEmail(aff *models.Affiliate) error {
	subject := "Welcome to the Clinova Partner Program"

	body := fmt.Sprintf(`
	<!DOCTYPE html>
	<html>
	<body>
		<div style="max-width: 600px; margin: 0 auto; padding: 20px; font-family: Arial, sans-serif;">
			<h2>Hello %s,</h2>
			<p>Your partner account is ready. Your referral code is:</p>
			<p style="font-size: 24px; font-weight: bold;">%s</p>
			<p>Share it with prospective patients; conversions attributed to
			your code earn commission under your clinic's current plan.</p>
			<p>Best regards,<br>The Clinova Team</p>
		</div>
	</body>
	</html>
	`, aff.Name, aff.RefCode)

	return s.sendEmail(aff.Email, subject, body)
}

// SendCommissionReversedEmail notifies an affiliate that a commission
// was clawed back after a refund
func (s *EmailService) SendCommissionReversedEmail(aff *models.Affiliate, amountCents int64, reason string) error {
	subject := "A commission on your account was reversed"

	body := fmt.Sprintf(`
	<!DOCTYPE html>
	<html>
	<body>
		<div style="max-width: 600px; margin: 0 auto; padding: 20px; font-family: Arial, sans-serif;">
			<h2>Hello %s,</h2>
			<p>A commission of $%.2f was reversed following a refund.</p>
			<p>Reason: %s</p>
			<p>Your upcoming payout will reflect this adjustment.</p>
			<p>Best regards,<br>The Clinova Team</p>
		</div>
	</body>
	</html>
	`, aff.Name, float64(amountCents)/100, reason)

	return s.sendEmail(aff.Email, subject, body)
}

// sendEmail sends an email with the given parameters
func (s *EmailService) sendEmail(toEmail, subject, body string) error {
	if s.smtpHost == "" {
		log.Printf("SMTP not configured, skipping email to %s", toEmail)
		return nil
	}

	auth := smtp.PlainAuth("", s.smtpUsername, s.smtpPassword, s.smtpHost)

	mime := "MIME-version: 1.0;\nContent-Type: text/html; charset=\"UTF-8\";\n\n"
	msg := []byte(fmt.Sprintf("From: %s\nTo: %s\nSubject: %s\n%s%s", s.fromEmail, toEmail, subject, mime, body))

	addr := fmt.Sprintf("%s:%s", s.smtpHost, s.smtpPort)
	if err := smtp.SendMail(addr, auth, s.fromEmail, []string{toEmail}, msg); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	return nil
}
