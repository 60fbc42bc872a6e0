package services

import (
	"bytes"
	"fmt"
	"net/smtp"

	"github.com/sirupsen/logrus"
)

// EmailService sends the transactional mails of the activation and email
// change flows over SMTP. Without SMTP credentials it logs instead of
// sending, so local development needs no mail server.
type EmailService struct {
	smtpHost     string
	smtpPort     int
	smtpUsername string
	smtpPassword string
	fromEmail    string
	fromName     string
	logger       *logrus.Logger
}

// NewEmailService creates a new email service
func NewEmailService(host string, port int, username, password, fromEmail, fromName string, logger *logrus.Logger) *EmailService {
	return &EmailService{
		smtpHost:     host,
		smtpPort:     port,
		smtpUsername: username,
		smtpPassword: password,
		fromEmail:    fromEmail,
		fromName:     fromName,
		logger:       logger,
	}
}

// EmailTemplate represents an email template
type EmailTemplate struct {
	Subject string
	HTML    string
	Text    string
}

// SendVerificationCode mails the 6-digit verification code used by the
// token activation flow and the admin email change.
func (es *EmailService) SendVerificationCode(to, name, code string) error {
	template := EmailTemplate{
		Subject: "Il tuo codice di verifica",
		HTML: fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .code { font-size: 32px; letter-spacing: 8px; text-align: center; padding: 20px; background: #f8f9fa; border-radius: 8px; }
        .footer { text-align: center; margin-top: 30px; color: #666; font-size: 14px; }
    </style>
</head>
<body>
    <div class="container">
        <h2>Ciao %s,</h2>
        <p>Il tuo codice di verifica è:</p>
        <div class="code">%s</div>
        <p>Il codice scade tra 10 minuti. Se non hai richiesto questo codice puoi ignorare questa email.</p>
        <div class="footer">
            <p>Questa è una comunicazione automatica, non rispondere a questa email.</p>
        </div>
    </div>
</body>
</html>`, name, code),
		Text: fmt.Sprintf(`
Ciao %s,

Il tuo codice di verifica è: %s

Il codice scade tra 10 minuti. Se non hai richiesto questo codice puoi ignorare questa email.
`, name, code),
	}

	return es.sendEmail(to, template)
}

// SendActivationCode mails the 6-digit code of the manual activation flow.
func (es *EmailService) SendActivationCode(to, name, code string) error {
	template := EmailTemplate{
		Subject: "Codice di attivazione account",
		HTML: fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .code { font-size: 32px; letter-spacing: 8px; text-align: center; padding: 20px; background: #f8f9fa; border-radius: 8px; }
        .footer { text-align: center; margin-top: 30px; color: #666; font-size: 14px; }
    </style>
</head>
<body>
    <div class="container">
        <h2>Ciao %s,</h2>
        <p>Usa questo codice per attivare il tuo account nel portale clienti:</p>
        <div class="code">%s</div>
        <p>Il codice scade tra 15 minuti.</p>
        <div class="footer">
            <p>Questa è una comunicazione automatica, non rispondere a questa email.</p>
        </div>
    </div>
</body>
</html>`, name, code),
		Text: fmt.Sprintf(`
Ciao %s,

Usa questo codice per attivare il tuo account nel portale clienti: %s

Il codice scade tra 15 minuti.
`, name, code),
	}

	return es.sendEmail(to, template)
}

// sendEmail sends an email using SMTP
func (es *EmailService) sendEmail(to string, emailTemplate EmailTemplate) error {
	// Skip sending if SMTP not configured (for development)
	if es.smtpUsername == "" || es.smtpPassword == "" {
		es.logger.WithFields(logrus.Fields{
			"to":      maskEmail(to),
			"subject": emailTemplate.Subject,
		}).Info("SMTP not configured, email not sent")
		return nil
	}

	auth := smtp.PlainAuth("", es.smtpUsername, es.smtpPassword, es.smtpHost)
	from := fmt.Sprintf("%s <%s>", es.fromName, es.fromEmail)

	boundary := "boundary-crm-auth"

	var emailBody bytes.Buffer
	emailBody.WriteString(fmt.Sprintf("From: %s\n", from))
	emailBody.WriteString(fmt.Sprintf("To: %s\n", to))
	emailBody.WriteString(fmt.Sprintf("Subject: %s\n", emailTemplate.Subject))
	emailBody.WriteString("MIME-Version: 1.0\n")
	emailBody.WriteString(fmt.Sprintf("Content-Type: multipart/alternative; boundary=\"%s\"\n\n", boundary))

	emailBody.WriteString(fmt.Sprintf("--%s\n", boundary))
	emailBody.WriteString("Content-Type: text/plain; charset=\"utf-8\"\n\n")
	emailBody.WriteString(emailTemplate.Text)
	emailBody.WriteString("\n\n")

	emailBody.WriteString(fmt.Sprintf("--%s\n", boundary))
	emailBody.WriteString("Content-Type: text/html; charset=\"utf-8\"\n\n")
	emailBody.WriteString(emailTemplate.HTML)
	emailBody.WriteString("\n\n")

	emailBody.WriteString(fmt.Sprintf("--%s--", boundary))

	addr := fmt.Sprintf("%s:%d", es.smtpHost, es.smtpPort)
	if err := smtp.SendMail(addr, auth, es.fromEmail, []string{to}, emailBody.Bytes()); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	return nil
}
