// internal/service/email/service.go
package email

import (
	"crypto/tls"
	"fmt"
	"net/smtp"

	"subwatch-service/internal/domain/alert"
)

// Sender delivers operator alert emails via SMTP.
type Sender struct {
	smtpHost string
	smtpPort string
	username string
	password string
	fromName string
	secure   bool
}

// NewSender creates a new SMTP sender. secure selects implicit TLS
// (port 465) over STARTTLS (port 587).
func NewSender(host, port, user, pass, fromName string, secure bool) *Sender {
	return &Sender{
		smtpHost: host,
		smtpPort: port,
		username: user,
		password: pass,
		fromName: fromName,
		secure:   secure,
	}
}

// SendAlert formats and delivers a dispatch alert to the operator address.
func (s *Sender) SendAlert(to string, ev alert.Event) error {
	subject := fmt.Sprintf("[subwatch] %s: subscription %s", ev.Severity, ev.SubscriptionID)
	body := fmt.Sprintf(
		`<h2>Reminder dispatch alert</h2>
		<p><b>Severity:</b> %s</p>
		<p><b>Subscription:</b> %s (owner %d)</p>
		<p><b>Attempts:</b> %d</p>
		<p><b>Reason:</b> %s</p>
		<p><b>At:</b> %s</p>`,
		ev.Severity, ev.SubscriptionID, ev.OwnerID, ev.Attempts, ev.Reason,
		ev.OccurredAt.Format("2006-01-02 15:04:05 MST"),
	)
	return s.send(to, subject, body)
}

func (s *Sender) send(to, subject, bodyHTML string) error {
	from := fmt.Sprintf("%s <%s>", s.fromName, s.username)
	msg := []byte(
		fmt.Sprintf("From: %s\r\n", from) +
			fmt.Sprintf("To: %s\r\n", to) +
			fmt.Sprintf("Subject: %s\r\n", subject) +
			"MIME-Version: 1.0\r\n" +
			"Content-Type: text/html; charset=\"utf-8\"\r\n" +
			"\r\n" +
			bodyHTML,
	)

	serverAddr := s.smtpHost + ":" + s.smtpPort

	if s.secure {
		// Port 465, implicit TLS.
		tlsConfig := &tls.Config{ServerName: s.smtpHost}
		conn, err := tls.Dial("tcp", serverAddr, tlsConfig)
		if err != nil {
			return fmt.Errorf("tls dial failed: %w", err)
		}
		defer conn.Close()

		client, err := smtp.NewClient(conn, s.smtpHost)
		if err != nil {
			return fmt.Errorf("smtp client failed: %w", err)
		}
		defer client.Quit()

		auth := smtp.PlainAuth("", s.username, s.password, s.smtpHost)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("auth failed: %w", err)
		}
		return s.sendMail(client, to, msg)
	}

	// Port 587, STARTTLS.
	auth := smtp.PlainAuth("", s.username, s.password, s.smtpHost)
	if err := smtp.SendMail(serverAddr, auth, s.username, []string{to}, msg); err != nil {
		return fmt.Errorf("send mail failed: %w", err)
	}
	return nil
}

func (s *Sender) sendMail(client *smtp.Client, to string, msg []byte) error {
	if err := client.Mail(s.username); err != nil {
		return fmt.Errorf("MAIL FROM failed: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("RCPT TO failed: %w", err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("DATA failed: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("write failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close failed: %w", err)
	}
	return nil
}
