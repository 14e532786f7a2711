// Package mail renders and sends the transactional emails of the auth flows.
package mail

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"net/smtp"
	"strings"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

type Message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

// Sender delivers a rendered message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type SMTPSender struct {
	cfg SMTPConfig
}

func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg}
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	var body strings.Builder
	fmt.Fprintf(&body, "From: %s\r\n", s.cfg.From)
	fmt.Fprintf(&body, "To: %s\r\n", headerValue(msg.To))
	fmt.Fprintf(&body, "Subject: %s\r\n", headerValue(msg.Subject))
	body.WriteString("MIME-Version: 1.0\r\n")
	body.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n\r\n")
	body.WriteString(msg.HTML)

	if err := smtp.SendMail(addr, auth, s.cfg.From, []string{msg.To}, []byte(body.String())); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}

func headerValue(s string) string {
	return strings.NewReplacer("\r", "", "\n", "").Replace(s)
}

// LogSender only logs. Used when no SMTP server is configured.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, msg Message) error {
	s.logger.Info("email not sent, no smtp server configured", "to", msg.To, "subject", msg.Subject)
	return nil
}

// Composer builds messages with links pointing at baseURL.
type Composer struct {
	baseURL string
	appName string
}

func NewComposer(baseURL, appName string) *Composer {
	return &Composer{baseURL: strings.TrimRight(baseURL, "/"), appName: appName}
}

func (c *Composer) VerifyEmail(to, name, token string) (Message, error) {
	return c.render("verify_email.html", to, "Verify your email address", map[string]interface{}{
		"AppName": c.appName,
		"Name":    name,
		"Link":    c.baseURL + "/verify-email?token=" + token,
	})
}

func (c *Composer) ResetPassword(to, name, token string) (Message, error) {
	return c.render("reset_password.html", to, "Reset your password", map[string]interface{}{
		"AppName": c.appName,
		"Name":    name,
		"Link":    c.baseURL + "/reset-password?token=" + token,
	})
}

func (c *Composer) Invitation(to, inviterName, orgName, role, invitationID string) (Message, error) {
	return c.render("invitation.html", to, fmt.Sprintf("You're invited to join %s", orgName), map[string]interface{}{
		"AppName":     c.appName,
		"InviterName": inviterName,
		"OrgName":     orgName,
		"Role":        role,
		"Link":        c.baseURL + "/accept-invitation/" + invitationID,
	})
}

func (c *Composer) render(name, to, subject string, data map[string]interface{}) (Message, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return Message{}, fmt.Errorf("render %s: %w", name, err)
	}
	return Message{To: to, Subject: subject, HTML: buf.String()}, nil
}
