package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/vastulab/vastu-backend/internal/domain/notify"
)

// Mailer implements the notification sink over plain SMTP. Delivery is
// best-effort by contract: callers log failures and move on.
type Mailer struct {
	Addr     string // host:port
	From     string
	Username string
	Password string
	Host     string
}

func NewMailer(host string, port int, from, username, password string) *Mailer {
	return &Mailer{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		From:     from,
		Username: username,
		Password: password,
		Host:     host,
	}
}

var templates = map[string]string{
	"welcome":            "Welcome to VastuLab, {{name}}! Your account is ready.",
	"analysis-completed": "Your analysis \"{{title}}\" finished with a vastu score of {{score}}.",
}

func (m *Mailer) Send(ctx context.Context, msg notify.Message) error {
	body, ok := templates[msg.Template]
	if !ok {
		return fmt.Errorf("unknown template %q", msg.Template)
	}
	for k, v := range msg.Data {
		body = strings.ReplaceAll(body, "{{"+k+"}}", fmt.Sprint(v))
	}

	raw := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: VastuLab %s\r\n\r\n%s\r\n",
		m.From, msg.Recipient, msg.Template, body)

	var auth smtp.Auth
	if m.Username != "" {
		auth = smtp.PlainAuth("", m.Username, m.Password, m.Host)
	}

	done := make(chan error, 1)
	go func() {
		done <- smtp.SendMail(m.Addr, auth, m.From, []string{msg.Recipient}, []byte(raw))
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
