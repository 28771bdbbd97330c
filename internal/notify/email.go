// Package notify delivers idle alerts to administrators.
package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"mime"
	"mime/quotedprintable"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/example/worktrack/internal/application"
)

// ErrNoRecipients is returned when no administrator address is configured.
var ErrNoRecipients = errors.New("notify: no recipients configured")

const timeLayout = "Jan 02, 2006 03:04 PM"

// SendFunc delivers a raw message. smtp.SendMail satisfies it.
type SendFunc func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error

// EmailConfig holds SMTP settings and recipient lists.
type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
	CC       []string
	BCC      []string
	// AutoStopMinutes is quoted in warning mails.
	AutoStopMinutes int
	Location        *time.Location
}

// EmailNotifier sends HTML alert mails over SMTP.
type EmailNotifier struct {
	cfg    EmailConfig
	send   SendFunc
	now    func() time.Time
	logger *slog.Logger
}

// NewEmailNotifier builds a notifier. A nil send uses smtp.SendMail.
func NewEmailNotifier(cfg EmailConfig, send SendFunc, now func() time.Time, logger *slog.Logger) (*EmailNotifier, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, fmt.Errorf("notify: smtp host is required")
	}
	if len(cfg.To) == 0 {
		return nil, ErrNoRecipients
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.From == "" {
		cfg.From = cfg.Username
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if send == nil {
		send = smtp.SendMail
	}
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &EmailNotifier{cfg: cfg, send: send, now: now, logger: logger.With("component", "email_notifier")}, nil
}

// SendIdleWarning mails the first idle alert for a session.
func (n *EmailNotifier) SendIdleWarning(ctx context.Context, session application.WorkSession, user application.User, idleMinutes int) error {
	subject := fmt.Sprintf("⚠️ Idle Alert: %s %s - %d Minutes Idle", user.FirstName, user.LastName, idleMinutes)
	view := n.view(session, user, idleMinutes)
	view.Heading = "⚠️ Idle Activity Alert"
	view.Intro = "An employee has been idle for an extended period and requires your attention."
	view.Accent = "#f39c12"
	view.BoxBackground = "#fff3cd"
	return n.deliver(ctx, "idle_warning", subject, idleWarningTemplate, view)
}

// SendAutoStop mails the notice that a session was stopped for inactivity.
func (n *EmailNotifier) SendAutoStop(ctx context.Context, session application.WorkSession, user application.User, idleMinutes int) error {
	subject := fmt.Sprintf("🛑 Session Auto-Stopped: %s %s - %d+ Minutes Idle", user.FirstName, user.LastName, idleMinutes)
	view := n.view(session, user, idleMinutes)
	view.Heading = "🛑 Session Automatically Stopped"
	view.Intro = "A work session has been automatically stopped due to prolonged inactivity."
	view.Accent = "#e74c3c"
	view.BoxBackground = "#f8d7da"
	return n.deliver(ctx, "auto_stop", subject, autoStopTemplate, view)
}

func (n *EmailNotifier) view(session application.WorkSession, user application.User, idleMinutes int) alertView {
	return alertView{
		FirstName:       user.FirstName,
		LastName:        user.LastName,
		JobRole:         user.JobRole,
		UserID:          user.UserID,
		SessionID:       session.ID,
		IdleMinutes:     idleMinutes,
		AutoStopMinutes: n.cfg.AutoStopMinutes,
		Time:            n.now().In(n.cfg.Location).Format(timeLayout),
	}
}

func (n *EmailNotifier) deliver(ctx context.Context, kind, subject string, tmpl *template.Template, view alertView) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var body bytes.Buffer
	if err := tmpl.Execute(&body, view); err != nil {
		return fmt.Errorf("render %s mail: %w", kind, err)
	}

	msg, err := n.message(subject, body.Bytes())
	if err != nil {
		return err
	}

	recipients := make([]string, 0, len(n.cfg.To)+len(n.cfg.CC)+len(n.cfg.BCC))
	recipients = append(recipients, n.cfg.To...)
	recipients = append(recipients, n.cfg.CC...)
	recipients = append(recipients, n.cfg.BCC...)

	var auth smtp.Auth
	if n.cfg.Username != "" {
		auth = smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
	}

	addr := net.JoinHostPort(n.cfg.Host, strconv.Itoa(n.cfg.Port))
	if err := n.send(addr, auth, n.cfg.From, recipients, msg); err != nil {
		return fmt.Errorf("send %s mail: %w", kind, err)
	}

	n.logger.InfoContext(ctx, "alert mail sent",
		"kind", kind,
		"session_id", view.SessionID,
		"user_id", view.UserID,
		"recipients", len(recipients),
	)
	return nil
}

// message assembles headers and a quoted-printable HTML body. Bcc is never
// written to the headers.
func (n *EmailNotifier) message(subject string, html []byte) ([]byte, error) {
	var buf bytes.Buffer
	writeHeader(&buf, "From", n.cfg.From)
	writeHeader(&buf, "To", strings.Join(n.cfg.To, ", "))
	if len(n.cfg.CC) > 0 {
		writeHeader(&buf, "Cc", strings.Join(n.cfg.CC, ", "))
	}
	writeHeader(&buf, "Subject", mime.QEncoding.Encode("utf-8", subject))
	writeHeader(&buf, "Date", n.now().Format(time.RFC1123Z))
	writeHeader(&buf, "MIME-Version", "1.0")
	writeHeader(&buf, "Content-Type", `text/html; charset="UTF-8"`)
	writeHeader(&buf, "Content-Transfer-Encoding", "quoted-printable")
	buf.WriteString("\r\n")

	qp := quotedprintable.NewWriter(&buf)
	if _, err := qp.Write(html); err != nil {
		return nil, fmt.Errorf("encode mail body: %w", err)
	}
	if err := qp.Close(); err != nil {
		return nil, fmt.Errorf("encode mail body: %w", err)
	}
	return buf.Bytes(), nil
}

func writeHeader(buf *bytes.Buffer, name, value string) {
	buf.WriteString(name)
	buf.WriteString(": ")
	buf.WriteString(value)
	buf.WriteString("\r\n")
}

// SplitAddresses parses a comma separated address list, dropping blanks.
func SplitAddresses(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
