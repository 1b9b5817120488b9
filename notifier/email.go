// Package notifier delivers novel listings to the operator.
package notifier

import (
	"context"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/wneessen/go-mail"

	"walla-bot/config"
	"walla-bot/models"
	"walla-bot/utils"
)

const senderName = "Walla-Bot"

// NotifyError reports a failed notification.
type NotifyError struct {
	Recipient string
	Err       error
}

func (e *NotifyError) Error() string {
	return fmt.Sprintf("notify %s: %v", e.Recipient, e.Err)
}

func (e *NotifyError) Unwrap() error { return e.Err }

// sender is the part of *mail.Client the notifier uses.
type sender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// EmailNotifier sends one HTML e-mail per run over SMTP.
type EmailNotifier struct {
	creds  config.Credentials
	client sender
	logger *utils.Logger
	now    func() time.Time
}

// NewEmailNotifier builds an SMTP client requiring STARTTLS and PLAIN auth.
func NewEmailNotifier(cfg *config.Config, logger *utils.Logger) (*EmailNotifier, error) {
	client, err := mail.NewClient(cfg.SMTPHost,
		mail.WithPort(cfg.SMTPPort),
		mail.WithTLSPolicy(mail.TLSMandatory),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(cfg.Credentials.SenderEmail),
		mail.WithPassword(cfg.Credentials.AppPassword),
		mail.WithTimeout(30*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("notifier: smtp client: %w", err)
	}
	return &EmailNotifier{creds: cfg.Credentials, client: client, logger: logger, now: time.Now}, nil
}

// Notify sends listings with the given files attached. Paths that do not
// exist are skipped. An empty listing set sends nothing.
func (n *EmailNotifier) Notify(ctx context.Context, listings []*models.Listing, attachments []string) error {
	if len(listings) == 0 {
		return nil
	}

	msg, err := n.message(listings, attachments)
	if err != nil {
		return &NotifyError{Recipient: n.creds.RecipientEmail, Err: err}
	}

	n.logger.Info("[notifier] Sending email with %d new ad(s) to %s", len(listings), n.creds.RecipientEmail)
	if err := n.client.DialAndSendWithContext(ctx, msg); err != nil {
		return &NotifyError{Recipient: n.creds.RecipientEmail, Err: err}
	}
	n.logger.Info("[notifier] Email sent successfully")
	return nil
}

func (n *EmailNotifier) message(listings []*models.Listing, attachments []string) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.FromFormat(senderName, n.creds.SenderEmail); err != nil {
		return nil, fmt.Errorf("from: %w", err)
	}
	if err := m.To(n.creds.RecipientEmail); err != nil {
		return nil, fmt.Errorf("to: %w", err)
	}
	m.Subject(Subject(n.now(), listings))
	m.SetBodyString(mail.TypeTextHTML, Body(listings))

	for _, path := range attachments {
		if _, err := os.Stat(path); err != nil {
			n.logger.Warn("[notifier] Attachment %s not available: %v", path, err)
			continue
		}
		m.AttachFile(path, mail.WithFileName(filepath.Base(path)))
		n.logger.Info("[notifier] Attached %s", path)
	}
	return m, nil
}

// Subject formats the alert subject line.
func Subject(at time.Time, listings []*models.Listing) string {
	titles := make([]string, len(listings))
	for i, l := range listings {
		titles[i] = l.Title
	}
	return fmt.Sprintf("Wallapop Alert: %s - %d new ad(s) for '%s'",
		at.Format("2006-01-02 15:04"), len(listings), strings.Join(titles, ", "))
}

// Body renders the HTML body, one block per listing.
func Body(listings []*models.Listing) string {
	var b strings.Builder
	b.WriteString("<h1>New deals found</h1>")
	for _, l := range listings {
		fmt.Fprintf(&b,
			"<div style='border: 1px solid #ddd; padding: 15px; margin-bottom: 15px; border-radius: 8px;'>"+
				"<a href='%s'><h3>%s</h3></a><p><strong>Price: %s€</strong></p></div>",
			html.EscapeString(l.Link), html.EscapeString(l.Title), formatPrice(l.Price))
	}
	return b.String()
}

func formatPrice(p float64) string {
	if p == float64(int64(p)) {
		return fmt.Sprintf("%d", int64(p))
	}
	return fmt.Sprintf("%.2f", p)
}
