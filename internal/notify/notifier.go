// Package notify formats the validation digest of a run and emails it over
// an implicit-TLS SMTP session.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"adrollup/pkg/contracts/domain"
)

// Subject is the subject line of every digest.
const Subject = "Data Validation Report"

// TimestampLayout formats the digest timestamp.
const TimestampLayout = "2006-01-02 15:04:05"

var (
	// ErrNotConfigured is returned before any connection attempt when the
	// sender, password or receiver is missing.
	ErrNotConfigured = errors.New("email notification is not configured")
	// ErrTransport wraps connection, authentication and delivery failures.
	ErrTransport = errors.New("email delivery failed")
)

// Config holds the SMTP account the digest is sent from.
type Config struct {
	Sender   string `validate:"required"`
	Password string `validate:"required"`
	Receiver string `validate:"required"`
	Host     string `validate:"required,hostname_rfc1123|ip"`
	Port     int    `validate:"min=1,max=65535"`
}

// Message is one outgoing email.
type Message struct {
	From    string
	To      string
	Subject string
	Body    string
}

// Mailer delivers a message using the account in cfg.
type Mailer interface {
	Send(ctx context.Context, cfg Config, msg Message) error
}

// Notifier sends the validation digest of a run.
type Notifier struct {
	cfg      Config
	mailer   Mailer
	validate *validator.Validate
	now      func() time.Time
	logger   *slog.Logger
}

// Option customises a Notifier.
type Option func(*Notifier)

// WithClock overrides the digest timestamp source.
func WithClock(now func() time.Time) Option {
	return func(n *Notifier) { n.now = now }
}

// New creates a notifier. mailer defaults to the go-mail SMTP mailer.
func New(cfg Config, mailer Mailer, logger *slog.Logger, opts ...Option) *Notifier {
	if mailer == nil {
		mailer = NewSMTPMailer()
	}
	if logger == nil {
		logger = slog.Default()
	}
	n := &Notifier{
		cfg:      cfg,
		mailer:   mailer,
		validate: validator.New(),
		now:      time.Now,
		logger:   logger.With(slog.String("component", "notifier")),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Configured reports whether the account settings are complete.
func (n *Notifier) Configured() bool {
	return n.validate.Struct(n.cfg) == nil
}

// Notify emails the digest of both summaries. It makes a single attempt.
func (n *Notifier) Notify(ctx context.Context, events, properties domain.Summary) error {
	if err := n.validate.Struct(n.cfg); err != nil {
		n.logger.Warn("email notification skipped", slog.String("error", err.Error()))
		return fmt.Errorf("%w: %v", ErrNotConfigured, err)
	}

	msg := Message{
		From:    n.cfg.Sender,
		To:      n.cfg.Receiver,
		Subject: Subject,
		Body:    Digest(n.now(), events, properties),
	}
	if err := n.mailer.Send(ctx, n.cfg, msg); err != nil {
		n.logger.Error("email notification failed",
			slog.String("host", n.cfg.Host),
			slog.String("error", err.Error()))
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}

	n.logger.Info("email notification sent", slog.String("receiver", n.cfg.Receiver))
	return nil
}

// Digest renders the plain-text body of the validation email.
func Digest(ts time.Time, events, properties domain.Summary) string {
	var b strings.Builder
	b.WriteString("Data Validation Report\n")
	fmt.Fprintf(&b, "Timestamp: %s\n\n", ts.Format(TimestampLayout))
	b.WriteString("Summary:\n\n")
	writeSection(&b, "Event Summary", "Total Events", events)
	b.WriteString("\n")
	writeSection(&b, "Property Summary", "Total Properties", properties)
	b.WriteString("\nThis is an automated message confirming that the data has been validated.\n")
	return b.String()
}

func writeSection(b *strings.Builder, title, countLabel string, s domain.Summary) {
	fmt.Fprintf(b, "%s:\n", title)
	fmt.Fprintf(b, "%s: %d\n", countLabel, s.Len())
	fmt.Fprintf(b, "Total Impressions (Millions): %.2f\n", s.TotalImpressionsMillions())
	fmt.Fprintf(b, "Total Rate (Crores): %.2f\n", s.TotalRateCrores())
}
