package notify

import (
	"context"
	"fmt"
	"html"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gopkg.in/gomail.v2"
)

// Notifier tells account owners about their conversions and balance.
type Notifier interface {
	ConversionCompleted(ctx context.Context, to, displayName string, minutes float64) error
	ConversionFailed(ctx context.Context, to, displayName, reason string) error
	LowCredits(ctx context.Context, to string, balance float64) error
}

// Sender delivers a composed message. *gomail.Dialer implements it.
type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

// Mailer sends notifications over SMTP.
type Mailer struct {
	sender  Sender
	from    string
	limiter *rate.Limiter
	logger  *zap.Logger
}

func NewMailer(sender Sender, from string, logger *zap.Logger) *Mailer {
	return &Mailer{sender: sender, from: from, limiter: rate.NewLimiter(rate.Inf, 1), logger: logger}
}

// NewSMTPMailer dials host:port with the given credentials for every message
// and sends at most perMinute messages a minute.
func NewSMTPMailer(host string, port int, user, password, from string, perMinute int, logger *zap.Logger) *Mailer {
	return NewMailer(gomail.NewDialer(host, port, user, password), from, logger).WithRate(perMinute)
}

// WithRate paces sends to perMinute messages a minute. 0 or less removes the
// cap.
func (m *Mailer) WithRate(perMinute int) *Mailer {
	if perMinute <= 0 {
		m.limiter = rate.NewLimiter(rate.Inf, 1)
		return m
	}
	m.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
	return m
}

func (m *Mailer) ConversionCompleted(ctx context.Context, to, displayName string, minutes float64) error {
	body := fmt.Sprintf("<p>Your transcript <b>%s</b> is ready (%.1f minutes of audio).</p>", html.EscapeString(displayName), minutes)
	return m.send(ctx, to, "Transcript ready: "+displayName, body)
}

func (m *Mailer) ConversionFailed(ctx context.Context, to, displayName, reason string) error {
	body := fmt.Sprintf("<p>The conversion of <b>%s</b> failed:</p><pre>%s</pre><p>Please upload the file again.</p>",
		html.EscapeString(displayName), html.EscapeString(reason))
	return m.send(ctx, to, "Conversion failed: "+displayName, body)
}

func (m *Mailer) LowCredits(ctx context.Context, to string, balance float64) error {
	body := fmt.Sprintf("<p>Your balance is down to %.1f minutes. Contact an administrator to top up.</p>", balance)
	return m.send(ctx, to, "Low credit balance", body)
}

func (m *Mailer) send(ctx context.Context, to, subject, body string) error {
	if err := m.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("mail to %s not sent: %w", to, err)
	}
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", fmt.Sprintf("[Speech-to-PDF] %v", subject))
	msg.SetBody("text/html", body)

	if err := m.sender.DialAndSend(msg); err != nil {
		return fmt.Errorf("failed to send mail to %s: %w", to, err)
	}
	m.logger.Debug("mail sent", zap.String("to", to), zap.String("subject", subject))
	return nil
}

// Nop drops every notification. Used when SMTP is not configured.
type Nop struct{}

func (Nop) ConversionCompleted(context.Context, string, string, float64) error { return nil }
func (Nop) ConversionFailed(context.Context, string, string, string) error     { return nil }
func (Nop) LowCredits(context.Context, string, float64) error                  { return nil }
