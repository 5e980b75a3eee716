package contact

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"time"

	"gopkg.in/gomail.v2"
)

// Notifier is told about each accepted submission.
type Notifier interface {
	Notify(ctx context.Context, c Contact) error
}

// MailConfig configures MailNotifier.
type MailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
	UseTLS   bool
	Timeout  time.Duration
}

// ErrSend wraps an SMTP delivery failure.
type ErrSend struct {
	Err error
}

func (e ErrSend) Error() string { return fmt.Sprintf("contact notification failed: %v", e.Err) }
func (e ErrSend) Unwrap() error { return e.Err }

// MailNotifier sends one plain-text mail per submission over SMTP.
type MailNotifier struct {
	cfg  MailConfig
	send func(...*gomail.Message) error
}

// NewMailNotifier validates cfg and returns a notifier.
func NewMailNotifier(cfg MailConfig) (*MailNotifier, error) {
	cfg.From = strings.TrimSpace(cfg.From)
	if cfg.Host == "" {
		return nil, errors.New("mail: host is required")
	}
	if cfg.From == "" {
		return nil, errors.New("mail: from is required")
	}
	to := cfg.To[:0:0]
	for _, addr := range cfg.To {
		if addr = strings.TrimSpace(addr); addr != "" {
			to = append(to, addr)
		}
	}
	if len(to) == 0 {
		return nil, errors.New("mail: at least one recipient is required")
	}
	cfg.To = to
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	d.SSL = cfg.UseTLS
	if cfg.UseTLS {
		d.TLSConfig = &tls.Config{ServerName: cfg.Host}
	}
	return &MailNotifier{cfg: cfg, send: d.DialAndSend}, nil
}

// Notify sends the mail, giving up at the earlier of ctx's deadline and the
// configured timeout. The SMTP dial itself cannot be cancelled, so a
// timed-out send finishes in the background.
func (n *MailNotifier) Notify(ctx context.Context, c Contact) error {
	msg := n.message(c)

	done := make(chan error, 1)
	go func() {
		done <- n.send(msg)
	}()

	timer := time.NewTimer(n.cfg.Timeout)
	defer timer.Stop()
	select {
	case err := <-done:
		if err != nil {
			return ErrSend{Err: err}
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return context.DeadlineExceeded
	}
}

func (n *MailNotifier) message(c Contact) *gomail.Message {
	msg := gomail.NewMessage()
	msg.SetHeader("From", n.cfg.From)
	msg.SetHeader("To", n.cfg.To...)
	msg.SetHeader("Reply-To", c.Email)
	msg.SetHeader("Subject", "New contact message from "+strings.Join(strings.Fields(c.Name), " "))
	msg.SetBody("text/plain", fmt.Sprintf("Name: %s\nEmail: %s\nReceived: %s\n\n%s\n",
		c.Name, c.Email, c.CreatedAt.UTC().Format(time.RFC3339), c.Message))
	return msg
}
