// Package notify delivers outgoing email through a pluggable backend.
package notify

import (
	"context"
	"errors"
	"net/mail"

	"go.uber.org/zap"

	"github.com/noah-isme/batch-admin-api/pkg/config"
)

// ErrNoRecipients is returned for messages without any To address.
var ErrNoRecipients = errors.New("notify: message has no recipients")

// Message is one outgoing email.
type Message struct {
	To      []mail.Address
	Subject string
	Text    string
	HTML    string
}

// Sender delivers messages.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Recipients parses plain addresses, skipping blanks and invalid ones.
func Recipients(addresses ...string) []mail.Address {
	out := make([]mail.Address, 0, len(addresses))
	for _, raw := range addresses {
		if raw == "" {
			continue
		}
		addr, err := mail.ParseAddress(raw)
		if err != nil {
			continue
		}
		out = append(out, *addr)
	}
	return out
}

// FromConfig selects the backend named by cfg.Provider. SendGrid without an API key falls back to the log backend.
func FromConfig(cfg config.NotificationConfig, logger *zap.Logger) Sender {
	if cfg.Provider == config.EmailProviderSendgrid && cfg.SendgridAPIKey != "" {
		return NewSendgridSender(SendgridConfig{
			APIKey:        cfg.SendgridAPIKey,
			FromName:      cfg.FromName,
			FromAddress:   cfg.FromAddress,
			SubjectPrefix: cfg.SubjectPrefix,
		})
	}
	if cfg.Provider == config.EmailProviderSendgrid && logger != nil {
		logger.Warn("sendgrid selected without api key, logging emails instead")
	}
	return NewLogSender(logger, cfg.SubjectPrefix)
}
