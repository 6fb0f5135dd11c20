package notify

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

const (
	sendgridHost     = "https://api.sendgrid.com"
	sendgridEndpoint = "/v3/mail/send"
)

// SendgridConfig configures the SendGrid backend.
type SendgridConfig struct {
	APIKey        string
	FromName      string
	FromAddress   string
	SubjectPrefix string
	// Host overrides the API host, for tests.
	Host string
}

// SendgridSender delivers email through the SendGrid v3 API.
type SendgridSender struct {
	key    string
	host   string
	from   *sgmail.Email
	prefix string
}

// NewSendgridSender constructs a SendgridSender.
func NewSendgridSender(cfg SendgridConfig) *SendgridSender {
	host := cfg.Host
	if host == "" {
		host = sendgridHost
	}
	return &SendgridSender{
		key:    cfg.APIKey,
		host:   host,
		from:   sgmail.NewEmail(cfg.FromName, cfg.FromAddress),
		prefix: cfg.SubjectPrefix,
	}
}

func (s *SendgridSender) prepare(msg Message) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = s.prefix + msg.Subject
	for _, to := range msg.To {
		p.AddTos(sgmail.NewEmail(to.Name, to.Address))
	}

	m := sgmail.NewV3Mail()
	m.SetFrom(s.from)
	m.AddPersonalizations(p)
	m.AddContent(sgmail.NewContent("text/plain", msg.Text))
	if msg.HTML != "" {
		m.AddContent(sgmail.NewContent("text/html", msg.HTML))
	}
	return m
}

// Send implements Sender. A 4xx/5xx answer from SendGrid is an error so the job queue retries it.
func (s *SendgridSender) Send(ctx context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return ErrNoRecipients
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	req := sendgrid.GetRequest(s.key, sendgridEndpoint, s.host)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(s.prepare(msg))

	res, err := sendgrid.API(req)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("sendgrid send: status %d: %s", res.StatusCode, res.Body)
	}
	return nil
}
