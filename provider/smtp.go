package provider

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"
)

// SMTPConfig holds plain SMTP relay credentials
type SMTPConfig struct {
	Host      string `validate:"required"`
	Port      int    `validate:"required,min=1,max=65535"`
	Username  string `validate:"required"`
	Password  string `validate:"required"`
	FromEmail string `validate:"required,email"`
	FromName  string
}

// SMTP sends transactional mail through a plain SMTP relay. It has no
// subscriber or list management; those operations report
// capability-unsupported so the queue can still run against it while
// subscriber sync targets a marketing ESP.
type SMTP struct {
	cfg    SMTPConfig
	dialer *gomail.Dialer
}

func NewSMTP(cfg SMTPConfig) (*SMTP, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return &SMTP{
		cfg:    cfg,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
	}, nil
}

func (s *SMTP) Name() string { return "smtp" }

func (s *SMTP) TestConnection(ctx context.Context) Result {
	closer, err := s.dialer.Dial()
	if err != nil {
		return transportError(s.Name(), err)
	}
	_ = closer.Close()
	return ok("SMTP connection verified")
}

func (s *SMTP) AddSubscriber(ctx context.Context, sub Subscriber, listID string) Result {
	return unsupported(s.Name(), "subscriber management")
}

func (s *SMTP) UpdateSubscriber(ctx context.Context, sub Subscriber, listID string) Result {
	return unsupported(s.Name(), "subscriber management")
}

func (s *SMTP) RemoveSubscriber(ctx context.Context, email, listID string) Result {
	return unsupported(s.Name(), "subscriber management")
}

func (s *SMTP) GetLists(ctx context.Context) Result {
	return unsupported(s.Name(), "list management")
}

func (s *SMTP) GetList(ctx context.Context, listID string) Result {
	return unsupported(s.Name(), "list management")
}

func (s *SMTP) CreateList(ctx context.Context, name string) Result {
	return unsupported(s.Name(), "list management")
}

func (s *SMTP) SendEmail(ctx context.Context, msg Message) Result {
	fromEmail := msg.FromEmail
	if fromEmail == "" {
		fromEmail = s.cfg.FromEmail
	}
	fromName := msg.FromName
	if fromName == "" {
		fromName = s.cfg.FromName
	}

	m := gomail.NewMessage()
	m.SetHeader("From", fmt.Sprintf("%s <%s>", fromName, fromEmail))
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	if msg.Text != "" {
		m.SetBody("text/plain", msg.Text)
		if msg.HTML != "" {
			m.AddAlternative("text/html", msg.HTML)
		}
	} else {
		m.SetBody("text/html", msg.HTML)
	}
	if msg.Attachment != "" {
		m.Attach(msg.Attachment)
	}

	if err := s.dialer.DialAndSend(m); err != nil {
		return transportError(s.Name(), err)
	}
	return ok("email sent")
}
