package channel

import (
	"context"
	"fmt"
	"strings"

	"github.com/wneessen/go-mail"

	"crmhub/internal/notify/models"
	tenantmodels "crmhub/internal/tenant/models"
)

type mailSender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Email sends notifications over SMTP.
type Email struct {
	sender mailSender
	from   string
}

// NewEmail builds an SMTP client. Authentication is used when a username is
// configured; TLS is negotiated opportunistically.
func NewEmail(cfg EmailConfig) (*Email, error) {
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPortPolicy(mail.TLSOpportunistic),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}
	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("create smtp client: %w", err)
	}
	return &Email{sender: client, from: cfg.From}, nil
}

func (e *Email) Name() string { return "email" }

func (e *Email) Deliver(ctx context.Context, user *tenantmodels.User, n *models.Notification) error {
	if user.Email == "" {
		return ErrNoAddress
	}
	msg, err := e.message(user, n)
	if err != nil {
		return err
	}
	if err := e.sender.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}

func (e *Email) message(user *tenantmodels.User, n *models.Notification) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(e.from); err != nil {
		return nil, fmt.Errorf("invalid sender address: %w", err)
	}
	if err := msg.AddToFormat(user.Name, user.Email); err != nil {
		return nil, fmt.Errorf("invalid recipient address: %w", err)
	}
	msg.Subject(n.Title)
	body := n.Title
	if n.Body != "" {
		body = strings.Join([]string{n.Title, "", n.Body}, "\n")
	}
	msg.SetBodyString(mail.TypeTextPlain, body)
	return msg, nil
}
