package deliver

import (
	"context"
	"errors"
	"fmt"

	"github.com/wneessen/go-mail"
	"go-mod.ewintr.nl/ytdigest/model"
	"golang.org/x/exp/slog"
)

type SMTPInfo struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
}

// Mailer sends the digest as a multipart text and HTML email.
type Mailer struct {
	info   SMTPInfo
	logger *slog.Logger
}

func NewMailer(info SMTPInfo, logger *slog.Logger) (*Mailer, error) {
	switch {
	case info.Host == "":
		return nil, errors.New("smtp host is required")
	case info.From == "":
		return nil, errors.New("sender address is required")
	case len(info.To) == 0:
		return nil, errors.New("at least one recipient is required")
	}
	return &Mailer{
		info:   info,
		logger: logger,
	}, nil
}

func (m *Mailer) Deliver(ctx context.Context, digest model.RunDigest) error {
	msg, err := m.message(digest)
	if err != nil {
		return &model.DeliveryError{Err: err}
	}

	opts := []mail.Option{
		mail.WithPort(m.info.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if m.info.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(m.info.Username),
			mail.WithPassword(m.info.Password),
		)
	}
	client, err := mail.NewClient(m.info.Host, opts...)
	if err != nil {
		return &model.DeliveryError{Err: fmt.Errorf("could not create mail client: %w", err)}
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return &model.DeliveryError{Err: fmt.Errorf("could not send mail: %w", err)}
	}
	m.logger.Info("digest mailed", slog.String("digest", digest.ID.String()), slog.Int("items", len(digest.Items)))

	return nil
}

func (m *Mailer) message(digest model.RunDigest) (*mail.Msg, error) {
	text, err := RenderText(digest)
	if err != nil {
		return nil, err
	}
	html, err := RenderHTML(digest)
	if err != nil {
		return nil, err
	}

	msg := mail.NewMsg()
	if err := msg.From(m.info.From); err != nil {
		return nil, fmt.Errorf("invalid sender: %w", err)
	}
	if err := msg.To(m.info.To...); err != nil {
		return nil, fmt.Errorf("invalid recipient: %w", err)
	}
	msg.Subject(Subject(digest))
	msg.SetMessageID()
	msg.SetDate()
	msg.SetBodyString(mail.TypeTextPlain, text)
	msg.AddAlternativeString(mail.TypeTextHTML, html)

	return msg, nil
}
