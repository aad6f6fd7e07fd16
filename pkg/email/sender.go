package email

import (
	"context"
	"errors"
	"fmt"

	"github.com/mrz1836/postmark"
	"github.com/rs/zerolog"
)

var (
	ErrFailedToSend  = errors.New("failed to send email")
	ErrInvalidConfig = errors.New("invalid email configuration")
)

// Message is a rendered email ready to hand to a Sender.
type Message struct {
	To      string
	Subject string
	HTML    string
	Tag     string
}

func (m Message) validate() error {
	if m.To == "" {
		return fmt.Errorf("%w: recipient is required", ErrFailedToSend)
	}
	if m.Subject == "" {
		return fmt.Errorf("%w: subject is required", ErrFailedToSend)
	}
	return nil
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
}

type PostmarkConfig struct {
	ServerToken  string
	AccountToken string
	From         string
	ReplyTo      string
}

type PostmarkSender struct {
	client *postmark.Client
	cfg    PostmarkConfig
}

func NewPostmarkSender(cfg PostmarkConfig) (*PostmarkSender, error) {
	if cfg.ServerToken == "" {
		return nil, fmt.Errorf("%w: postmark server token is required", ErrInvalidConfig)
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("%w: sender address is required", ErrInvalidConfig)
	}
	return &PostmarkSender{
		client: postmark.NewClient(cfg.ServerToken, cfg.AccountToken),
		cfg:    cfg,
	}, nil
}

func (s *PostmarkSender) Send(ctx context.Context, msg Message) error {
	if err := msg.validate(); err != nil {
		return err
	}

	resp, err := s.client.SendEmail(ctx, postmark.Email{
		From:       s.cfg.From,
		ReplyTo:    s.cfg.ReplyTo,
		To:         msg.To,
		Subject:    msg.Subject,
		Tag:        msg.Tag,
		HTMLBody:   msg.HTML,
		TrackOpens: true,
	})
	if err != nil {
		return errors.Join(ErrFailedToSend, err)
	}
	if resp.ErrorCode > 0 {
		return errors.Join(ErrFailedToSend, fmt.Errorf("postmark error: %d - %s", resp.ErrorCode, resp.Message))
	}
	return nil
}

// LogSender writes emails to the log instead of delivering them. It is used
// when no Postmark token is configured.
type LogSender struct {
	log zerolog.Logger
}

func NewLogSender(log zerolog.Logger) *LogSender {
	return &LogSender{log: log}
}

func (s *LogSender) Send(_ context.Context, msg Message) error {
	if err := msg.validate(); err != nil {
		return err
	}
	s.log.Info().
		Str("to", msg.To).
		Str("subject", msg.Subject).
		Str("tag", msg.Tag).
		Int("html_bytes", len(msg.HTML)).
		Msg("email not delivered, log sender active")
	return nil
}
