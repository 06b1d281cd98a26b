package mail

import (
	"context"
	"fmt"
	"log/slog"

	gomail "github.com/wneessen/go-mail"
)

// Sender доставляет письмо до почтового транспорта.
type Sender interface {
	Send(ctx context.Context, msg *Message) error
}

// SMTPConfig — параметры SMTP-сервера.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	// TLSPolicy — mandatory, opportunistic или none
	TLSPolicy string
	// From — адрес отправителя в формате RFC 5322
	From string
}

// SMTPSender отправляет письма через SMTP (go-mail).
type SMTPSender struct {
	cfg  SMTPConfig
	opts []gomail.Option
}

// NewSMTPSender создаёт отправителя. Соединение открывается на каждое письмо.
func NewSMTPSender(cfg SMTPConfig) (*SMTPSender, error) {
	opts := []gomail.Option{
		gomail.WithPort(cfg.Port),
		gomail.WithTLSPolicy(tlsPolicy(cfg.TLSPolicy)),
	}
	if cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.Username),
			gomail.WithPassword(cfg.Password),
		)
	}

	// Проверяем параметры сразу, чтобы ошибка конфигурации всплыла при старте
	if _, err := gomail.NewClient(cfg.Host, opts...); err != nil {
		return nil, fmt.Errorf("ошибка настройки SMTP-клиента: %w", err)
	}
	if err := gomail.NewMsg().From(cfg.From); err != nil {
		return nil, fmt.Errorf("некорректный адрес отправителя %q: %w", cfg.From, err)
	}

	return &SMTPSender{cfg: cfg, opts: opts}, nil
}

func tlsPolicy(s string) gomail.TLSPolicy {
	switch s {
	case "mandatory":
		return gomail.TLSMandatory
	case "none":
		return gomail.NoTLS
	default:
		return gomail.TLSOpportunistic
	}
}

// Send отправляет письмо с текстовой и HTML-частями.
func (s *SMTPSender) Send(ctx context.Context, msg *Message) error {
	m := gomail.NewMsg()
	if err := m.From(s.cfg.From); err != nil {
		return fmt.Errorf("адрес отправителя: %w", err)
	}
	if err := m.To(msg.To); err != nil {
		return fmt.Errorf("адрес получателя %q: %w", msg.To, err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(gomail.TypeTextPlain, msg.Text)
	m.AddAlternativeString(gomail.TypeTextHTML, msg.HTML)

	client, err := gomail.NewClient(s.cfg.Host, s.opts...)
	if err != nil {
		return fmt.Errorf("ошибка создания SMTP-клиента: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("ошибка отправки письма: %w", err)
	}
	return nil
}

// LogSender пишет письма в лог вместо отправки.
// Используется, когда SMTP-сервер не настроен.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender создаёт LogSender.
func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger.With(slog.String("component", "mail_log"))}
}

// Send логирует письмо.
func (s *LogSender) Send(_ context.Context, msg *Message) error {
	s.logger.Info("Письмо не отправлено: SMTP не настроен",
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
		slog.String("body", msg.Text),
	)
	return nil
}
