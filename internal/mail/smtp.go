package mail

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strconv"
	"time"
)

const implicitTLSPort = 465

// SMTPConfig describes an authenticated SMTP relay. Password is resolved from a secret
// reference by the caller and is never read from configuration directly.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	Timeout  time.Duration

	// ImplicitTLS connects over TLS from the start, as on port 465
	ImplicitTLS bool

	// TLSConfig is the base for both implicit TLS and STARTTLS. ServerName defaults to Host
	// and the minimum version to TLS 1.2.
	TLSConfig *tls.Config
}

// SMTPSender delivers messages through an SMTP relay. Port 465 uses implicit TLS, any other
// port (unless ImplicitTLS is set) upgrades the connection with STARTTLS before authenticating.
type SMTPSender struct {
	config SMTPConfig
	logger *slog.Logger
}

// NewSMTPSender creates an SMTPSender
func NewSMTPSender(config SMTPConfig, logger *slog.Logger) *SMTPSender {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	return &SMTPSender{config: config, logger: logger}
}

// Send implements Sender
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	raw, err := msg.Build()
	if err != nil {
		return err
	}

	client, err := s.dial(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	if s.config.Username != "" {
		auth := smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp authentication failed: %w", err)
		}
	}

	if err := client.Mail(msg.From); err != nil {
		return fmt.Errorf("smtp MAIL FROM failed: %w", err)
	}
	for _, recipient := range msg.To {
		if err := client.Rcpt(recipient); err != nil {
			return fmt.Errorf("smtp RCPT TO %s failed: %w", recipient, err)
		}
	}

	data, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA failed: %w", err)
	}
	if _, err := data.Write(raw); err != nil {
		data.Close()
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := data.Close(); err != nil {
		return fmt.Errorf("smtp server rejected message: %w", err)
	}

	if err := client.Quit(); err != nil {
		s.logger.Debug("smtp QUIT failed after delivery", "error", err)
	}

	s.logger.Info("email sent",
		"transport", "smtp",
		"host", s.config.Host,
		"recipients", len(msg.To),
		"attachments", len(msg.Attachments))

	return nil
}

func (s *SMTPSender) dial(ctx context.Context) (*smtp.Client, error) {
	address := net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))
	tlsConfig := s.tlsConfig()
	dialer := &net.Dialer{Timeout: s.config.Timeout}

	if s.config.ImplicitTLS || s.config.Port == implicitTLSPort {
		conn, err := (&tls.Dialer{NetDialer: dialer, Config: tlsConfig}).DialContext(ctx, "tcp", address)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to %s: %w", address, err)
		}
		client, err := smtp.NewClient(conn, s.config.Host)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("smtp handshake with %s failed: %w", address, err)
		}
		return client, nil
	}

	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", address, err)
	}
	client, err := smtp.NewClient(conn, s.config.Host)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("smtp handshake with %s failed: %w", address, err)
	}
	if err := client.StartTLS(tlsConfig); err != nil {
		client.Close()
		return nil, fmt.Errorf("STARTTLS with %s failed: %w", address, err)
	}
	return client, nil
}

func (s *SMTPSender) tlsConfig() *tls.Config {
	config := &tls.Config{}
	if s.config.TLSConfig != nil {
		config = s.config.TLSConfig.Clone()
	}
	if config.ServerName == "" {
		config.ServerName = s.config.Host
	}
	if config.MinVersion == 0 {
		config.MinVersion = tls.VersionTLS12
	}
	return config
}
