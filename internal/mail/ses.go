package mail

import (
	"context"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	sesv2Types "github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	awsclient "identity-center-reporter/internal/aws"
)

// SESAPI is the subset of the SES v2 client used to send raw messages
type SESAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESSender delivers messages as raw MIME through SES v2
type SESSender struct {
	client SESAPI
	logger *slog.Logger
}

// NewSESSender creates an SESSender from an AWS config
func NewSESSender(cfg aws.Config, logger *slog.Logger) *SESSender {
	return NewSESSenderWithAPI(sesv2.NewFromConfig(cfg), logger)
}

// NewSESSenderWithAPI creates an SESSender over an existing client
func NewSESSenderWithAPI(client SESAPI, logger *slog.Logger) *SESSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &SESSender{client: client, logger: logger}
}

// Send implements Sender
func (s *SESSender) Send(ctx context.Context, msg Message) error {
	raw, err := msg.Build()
	if err != nil {
		return err
	}

	result, err := s.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(msg.From),
		Destination: &sesv2Types.Destination{
			ToAddresses: msg.To,
		},
		Content: &sesv2Types.EmailContent{
			Raw: &sesv2Types.RawMessage{Data: raw},
		},
	})
	if err != nil {
		return awsclient.WrapAWSError(err, "SendEmail")
	}

	s.logger.Info("email sent",
		"transport", "ses",
		"message_id", aws.ToString(result.MessageId),
		"recipients", len(msg.To),
		"attachments", len(msg.Attachments))

	return nil
}
