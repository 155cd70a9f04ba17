package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	"github.com/aquameter/aquameter/internal/models"
	pkglogger "github.com/aquameter/aquameter/pkg/logger"
)

// EmailSender defines the interface for sending transactional email
type EmailSender interface {
	SendOtpEmail(ctx context.Context, email, code, purpose string, expiry time.Duration) error
	SendWelcomeEmail(ctx context.Context, email, name string) error
}

// AWSSESEmailService sends emails using AWS SES
type AWSSESEmailService struct {
	sesClient   *ses.Client
	fromAddress string
	logger      *slog.Logger
}

// NewAWSSESEmailService creates a new AWS SES email service
func NewAWSSESEmailService(region, fromAddress string, logger *slog.Logger) (*AWSSESEmailService, error) {
	cfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &AWSSESEmailService{
		sesClient:   ses.NewFromConfig(cfg),
		fromAddress: fromAddress,
		logger:      logger,
	}, nil
}

// SendOtpEmail sends a one-time code to the user
func (s *AWSSESEmailService) SendOtpEmail(ctx context.Context, email, code, purpose string, expiry time.Duration) error {
	var subject, intro string
	switch purpose {
	case models.OtpPurposePasswordReset:
		subject = "Reset your password - Aquameter"
		intro = "You have requested to reset your password."
	default:
		subject = "Verify your email - Aquameter"
		intro = "Thank you for registering with Aquameter."
	}

	textBody := fmt.Sprintf(`Hello,

%s

Your verification code is: %s

This code is valid for %d minutes. If you didn't request this, you can ignore this email.

Aquameter
`, intro, code, int(expiry.Minutes()))

	htmlBody := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #333;">
  <div style="max-width: 600px; margin: 0 auto; padding: 20px;">
    <p>Hello,</p>
    <p>%s</p>
    <p style="font-size: 28px; letter-spacing: 6px; font-weight: bold;">%s</p>
    <p>This code is valid for %d minutes. If you didn't request this, you can ignore this email.</p>
    <p style="color: #666; font-size: 12px;">This is an automated message. Please do not reply.</p>
  </div>
</body>
</html>
`, intro, code, int(expiry.Minutes()))

	return s.send(ctx, email, subject, textBody, htmlBody)
}

// SendWelcomeEmail sends the post-registration welcome message
func (s *AWSSESEmailService) SendWelcomeEmail(ctx context.Context, email, name string) error {
	subject := "Welcome to Aquameter"

	textBody := fmt.Sprintf(`Hello %s,

Your account has been created. Submit your water-usage readings and we'll alert you about leaks and unusually high usage.

Aquameter
`, name)

	htmlBody := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #333;">
  <div style="max-width: 600px; margin: 0 auto; padding: 20px;">
    <p>Hello %s,</p>
    <p>Your account has been created. Submit your water-usage readings and we'll alert you about leaks and unusually high usage.</p>
    <p style="color: #666; font-size: 12px;">This is an automated message. Please do not reply.</p>
  </div>
</body>
</html>
`, name)

	return s.send(ctx, email, subject, textBody, htmlBody)
}

func (s *AWSSESEmailService) send(ctx context.Context, email, subject, textBody, htmlBody string) error {
	input := &ses.SendEmailInput{
		Source: aws.String(s.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{email},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String(subject),
			},
			Body: &types.Body{
				Html: &types.Content{
					Data: aws.String(htmlBody),
				},
				Text: &types.Content{
					Data: aws.String(textBody),
				},
			},
		},
	}

	result, err := s.sesClient.SendEmail(ctx, input)
	if err != nil {
		s.logger.Error("failed to send email via SES",
			slog.String("email", pkglogger.SanitizedEmail(email)),
			slog.Any("error", err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Info("email sent",
		slog.String("email", pkglogger.SanitizedEmail(email)),
		slog.String("message_id", *result.MessageId))

	return nil
}

// LogEmailSender logs instead of sending; used when email delivery is
// disabled (development, CI).
type LogEmailSender struct {
	logger *slog.Logger
}

func NewLogEmailSender(logger *slog.Logger) *LogEmailSender {
	return &LogEmailSender{logger: logger}
}

func (s *LogEmailSender) SendOtpEmail(ctx context.Context, email, code, purpose string, expiry time.Duration) error {
	s.logger.Info("email delivery disabled, otp not sent",
		slog.String("email", pkglogger.SanitizedEmail(email)),
		slog.String("purpose", purpose))
	return nil
}

func (s *LogEmailSender) SendWelcomeEmail(ctx context.Context, email, name string) error {
	s.logger.Info("email delivery disabled, welcome email not sent",
		slog.String("email", pkglogger.SanitizedEmail(email)))
	return nil
}
