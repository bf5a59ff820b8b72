package channels

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"

	"github.com/DimaJoyti/priceguard/internal/notifications/domain"
)

// EmailConfig configures the SendGrid-backed email adapter.
type EmailConfig struct {
	APIKey    string
	FromAddr  string
	FromName  string
	Subject   string
}

// EmailAdapter sends Deliveries through SendGrid.
type EmailAdapter struct {
	client  *sendgrid.Client
	cfg     EmailConfig
	logger  *zap.Logger
	userMail func(userID string) string
}

// NewEmailAdapter builds a SendGrid-backed EmailAdapter. userMail resolves
// a UserID into the address to send to; the pipeline owns user lookup.
func NewEmailAdapter(cfg EmailConfig, userMail func(userID string) string, logger *zap.Logger) *EmailAdapter {
	return &EmailAdapter{
		client:   sendgrid.NewSendClient(cfg.APIKey),
		cfg:      cfg,
		userMail: userMail,
		logger:   logger.Named("email-adapter"),
	}
}

// Send delivers one Delivery's content by email.
func (a *EmailAdapter) Send(ctx context.Context, delivery *domain.Delivery) (string, error) {
	to := mail.NewEmail(delivery.UserID, a.userMail(delivery.UserID))
	from := mail.NewEmail(a.cfg.FromName, a.cfg.FromAddr)
	message := mail.NewSingleEmail(from, a.cfg.Subject, to, delivery.Content, "")

	resp, err := a.client.SendWithContext(ctx, message)
	if err != nil {
		return "", fmt.Errorf("sendgrid send failed for delivery %s: %w", delivery.ID, err)
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("sendgrid rejected delivery %s: status %d: %s", delivery.ID, resp.StatusCode, resp.Body)
	}

	messageID := resp.Headers["X-Message-Id"]
	if len(messageID) > 0 {
		return messageID[0], nil
	}
	return "", nil
}
