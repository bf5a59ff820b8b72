package channels

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"go.uber.org/zap"

	"github.com/DimaJoyti/priceguard/internal/notifications/domain"
)

// PushAdapter sends Deliveries as FCM push notifications.
type PushAdapter struct {
	client    *messaging.Client
	userToken func(userID string) string
	title     string
	logger    *zap.Logger
}

// NewPushAdapter builds a Firebase Cloud Messaging-backed PushAdapter.
// userToken resolves a UserID into its registered FCM device token.
func NewPushAdapter(ctx context.Context, app *firebase.App, title string, userToken func(userID string) string, logger *zap.Logger) (*PushAdapter, error) {
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("init firebase messaging client: %w", err)
	}
	return &PushAdapter{
		client:    client,
		userToken: userToken,
		title:     title,
		logger:    logger.Named("push-adapter"),
	}, nil
}

// Send delivers one Delivery's content as a push notification.
func (a *PushAdapter) Send(ctx context.Context, delivery *domain.Delivery) (string, error) {
	token := a.userToken(delivery.UserID)
	if token == "" {
		return "", fmt.Errorf("no push token registered for user %s", delivery.UserID)
	}

	msg := &messaging.Message{
		Token: token,
		Notification: &messaging.Notification{
			Title: a.title,
			Body:  delivery.Content,
		},
		Data: map[string]string{
			"alert_id": delivery.AlertID,
		},
	}

	messageID, err := a.client.Send(ctx, msg)
	if err != nil {
		return "", fmt.Errorf("fcm send failed for delivery %s: %w", delivery.ID, err)
	}
	return messageID, nil
}
