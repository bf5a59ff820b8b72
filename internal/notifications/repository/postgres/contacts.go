package postgres

import (
	"context"
	"fmt"
)

// Email resolves the address the email channel adapter sends to.
func (r *Repository) Email(ctx context.Context, userID string) (string, error) {
	var email string
	err := r.db.GetContext(ctx, &email, `SELECT email FROM user_contacts WHERE user_id = $1`, userID)
	if err != nil {
		return "", fmt.Errorf("get email for user %s: %w", userID, err)
	}
	return email, nil
}

// PushToken resolves the device token the push channel adapter sends to,
// or "" if the user has no registered device.
func (r *Repository) PushToken(ctx context.Context, userID string) (string, error) {
	var token string
	err := r.db.GetContext(ctx, &token, `SELECT push_token FROM user_contacts WHERE user_id = $1`, userID)
	if err != nil {
		return "", nil
	}
	return token, nil
}
