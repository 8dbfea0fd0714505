// Package notify delivers "verify your email" requests produced by the
// identity backends. Delivery itself (the mail) happens downstream.
package notify

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/MrEthical07/rideAuth/internal/logging"
)

// VerificationRequestedEvent is the event type of a verification request.
const VerificationRequestedEvent = "rideauth.verification.requested"

// VerificationMessage asks downstream delivery to send a verification link.
type VerificationMessage struct {
	AccountID   string    `json:"account_id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name,omitempty"`
	Token       string    `json:"token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Notifier hands a verification message to a delivery channel.
type Notifier interface {
	NotifyVerification(ctx context.Context, msg VerificationMessage) error
}

// LogNotifier logs messages instead of delivering them. Useful for local
// development; the token is logged so the account can be confirmed by hand.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier returns a LogNotifier writing to logger.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

// NotifyVerification implements Notifier.
func (n *LogNotifier) NotifyVerification(_ context.Context, msg VerificationMessage) error {
	n.logger.Info("verification requested",
		zap.String("event_type", VerificationRequestedEvent),
		zap.String("account_id", msg.AccountID),
		logging.Email(msg.Email),
		zap.String("token", msg.Token),
		zap.Time("expires_at", msg.ExpiresAt.UTC()),
	)
	return nil
}
