package event

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	pkgkafka "github.com/tkivite/knowledgestore-api/pkg/kafka"
	"github.com/tkivite/knowledgestore-api/pkg/logger"
)

// Kafka topics for email notification requests.
const (
	TopicVerificationRequested  = "knowledgestore.auth.verification_requested"
	TopicPasswordResetRequested = "knowledgestore.auth.password_reset_requested"
	TopicPasswordChanged        = "knowledgestore.auth.password_changed"
)

// AggregateTypeUser is the aggregate every auth email event belongs to.
const AggregateTypeUser = "user"

// SourceAuthService identifies events published by this service.
const SourceAuthService = "knowledgestore-auth"

// Recipient is the addressee of an email.
type Recipient struct {
	UserID string
	Email  string
	Name   string
}

// VerificationRequestedData is the payload for a verification email.
type VerificationRequestedData struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
	Token  string `json:"token"`
	Link   string `json:"link"`
}

// PasswordResetRequestedData is the payload for a password reset email.
type PasswordResetRequestedData struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
	Token  string `json:"token"`
	Link   string `json:"link"`
}

// PasswordChangedData is the payload for a password change notice.
type PasswordChangedData struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
}

// Publisher is implemented by *pkgkafka.Producer.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Notifier turns email requests into Kafka events consumed by the mail sender.
type Notifier struct {
	publisher Publisher
	baseURL   string
	logger    *slog.Logger
}

// NewNotifier creates a Notifier. Links in the emails are built from baseURL.
// A nil publisher makes the notifier log requests instead of publishing them.
func NewNotifier(publisher Publisher, baseURL string, logger *slog.Logger) *Notifier {
	return &Notifier{
		publisher: publisher,
		baseURL:   strings.TrimRight(baseURL, "/"),
		logger:    logger,
	}
}

// SendVerificationEmail requests an email carrying the verification link.
func (n *Notifier) SendVerificationEmail(ctx context.Context, to Recipient, token string) error {
	data := VerificationRequestedData{
		UserID: to.UserID,
		Email:  to.Email,
		Name:   to.Name,
		Token:  token,
		Link:   n.baseURL + "/verify-email/" + url.PathEscape(token),
	}
	return n.publish(ctx, TopicVerificationRequested, to, data)
}

// SendPasswordResetEmail requests an email carrying the reset link.
func (n *Notifier) SendPasswordResetEmail(ctx context.Context, to Recipient, token string) error {
	data := PasswordResetRequestedData{
		UserID: to.UserID,
		Email:  to.Email,
		Name:   to.Name,
		Token:  token,
		Link:   n.baseURL + "/reset-password?token=" + url.QueryEscape(token),
	}
	return n.publish(ctx, TopicPasswordResetRequested, to, data)
}

// SendPasswordChangeNotification tells the user their password was changed.
func (n *Notifier) SendPasswordChangeNotification(ctx context.Context, to Recipient) error {
	data := PasswordChangedData{UserID: to.UserID, Email: to.Email, Name: to.Name}
	return n.publish(ctx, TopicPasswordChanged, to, data)
}

func (n *Notifier) publish(ctx context.Context, topic string, to Recipient, data any) error {
	if n.publisher == nil {
		n.logger.InfoContext(ctx, "email delivery disabled, dropping request",
			slog.String("topic", topic),
			slog.String("user_id", to.UserID),
			logger.Email(to.Email),
		)
		return nil
	}

	evt, err := pkgkafka.NewEvent(topic, to.UserID, AggregateTypeUser, SourceAuthService, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	evt.WithMetadata("channel", "email")
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		evt.WithCorrelationID(id)
	}

	if err := n.publisher.Publish(ctx, topic, evt); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	n.logger.DebugContext(ctx, "email request published",
		slog.String("topic", topic),
		slog.String("user_id", to.UserID),
	)
	return nil
}
