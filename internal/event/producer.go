package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/DrOksusu/dba-portal-auth/internal/domain"
	pkgkafka "github.com/DrOksusu/dba-portal-auth/pkg/kafka"
	"github.com/DrOksusu/dba-portal-auth/pkg/logger"
)

// Kafka topic constants for auth domain events.
const (
	TopicUserRegistered   = "auth.user.registered"
	TopicUserSocialLinked = "auth.user.social_linked"
	TopicUserDeactivated  = "auth.user.deactivated"
)

// AggregateTypeUser is the aggregate every auth event refers to.
const AggregateTypeUser = "user"

// SourceAuthService identifies events originating from this service.
const SourceAuthService = "auth-service"

// Publisher is the subset of the Kafka producer used here.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// UserRegisteredData is the payload for auth.user.registered.
type UserRegisteredData struct {
	ID       string  `json:"id"`
	Phone    string  `json:"phone"`
	Name     *string `json:"name,omitempty"`
	Email    *string `json:"email,omitempty"`
	Provider string  `json:"provider,omitempty"`
}

// SocialLinkedData is the payload for auth.user.social_linked.
type SocialLinkedData struct {
	UserID   string `json:"user_id"`
	Provider string `json:"provider"`
}

// UserDeactivatedData is the payload for auth.user.deactivated.
type UserDeactivatedData struct {
	UserID string `json:"user_id"`
}

// Producer publishes auth domain events to Kafka.
type Producer struct {
	kafka  Publisher
	logger *slog.Logger
}

// NewProducer creates a new event producer for the auth service.
func NewProducer(kafka Publisher, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishUserRegistered publishes auth.user.registered. provider is empty for
// phone-only sign-ups.
func (p *Producer) PublishUserRegistered(ctx context.Context, user *domain.User, provider domain.Provider) error {
	return p.publish(ctx, TopicUserRegistered, user.ID, UserRegisteredData{
		ID:       user.ID,
		Phone:    user.Phone,
		Name:     user.Name,
		Email:    user.Email,
		Provider: string(provider),
	})
}

// PublishSocialLinked publishes auth.user.social_linked.
func (p *Producer) PublishSocialLinked(ctx context.Context, userID string, provider domain.Provider) error {
	return p.publish(ctx, TopicUserSocialLinked, userID, SocialLinkedData{
		UserID:   userID,
		Provider: string(provider),
	})
}

// PublishUserDeactivated publishes auth.user.deactivated.
func (p *Producer) PublishUserDeactivated(ctx context.Context, userID string) error {
	return p.publish(ctx, TopicUserDeactivated, userID, UserDeactivatedData{UserID: userID})
}

func (p *Producer) publish(ctx context.Context, topic, userID string, data any) error {
	event, err := pkgkafka.NewEvent(topic, userID, AggregateTypeUser, SourceAuthService, data,
		pkgkafka.CorrelatedWith(logger.CorrelationIDFromContext(ctx)))
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}

	if err := p.kafka.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "published event",
		slog.String("topic", topic),
		slog.String("user_id", userID),
	)
	return nil
}
