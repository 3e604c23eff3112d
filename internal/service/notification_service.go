package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/civic-service/internal/config"
	"github.com/spec-kit/civic-service/internal/events"
)

// NotificationService turns domain events into (stubbed) citizen and staff notifications.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	cfg        config.NotificationConfig
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: dispatcher,
		logger:     logger,
		cfg:        cfg,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	citizenFacing := []events.EventType{
		events.EventRequestCreated,
		events.EventRequestValidated,
		events.EventRequestAssigned,
		events.EventCompletionVerified,
		events.EventFeedbackAdded,
		events.EventRequestsMerged,
	}
	for _, t := range citizenFacing {
		n.dispatcher.Subscribe(t, n.handleCitizenUpdate)
	}
	n.dispatcher.Subscribe(events.EventTaskCreated, n.handleStaffUpdate)
	n.dispatcher.Subscribe(events.EventCompletionSubmitted, n.handleStaffUpdate)
	n.dispatcher.Subscribe(events.EventRequestEscalated, n.handleEscalation)
}

func (n *NotificationService) handleCitizenUpdate(ctx context.Context, event events.Event) error {
	n.logger.Info("citizen notification",
		zap.String("event_type", string(event.Type)),
		zap.String("request_id", event.RequestID),
		zap.Any("payload", event.Payload))
	n.sendEmailNotificationStub(ctx, event)
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) handleStaffUpdate(ctx context.Context, event events.Event) error {
	n.logger.Info("staff notification",
		zap.String("event_type", string(event.Type)),
		zap.String("request_id", event.RequestID),
		zap.Any("payload", event.Payload))
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) handleEscalation(ctx context.Context, event events.Event) error {
	n.logger.Warn("escalation notification",
		zap.String("request_id", event.RequestID),
		zap.Any("payload", event.Payload))
	n.sendEmailNotificationStub(ctx, event)
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) sendEmailNotificationStub(_ context.Context, event events.Event) {
	if strings.TrimSpace(n.cfg.EmailFrom) == "" {
		return
	}
	n.logger.Debug("sendEmailNotificationStub",
		zap.String("from", n.cfg.EmailFrom),
		zap.String("request_id", event.RequestID),
		zap.String("event_type", string(event.Type)))
}

func (n *NotificationService) sendWebhookNotificationStub(_ context.Context, event events.Event) {
	if strings.TrimSpace(n.cfg.WebhookURL) == "" {
		return
	}
	n.logger.Debug("sendWebhookNotificationStub",
		zap.String("url", n.cfg.WebhookURL),
		zap.String("request_id", event.RequestID),
		zap.String("event_type", string(event.Type)))
}
