package subscribers

import (
	"context"
	"os"
	"time"

	gosharedevents "github.com/Tesseract-Nexus/go-shared/events"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"catalog-import-service/internal/services"
)

// ApprovalSubscriber handles incoming approval events for import sessions.
// When an admin requires sign-off before a bulk import goes live, the commit
// is deferred until the matching approval.granted event arrives.
type ApprovalSubscriber struct {
	subscriber *gosharedevents.Subscriber
	service    *services.ImportService
	logger     *logrus.Entry
	cancel     context.CancelFunc
}

// NewApprovalSubscriber creates a new approval event subscriber for import sessions
func NewApprovalSubscriber(
	service *services.ImportService,
	logger *logrus.Logger,
) (*ApprovalSubscriber, error) {
	natsURL := os.Getenv("NATS_URL")
	if natsURL == "" {
		natsURL = "nats://nats.nats.svc.cluster.local:4222"
	}

	config := gosharedevents.DefaultSubscriberConfig(natsURL, "catalog-import-service-approvals")
	config.Name = "catalog-import-service-approval-subscriber"
	config.DeliverPolicy = "new"
	config.MaxDeliver = 3
	config.AckWait = 30 * time.Second

	subscriber, err := gosharedevents.NewSubscriber(config, logger)
	if err != nil {
		return nil, err
	}

	return &ApprovalSubscriber{
		subscriber: subscriber,
		service:    service,
		logger:     logger.WithField("component", "approval-subscriber"),
	}, nil
}

// Start starts listening for approval events
func (s *ApprovalSubscriber) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	// Subscribe to approval.granted events
	subjects := []string{gosharedevents.ApprovalGranted}

	s.logger.Info("Starting import approval event subscription...")

	err := s.subscriber.SubscribeApprovalEvents(ctx, subjects, s.handleApprovalEvent)
	if err != nil {
		return err
	}

	s.logger.WithField("subjects", subjects).Info("Import approval subscriber started successfully")
	return nil
}

// handleApprovalEvent processes approval events for import sessions
func (s *ApprovalSubscriber) handleApprovalEvent(ctx context.Context, event *gosharedevents.ApprovalEvent) error {
	s.logger.WithFields(logrus.Fields{
		"event_type":    event.EventType,
		"approval_id":   event.ApprovalRequestID,
		"action_type":   event.ActionType,
		"resource_type": event.ResourceType,
		"status":        event.Status,
	}).Info("Received approval event")

	// Only process events for import session resources
	if event.ResourceType != "import_session" {
		s.logger.WithField("resource_type", event.ResourceType).Debug("Ignoring non-import approval event")
		return nil
	}

	// Only process granted events
	if event.Status != "approved" {
		s.logger.WithField("status", event.Status).Debug("Ignoring non-approved event")
		return nil
	}

	switch event.ActionType {
	case "import_commit":
		return s.executeApprovedCommit(ctx, event)
	default:
		s.logger.WithField("action_type", event.ActionType).Debug("Ignoring unhandled action type for import sessions")
		return nil
	}
}

// executeApprovedCommit saves an approved import session into the live catalog
func (s *ApprovalSubscriber) executeApprovedCommit(ctx context.Context, event *gosharedevents.ApprovalEvent) error {
	s.logger.WithFields(logrus.Fields{
		"resource_id": event.ResourceID,
		"approver":    event.ApproverName,
	}).Info("Executing approved import commit")

	sessionID, err := uuid.Parse(event.ResourceID)
	if err != nil {
		s.logger.WithError(err).Error("Invalid session ID in approval event")
		return nil // Don't retry for invalid IDs
	}

	session, err := s.service.FinalSave(ctx, event.TenantID, sessionID)
	if err != nil {
		switch err {
		case services.ErrSessionNotFound, services.ErrSessionNotEditable, services.ErrValidationFailed, services.ErrEmptyDataset:
			// The session changed or disappeared since approval was requested;
			// retrying will not help.
			s.logger.WithError(err).WithField("session_id", sessionID).Warn("Approved import can no longer be committed")
			return nil
		default:
			s.logger.WithError(err).Error("Failed to commit approved import session")
			return err
		}
	}

	s.logger.WithFields(logrus.Fields{
		"session_id": session.ID,
		"new_status": session.Status,
	}).Info("Import session saved successfully after approval")
	return nil
}

// Stop stops the approval subscriber
func (s *ApprovalSubscriber) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.subscriber != nil {
		s.subscriber.Close()
	}
	s.logger.Info("Import approval subscriber stopped")
}
