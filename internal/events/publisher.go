package events

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/Tesseract-Nexus/go-shared/events"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"catalog-import-service/internal/models"
)

// Import lifecycle event types, published on the products stream so catalog
// consumers (search indexers, menu caches) pick them up alongside regular
// product changes.
const (
	ImportCommitted  = "product.import.committed"
	ImportRolledBack = "product.import.rolled_back"
	ImportDiscarded  = "product.import.discarded"
)

// Publisher wraps the go-shared events publisher for import session events
type Publisher struct {
	publisher *events.Publisher
	logger    *logrus.Entry
}

// NewPublisher creates a new import events publisher
func NewPublisher(logger *logrus.Logger) (*Publisher, error) {
	natsURL := os.Getenv("NATS_URL")
	if natsURL == "" {
		// Default to GKE internal NATS service URL
		natsURL = "nats://nats.nats.svc.cluster.local:4222"
	}

	config := events.DefaultPublisherConfig(natsURL)
	config.Name = "catalog-import-service"

	publisher, err := events.NewPublisher(config, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create events publisher: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := publisher.EnsureStream(ctx, events.StreamProducts, []string{"product.>"}); err != nil {
		logger.WithError(err).Warn("Failed to ensure products stream (may already exist)")
	}

	return &Publisher{
		publisher: publisher,
		logger:    logger.WithField("component", "import-events"),
	}, nil
}

// Close closes the NATS connection
func (p *Publisher) Close() {
	if p.publisher != nil {
		p.publisher.Close()
	}
}

// PublishImportCommitted publishes a product.import.committed event after a
// session's staged rows have been written to the live catalog.
func (p *Publisher) PublishImportCommitted(ctx context.Context, session *models.ImportSession, changeLog models.ChangeLog) error {
	event := p.buildImportEvent(ImportCommitted, session)
	event.ChangeType = "committed"
	event.NewValue = changeSummary(changeLog)
	return p.publish(ctx, event)
}

// PublishImportRolledBack publishes a product.import.rolled_back event
func (p *Publisher) PublishImportRolledBack(ctx context.Context, session *models.ImportSession, result *models.RollbackResult) error {
	event := p.buildImportEvent(ImportRolledBack, session)
	event.ChangeType = "rolled_back"
	event.NewValue = map[string]interface{}{
		"reversed": result.Reversed,
		"failed":   len(result.Failed),
	}
	return p.publish(ctx, event)
}

// PublishImportDiscarded publishes a product.import.discarded event
func (p *Publisher) PublishImportDiscarded(ctx context.Context, session *models.ImportSession) error {
	event := p.buildImportEvent(ImportDiscarded, session)
	event.ChangeType = "discarded"
	return p.publish(ctx, event)
}

func (p *Publisher) buildImportEvent(eventType string, session *models.ImportSession) *events.ProductEvent {
	event := events.NewProductEvent(eventType, session.TenantID)
	event.SourceID = uuid.New().String()
	event.ProductID = session.ID.String()
	event.Status = string(session.Status)
	event.ActorID = session.CreatedBy
	return event
}

// changeSummary counts applied changes per entity kind for the event payload
func changeSummary(changeLog models.ChangeLog) map[string]interface{} {
	created := make(map[string]int)
	updated := make(map[string]int)
	for _, entry := range changeLog {
		switch entry.Operation {
		case models.ChangeOpCreated:
			created[string(entry.Entity)]++
		case models.ChangeOpUpdated:
			updated[string(entry.Entity)]++
		}
	}
	return map[string]interface{}{
		"created": created,
		"updated": updated,
		"total":   len(changeLog),
	}
}

// publish is a helper that logs and publishes events asynchronously
func (p *Publisher) publish(ctx context.Context, event *events.ProductEvent) error {
	// Publish asynchronously to not block the main flow
	go func() {
		pubCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := p.publisher.PublishProduct(pubCtx, event); err != nil {
			p.logger.WithFields(logrus.Fields{
				"eventType": event.EventType,
				"sessionID": event.ProductID,
				"tenantID":  event.TenantID,
			}).WithError(err).Error("Failed to publish import event")
		} else {
			p.logger.WithFields(logrus.Fields{
				"eventType": event.EventType,
				"sessionID": event.ProductID,
				"tenantID":  event.TenantID,
			}).Info("Import event published successfully")
		}
	}()

	return nil
}
