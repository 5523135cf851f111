// Package monitoring records audit events for processed queries and index
// changes.
package monitoring

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/spherical-ai/spherical/libs/geo-engine/internal/observability"
)

// AuditChannel is the pub/sub channel audit events are published on.
const AuditChannel = "audit.events"

// Action is what an audit event records.
type Action string

const (
	ActionQuery           Action = "query"
	ActionRejected        Action = "rejected"
	ActionFeatureInserted Action = "feature_inserted"
	ActionFeatureRemoved  Action = "feature_removed"
	ActionDocumentsAdded  Action = "documents_added"
	ActionDocumentRemoved Action = "document_removed"
	ActionCleared         Action = "cleared"
)

// Publisher delivers audit events to subscribers. *cache.RedisClient
// satisfies it.
type Publisher interface {
	Publish(ctx context.Context, channel string, message any) error
}

// AuditEvent represents an auditable action.
type AuditEvent struct {
	ID           uuid.UUID      `json:"id"`
	TraceID      string         `json:"trace_id,omitempty"`
	Action       Action         `json:"action"`
	ResourceType string         `json:"resource_type"`
	ResourceID   string         `json:"resource_id,omitempty"`
	Payload      map[string]any `json:"payload,omitempty"`
	OccurredAt   time.Time      `json:"occurred_at"`
}

// QueryOutcome summarizes a processed query for the audit trail.
type QueryOutcome struct {
	Text       string
	Intent     string
	Rejected   bool
	Success    bool
	CacheHit   bool
	Confidence float64
	Sources    int
	Duration   time.Duration
	Error      string
}

// AuditLogger handles audit event logging.
type AuditLogger struct {
	logger    *observability.Logger
	publisher Publisher
}

// NewAuditLogger creates a new audit logger. publisher may be nil.
func NewAuditLogger(logger *observability.Logger, publisher Publisher) *AuditLogger {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &AuditLogger{
		logger:    logger.WithComponent("audit"),
		publisher: publisher,
	}
}

// LogEvent records an audit event. Publishing failures are logged, not
// returned.
func (a *AuditLogger) LogEvent(ctx context.Context, event AuditEvent) AuditEvent {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if event.TraceID == "" {
		event.TraceID = observability.TraceIDFromContext(ctx)
	}

	a.logger.Info().
		Str("event_id", event.ID.String()).
		Str("trace_id", event.TraceID).
		Str("action", string(event.Action)).
		Str("resource_type", event.ResourceType).
		Str("resource_id", event.ResourceID).
		Interface("payload", event.Payload).
		Msg("Audit event")

	if a.publisher != nil {
		if err := a.publisher.Publish(ctx, AuditChannel, event); err != nil {
			a.logger.Warn().Err(err).Str("event_id", event.ID.String()).Msg("Failed to publish audit event")
		}
	}
	return event
}

// LogQuery records a processed or rejected query.
func (a *AuditLogger) LogQuery(ctx context.Context, q QueryOutcome) AuditEvent {
	action := ActionQuery
	if q.Rejected {
		action = ActionRejected
	}
	payload := map[string]any{
		"text":        q.Text,
		"intent":      q.Intent,
		"success":     q.Success,
		"cache_hit":   q.CacheHit,
		"confidence":  q.Confidence,
		"sources":     q.Sources,
		"duration_ms": q.Duration.Milliseconds(),
	}
	if q.Error != "" {
		payload["error"] = q.Error
	}
	return a.LogEvent(ctx, AuditEvent{
		Action:       action,
		ResourceType: "query",
		Payload:      payload,
	})
}

// LogIngestion records a change to the feature index or document store.
func (a *AuditLogger) LogIngestion(ctx context.Context, action Action, resourceType, resourceID string, count int) AuditEvent {
	return a.LogEvent(ctx, AuditEvent{
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Payload:      map[string]any{"count": count},
	})
}
