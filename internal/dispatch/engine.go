package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"dispatch-service/internal/model"
)

// ReservationSource supplies the back-office state the rules re-evaluate each
// polling pass.
type ReservationSource interface {
	ListByActionCodes(ctx context.Context, codes []string, since time.Time) ([]model.ReservationAssignment, error)
	OldestSearchExhausted(ctx context.Context, before time.Time) (*model.ReservationAssignment, error)
}

// NotificationSink persists emitted notifications. CreateIfAbsent must be a
// conditional write keyed on (type, reference key, recipient) so every rule
// stays idempotent under repeated polling.
type NotificationSink interface {
	CreateIfAbsent(ctx context.Context, rec *model.NotificationRecord) (bool, error)
	DistinctRecipientsWithPushTokens(ctx context.Context, types ...model.RecipientType) ([]model.RecipientDevice, error)
}

type Config struct {
	// Location is the zone stamped on every sent_at; injected, never a
	// process-wide setting.
	Location *time.Location
	// Lookback bounds how far back a pass re-reads action rows.
	Lookback time.Duration
	// CreatedBy labels rows written by this engine.
	CreatedBy string
}

// Engine runs the polling notification rules. It holds no state between
// passes; every pass re-derives its decisions from the store.
type Engine struct {
	reservations  ReservationSource
	notifications NotificationSink
	cfg           Config
	log           zerolog.Logger
	now           func() time.Time
}

func NewEngine(reservations ReservationSource, notifications NotificationSink, cfg Config, log zerolog.Logger) *Engine {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = 24 * time.Hour
	}
	if cfg.CreatedBy == "" {
		cfg.CreatedBy = "dispatch-engine"
	}
	return &Engine{
		reservations:  reservations,
		notifications: notifications,
		cfg:           cfg,
		log:           log,
		now:           time.Now,
	}
}

// RunOnce executes every rule against the current store state. A rule's
// candidate listing failing means the store is unreachable and aborts the
// pass; a failure on a single candidate is logged and skipped so the rest of
// the batch still runs.
func (e *Engine) RunOnce(ctx context.Context) error {
	since := e.now().Add(-e.cfg.Lookback)

	rules := []struct {
		name string
		run  func(context.Context, time.Time) error
	}{
		{"contractor-accept-cancel", e.contractorActionRule},
		{"claimant-accept-cancel", e.claimantActionRule},
		{"assignment-created", e.assignmentCreatedRule},
		{"contractor-not-found", e.needAttentionRule},
		{"no-data-found", e.noDataFoundRule},
	}

	for _, rule := range rules {
		if err := rule.run(ctx, since); err != nil {
			return fmt.Errorf("rule %s: %w", rule.name, err)
		}
	}
	return nil
}

// emit stamps and conditionally inserts one notification. A duplicate is a
// quiet skip, not an error.
func (e *Engine) emit(ctx context.Context, rec *model.NotificationRecord) error {
	rec.ReferenceID = uuid.New()
	rec.SentAt = e.now().In(e.cfg.Location)
	rec.CreatedBy = e.cfg.CreatedBy

	created, err := e.notifications.CreateIfAbsent(ctx, rec)
	if err != nil {
		return err
	}
	if !created {
		e.log.Debug().
			Str("type", string(rec.Type)).
			Str("reference_key", rec.ReferenceKey).
			Int64("recipient_id", rec.RecipientID).
			Msg("notification already sent, skipping")
	}
	return nil
}

// skipCandidate logs a per-candidate failure without aborting the batch.
func (e *Engine) skipCandidate(rule string, assignmentID int64, err error) {
	e.log.Error().
		Err(err).
		Str("rule", rule).
		Int64("assignment_id", assignmentID).
		Msg("candidate skipped")
}
