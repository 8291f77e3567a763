package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"dispatch-service/internal/model"
)

type fakeReservationSource struct {
	rows    []model.ReservationAssignment
	listErr error
}

func (f *fakeReservationSource) ListByActionCodes(ctx context.Context, codes []string, since time.Time) ([]model.ReservationAssignment, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []model.ReservationAssignment
	for _, row := range f.rows {
		for _, code := range codes {
			if row.ActionCode == code && !row.ActionAt.Before(since) {
				out = append(out, row)
			}
		}
	}
	return out, nil
}

func (f *fakeReservationSource) OldestSearchExhausted(ctx context.Context, before time.Time) (*model.ReservationAssignment, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var oldest *model.ReservationAssignment
	for i := range f.rows {
		row := f.rows[i]
		if row.ActionCode != model.ActionSearchExhausted || !row.ActionAt.Before(before) {
			continue
		}
		if oldest == nil || row.ActionAt.Before(oldest.ActionAt) {
			oldest = &row
		}
	}
	return oldest, nil
}

type fakeNotificationSink struct {
	rows    map[string]model.NotificationRecord
	devices []model.RecipientDevice

	failRecipients map[int64]error
}

func newFakeSink(devices ...model.RecipientDevice) *fakeNotificationSink {
	return &fakeNotificationSink{
		rows:           make(map[string]model.NotificationRecord),
		devices:        devices,
		failRecipients: make(map[int64]error),
	}
}

func (f *fakeNotificationSink) CreateIfAbsent(ctx context.Context, rec *model.NotificationRecord) (bool, error) {
	if err, ok := f.failRecipients[rec.RecipientID]; ok {
		return false, err
	}
	key := fmt.Sprintf("%s|%s|%d", rec.Type, rec.ReferenceKey, rec.RecipientID)
	if _, exists := f.rows[key]; exists {
		return false, nil
	}
	f.rows[key] = *rec
	return true, nil
}

func (f *fakeNotificationSink) DistinctRecipientsWithPushTokens(ctx context.Context, types ...model.RecipientType) ([]model.RecipientDevice, error) {
	var out []model.RecipientDevice
	for _, device := range f.devices {
		for _, t := range types {
			if device.RecipientType == t {
				out = append(out, device)
			}
		}
	}
	return out, nil
}

func (f *fakeNotificationSink) countByType(ntype model.NotificationType) int {
	var count int
	for _, rec := range f.rows {
		if rec.Type == ntype {
			count++
		}
	}
	return count
}

func intPtr(v int64) *int64 { return &v }

func newTestEngine(src *fakeReservationSource, sink *fakeNotificationSink) *Engine {
	return NewEngine(src, sink, Config{
		Location: time.UTC,
		Lookback: time.Hour,
	}, zerolog.Nop())
}

func TestRunOnceIsIdempotent(t *testing.T) {
	now := time.Now()
	src := &fakeReservationSource{rows: []model.ReservationAssignment{
		{
			ID:            10,
			ReservationID: 123,
			ClaimantID:    intPtr(42),
			ActionCode:    model.ActionContractorAccept,
			ActionAt:      now,
		},
		{
			ID:            11,
			ReservationID: 124,
			ContractorID:  intPtr(7),
			ActionCode:    model.ActionClaimantCancel,
			ActionAt:      now,
		},
	}}
	sink := newFakeSink()
	engine := newTestEngine(src, sink)
	ctx := context.Background()

	if err := engine.RunOnce(ctx); err != nil {
		t.Fatalf("first pass: %v", err)
	}
	firstCount := len(sink.rows)
	if firstCount == 0 {
		t.Fatal("first pass emitted nothing")
	}

	// Same state, second pass: the existence check must suppress every rule.
	if err := engine.RunOnce(ctx); err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if len(sink.rows) != firstCount {
		t.Fatalf("second pass added rows: %d -> %d", firstCount, len(sink.rows))
	}
}

func TestContractorNotFoundSingleNotification(t *testing.T) {
	src := &fakeReservationSource{rows: []model.ReservationAssignment{
		{
			ID:            20,
			ReservationID: 123,
			ActionCode:    model.ActionSearchExhausted,
			ActionAt:      time.Now(),
		},
	}}
	sink := newFakeSink(model.RecipientDevice{
		UserID:        900,
		RecipientType: model.RecipientDispatcher,
		PushToken:     "tok-900",
		IsActive:      true,
	})
	engine := newTestEngine(src, sink)
	ctx := context.Background()

	if err := engine.RunOnce(ctx); err != nil {
		t.Fatalf("first pass: %v", err)
	}
	if err := engine.RunOnce(ctx); err != nil {
		t.Fatalf("second pass: %v", err)
	}

	if got := sink.countByType(model.NotificationNeedAttention); got != 1 {
		t.Fatalf("expected exactly 1 need-attention notification, got %d", got)
	}
}

func TestNoDataFoundEscalatesOldest(t *testing.T) {
	old := time.Now().Add(-2 * time.Hour)
	src := &fakeReservationSource{rows: []model.ReservationAssignment{
		{ID: 30, ReservationID: 200, ActionCode: model.ActionSearchExhausted, ActionAt: old},
		{ID: 31, ReservationID: 201, ActionCode: model.ActionSearchExhausted, ActionAt: old.Add(30 * time.Minute)},
	}}
	sink := newFakeSink(model.RecipientDevice{
		UserID:        900,
		RecipientType: model.RecipientDispatcher,
		PushToken:     "tok-900",
		IsActive:      true,
	})
	engine := newTestEngine(src, sink)

	if err := engine.RunOnce(context.Background()); err != nil {
		t.Fatalf("pass: %v", err)
	}

	if got := sink.countByType(model.NotificationNoDataFound); got != 1 {
		t.Fatalf("expected a single escalation, got %d", got)
	}
	for _, rec := range sink.rows {
		if rec.Type != model.NotificationNoDataFound {
			continue
		}
		if rec.ReservationID != 200 {
			t.Fatalf("escalated reservation %d, expected oldest (200)", rec.ReservationID)
		}
		if rec.Payload["reservation_id"] != int64(200) || rec.Payload["action_code"] != model.ActionSearchExhausted {
			t.Fatalf("escalation payload missing action fields: %+v", rec.Payload)
		}
		// The stated staleness matches the configured lookback window.
		if !strings.Contains(rec.Body, time.Hour.String()) {
			t.Fatalf("escalation body does not state the lookback window: %q", rec.Body)
		}
	}
}

func TestAssignmentCreatedFanOutCarriesTokens(t *testing.T) {
	src := &fakeReservationSource{rows: []model.ReservationAssignment{
		{
			ID:            40,
			ReservationID: 300,
			ActionCode:    model.ActionAssignmentCreated,
			ActionAt:      time.Now(),
			PickupAddress: "12 Main St",
		},
	}}
	sink := newFakeSink(
		model.RecipientDevice{UserID: 1, RecipientType: model.RecipientContractor, PushToken: "tok-1", IsActive: true},
		model.RecipientDevice{UserID: 2, RecipientType: model.RecipientContractor, PushToken: "tok-2", IsActive: true},
		model.RecipientDevice{UserID: 3, RecipientType: model.RecipientDispatcher, PushToken: "tok-3", IsActive: true},
	)
	engine := newTestEngine(src, sink)

	if err := engine.RunOnce(context.Background()); err != nil {
		t.Fatalf("pass: %v", err)
	}

	if got := sink.countByType(model.NotificationAssignmentCreated); got != 2 {
		t.Fatalf("expected fan-out to 2 contractors, got %d", got)
	}
	for _, rec := range sink.rows {
		if rec.Type == model.NotificationAssignmentCreated && rec.PushToken == "" {
			t.Fatal("fan-out row missing push token snapshot")
		}
	}
}

func TestCandidateFailureDoesNotAbortBatch(t *testing.T) {
	now := time.Now()
	src := &fakeReservationSource{rows: []model.ReservationAssignment{
		{ID: 50, ReservationID: 400, ClaimantID: intPtr(42), ActionCode: model.ActionContractorAccept, ActionAt: now},
		{ID: 51, ReservationID: 401, ClaimantID: intPtr(43), ActionCode: model.ActionContractorAccept, ActionAt: now},
	}}
	sink := newFakeSink()
	sink.failRecipients[42] = errors.New("insert timeout")
	engine := newTestEngine(src, sink)

	if err := engine.RunOnce(context.Background()); err != nil {
		t.Fatalf("pass failed despite per-candidate isolation: %v", err)
	}

	if got := sink.countByType(model.NotificationContractorAccepted); got != 1 {
		t.Fatalf("sibling candidate not processed: got %d rows", got)
	}
}

func TestListingFailureIsFatal(t *testing.T) {
	src := &fakeReservationSource{listErr: errors.New("dial tcp: connection refused")}
	engine := newTestEngine(src, newFakeSink())

	if err := engine.RunOnce(context.Background()); err == nil {
		t.Fatal("expected store connectivity failure to abort the pass")
	}
}

func TestSentAtStampedInConfiguredZone(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	src := &fakeReservationSource{rows: []model.ReservationAssignment{
		{ID: 60, ReservationID: 500, ClaimantID: intPtr(42), ActionCode: model.ActionContractorAccept, ActionAt: time.Now()},
	}}
	sink := newFakeSink()
	engine := NewEngine(src, sink, Config{Location: loc, Lookback: time.Hour}, zerolog.Nop())

	if err := engine.RunOnce(context.Background()); err != nil {
		t.Fatalf("pass: %v", err)
	}
	for _, rec := range sink.rows {
		if rec.SentAt.Location().String() != loc.String() {
			t.Fatalf("sent_at stamped in %s, expected %s", rec.SentAt.Location(), loc)
		}
	}
}
