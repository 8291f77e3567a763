package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"dispatch-service/internal/model"
)

type fakeCoordinateStore struct {
	pings []model.CoordinatePing
	path  *model.AssignmentPath

	upserts int
}

func (f *fakeCoordinateStore) AppendPing(ctx context.Context, ping *model.CoordinatePing) error {
	if ping.ID == uuid.Nil {
		ping.ID = uuid.New()
	}
	f.pings = append(f.pings, *ping)
	return nil
}

func (f *fakeCoordinateStore) ListByAssignment(ctx context.Context, assignmentID int64) ([]model.CoordinatePing, error) {
	var out []model.CoordinatePing
	for _, p := range f.pings {
		if p.ReservationAssignmentID == assignmentID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeCoordinateStore) LatestByAssignment(ctx context.Context, assignmentID int64) (*model.CoordinatePing, error) {
	var latest *model.CoordinatePing
	for i := range f.pings {
		p := f.pings[i]
		if p.ReservationAssignmentID != assignmentID {
			continue
		}
		if latest == nil || p.RecordedAt.After(latest.RecordedAt) {
			latest = &p
		}
	}
	return latest, nil
}

func (f *fakeCoordinateStore) UpsertPath(ctx context.Context, assignmentID int64, points string) error {
	f.upserts++
	f.path = &model.AssignmentPath{
		ReservationAssignmentID: assignmentID,
		Points:                  points,
	}
	return nil
}

func (f *fakeCoordinateStore) GetPath(ctx context.Context, assignmentID int64) (*model.AssignmentPath, error) {
	if f.path == nil || f.path.ReservationAssignmentID != assignmentID {
		return nil, nil
	}
	copied := *f.path
	return &copied, nil
}

type fakeLiveCache struct {
	storage map[string][]byte
	getErr  error
	setErr  error
}

func newFakeLiveCache() *fakeLiveCache {
	return &fakeLiveCache{storage: make(map[string][]byte)}
}

func (f *fakeLiveCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if f.setErr != nil {
		return f.setErr
	}
	f.storage[key] = value
	return nil
}

func (f *fakeLiveCache) Get(ctx context.Context, key string) ([]byte, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	raw, ok := f.storage[key]
	if !ok {
		return nil, redis.Nil
	}
	return raw, nil
}

func newPathService(store *fakeCoordinateStore, cache *fakeLiveCache) *PathService {
	return NewPathService(store, cache, zerolog.Nop())
}

func TestConsolidatePathSortsByTimestamp(t *testing.T) {
	store := &fakeCoordinateStore{}
	svc := newPathService(store, newFakeLiveCache())
	ctx := context.Background()
	base := time.Date(2026, 3, 5, 10, 0, 0, 0, time.UTC)

	// Pings arrive out of timestamp order: 10:02, 10:00, 10:01.
	arrivals := []struct {
		offset time.Duration
		lat    float64
	}{
		{2 * time.Minute, 40.72},
		{0, 40.70},
		{time.Minute, 40.71},
	}
	for _, a := range arrivals {
		_, err := svc.RecordPing(ctx, RecordPingInput{
			AssignmentID: 789,
			TrackingID:   uuid.New(),
			Lat:          a.lat,
			Lng:          -74.0,
			RecordedAt:   base.Add(a.offset),
		})
		if err != nil {
			t.Fatalf("record ping: %v", err)
		}
	}

	serialized, err := svc.ConsolidatePath(ctx, 789)
	if err != nil {
		t.Fatalf("consolidate: %v", err)
	}

	var points []model.LatLng
	if err := json.Unmarshal([]byte(serialized), &points); err != nil {
		t.Fatalf("stored path is not valid JSON: %v", err)
	}
	if len(points) != 3 {
		t.Fatalf("expected 3 points, got %d", len(points))
	}
	want := []float64{40.70, 40.71, 40.72}
	for i, lat := range want {
		if points[i].Latitude != lat {
			t.Fatalf("point %d: expected lat %v, got %v", i, lat, points[i].Latitude)
		}
	}
}

func TestConsolidatePathIdempotent(t *testing.T) {
	store := &fakeCoordinateStore{}
	svc := newPathService(store, newFakeLiveCache())
	ctx := context.Background()
	base := time.Now()

	for i := 0; i < 3; i++ {
		_, err := svc.RecordPing(ctx, RecordPingInput{
			AssignmentID: 5,
			TrackingID:   uuid.New(),
			Lat:          40.0 + float64(i)/100,
			Lng:          -74.0,
			RecordedAt:   base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("record ping: %v", err)
		}
	}

	first, err := svc.ConsolidatePath(ctx, 5)
	if err != nil {
		t.Fatalf("first consolidate: %v", err)
	}
	second, err := svc.ConsolidatePath(ctx, 5)
	if err != nil {
		t.Fatalf("second consolidate: %v", err)
	}
	if first != second {
		t.Fatalf("repeat consolidation changed stored output:\n%s\n%s", first, second)
	}
	if store.upserts != 2 {
		t.Fatalf("expected 2 upserts of the single row, got %d", store.upserts)
	}
}

func TestGetPathEmptyAssignment(t *testing.T) {
	svc := newPathService(&fakeCoordinateStore{}, newFakeLiveCache())

	result, err := svc.GetPath(context.Background(), 12345)
	if err != nil {
		t.Fatalf("get path: %v", err)
	}
	if result.Malformed {
		t.Fatal("empty path flagged malformed")
	}
	if len(result.Points) != 0 {
		t.Fatalf("expected empty point list, got %d", len(result.Points))
	}
	if string(result.Raw) != "[]" {
		t.Fatalf("expected [] raw payload, got %q", result.Raw)
	}
}

func TestGetPathMalformedReturnedVerbatim(t *testing.T) {
	store := &fakeCoordinateStore{
		path: &model.AssignmentPath{
			ReservationAssignmentID: 9,
			Points:                  `{"oops": not json`,
		},
	}
	svc := newPathService(store, newFakeLiveCache())

	result, err := svc.GetPath(context.Background(), 9)
	if err != nil {
		t.Fatalf("get path: %v", err)
	}
	if !result.Malformed {
		t.Fatal("expected malformed flag")
	}
	if string(result.Raw) != `{"oops": not json` {
		t.Fatalf("raw payload altered: %q", result.Raw)
	}
}

func TestRecordPingKeepsDeadMiles(t *testing.T) {
	store := &fakeCoordinateStore{}
	svc := newPathService(store, newFakeLiveCache())
	ctx := context.Background()

	for _, dead := range []bool{true, false} {
		_, err := svc.RecordPing(ctx, RecordPingInput{
			AssignmentID: 3,
			TrackingID:   uuid.New(),
			Lat:          40.0,
			Lng:          -74.0,
			RecordedAt:   time.Now(),
			DeadMile:     dead,
		})
		if err != nil {
			t.Fatalf("record ping dead=%v: %v", dead, err)
		}
	}
	if len(store.pings) != 2 {
		t.Fatalf("expected both pings retained, got %d", len(store.pings))
	}
}

func TestLiveCoordinatesCacheHit(t *testing.T) {
	store := &fakeCoordinateStore{}
	cache := newFakeLiveCache()
	svc := newPathService(store, cache)
	ctx := context.Background()
	at := time.Date(2026, 3, 5, 10, 0, 0, 0, time.UTC)

	if _, err := svc.RecordPing(ctx, RecordPingInput{
		AssignmentID: 7,
		TrackingID:   uuid.New(),
		Lat:          41.0,
		Lng:          -73.9,
		RecordedAt:   at,
	}); err != nil {
		t.Fatalf("record ping: %v", err)
	}

	// Drop the store so only the cache can answer.
	store.pings = nil

	pos, err := svc.LiveCoordinates(ctx, 7)
	if err != nil {
		t.Fatalf("live coordinates: %v", err)
	}
	if pos == nil || pos.Latitude != 41.0 {
		t.Fatalf("unexpected cached position: %+v", pos)
	}
}

func TestLiveCoordinatesFallsBackToStore(t *testing.T) {
	store := &fakeCoordinateStore{}
	cache := newFakeLiveCache()
	cache.getErr = errors.New("connection refused")
	svc := newPathService(store, cache)
	ctx := context.Background()
	at := time.Now()

	store.pings = append(store.pings, model.CoordinatePing{
		ID:                      uuid.New(),
		ReservationAssignmentID: 8,
		Latitude:                42.0,
		Longitude:               -73.5,
		RecordedAt:              at,
	})

	pos, err := svc.LiveCoordinates(ctx, 8)
	if err != nil {
		t.Fatalf("live coordinates: %v", err)
	}
	if pos == nil || pos.Latitude != 42.0 {
		t.Fatalf("unexpected fallback position: %+v", pos)
	}
}

func TestLiveCoordinatesNoPings(t *testing.T) {
	svc := newPathService(&fakeCoordinateStore{}, newFakeLiveCache())

	pos, err := svc.LiveCoordinates(context.Background(), 999)
	if err != nil {
		t.Fatalf("live coordinates: %v", err)
	}
	if pos != nil {
		t.Fatalf("expected nil position, got %+v", pos)
	}
}
