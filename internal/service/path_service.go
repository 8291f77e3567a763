package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"dispatch-service/internal/model"
)

const liveCoordinateTTL = 5 * time.Minute

// CoordinateStore is the persistence surface of the path aggregator.
type CoordinateStore interface {
	AppendPing(ctx context.Context, ping *model.CoordinatePing) error
	ListByAssignment(ctx context.Context, assignmentID int64) ([]model.CoordinatePing, error)
	LatestByAssignment(ctx context.Context, assignmentID int64) (*model.CoordinatePing, error)
	UpsertPath(ctx context.Context, assignmentID int64, points string) error
	GetPath(ctx context.Context, assignmentID int64) (*model.AssignmentPath, error)
}

// LiveCache holds the last known device position per assignment. A miss is
// reported as redis.Nil; any other failure degrades to the store.
type LiveCache interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
}

type PathService struct {
	store CoordinateStore
	cache LiveCache
	log   zerolog.Logger
}

func NewPathService(store CoordinateStore, cache LiveCache, log zerolog.Logger) *PathService {
	return &PathService{store: store, cache: cache, log: log}
}

type RecordPingInput struct {
	AssignmentID int64
	TrackingID   uuid.UUID
	Lat          float64
	Lng          float64
	RecordedAt   time.Time
	DeadMile     bool
}

// RecordPing appends one raw GPS sample. Dead-mile and revenue pings are both
// retained for later mileage reconciliation. The live-coordinate cache is
// refreshed on a best-effort basis.
func (s *PathService) RecordPing(ctx context.Context, input RecordPingInput) (*model.CoordinatePing, error) {
	if input.RecordedAt.IsZero() {
		return nil, ErrInvalidInput
	}

	ping := &model.CoordinatePing{
		ReservationAssignmentID: input.AssignmentID,
		TrackingID:              input.TrackingID,
		Latitude:                input.Lat,
		Longitude:               input.Lng,
		RecordedAt:              input.RecordedAt,
		DeadMile:                input.DeadMile,
	}
	if err := s.store.AppendPing(ctx, ping); err != nil {
		return nil, err
	}

	s.cacheLive(ctx, input.AssignmentID, model.LivePosition{
		Latitude:   input.Lat,
		Longitude:  input.Lng,
		RecordedAt: input.RecordedAt,
		DeadMile:   input.DeadMile,
	})

	return ping, nil
}

// ConsolidatePath rebuilds the single stored route of an assignment from its
// pings. Pings are re-sorted by recorded time before serializing, so samples
// that arrived out of order land in timestamp order, and a repeat call with
// no new pings writes byte-identical content.
func (s *PathService) ConsolidatePath(ctx context.Context, assignmentID int64) (string, error) {
	pings, err := s.store.ListByAssignment(ctx, assignmentID)
	if err != nil {
		return "", err
	}

	sort.SliceStable(pings, func(i, j int) bool {
		return pings[i].RecordedAt.Before(pings[j].RecordedAt)
	})

	points := make([]model.LatLng, 0, len(pings))
	for _, ping := range pings {
		points = append(points, model.LatLng{
			Latitude:  ping.Latitude,
			Longitude: ping.Longitude,
		})
	}

	serialized, err := json.Marshal(points)
	if err != nil {
		return "", err
	}

	if err := s.store.UpsertPath(ctx, assignmentID, string(serialized)); err != nil {
		return "", err
	}
	return string(serialized), nil
}

// PathResult carries a stored path back to the caller. When the blob parses,
// Points holds the decoded route; when it does not, Raw is handed through
// verbatim and Malformed is set so map clients still get something to render.
// TODO: repair malformed rows once the legacy writers are retired.
type PathResult struct {
	Points    []model.LatLng  `json:"points"`
	Raw       json.RawMessage `json:"-"`
	Malformed bool            `json:"-"`
}

// GetPath loads the consolidated route. An assignment with no stored path
// yields an empty list, never an error.
func (s *PathService) GetPath(ctx context.Context, assignmentID int64) (*PathResult, error) {
	path, err := s.store.GetPath(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	if path == nil || path.Points == "" {
		return &PathResult{Points: []model.LatLng{}, Raw: json.RawMessage("[]")}, nil
	}

	var points []model.LatLng
	if err := json.Unmarshal([]byte(path.Points), &points); err != nil {
		s.log.Warn().
			Int64("assignment_id", assignmentID).
			Msg("stored path is not valid JSON, returning verbatim")
		return &PathResult{Raw: json.RawMessage(path.Points), Malformed: true}, nil
	}
	if points == nil {
		points = []model.LatLng{}
	}
	return &PathResult{Points: points, Raw: json.RawMessage(path.Points)}, nil
}

// LiveCoordinates serves the last known position, cache first with a store
// fallback that re-primes the cache. Nil means no ping has ever arrived.
func (s *PathService) LiveCoordinates(ctx context.Context, assignmentID int64) (*model.LivePosition, error) {
	key := liveCoordinateKey(assignmentID)

	if raw, err := s.cache.Get(ctx, key); err == nil {
		var pos model.LivePosition
		if err := json.Unmarshal(raw, &pos); err == nil {
			return &pos, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		s.log.Warn().Err(err).Msg("live coordinate cache read failed")
	}

	ping, err := s.store.LatestByAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	if ping == nil {
		return nil, nil
	}

	pos := model.LivePosition{
		Latitude:   ping.Latitude,
		Longitude:  ping.Longitude,
		RecordedAt: ping.RecordedAt,
		DeadMile:   ping.DeadMile,
	}
	s.cacheLive(ctx, assignmentID, pos)
	return &pos, nil
}

func (s *PathService) cacheLive(ctx context.Context, assignmentID int64, pos model.LivePosition) {
	raw, err := json.Marshal(pos)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, liveCoordinateKey(assignmentID), raw, liveCoordinateTTL); err != nil {
		s.log.Warn().Err(err).Msg("live coordinate cache write failed")
	}
}

func liveCoordinateKey(assignmentID int64) string {
	return fmt.Sprintf("assignment:%d:live", assignmentID)
}

// RedisLiveCache adapts a redis client to the LiveCache interface.
type RedisLiveCache struct {
	client *redis.Client
}

func NewRedisLiveCache(client *redis.Client) *RedisLiveCache {
	return &RedisLiveCache{client: client}
}

func (c *RedisLiveCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

func (c *RedisLiveCache) Get(ctx context.Context, key string) ([]byte, error) {
	raw, err := c.client.Get(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	return []byte(raw), nil
}
