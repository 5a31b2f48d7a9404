package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	api "github.com/sensorhub/sensorhub/api/v1alpha1"
	"github.com/sensorhub/sensorhub/internal/kvstore"
	"github.com/sensorhub/sensorhub/internal/sherrors"
	"github.com/sirupsen/logrus"
)

const eventLogTTL = 24 * time.Hour

type Event interface {
	AppendEvent(ctx context.Context, topic, eventType string, payload map[string]any) (api.Event, error)
	GetEvents(ctx context.Context, topic string, start *time.Time, limit int) ([]api.Event, error)
}

type eventStore struct {
	kv  kvstore.KVStore
	log logrus.FieldLogger
}

func NewEvent(kv kvstore.KVStore, log logrus.FieldLogger) Event {
	return &eventStore{kv: kv, log: log}
}

func eventLogKey(topic string) string {
	return fmt.Sprintf("events:%s", topic)
}

// AppendEvent writes one entry to the per-topic log. Entry ids carry the
// microsecond publish time, scores carry whole seconds for range queries, and
// each append refreshes the topic's retention window.
func (s *eventStore) AppendEvent(ctx context.Context, topic, eventType string, payload map[string]any) (api.Event, error) {
	now := time.Now().UTC()
	event := api.Event{
		Id:        fmt.Sprintf("%s:%d", topic, now.UnixMicro()),
		Topic:     topic,
		Type:      eventType,
		Payload:   payload,
		Timestamp: now,
	}

	value, err := json.Marshal(&event)
	if err != nil {
		return api.Event{}, err
	}

	key := eventLogKey(topic)
	if err := s.kv.ZAdd(ctx, key, float64(now.Unix()), string(value)); err != nil {
		return api.Event{}, sherrors.ErrorFromRedisError(err)
	}
	if err := s.kv.Expire(ctx, key, eventLogTTL); err != nil {
		return api.Event{}, sherrors.ErrorFromRedisError(err)
	}
	return event, nil
}

func (s *eventStore) GetEvents(ctx context.Context, topic string, start *time.Time, limit int) ([]api.Event, error) {
	minScore := "-inf"
	if start != nil {
		minScore = strconv.FormatInt(start.Unix(), 10)
	}

	members, err := s.kv.ZRangeByScore(ctx, eventLogKey(topic), minScore, "+inf", 0, int64(limit))
	if err != nil {
		return nil, sherrors.ErrorFromRedisError(err)
	}

	events := make([]api.Event, 0, len(members))
	for _, member := range members {
		var event api.Event
		if err := json.Unmarshal([]byte(member), &event); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, nil
}
