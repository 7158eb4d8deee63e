package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/Daytron/revworks-sub001/internal/models"
)

// BroadcastChannel carries messages for every connected session.
const BroadcastChannel = "portal:broadcast"

// SessionChannel carries messages for one session's sockets.
func SessionChannel(sessionID uuid.UUID) string {
	return "session_updates:" + sessionID.String()
}

// Publisher is satisfied by *redis.Client.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisRelay forwards bus events to Redis pub/sub, where the websocket hub
// picks them up.
type RedisRelay struct {
	redis  Publisher
	logger *slog.Logger
	subs   []Subscription
}

func NewRedisRelay(redis Publisher, logger *slog.Logger) *RedisRelay {
	return &RedisRelay{redis: redis, logger: logger}
}

// Attach subscribes the relay to the bus.
func (r *RedisRelay) Attach(bus *Bus) {
	r.subs = append(r.subs,
		On(bus, "redis-relay", r.onAnnouncement),
		On(bus, "redis-relay", r.onSubmissionsRefreshed),
		On(bus, "redis-relay", r.onSubmissionExtracted),
	)
}

func (r *RedisRelay) Detach(bus *Bus) {
	for _, s := range r.subs {
		bus.Unsubscribe(s)
	}
	r.subs = nil
}

func (r *RedisRelay) onAnnouncement(ctx context.Context, ev AnnouncementSubmitted) error {
	return r.send(ctx, BroadcastChannel, models.WSMessage{
		Type:    "announcement",
		Payload: ev.Announcement,
	})
}

func (r *RedisRelay) onSubmissionsRefreshed(ctx context.Context, ev SubmissionsRefreshed) error {
	return r.send(ctx, SessionChannel(ev.SessionID), models.WSMessage{
		Type: "submissions_refreshed",
		Payload: models.SubmissionCounts{
			View:     ev.View,
			Pending:  ev.Pending,
			Reviewed: ev.Reviewed,
		},
	})
}

func (r *RedisRelay) onSubmissionExtracted(ctx context.Context, ev SubmissionExtracted) error {
	return r.send(ctx, SessionChannel(ev.SessionID), models.WSMessage{
		Type: "submission_extracted",
		Payload: models.ExtractionResult{
			SubmissionID: ev.SubmissionID,
			Characters:   ev.Characters,
			Error:        ev.Err,
		},
	})
}

func (r *RedisRelay) send(ctx context.Context, channel string, msg models.WSMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", msg.Type, err)
	}
	if err := r.redis.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", channel, err)
	}
	r.logger.Debug("relayed event", "channel", channel, "type", msg.Type)
	return nil
}
