package bus

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/joshyvodetaene/chatual-sub000/internal/config"
)

// Event is one room payload relayed between instances. Origin carries the
// publishing instance id so subscribers can skip their own events.
type Event struct {
	Origin        string `json:"origin"`
	RoomID        string `json:"roomId"`
	ExcludeUserID string `json:"excludeUserId,omitempty"`
	Payload       []byte `json:"payload"`
}

// RedisBus relays room events across server instances via redis pub/sub.
type RedisBus struct {
	rdb *redis.Client
	log *slog.Logger
}

// NewRedisBus connects to redis and verifies connectivity.
func NewRedisBus(ctx context.Context, cfg config.RedisConfig, log *slog.Logger) (*RedisBus, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.Addr,
		DB:   cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &RedisBus{rdb: rdb, log: log}, nil
}

// Publish sends an event to the channel for its room.
func (b *RedisBus) Publish(ctx context.Context, ev Event) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, channel(ev.RoomID), raw).Err()
}

// Subscribe listens on all room channels and invokes fn for every event
// published by another instance. Blocks until ctx is canceled.
func (b *RedisBus) Subscribe(ctx context.Context, origin string, fn func(Event)) {
	pubsub := b.rdb.PSubscribe(ctx, channel("*"))
	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			_ = pubsub.Close()
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				b.log.Warn("bus event decode", "err", err)
				continue
			}
			if ev.Origin == origin || ev.RoomID == "" {
				continue
			}
			fn(ev)
		}
	}
}

// Close shuts down the redis connection.
func (b *RedisBus) Close() {
	_ = b.rdb.Close()
}

func channel(roomID string) string {
	return "chatual:room:" + roomID
}
