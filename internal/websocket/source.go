package websocket

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// MessageSource yields raw payloads published on channels until ctx is done.
type MessageSource interface {
	Messages(ctx context.Context, channels ...string) <-chan []byte
}

// RedisSource reads Redis pub/sub, which is where events.RedisRelay writes.
type RedisSource struct {
	client *redis.Client
}

func NewRedisSource(client *redis.Client) *RedisSource {
	return &RedisSource{client: client}
}

func (s *RedisSource) Messages(ctx context.Context, channels ...string) <-chan []byte {
	out := make(chan []byte, 16)
	pubsub := s.client.Subscribe(ctx, channels...)

	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}
