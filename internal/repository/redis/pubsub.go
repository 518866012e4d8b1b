package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// EventsPubSub fans out "availability changed" notices so other instances can
// drop their cached projections of an event.
type EventsPubSub struct {
	rdb     *redis.Client
	channel string
}

func NewEventsPubSub(rdb *redis.Client) *EventsPubSub {
	return &EventsPubSub{
		rdb:     rdb,
		channel: ChannelEventsChanged(),
	}
}

type changeNotice struct {
	EventID    int64     `json:"event_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (p *EventsPubSub) PublishEventChanged(ctx context.Context, eventID int64) error {
	b, _ := json.Marshal(changeNotice{
		EventID:    eventID,
		OccurredAt: time.Now().UTC(),
	})

	return p.rdb.Publish(ctx, p.channel, b).Err()
}

// Subscribe blocks, invoking handler for every notice until ctx is done.
func (p *EventsPubSub) Subscribe(ctx context.Context, handler func(ctx context.Context, eventID int64)) error {
	sub := p.rdb.Subscribe(ctx, p.channel)
	defer sub.Close()

	ch := sub.Channel(redis.WithChannelSize(128))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var n changeNotice
			if err := json.Unmarshal([]byte(m.Payload), &n); err == nil && n.EventID != 0 {
				handler(ctx, n.EventID)
			}
		}
	}
}
