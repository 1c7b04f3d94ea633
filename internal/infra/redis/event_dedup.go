package redis

import (
	"context"
	"fmt"
	"time"
)

// EventDeduper drops webhook deliveries that were already accepted. The
// provider retries deliveries for days, so seen event ids are held for 72h.
type EventDeduper struct {
	client RedisClient
	ttl    time.Duration
}

func NewEventDeduper(client RedisClient) *EventDeduper {
	return &EventDeduper{client: client, ttl: 72 * time.Hour}
}

// MarkSeen returns true when this delivery is the first for the event id.
// On a redis failure it reports first=true: reprocessing is safe because the
// reconciler is idempotent, dropping an event is not.
func (d *EventDeduper) MarkSeen(ctx context.Context, eventID string) (bool, error) {
	first, err := d.client.SetNX(ctx, eventKey(eventID), 1, d.ttl)
	if err != nil {
		return true, err
	}
	return first, nil
}

// Forget releases an event id so a redelivery can be accepted. Used when a
// marked event could not be queued for processing.
func (d *EventDeduper) Forget(ctx context.Context, eventID string) error {
	return d.client.Del(ctx, eventKey(eventID))
}

func eventKey(eventID string) string {
	return fmt.Sprintf("webhook:event:%s", eventID)
}
