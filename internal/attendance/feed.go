package attendance

import (
	"context"
	"encoding/json"

	"presence/internal/queue"
)

// QueueFeed publishes accepted records to the export queue as JSON messages.
type QueueFeed struct {
	Q queue.Queue
}

// Publish marshals the record into an export message.
func (f QueueFeed) Publish(ctx context.Context, rec Record) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return f.Q.Publish(ctx, queue.Message{Type: "attendance", Body: body})
}
