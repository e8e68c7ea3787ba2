package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/IBM/sarama"

	appchat "threadmarket/internal/app/chat"
	domainchat "threadmarket/internal/domain/chat"
)

// ChangeNotifier publishes conversation change events to Kafka, keyed by
// conversation id so changes to one conversation stay ordered.
type ChangeNotifier struct {
	Producer *Producer
	Topic    string
}

func (n ChangeNotifier) ConversationChanged(ctx context.Context, event domainchat.ChangeEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode change event: %w", err)
	}
	return n.Producer.Publish(ctx, n.Topic, event.ConversationID, payload, map[string]string{
		"kind": string(event.Kind),
	})
}

// InboxRefresher consumes change events and reloads the conversation lists
// of every affected participant. Reloads are idempotent, so duplicate and
// re-delivered events are harmless.
type InboxRefresher struct {
	Inboxes *appchat.Inboxes
	Logger  *slog.Logger
}

func (r InboxRefresher) Handle(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var event domainchat.ChangeEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		if r.Logger != nil {
			r.Logger.Warn("dropping undecodable change event", "topic", msg.Topic, "offset", msg.Offset, "error", err)
		}
		// Do not poison the partition over one bad payload.
		return nil
	}
	r.Inboxes.Notify(ctx, event.Participants...)
	return nil
}
