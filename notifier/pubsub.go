package notifier

import (
	"context"
	"encoding/json"

	"cloud.google.com/go/pubsub"
	"github.com/efbdata/impact_dashboard/models"
)

// PubSubPublisher forwards change events to a Google Pub/Sub topic for
// consumers outside this service.
type PubSubPublisher struct {
	Topic *pubsub.Topic
}

func NewPubSubPublisher(topic *pubsub.Topic) *PubSubPublisher {
	return &PubSubPublisher{Topic: topic}
}

func (p *PubSubPublisher) Publish(ctx context.Context, event models.ChangeEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	result := p.Topic.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"change_type": string(event.Type),
			"section_key": event.SectionKey,
		},
	})
	_, err = result.Get(ctx)
	return err
}
