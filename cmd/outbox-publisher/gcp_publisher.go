package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/machawaste/wastelink-backend/pkg/db/models"
	"github.com/machawaste/wastelink-backend/pkg/outbox/registry"
)

type pubSubClient interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

type publisherFactory func(topic string) publisher

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
	ResumePublish(orderingKey string)
}

type publishResult interface {
	Get(context.Context) (string, error)
}

// cachedPublishers hands out one Pub/Sub publisher per topic.
func cachedPublishers(client pubSubClient) publisherFactory {
	var mu sync.Mutex
	byTopic := map[string]publisher{}
	return func(topic string) publisher {
		mu.Lock()
		defer mu.Unlock()
		if pub, ok := byTopic[topic]; ok {
			return pub
		}
		raw := client.Publisher(topic)
		if raw == nil {
			return nil
		}
		pub := gcpPublisher{raw}
		byTopic[topic] = pub
		return pub
	}
}

// publish sends the stored envelope with the aggregate id as ordering key
// and waits for the server ack.
func (s *Service) publish(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	topic := resolved.Descriptor.Topic
	pub := s.publishers(topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher not configured for topic %s", topic))
	}

	key := event.AggregateID.String()
	msg := &gcppubsub.Message{
		Data:        event.Payload,
		OrderingKey: key,
		Attributes: map[string]string{
			"event_id":       resolved.Envelope.EventID,
			"event_type":     string(event.EventType),
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   key,
			"created_at":     event.CreatedAt.Format(time.RFC3339Nano),
		},
	}

	ctx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()
	res := pub.Publish(ctx, msg)
	if res == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher returned nil for topic %s", topic))
	}
	if _, err := res.Get(ctx); err != nil {
		// An ordering key stays paused after a failure until resumed.
		pub.ResumePublish(key)
		return err
	}
	return nil
}

type gcpPublisher struct {
	*gcppubsub.Publisher
}

func (p gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return gcpResult{p.Publisher.Publish(ctx, msg)}
}

type gcpResult struct {
	*gcppubsub.PublishResult
}

func (r gcpResult) Get(ctx context.Context) (string, error) {
	if r.PublishResult == nil {
		return "", errNilPublishResult
	}
	return r.PublishResult.Get(ctx)
}
