package notifier

import (
	"context"
	"encoding/json"
	"time"

	"github.com/efbdata/impact_dashboard/config"
	"github.com/efbdata/impact_dashboard/models"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const DefaultChannel = "dashboard:changes"

// RedisPublisher publishes change events on a Redis channel so every
// instance behind the load balancer can feed its own Hub.
type RedisPublisher struct {
	Client  *redis.Client
	Channel string
}

func NewRedisPublisher(client *redis.Client, channel string) *RedisPublisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisPublisher{Client: client, Channel: channel}
}

func (p *RedisPublisher) Publish(ctx context.Context, event models.ChangeEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.Client.Publish(ctx, p.Channel, payload).Err()
}

// RedisRelay subscribes to the change channel and forwards events to a
// local publisher, reconnecting until its context ends.
type RedisRelay struct {
	Client  *redis.Client
	Channel string
	Target  Publisher
	Logger  *logrus.Logger

	MaxBackoff time.Duration
}

func NewRedisRelay(client *redis.Client, channel string, target Publisher, logger *logrus.Logger) *RedisRelay {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = config.GetLogger()
	}
	return &RedisRelay{Client: client, Channel: channel, Target: target, Logger: logger, MaxBackoff: 30 * time.Second}
}

// Run blocks until ctx is done.
func (r *RedisRelay) Run(ctx context.Context) {
	var attempt int
	for ctx.Err() == nil {
		attempt++
		err := r.consume(ctx)
		if ctx.Err() != nil {
			return
		}
		sleep := time.Second * time.Duration(1<<min(attempt, 5))
		if sleep > r.MaxBackoff {
			sleep = r.MaxBackoff
		}
		r.Logger.WithFields(logrus.Fields{
			"field":   "RedisRelay",
			"channel": r.Channel,
			"attempt": attempt,
		}).Warnf("change subscription lost: %v; retrying in %s", err, sleep)
		select {
		case <-ctx.Done():
			return
		case <-time.After(sleep):
		}
	}
}

func (r *RedisRelay) consume(ctx context.Context) error {
	sub := r.Client.Subscribe(ctx, r.Channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	for {
		msg, err := sub.ReceiveMessage(ctx)
		if err != nil {
			return err
		}
		var event models.ChangeEvent
		if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
			config.LogError(r.Logger, "notifier", "RedisRelay.consume", "decode change event", msg.Payload, err)
			continue
		}
		if err := r.Target.Publish(ctx, event); err != nil {
			config.LogError(r.Logger, "notifier", "RedisRelay.consume", "forward change event", event.RecordID, err)
		}
	}
}
