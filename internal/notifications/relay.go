package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rxledger/pharmacy-backend/pkg/enums"
	"github.com/rxledger/pharmacy-backend/pkg/instance"
	"github.com/rxledger/pharmacy-backend/pkg/logger"
	"github.com/rxledger/pharmacy-backend/pkg/metrics"
	rxredis "github.com/rxledger/pharmacy-backend/pkg/redis"
)

// Broker is the pub/sub surface of the Redis client.
type Broker interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	PSubscribe(ctx context.Context, pattern string) (<-chan rxredis.Message, error)
	NotifyChannel(tenantID string) string
	NotifyPattern() string
}

type envelope struct {
	Origin    string                  `json:"origin"`
	TenantID  uuid.UUID               `json:"tenantId"`
	Event     enums.NotificationEvent `json:"event"`
	Payload   json.RawMessage         `json:"payload,omitempty"`
	EmittedAt time.Time               `json:"emittedAt"`
}

// RedisRelay shares hub events between instances. Local events are published
// on the tenant's notify channel; events from other instances are re-emitted
// into the local hub. An instance ignores its own echoes.
type RedisRelay struct {
	hub        *Hub
	broker     Broker
	instanceID string
	logg       *logger.Logger
	metrics    *metrics.NotificationMetrics
}

// NewRedisRelay builds a relay identified by the worker instance id.
func NewRedisRelay(hub *Hub, broker Broker, logg *logger.Logger, m *metrics.NotificationMetrics) (*RedisRelay, error) {
	if hub == nil {
		return nil, fmt.Errorf("notification hub required")
	}
	if broker == nil {
		return nil, fmt.Errorf("redis broker required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &RedisRelay{
		hub:        hub,
		broker:     broker,
		instanceID: instance.GetID(),
		logg:       logg,
		metrics:    m,
	}, nil
}

// InstanceID is the origin stamped on published events.
func (r *RedisRelay) InstanceID() string {
	return r.instanceID
}

// Run relays in both directions until ctx is canceled.
func (r *RedisRelay) Run(ctx context.Context) error {
	inbound, err := r.broker.PSubscribe(ctx, r.broker.NotifyPattern())
	if err != nil {
		return err
	}
	local := r.hub.SubscribeAll()
	defer local.Close()

	logCtx := r.logg.WithField(ctx, "instance_id", r.instanceID)
	r.logg.Info(logCtx, "notification relay started")
	for {
		select {
		case <-ctx.Done():
			r.logg.Info(logCtx, "notification relay stopped")
			return nil
		case n, ok := <-local.C:
			if !ok {
				return nil
			}
			if n.Origin != "" {
				continue
			}
			r.publish(ctx, n)
		case msg, ok := <-inbound:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("notification subscription closed")
			}
			r.process(ctx, msg)
		}
	}
}

func (r *RedisRelay) publish(ctx context.Context, n Notification) {
	logCtx := r.logg.WithFields(ctx, map[string]any{
		"tenant_id": n.TenantID.String(),
		"event":     string(n.Event),
	})
	payload, err := json.Marshal(n.Payload)
	if err != nil {
		r.logg.Error(logCtx, "encode notification payload", err)
		return
	}
	raw, err := json.Marshal(envelope{
		Origin:    r.instanceID,
		TenantID:  n.TenantID,
		Event:     n.Event,
		Payload:   payload,
		EmittedAt: n.EmittedAt,
	})
	if err != nil {
		r.logg.Error(logCtx, "encode notification envelope", err)
		return
	}
	if err := r.broker.Publish(ctx, r.broker.NotifyChannel(n.TenantID.String()), raw); err != nil {
		r.logg.Error(logCtx, "publish notification", err)
		return
	}
	r.metrics.Inc(string(n.Event), metrics.NotificationRelayed)
}

func (r *RedisRelay) process(ctx context.Context, msg rxredis.Message) {
	logCtx := r.logg.WithField(ctx, "channel", msg.Channel)
	var env envelope
	if err := json.Unmarshal(msg.Payload, &env); err != nil {
		r.logg.Warn(logCtx, "skipping undecodable notification: "+err.Error())
		return
	}
	if env.Origin == r.instanceID {
		return
	}
	if env.Origin == "" || env.TenantID == uuid.Nil || !env.Event.IsValid() {
		r.logg.Warn(logCtx, "skipping malformed notification")
		return
	}
	r.metrics.Inc(string(env.Event), metrics.NotificationReceived)
	r.hub.Publish(ctx, Notification{
		TenantID:  env.TenantID,
		Event:     env.Event,
		Payload:   env.Payload,
		EmittedAt: env.EmittedAt,
		Origin:    env.Origin,
	})
}
