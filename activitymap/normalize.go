// Package activitymap flattens account activity events into a shape
// suited for audit stores and structured logs.
package activitymap

import (
	"context"
	"strings"
	"time"

	users "github.com/goliatone/go-users"
	"go.uber.org/zap"
)

const (
	MetadataKeyActorType  = "actor_type"
	MetadataKeyActorIP    = "actor_ip"
	MetadataKeyFromStatus = "from_status"
	MetadataKeyToStatus   = "to_status"
	MetadataKeyMessage    = "message"
)

const (
	defaultObjectType = "user"
	defaultActorID    = "system"
)

// Record is the flattened event
type Record struct {
	ActorID    string         `json:"actor_id"`
	Verb       string         `json:"verb"`
	ObjectType string         `json:"object_type,omitempty"`
	ObjectID   string         `json:"object_id,omitempty"`
	Channel    string         `json:"channel,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

type Option func(*options)

type options struct {
	channel       string
	objectType    string
	actorFallback string
}

// WithDefaultChannel is used for events that carry no channel
func WithDefaultChannel(channel string) Option {
	return func(o *options) {
		o.channel = strings.TrimSpace(channel)
	}
}

func WithObjectType(objectType string) Option {
	return func(o *options) {
		o.objectType = strings.TrimSpace(objectType)
	}
}

// WithActorFallback names the actor of events without actor or user id
func WithActorFallback(actorID string) Option {
	return func(o *options) {
		o.actorFallback = strings.TrimSpace(actorID)
	}
}

// Normalize converts event into a Record. The event metadata is copied,
// never modified.
func Normalize(event users.ActivityEvent, opts ...Option) Record {
	o := options{
		channel:       users.ChannelUserActivity,
		objectType:    defaultObjectType,
		actorFallback: defaultActorID,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	return Record{
		ActorID: firstNonEmpty(
			strings.TrimSpace(event.Actor.ID),
			strings.TrimSpace(event.UserID),
			o.actorFallback,
		),
		Verb:       string(event.EventType),
		ObjectType: o.objectType,
		ObjectID:   strings.TrimSpace(event.UserID),
		Channel:    firstNonEmpty(strings.TrimSpace(event.Channel), o.channel),
		Metadata:   metadata(event),
		OccurredAt: occurredAt,
	}
}

func metadata(event users.ActivityEvent) map[string]any {
	out := make(map[string]any, len(event.Metadata)+4)
	for k, v := range event.Metadata {
		out[k] = v
	}

	setIfMissing(out, MetadataKeyActorType, strings.TrimSpace(event.Actor.Type))
	setIfMissing(out, MetadataKeyActorIP, strings.TrimSpace(event.Actor.IP))
	setIfMissing(out, MetadataKeyMessage, event.Message)

	if event.FromStatus != "" {
		out[MetadataKeyFromStatus] = string(event.FromStatus)
	}
	if event.ToStatus != "" {
		out[MetadataKeyToStatus] = string(event.ToStatus)
	}

	if len(out) == 0 {
		return nil
	}
	return out
}

func setIfMissing(m map[string]any, key, value string) {
	if value == "" {
		return
	}
	if _, ok := m[key]; !ok {
		m[key] = value
	}
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}

// ZapSink writes normalized events to a zap logger
type ZapSink struct {
	log  *zap.Logger
	opts []Option
}

var _ users.ActivitySink = (*ZapSink)(nil)

func NewZapSink(log *zap.Logger, opts ...Option) *ZapSink {
	if log == nil {
		log = zap.NewNop()
	}
	return &ZapSink{log: log.Named("activity"), opts: opts}
}

func (s *ZapSink) Record(_ context.Context, event users.ActivityEvent) error {
	r := Normalize(event, s.opts...)
	fields := []zap.Field{
		zap.String("actor_id", r.ActorID),
		zap.String("object_type", r.ObjectType),
		zap.String("object_id", r.ObjectID),
		zap.String("channel", r.Channel),
		zap.Any("metadata", r.Metadata),
		zap.Time("occurred_at", r.OccurredAt),
	}

	switch event.EventType {
	case users.ActivityEventLoginFailure,
		users.ActivityEventPasswordResetFailure,
		users.ActivityEventActivationFailure:
		s.log.Warn(r.Verb, fields...)
	default:
		s.log.Info(r.Verb, fields...)
	}
	return nil
}
