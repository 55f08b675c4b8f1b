package users

import (
	"context"
	"time"
)

// ActivityEventType is the log category of a security event
type ActivityEventType string

const (
	ActivityEventLoginSuccess         ActivityEventType = "login"
	ActivityEventLoginFailure         ActivityEventType = "invalidLogin"
	ActivityEventPasswordChanged      ActivityEventType = "passwordChanged"
	ActivityEventPasswordResetRequest ActivityEventType = "passwordResetRequested"
	ActivityEventPasswordReset        ActivityEventType = "passwordReset"
	ActivityEventPasswordResetFailure ActivityEventType = "invalidPasswordReset"
	ActivityEventActivated            ActivityEventType = "activated"
	ActivityEventActivationFailure    ActivityEventType = "invalidActivation"
	ActivityEventRegistered           ActivityEventType = "registered"
	ActivityEventUserStatusChanged    ActivityEventType = "statusChanged"
	ActivityEventPreferenceChanged    ActivityEventType = "preferenceChanged"
)

const (
	ChannelUserActivity       = "user.activity"
	ChannelAccountActivation  = "user.activity.activateAccount"
	ChannelUserAdministration = "user.admin"
)

// ActivityEvent captures audit-friendly information about an action.
type ActivityEvent struct {
	EventType  ActivityEventType
	Channel    string
	Message    string
	Actor      ActorRef
	UserID     string
	FromStatus UserStatus
	ToStatus   UserStatus
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}

// LoggerActivitySink writes events to a Logger. Failures are logged as
// warnings, everything else as info.
type LoggerActivitySink struct {
	Logger Logger
}

func (s LoggerActivitySink) Record(_ context.Context, event ActivityEvent) error {
	logger := s.Logger
	if logger == nil {
		logger = defLogger{}
	}

	args := []any{
		"category", string(event.EventType),
		"channel", event.Channel,
		"user_id", event.UserID,
		"actor_ip", event.Actor.IP,
	}
	if event.FromStatus != "" || event.ToStatus != "" {
		args = append(args, "from", event.FromStatus, "to", event.ToStatus)
	}
	for k, v := range event.Metadata {
		args = append(args, k, v)
	}

	switch event.EventType {
	case ActivityEventLoginFailure, ActivityEventPasswordResetFailure, ActivityEventActivationFailure:
		logger.Warn(event.Message, args...)
	default:
		logger.Info(event.Message, args...)
	}
	return nil
}

// MultiActivitySink fans events out to every sink, returning the first error
type MultiActivitySink []ActivitySink

func (m MultiActivitySink) Record(ctx context.Context, event ActivityEvent) error {
	var first error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Record(ctx, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// activityRecorder is embedded by services that emit events
type activityRecorder struct {
	sink   ActivitySink
	logger Logger
	now    func() time.Time
}

func newActivityRecorder() activityRecorder {
	return activityRecorder{
		sink:   noopActivitySink{},
		logger: defLogger{},
		now:    time.Now,
	}
}

func (r activityRecorder) record(ctx context.Context, event ActivityEvent) {
	if event.Channel == "" {
		event.Channel = ChannelUserActivity
	}

	if event.Actor == (ActorRef{}) {
		event.Actor = ActorFromContext(ctx)
	}

	if event.Metadata == nil {
		event.Metadata = map[string]any{}
	}

	if event.OccurredAt.IsZero() {
		event.OccurredAt = r.now()
	}

	if err := normalizeActivitySink(r.sink).Record(ctx, event); err != nil {
		r.logger.Warn("activity sink record error", "error", err)
	}
}
