package events

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"switchfuzz/internal/types"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Notifier receives every phase transition of the scheduler.
type Notifier interface {
	Notify(ctx context.Context, event types.PhaseEvent) error
}

// Broadcaster fans an event out to every configured sink. A failing sink
// never stops the scheduler, it is only logged.
type Broadcaster struct {
	notifiers []Notifier
	logger    *zap.Logger
}

type BroadcasterParams struct {
	fx.In

	Logger    *zap.Logger
	Notifiers []Notifier `group:"notifiers"`
}

func NewBroadcaster(p BroadcasterParams) *Broadcaster {
	return New(p.Logger, p.Notifiers...)
}

// New drops the nil notifiers returned by disabled sinks.
func New(logger *zap.Logger, notifiers ...Notifier) *Broadcaster {
	b := &Broadcaster{logger: logger}
	for _, n := range notifiers {
		v := reflect.ValueOf(n)
		if n == nil || (v.Kind() == reflect.Ptr && v.IsNil()) {
			continue
		}
		b.notifiers = append(b.notifiers, n)
	}
	return b
}

func (b *Broadcaster) Len() int {
	if b == nil {
		return 0
	}
	return len(b.notifiers)
}

// Notify returns the joined sink errors after logging each of them.
func (b *Broadcaster) Notify(ctx context.Context, event types.PhaseEvent) error {
	if b == nil {
		return nil
	}
	b.logger.Debug("phase event",
		zap.String("kind", string(event.Kind)),
		zap.Int("phase", event.Phase.Index),
		zap.String("engine", event.Phase.Engine))

	var errs []error
	for _, n := range b.notifiers {
		if err := n.Notify(ctx, event); err != nil {
			b.logger.Warn("failed to deliver phase event",
				zap.String("sink", fmt.Sprintf("%T", n)),
				zap.String("kind", string(event.Kind)),
				zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// AsNotifier annotates a sink constructor for the "notifiers" group.
func AsNotifier(f any) any {
	return fx.Annotate(f, fx.As(new(Notifier)), fx.ResultTags(`group:"notifiers"`))
}

var Module = fx.Options(
	fx.Provide(
		AsNotifier(NewMQNotifier),
		AsNotifier(NewDBNotifier),
		AsNotifier(NewRedisNotifier),
		NewBroadcaster,
	),
)
