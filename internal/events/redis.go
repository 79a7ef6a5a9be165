package events

import (
	"context"
	"fmt"
	"time"

	"switchfuzz/internal/types"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

// PhaseStatusKey holds a hash describing the current phase of a session.
const PhaseStatusKey = "switchfuzz:phase:%s"

type RedisNotifier struct {
	client *redis.Client
}

type RedisNotifierParams struct {
	fx.In

	Client *redis.Client `optional:"true"`
}

// NewRedisNotifier returns nil without redis.
func NewRedisNotifier(p RedisNotifierParams) *RedisNotifier {
	if p.Client == nil {
		return nil
	}
	return &RedisNotifier{client: p.Client}
}

func (n *RedisNotifier) Notify(ctx context.Context, event types.PhaseEvent) error {
	key := fmt.Sprintf(PhaseStatusKey, event.Phase.Session)
	fields := map[string]any{
		"phase":      event.Phase.Index,
		"engine":     event.Phase.Engine,
		"status":     string(PhaseStatus(event.Kind)),
		"event":      string(event.Kind),
		"output_dir": event.Phase.OutputDir,
		"updated_at": event.Time.UTC().Format(time.RFC3339),
	}
	if event.TraceContext != "" {
		fields["trace_context"] = event.TraceContext
	}
	if err := n.client.HSet(ctx, key, fields).Err(); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}
