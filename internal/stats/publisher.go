package stats

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	ReportKey = "switchfuzz:stats:%s" // switchfuzz:stats:<session>
	reportTTL = 24 * time.Hour
)

// Publisher pushes the aggregated report to redis on a fixed interval.
type Publisher struct {
	aggregator *Aggregator
	client     *redis.Client
	key        string
	interval   time.Duration
	logger     *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPublisher returns nil when there is no redis client.
func NewPublisher(aggregator *Aggregator, client *redis.Client, session string, interval time.Duration, logger *zap.Logger) *Publisher {
	if client == nil {
		return nil
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Publisher{
		aggregator: aggregator,
		client:     client,
		key:        fmt.Sprintf(ReportKey, session),
		interval:   interval,
		logger:     logger,
	}
}

func (p *Publisher) Key() string {
	return p.key
}

// Publish stores the current report once.
func (p *Publisher) Publish(ctx context.Context) error {
	payload, err := p.aggregator.JSON()
	if err != nil {
		return fmt.Errorf("failed to encode stats report: %w", err)
	}
	if err := p.client.Set(ctx, p.key, payload, reportTTL).Err(); err != nil {
		return fmt.Errorf("failed to publish stats report: %w", err)
	}
	return nil
}

func (p *Publisher) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.run(ctx)
	}()
}

// Stop publishes a final report and waits for the loop to exit.
func (p *Publisher) Stop(ctx context.Context) {
	if p.cancel != nil {
		p.cancel()
		p.wg.Wait()
	}
	if err := p.Publish(ctx); err != nil {
		p.logger.Warn("Failed to publish final stats report", zap.Error(err))
	}
}

func (p *Publisher) run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.Publish(ctx); err != nil {
				p.logger.Warn("Failed to publish stats report", zap.String("key", p.key), zap.Error(err))
			}
		}
	}
}
