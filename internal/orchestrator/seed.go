package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/felixgeelhaar/fortify/retry"
	log "github.com/sirupsen/logrus"
)

// UsageSource reports tokens consumed per provider since a point in time
type UsageSource interface {
	TokensUsedSince(ctx context.Context, since time.Time) (map[string]int64, error)
}

// SeedUsage loads today's consumption from the usage log into every provider's
// quota counter so a restart does not under-count.
func (o *Orchestrator) SeedUsage(ctx context.Context, source UsageSource) error {
	y, m, d := o.now().Date()
	since := time.Date(y, m, d, 0, 0, 0, 0, o.now().Location())

	retryer := retry.New[map[string]int64](retry.Config{
		MaxAttempts:   3,
		InitialDelay:  50 * time.Millisecond,
		BackoffPolicy: retry.BackoffExponential,
	})

	used, err := retryer.Do(ctx, func(ctx context.Context) (map[string]int64, error) {
		return source.TokensUsedSince(ctx, since)
	})
	if err != nil {
		return fmt.Errorf("failed to seed quota usage: %w", err)
	}

	for _, st := range o.states {
		name := st.provider.Name()
		st.provider.SetConsumed(used[name])
		o.logger.WithFields(log.Fields{
			"provider": name,
			"tokens":   used[name],
		}).Info("Seeded provider quota from usage log")
	}
	return nil
}
