package counter

import (
	"context"
	"strconv"

	"github.com/marketly-hq/marketly/internal/pkg/cache"
)

const (
	paymentsInitiatedKey = "payments:counters:initiated"
	paymentsCompletedKey = "payments:counters:completed"
	paymentsFailedKey    = "payments:counters:failed"
	webhooksReceivedKey  = "payments:counters:webhooks"
)

// AddInitiated increments the checkout-started counter for a provider in Redis
func AddInitiated(provider string) error {
	return cache.GetClient().HIncrBy(context.Background(), paymentsInitiatedKey, provider, 1).Err()
}

// AddCompleted increments the completed-payment counter for a provider in Redis
func AddCompleted(provider string) error {
	return cache.GetClient().HIncrBy(context.Background(), paymentsCompletedKey, provider, 1).Err()
}

// AddFailed increments the failed-payment counter for a provider in Redis
func AddFailed(provider string) error {
	return cache.GetClient().HIncrBy(context.Background(), paymentsFailedKey, provider, 1).Err()
}

// AddWebhookReceived increments the webhook-delivery counter for a provider in Redis
func AddWebhookReceived(provider string) error {
	return cache.GetClient().HIncrBy(context.Background(), webhooksReceivedKey, provider, 1).Err()
}

// Snapshot reads all payment counters grouped by metric then provider.
// Counters are best-effort; a missing hash reads as empty, not as an error.
func Snapshot() (map[string]map[string]int64, error) {
	ctx := context.Background()
	rdb := cache.GetClient()

	keys := map[string]string{
		"initiated": paymentsInitiatedKey,
		"completed": paymentsCompletedKey,
		"failed":    paymentsFailedKey,
		"webhooks":  webhooksReceivedKey,
	}

	out := make(map[string]map[string]int64, len(keys))
	for name, key := range keys {
		data, err := rdb.HGetAll(ctx, key).Result()
		if err != nil {
			return nil, err
		}
		metric := make(map[string]int64, len(data))
		for provider, raw := range data {
			n, perr := strconv.ParseInt(raw, 10, 64)
			if perr != nil {
				continue
			}
			metric[provider] = n
		}
		out[name] = metric
	}
	return out, nil
}
