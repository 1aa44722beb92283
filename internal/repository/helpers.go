package repository

import (
	"context"
	"encoding/json"

	"whalecycle/backend/pkg/redis"
)

// mgetJSON loads keys in one round trip and decodes each present value into a
// fresh destination from next. Missing keys are skipped.
func mgetJSON(ctx context.Context, client *redis.Client, keys []string, next func() interface{}) error {
	if len(keys) == 0 {
		return nil
	}

	values, err := client.MGet(ctx, keys...)
	if err != nil {
		return err
	}

	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		if err := json.Unmarshal([]byte(s), next()); err != nil {
			return err
		}
	}
	return nil
}
