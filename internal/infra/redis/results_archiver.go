package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"livequiz-service/internal/domain"
)

// ResultsArchiver keeps final session results in Redis: one JSON value per
// session plus a recency list, so monitors can show recent outcomes without
// touching the primary store.
type ResultsArchiver struct {
	client *redis.Client
	ttl    time.Duration
}

func NewResultsArchiver(client *redis.Client, ttl time.Duration) *ResultsArchiver {
	return &ResultsArchiver{client: client, ttl: ttl}
}

func (a *ResultsArchiver) ArchiveResults(ctx context.Context, res domain.SessionResults) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal session results: %w", err)
	}
	key := "quiz:results:" + res.SessionID

	pipe := a.client.Pipeline()
	pipe.Set(ctx, key, data, a.ttl)
	pipe.LPush(ctx, "quiz:results:recent", res.SessionID)
	pipe.LTrim(ctx, "quiz:results:recent", 0, 99)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("archive session results: %w", err)
	}
	return nil
}

// Results loads an archived result by session id.
func (a *ResultsArchiver) Results(ctx context.Context, sessionID string) (domain.SessionResults, error) {
	data, err := a.client.Get(ctx, "quiz:results:"+sessionID).Bytes()
	if err != nil {
		return domain.SessionResults{}, fmt.Errorf("load session results: %w", err)
	}
	var res domain.SessionResults
	if err := json.Unmarshal(data, &res); err != nil {
		return domain.SessionResults{}, fmt.Errorf("unmarshal session results: %w", err)
	}
	return res, nil
}
