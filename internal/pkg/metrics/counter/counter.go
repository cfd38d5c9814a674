package counter

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/nanbonsmr/quickwriteai-sub001/internal/pkg/cache"
)

const (
	// usageHashKey buffers pending words-used increments per user so each
	// generation request costs one HINCRBY instead of a database write.
	usageHashKey = "usage:words:pending"

	flushTempKeyPrefix = "usage:words:flush:"
)

// AddWordsUsed buffers a words-used increment for the given user in Redis.
// The increment is applied to the database by the next FlushAll run.
func AddWordsUsed(ctx context.Context, userID string, words int) error {
	if words <= 0 {
		return nil
	}
	client := cache.GetClient()
	if client == nil {
		return fmt.Errorf("cache client not available")
	}
	if err := client.HIncrBy(ctx, usageHashKey, userID, int64(words)).Err(); err != nil {
		return fmt.Errorf("buffering usage for user %s: %w", userID, err)
	}
	return nil
}

// PendingWordsUsed returns the buffered, not yet flushed increment for a user.
// Quota checks add this to the persisted words_used so a burst of requests
// between flushes cannot overrun the limit.
func PendingWordsUsed(ctx context.Context, userID string) (int64, error) {
	client := cache.GetClient()
	if client == nil {
		return 0, fmt.Errorf("cache client not available")
	}
	val, err := client.HGet(ctx, usageHashKey, userID).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(val, 10, 64)
}

// FlushAll drains all buffered usage increments into the database. The hash
// is renamed to a temporary key first so increments arriving during the flush
// land in a fresh hash and are picked up by the next run.
func FlushAll(ctx context.Context, db *gorm.DB) error {
	client := cache.GetClient()
	if client == nil {
		return fmt.Errorf("cache client not available")
	}

	tempKey := flushTempKeyPrefix + strconv.FormatInt(time.Now().UnixNano(), 10)

	err := client.Rename(ctx, usageHashKey, tempKey).Err()
	if err == redis.Nil || (err != nil && err.Error() == "ERR no such key") {
		// Nothing buffered since the last flush.
		return nil
	}
	if err != nil {
		return fmt.Errorf("renaming usage hash: %w", err)
	}

	pending, err := client.HGetAll(ctx, tempKey).Result()
	if err != nil {
		return fmt.Errorf("reading usage hash %s: %w", tempKey, err)
	}

	var failed int
	for userID, raw := range pending {
		words, convErr := strconv.ParseInt(raw, 10, 64)
		if convErr != nil || words <= 0 {
			log.Warnf("Dropping invalid usage increment for user %s: %q", userID, raw)
			continue
		}
		res := db.WithContext(ctx).
			Table("user_profiles").
			Where("user_id = ?", userID).
			Update("words_used", gorm.Expr("words_used + ?", words))
		if res.Error != nil {
			// Put the increment back so the next flush retries it.
			if rbErr := client.HIncrBy(ctx, usageHashKey, userID, words).Err(); rbErr != nil {
				log.Errorf("Lost usage increment of %d words for user %s: %v", words, userID, rbErr)
			}
			failed++
			continue
		}
		if res.RowsAffected == 0 {
			log.Warnf("No profile found for user %s, dropping %d buffered words", userID, words)
		}
	}

	if delErr := client.Del(ctx, tempKey).Err(); delErr != nil {
		log.Warnf("Could not delete temporary usage hash %s: %v", tempKey, delErr)
	}

	if failed > 0 {
		return fmt.Errorf("failed to flush usage for %d users", failed)
	}
	return nil
}

// StartFlusher runs FlushAll on the given interval until the context is
// cancelled. A final flush runs on shutdown so buffered usage is not lost.
func StartFlusher(ctx context.Context, db *gorm.DB, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := FlushAll(flushCtx, db); err != nil {
				log.Errorf("Final usage flush failed: %v", err)
			}
			cancel()
			return
		case <-ticker.C:
			if err := FlushAll(ctx, db); err != nil {
				log.Errorf("Usage flush failed: %v", err)
			}
		}
	}
}
