package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"secure_chat/internal/model"
	redisSvc "secure_chat/internal/service/redis"
	"secure_chat/internal/utils/log"
)

const publicKeyTTL = 2 * time.Hour

// cachedKeys serves public keys from redis and falls back to next on a miss.
type cachedKeys struct {
	next         KeySource
	redisService *redisSvc.RedisService
}

func publicKeyCacheKey(id uuid.UUID) string {
	return fmt.Sprintf("pubkey: %s", id)
}

func (k *cachedKeys) PublicKey(ctx context.Context, id uuid.UUID) (*model.PublicKey, error) {
	v, err := k.redisService.Get(ctx, publicKeyCacheKey(id))
	if err == nil {
		var pk model.PublicKey
		if err := json.Unmarshal([]byte(v), &pk); err == nil {
			return &pk, nil
		}
		log.Warn("drop corrupted cached public key", zap.Stringer("profile_id", id))
	} else if !errors.Is(err, redis.Nil) {
		log.Warn("read cached public key failed", zap.Error(err))
	}

	pk, err := k.next.PublicKey(ctx, id)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(pk)
	if err != nil {
		return nil, err
	}
	if err := k.redisService.Set(ctx, publicKeyCacheKey(id), data, publicKeyTTL); err != nil {
		log.Warn("cache public key failed", zap.Error(err))
	}
	return pk, nil
}
