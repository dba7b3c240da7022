package server

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"secure_chat/internal/codec"
	"secure_chat/internal/model"
	"secure_chat/internal/service/redis"
	"secure_chat/internal/utils/log"
)

const historyKey = "chat:history"

// History keeps recently broadcast messages for sessions that join later.
type History interface {
	PutMessagesToCache(ctx context.Context, messages ...model.ChatMessage) error
	GetMessagesFromCache(ctx context.Context) ([]model.ChatMessage, error)
}

type redisHistory struct {
	redisService *redis.RedisService
	size         int64
	ttl          time.Duration
}

func NewRedisHistory(r *redis.RedisService, size int, ttl time.Duration) History {
	return &redisHistory{redisService: r, size: int64(size), ttl: ttl}
}

func (h *redisHistory) PutMessagesToCache(ctx context.Context, messages ...model.ChatMessage) error {
	if h.size == 0 || len(messages) == 0 {
		return nil
	}
	vals := make([]any, 0, len(messages))
	for _, m := range messages {
		vals = append(vals, codec.EncodeChatMessage(m))
	}
	return h.redisService.RPushCapped(ctx, historyKey, h.size, h.ttl, vals...)
}

func (h *redisHistory) GetMessagesFromCache(ctx context.Context) ([]model.ChatMessage, error) {
	vals, err := h.redisService.LRange(ctx, historyKey)
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}

	res := make([]model.ChatMessage, 0, len(vals))
	for _, v := range vals {
		m, err := codec.DecodeChatMessage([]byte(v))
		if err != nil {
			log.Warn("skip undecodable history entry", zap.Error(err))
			continue
		}
		res = append(res, m)
	}
	return res, nil
}
