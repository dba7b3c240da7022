package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"secure_chat/internal/config"
	"secure_chat/internal/repository/profile"
	redisSvc "secure_chat/internal/service/redis"
	"secure_chat/internal/service/server"
	"secure_chat/internal/utils/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("load config failed", zap.Error(err))
	}
	log.SetLevel(cfg.LogLevel)
	defer log.Sync()

	mongoDBClient, err := initMongo(cfg.MongoURI)
	if err != nil {
		log.Fatal("connect mongo failed", zap.Error(err))
	}

	db := mongoDBClient.Database(cfg.MongoDatabase)

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	redis := redisSvc.NewRedis(rdb)
	if err := redis.Ping(context.Background()); err != nil {
		log.Fatal("connect redis failed", zap.Error(err))
	}

	profileRepo := profile.NewProfileRepo(db)
	if err := profileRepo.EnsureIndexes(context.Background()); err != nil {
		log.Fatal("create profile indexes failed", zap.Error(err))
	}

	history := server.NewRedisHistory(redis, cfg.HistorySize, cfg.Expiry().Client())
	c := server.NewHttpServer(cfg, profileRepo, history, server.NewWordFilter(cfg.BlockedWords))
	go func() {
		if err := c.Run(); err != nil {
			log.Fatal("relay stopped", zap.Error(err))
		}
	}()

	done := make(chan os.Signal, 1)
	signal.Notify(done, syscall.SIGINT, syscall.SIGTERM)
	<-done

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.Shutdown(ctx); err != nil {
		log.Error("shutdown failed", zap.Error(err))
	}
	mongoDBClient.Disconnect(ctx)
	rdb.Close()
}

func initMongo(uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	return client, client.Ping(ctx, nil)
}
