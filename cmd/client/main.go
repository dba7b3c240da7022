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
	"secure_chat/internal/service/app"
	redisSvc "secure_chat/internal/service/redis"
	"secure_chat/internal/utils/log"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("Usage: client <name>")
	}

	name := os.Args[1]

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

	ctx := context.Background()

	profileRepo := profile.NewProfileRepo(db)
	chat := app.NewApp(cfg, profileRepo, redis)

	done := make(chan os.Signal, 1)
	signal.Notify(done, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-done
		chat.Stop()
	}()

	chat.Run(ctx, name)

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
