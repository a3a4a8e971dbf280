package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"troll/internal/app"
	"troll/internal/cache"
	"troll/internal/config"
	"troll/internal/service"
	"troll/internal/store"
	"troll/internal/transport/rest"
	"troll/internal/transport/ws"
)

func main() {
	_ = godotenv.Load()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	cfg := config.Load()
	ctx := context.Background()

	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatal().Err(err).Msg("mongo connect failed")
	}
	defer mongoClient.Disconnect(ctx)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := mongoClient.Ping(pingCtx, nil); err != nil {
		log.Fatal().Err(err).Msg("mongo ping failed")
	}
	log.Info().Str("db", cfg.MongoDB).Msg("connected to mongo")

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		log.Fatal().Err(err).Msg("redis ping failed")
	}
	log.Info().Str("addr", cfg.RedisAddr).Msg("connected to redis")

	st := store.NewMongo(mongoClient.Database(cfg.MongoDB), log)
	kv := cache.NewRedisKV(rdb)

	authSvc := service.NewAuthService(cfg.JWTSecret, clockwork.NewRealClock())
	gameSvc := service.NewGameService(st, kv, authSvc, clockwork.NewRealClock(), log)
	wsHub := ws.NewHub(log)

	a := &app.App{
		Store:       st,
		KV:          kv,
		AuthService: authSvc,
		GameService: gameSvc,
		WSHub:       wsHub,
	}
	defer a.Close()

	router := rest.NewRouter(&rest.Container{
		AuthService: authSvc,
		GameService: gameSvc,
		WSHub:       wsHub,
		Log:         log,
	})

	srv := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: router,
	}

	go func() {
		log.Info().Str("port", cfg.HTTPPort).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("listen failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("forced shutdown")
	}

	log.Info().Msg("server exited")
}
