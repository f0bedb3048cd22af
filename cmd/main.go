package main

import (
	"adoptchat/backend/internal/api/handler"
	"adoptchat/backend/internal/auth"
	"adoptchat/backend/internal/chat"
	"adoptchat/backend/internal/chathub"
	"adoptchat/backend/internal/config"
	"adoptchat/backend/internal/connection"
	"adoptchat/backend/internal/dispatch"
	"adoptchat/backend/internal/localization"
	applog "adoptchat/backend/internal/log"
	"adoptchat/backend/internal/metrics"
	"adoptchat/backend/internal/mw"
	"adoptchat/backend/internal/notify"
	"adoptchat/backend/internal/presence"
	"adoptchat/backend/internal/process"
	"adoptchat/backend/internal/storage"
	"adoptchat/backend/internal/telegram"
	"adoptchat/backend/internal/unread"
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func setupDependencies(ctx context.Context, cfg config.Config) (*gorm.DB, *redis.Client) {
	db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect PostgreSQL")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Msg("failed to connect Redis")
	}

	log.Info().Msg("database and redis connections established")
	return db, rdb
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file, using the environment")
	}
	cfg := config.Load()
	applog.Init(cfg.Env)
	log.Info().Str("env", cfg.Env).Msg("starting adoptchat backend")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, rdb := setupDependencies(ctx, cfg)
	s := storage.NewStorageService(db, rdb)
	if err := s.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	loc, err := localization.Bundled()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load translations")
	}

	// The hub is both the in-app transport and a consumer of the chat
	// service, so its chat dependency is attached after construction.
	registry := presence.NewRegistry().Share(s, cfg.PresenceTTL)
	hub := chathub.NewManagerService(s, registry, nil, loc)
	registrar := notify.NewRegistrar(s)

	var background []notify.Pusher
	var bot *telegram.BotService
	if cfg.TelegramBotToken != "" {
		bot, err = telegram.NewBotService(cfg.TelegramBotToken, cfg.JWTSecret, registrar, loc)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to start telegram bot")
		}
		background = append(background, telegram.NewPusher(bot.BotAPI, s))
	} else {
		log.Warn().Msg("TELEGRAM_BOT_TOKEN is empty, background notifications disabled")
	}

	router := notify.NewRouter(registry, s, cfg.DedupeTTL)
	// Online spans every instance; in-app push reaches local connections.
	notifier := notify.NewService(router, registry, hub, background...)

	rooms := connection.NewOrchestrator(s)
	dispatcher := dispatch.NewDispatcher(rooms, s, s, notifier)
	chatSvc := chat.NewService(rooms, s, s, notifier)
	hub.Chat = chatSvc

	go hub.Run(ctx)
	if bot != nil {
		go bot.Run(ctx)
	}

	r := gin.New()
	r.Use(gin.Recovery(), metrics.GinMiddleware())

	limit, rl := mw.RateLimit(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst, auth.CtxUserID)
	defer rl.Stop()

	h := &handler.Handler{
		Hub:            hub,
		Chat:           chatSvc,
		Dispatcher:     dispatcher,
		Unread:         unread.NewService(s),
		Process:        process.NewService(s, dispatcher),
		Registrar:      registrar,
		Storage:        s,
		Localizer:      loc,
		Secret:         cfg.JWTSecret,
		TokenTTLMinute: cfg.AccessTokenTTLMinutes,
	}
	h.Register(r, limit)

	server := &http.Server{
		Addr:           ":" + cfg.Port,
		Handler:        r,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown")
	}
	if err := rdb.Close(); err != nil {
		log.Warn().Err(err).Msg("redis close")
	}
}
