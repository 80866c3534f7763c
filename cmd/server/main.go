package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/converse/chat-server-go/internal/auth"
	"github.com/converse/chat-server-go/internal/config"
	"github.com/converse/chat-server-go/internal/database"
	"github.com/converse/chat-server-go/internal/handler"
	"github.com/converse/chat-server-go/internal/jobs"
	"github.com/converse/chat-server-go/internal/middleware"
	"github.com/converse/chat-server-go/internal/redis"
	"github.com/converse/chat-server-go/internal/repository"
	"github.com/converse/chat-server-go/internal/service"
	"github.com/converse/chat-server-go/internal/session"
	"github.com/converse/chat-server-go/internal/ws"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	if err := db.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}
	cancel()
	log.Info().Msg("database connected")

	redisClient, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info().Msg("redis connected")

	userRepo := repository.NewUserRepository(db.DB)
	convRepo := repository.NewConversationRepository(db.DB)
	msgRepo := repository.NewMessageRepository(db.DB)

	fallback := session.NewMemoryBackend()
	sessionStore := session.NewStore(
		session.NewRedisBackend(redisClient),
		fallback,
		redisClient.Healthy,
		cfg.SessionTTL(),
	)

	authenticator := auth.NewAuthenticator(sessionStore)

	membershipService := service.NewMembershipService(convRepo)
	messageService := service.NewMessageService(db, msgRepo)
	conversationService := service.NewConversationService(convRepo)

	hub := ws.NewHub(redisClient)
	defer hub.Close()

	gateway := ws.NewGateway(hub, authenticator, membershipService, messageService, cfg.AllowedOrigin)

	sessionMiddleware := middleware.NewSessionMiddleware(authenticator)
	rateLimitMiddleware := middleware.NewRedisRateLimitMiddleware(redisClient.Client)

	authHandler := handler.NewAuthHandler(userRepo, sessionStore, cfg.CookieSecure)
	sessionHandler := handler.NewSessionHandler(sessionStore)
	conversationHandler := handler.NewConversationHandler(conversationService, membershipService, messageService)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"status":    "ok",
			"timestamp": time.Now().UnixMilli(),
		})
	})

	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// The websocket endpoint authenticates during the upgrade handshake and
	// must not sit behind the request timeout.
	r.Get("/ws", gateway.ServeHTTP)

	r.Route("/v1", func(r chi.Router) {
		r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))

		r.Mount("/auth", authHandler.Routes())

		r.Group(func(r chi.Router) {
			r.Use(sessionMiddleware.Handler)
			r.Use(rateLimitMiddleware.Handler)

			r.Post("/auth/logout", authHandler.Logout)
			r.Mount("/sessions", sessionHandler.Routes())
			r.Mount("/conversations", conversationHandler.Routes())
		})
	})

	sweepJob := jobs.NewSweepJob(fallback, config.SessionSweepInterval)
	sweepJob.Start()
	defer sweepJob.Stop()

	server := &http.Server{
		Addr:        cfg.Addr(),
		Handler:     r,
		ReadTimeout: config.ServerReadTimeout,
		IdleTimeout: config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
