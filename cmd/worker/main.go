package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/noah-isme/backend-proposals/internal/common"
	"github.com/noah-isme/backend-proposals/internal/config"
	"github.com/noah-isme/backend-proposals/internal/notify"
	"github.com/noah-isme/backend-proposals/internal/obs"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("component", "worker").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}

	var sender common.EmailSender = common.NopEmailSender{}
	if cfg.NotifyEmailEnabled && cfg.ResendAPIKey != "" {
		sender = notify.NewResendSender(cfg.ResendAPIKey, cfg.ResendBaseURL, cfg.NotifyEmailFrom, cfg.OutboundHTTPTimeout)
	} else {
		logger.Warn().Msg("email delivery disabled; tasks will be acknowledged without sending")
	}

	handler := notify.EmailTaskHandler{Mail: sender, Log: logger}

	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: envInt("WORKER_CONCURRENCY", 10),
		Queues: map[string]int{
			"default": 1,
		},
	})

	go func() {
		<-ctx.Done()
		logger.Info().Msg("worker shutting down")
		srv.Shutdown()
	}()

	logger.Info().Msg("worker starting")
	if err := srv.Run(handler.Mux()); err != nil {
		logger.Fatal().Err(err).Msg("worker stopped with error")
	}
	logger.Info().Msg("worker shutdown complete")
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return fallback
}
