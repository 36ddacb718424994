package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"questbot/internal/bot"
	"questbot/internal/config"
	"questbot/internal/db"
	"questbot/internal/health"
	"questbot/internal/lock"
	"questbot/internal/logging"
	"questbot/internal/quest"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

func main() {
	envErr := godotenv.Load()

	path := os.Getenv("QUESTBOT_CONFIG")
	if path == "" {
		path = config.DefaultPath
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	logCloser, err := logging.Init(cfg.Log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize logging")
	}
	defer logCloser.Close()
	if envErr != nil {
		log.Info().Msg("no .env file found")
	}

	opts, err := cfg.Game.Options()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid game options")
	}

	database, err := db.New(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize database")
	}
	defer database.Close()

	engine := quest.NewEngine(database, database, opts)

	discordBot, err := bot.New(cfg, database, engine)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create bot")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler := quest.NewScheduler(database)
	scheduler.OnTransition = func(t quest.Transition) {
		discordBot.NotifyTransition(ctx, t)
	}

	deps := map[string]health.Pinger{"db": database}
	if cfg.Redis.Addr != "" {
		client := lock.NewClient(cfg.Redis)
		defer client.Close()
		locker := lock.NewRedisLocker(client)
		scheduler.Locker = locker
		deps["redis"] = locker
		log.Info().Str("addr", cfg.Redis.Addr).Msg("scheduler lock enabled")
	}

	if cfg.Health.Addr != "" {
		go func() {
			if err := health.Serve(ctx, cfg.Health.Addr, health.NewRouter(deps)); err != nil {
				log.Error().Err(err).Msg("health server stopped")
			}
		}()
	}

	scheduler.Start(ctx, cfg.Game.PollInterval)
	log.Info().Dur("interval", cfg.Game.PollInterval).Msg("scheduler started")

	if err := discordBot.Start(ctx); err != nil {
		log.Error().Err(err).Msg("error running bot")
		stop()
		os.Exit(1)
	}
	log.Info().Msg("application shutdown complete")
}
