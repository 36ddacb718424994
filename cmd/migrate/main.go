package main

import (
	"errors"
	"os"

	"questbot/internal/config"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Usage: migrate [up|down]. Defaults to up.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Info().Msg("no .env file found")
	}

	path := os.Getenv("QUESTBOT_CONFIG")
	if path == "" {
		path = config.DefaultPath
	}
	dbCfg, err := config.LoadDatabase(path)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	source := os.Getenv("MIGRATIONS_SOURCE")
	if source == "" {
		source = "file://migrations"
	}
	m, err := migrate.New(source, dbCfg.DSN())
	if err != nil {
		log.Fatal().Err(err).Msg("migration setup failed")
	}
	defer m.Close()

	direction := "up"
	if len(os.Args) > 1 {
		direction = os.Args[1]
	}
	switch direction {
	case "up":
		err = m.Up()
	case "down":
		err = m.Down()
	default:
		log.Fatal().Str("direction", direction).Msg("expected up or down")
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		log.Fatal().Err(err).Str("direction", direction).Msg("database migration failed")
	}
	log.Info().Str("direction", direction).Msg("database migrations applied")
}
