package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"questbot/internal/quest"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const DefaultPath = "config.yaml"

type DiscordConfig struct {
	Token    string `yaml:"token" env:"DISCORD_TOKEN"`
	ClientID string `yaml:"client_id" env:"DISCORD_CLIENT_ID"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host" env:"DB_HOST"`
	Port     int    `yaml:"port" env:"DB_PORT"`
	User     string `yaml:"user" env:"DB_USER"`
	Password string `yaml:"password" env:"DB_PASSWORD"`
	DBName   string `yaml:"dbname" env:"DB_NAME"`
	SSLMode  string `yaml:"sslmode" env:"DB_SSLMODE"`
	MaxConns int32  `yaml:"max_conns" env:"DB_MAX_CONNS"`
	MinConns int32  `yaml:"min_conns" env:"DB_MIN_CONNS"`
}

// DSN renders the connection string used by both the bot and migrations.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

func (d DatabaseConfig) Validate() error {
	var errs []error
	if d.DBName == "" {
		errs = append(errs, errors.New("database.dbname is required"))
	}
	if d.Port <= 0 {
		errs = append(errs, fmt.Errorf("database.port %d is invalid", d.Port))
	}
	return errors.Join(errs...)
}

type GameConfig struct {
	PollInterval time.Duration `yaml:"poll_interval" env:"GAME_POLL_INTERVAL"`
	Duplicates   string        `yaml:"duplicates" env:"GAME_DUPLICATES"`
	Completion   string        `yaml:"completion" env:"GAME_COMPLETION"`
	Fingerprint  string        `yaml:"fingerprint" env:"GAME_FINGERPRINT"`
	// FingerprintKey keys the blake2b fingerprint.
	FingerprintKey string `yaml:"fingerprint_key" env:"GAME_FINGERPRINT_KEY"`
	CodePrefix     string `yaml:"code_prefix" env:"GAME_CODE_PREFIX"`
	Timezone       string `yaml:"timezone" env:"GAME_TIMEZONE"`
}

// Location is the zone used for start times typed without an offset.
func (g GameConfig) Location() (*time.Location, error) {
	if g.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(g.Timezone)
	if err != nil {
		return nil, fmt.Errorf("game.timezone: %w", err)
	}
	return loc, nil
}

// Options converts the textual settings into engine options.
func (g GameConfig) Options() (quest.Options, error) {
	dup, err := quest.ParseDuplicatePolicy(g.Duplicates)
	if err != nil {
		return quest.Options{}, err
	}
	rule, err := quest.ParseCompletionRule(g.Completion)
	if err != nil {
		return quest.Options{}, err
	}
	fp, err := quest.ParseFingerprinter(g.Fingerprint)
	if err != nil {
		return quest.Options{}, err
	}
	if _, ok := fp.(quest.Blake2bFingerprinter); ok {
		if fp, err = quest.NewBlake2bFingerprinter(g.FingerprintKey); err != nil {
			return quest.Options{}, err
		}
	}
	return quest.Options{Duplicates: dup, Completion: rule, Fingerprinter: fp}, nil
}

type LogConfig struct {
	Level       string `yaml:"level" env:"LOG_LEVEL"`
	Pretty      bool   `yaml:"pretty" env:"LOG_PRETTY"`
	SampleEvery int    `yaml:"sample_every" env:"LOG_SAMPLE_EVERY"`
	File        string `yaml:"file" env:"LOG_FILE"`
	MaxMB       int    `yaml:"max_mb" env:"LOG_MAX_MB"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB"`
}

type HealthConfig struct {
	Addr string `yaml:"addr" env:"HEALTH_ADDR"`
}

type Config struct {
	Discord  DiscordConfig  `yaml:"discord"`
	Database DatabaseConfig `yaml:"database"`
	Game     GameConfig     `yaml:"game"`
	Log      LogConfig      `yaml:"log"`
	Redis    RedisConfig    `yaml:"redis"`
	Health   HealthConfig   `yaml:"health"`
}

func Default() Config {
	return Config{
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			SSLMode:  "disable",
			MaxConns: 10,
			MinConns: 2,
		},
		Game: GameConfig{
			PollInterval: 5 * time.Second,
			Duplicates:   "allow",
			Completion:   "all",
			Fingerprint:  "md5",
			CodePrefix:   "#",
			Timezone:     "UTC",
		},
		Log: LogConfig{
			Level: "info",
			MaxMB: 10,
		},
	}
}

// Load reads the YAML file at path on top of the defaults, then applies
// environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg, err := read(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDatabase is Load for tools that only talk to the database.
func LoadDatabase(path string) (*DatabaseConfig, error) {
	cfg, err := read(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Database.Validate(); err != nil {
		return nil, err
	}
	return &cfg.Database, nil
}

func read(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		content := expandEnv(string(data))
		if err := yaml.Unmarshal([]byte(content), &cfg); err != nil {
			return nil, fmt.Errorf("error parsing config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("error reading environment: %w", err)
	}
	return &cfg, nil
}

// expandEnv replaces ${NAME} placeholders with the value of NAME. Unknown
// placeholders are left untouched.
func expandEnv(content string) string {
	for _, kv := range os.Environ() {
		pair := strings.SplitN(kv, "=", 2)
		if len(pair) != 2 {
			continue
		}
		content = strings.ReplaceAll(content, "${"+pair[0]+"}", pair[1])
	}
	return content
}

func (c *Config) Validate() error {
	var errs []error
	if c.Discord.Token == "" {
		errs = append(errs, errors.New("discord.token is required"))
	}
	if c.Discord.ClientID == "" {
		errs = append(errs, errors.New("discord.client_id is required"))
	}
	if err := c.Database.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Game.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("game.poll_interval %s must be positive", c.Game.PollInterval))
	}
	if strings.TrimSpace(c.Game.CodePrefix) == "" {
		errs = append(errs, errors.New("game.code_prefix is required"))
	}
	if _, err := c.Game.Options(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Game.Location(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
