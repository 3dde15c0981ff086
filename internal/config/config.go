package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	DriverSQLite = "sqlite"
	DriverMongo  = "mongo"
)

// Config holds all configuration for the bot
type Config struct {
	Telegram TelegramConfig
	Server   ServerConfig
	Storage  StorageConfig
	Game     GameConfig
	Schedule ScheduleConfig
}

type TelegramConfig struct {
	Token      string
	Debug      bool
	WebhookURL string
}

type ServerConfig struct {
	Host string
	Port int
}

type StorageConfig struct {
	Driver   string
	DBPath   string
	MongoURI string
}

// GameConfig describes how chats map to scopes. With AllowedChats set only
// those chats are served and all of them share the Scope ledger.
type GameConfig struct {
	Scope        string
	AllowedChats []int64
	Location     *time.Location
	VideoPath    string
}

// ScheduleConfig drives the unattended daily draw. ChatID 0 disables it.
type ScheduleConfig struct {
	ChatID int64
	Scope  string
	Hour   int
	Minute int
}

func (s ScheduleConfig) Enabled() bool {
	return s.ChatID != 0
}

// Load reads .env when present and then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("BOT_DEBUG", false)
	v.SetDefault("WEBHOOK_URL", "")
	v.SetDefault("HOST", "0.0.0.0")
	v.SetDefault("PORT", 3000)
	v.SetDefault("STORAGE_DRIVER", DriverSQLite)
	v.SetDefault("DB_PATH", "data/data.db")
	v.SetDefault("MONGODB_URI", "")
	v.SetDefault("SCOPE_NAME", "lucky")
	v.SetDefault("ALLOWED_CHATS", "")
	v.SetDefault("TIMEZONE", "UTC")
	v.SetDefault("GOAT_VIDEO_PATH", "assets/goat.mp4")
	v.SetDefault("SCHEDULE_CHAT_ID", 0)
	v.SetDefault("SCHEDULE_SCOPE", "")
	v.SetDefault("SCHEDULE_AT", "12:00")
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Telegram: TelegramConfig{
			Token:      strings.TrimSpace(v.GetString("TELEGRAM_BOT_TOKEN")),
			Debug:      v.GetBool("BOT_DEBUG"),
			WebhookURL: strings.TrimRight(strings.TrimSpace(v.GetString("WEBHOOK_URL")), "/"),
		},
		Server: ServerConfig{
			Host: v.GetString("HOST"),
			Port: v.GetInt("PORT"),
		},
		Storage: StorageConfig{
			Driver:   strings.ToLower(strings.TrimSpace(v.GetString("STORAGE_DRIVER"))),
			DBPath:   v.GetString("DB_PATH"),
			MongoURI: v.GetString("MONGODB_URI"),
		},
		Game: GameConfig{
			Scope:     strings.TrimSpace(v.GetString("SCOPE_NAME")),
			VideoPath: v.GetString("GOAT_VIDEO_PATH"),
		},
		Schedule: ScheduleConfig{
			ChatID: v.GetInt64("SCHEDULE_CHAT_ID"),
			Scope:  strings.TrimSpace(v.GetString("SCHEDULE_SCOPE")),
		},
	}

	if cfg.Telegram.Token == "" {
		return nil, errors.New("TELEGRAM_BOT_TOKEN is required")
	}

	switch cfg.Storage.Driver {
	case DriverSQLite:
		if cfg.Storage.DBPath == "" {
			return nil, errors.New("DB_PATH is required for the sqlite driver")
		}
	case DriverMongo:
		if cfg.Storage.MongoURI == "" {
			return nil, errors.New("MONGODB_URI is required for the mongo driver")
		}
	default:
		return nil, fmt.Errorf("unknown STORAGE_DRIVER %q", cfg.Storage.Driver)
	}

	loc, err := time.LoadLocation(v.GetString("TIMEZONE"))
	if err != nil {
		return nil, fmt.Errorf("TIMEZONE: %w", err)
	}
	cfg.Game.Location = loc

	chats, err := ParseChatIDs(v.GetString("ALLOWED_CHATS"))
	if err != nil {
		return nil, fmt.Errorf("ALLOWED_CHATS: %w", err)
	}
	cfg.Game.AllowedChats = chats
	if len(chats) > 0 && cfg.Game.Scope == "" {
		return nil, errors.New("SCOPE_NAME is required when ALLOWED_CHATS is set")
	}

	if cfg.Schedule.Scope == "" {
		cfg.Schedule.Scope = cfg.Game.Scope
	}
	cfg.Schedule.Hour, cfg.Schedule.Minute, err = ParseClock(v.GetString("SCHEDULE_AT"))
	if err != nil {
		return nil, fmt.Errorf("SCHEDULE_AT: %w", err)
	}
	if cfg.Schedule.Enabled() && cfg.Schedule.Scope == "" {
		return nil, errors.New("SCHEDULE_SCOPE is required when SCHEDULE_CHAT_ID is set")
	}

	return cfg, nil
}

// ParseChatIDs parses a comma or space separated list of chat ids.
func ParseChatIDs(s string) ([]int64, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' || r == ';' })
	ids := make([]int64, 0, len(fields))
	for _, f := range fields {
		id, err := strconv.ParseInt(f, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad chat id %q", f)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// ParseClock parses "HH:MM" in 24h format.
func ParseClock(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, 0, fmt.Errorf("want HH:MM, got %q", s)
	}
	return t.Hour(), t.Minute(), nil
}
