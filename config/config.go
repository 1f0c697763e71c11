package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config ilovaning konfiguratsiyasi
type Config struct {
	GeminiAPIKey          string        `env:"GEMINI_API_KEY"`
	GeminiModel           string        `env:"GEMINI_MODEL,default=gemini-1.5-flash" validate:"required"`
	GeminiSDK             string        `env:"GEMINI_SDK,default=genai" validate:"oneof=genai legacy"`
	GeminiBaseURL         string        `env:"GEMINI_BASE_URL" validate:"omitempty,url"`
	Temperature           float64       `env:"GEMINI_TEMPERATURE,default=0.7" validate:"gte=0,lte=2"`
	MaxOutputTokens       int           `env:"GEMINI_MAX_OUTPUT_TOKENS,default=2048" validate:"gte=0,lte=65536"`
	SystemInstruction     string        `env:"SYSTEM_INSTRUCTION"`
	ContextMessages       int           `env:"CONTEXT_MESSAGES,default=0" validate:"gte=0,lte=200"`
	MaxConcurrentRequests int           `env:"MAX_CONCURRENT_REQUESTS,default=3" validate:"gte=1"`
	MinRequestInterval    time.Duration `env:"MIN_REQUEST_INTERVAL,default=350ms" validate:"gte=0"`
	RequestTimeout        time.Duration `env:"REQUEST_TIMEOUT,default=20s" validate:"gt=0"`
	Greeting              string        `env:"GREETING"`

	StorageDriver string `env:"STORAGE_DRIVER,default=badger" validate:"oneof=memory sqlite badger"`
	ChatDBPath    string `env:"CHAT_DB_PATH,default=data/chat.db"`
	BadgerPath    string `env:"BADGER_PATH,default=data/history"`
	StorageKey    string `env:"STORAGE_KEY,default=nova_chat_history" validate:"required"`

	HTTPAddr  string `env:"HTTP_ADDR,default=:8080" validate:"required"`
	Theme     string `env:"THEME,default=midnight"`
	ThemeFile string `env:"THEME_FILE"`

	TelegramToken string `env:"TELEGRAM_BOT_TOKEN"`

	LogLevel  string `env:"LOG_LEVEL,default=info" validate:"oneof=debug info warn error"`
	LogFormat string `env:"LOG_FORMAT,default=json" validate:"oneof=json console"`
}

var validate = validator.New()

// Load konfiguratsiyani yuklash. envFile may be empty, in which case ./.env is
// read when present.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	} else if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}

	// Validatsiya
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// RequireAI checks the settings needed to talk to Gemini.
func (c *Config) RequireAI() error {
	if c.GeminiAPIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY environment variable is empty")
	}
	return nil
}

// TelegramEnabled reports whether the Telegram bot should run.
func (c *Config) TelegramEnabled() bool {
	return c.TelegramToken != ""
}
