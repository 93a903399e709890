package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	configPathEnv        = "NEWSDESK_CONFIG"
	botTokenEnv          = "BOT_TOKEN"
	adminIDsEnv          = "ADMIN_USER_IDS"
	targetChatEnv        = "TARGET_GROUP_ID"
	rewriteProviderEnv   = "REWRITE_PROVIDER"
	geminiAPIKeyEnv      = "GEMINI_API_KEY"
	chatGPTAPIKeyEnv     = "CHATGPT_API_KEY"
	rewriteModelEnv      = "REWRITE_MODEL"
	sourceGroupsEnv      = "SOURCE_GROUPS"
	databaseURLEnv       = "DATABASE_URL"
	useSheetsEnv         = "USE_GOOGLE_SHEETS"
	sheetIDEnv           = "GOOGLE_SHEET_ID"
	sheetCredentialsEnv  = "GOOGLE_CREDENTIALS_FILE"
	parsingIntervalEnv   = "PARSING_INTERVAL_MINUTES"
	maxContentLengthEnv  = "MAX_CONTENT_LENGTH"
	logLevelEnv          = "LOG_LEVEL"
	httpAddrEnv          = "HTTP_ADDR"
	defaultDatabaseURL   = "sqlite:///./newsdesk.db"
	defaultWorksheetName = "news_articles"

	geminiEndpoint  = "https://generativelanguage.googleapis.com/v1beta"
	geminiModel     = "gemini-1.5-flash"
	chatGPTEndpoint = "https://api.openai.com/v1/chat/completions"
	chatGPTModel    = "gpt-4o-mini"
)

// Storage drivers accepted by StorageConfig.Driver.
const (
	StorageSQL    = "sql"
	StorageSheets = "sheets"
)

// Rewrite providers accepted by RewriteConfig.Provider.
const (
	ProviderGemini  = "gemini"
	ProviderChatGPT = "chatgpt"
)

// Config holds every setting of the process. It is immutable after Load.
type Config struct {
	Logging   LoggingConfig   `yaml:"logging"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	Rewrite   RewriteConfig   `yaml:"rewrite"`
	Scraper   ScraperConfig   `yaml:"scraper"`
	Sources   []SourceConfig  `yaml:"sources"`
	Storage   StorageConfig   `yaml:"storage"`
	Parser    ParserConfig    `yaml:"parser"`
	Publisher PublisherConfig `yaml:"publisher"`
	HTTP      HTTPConfig      `yaml:"http"`
}

// LoggingConfig selects slog level and handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TelegramConfig wires the bot account, its operators and the destination chat.
type TelegramConfig struct {
	BotToken     string        `yaml:"botToken"`
	APIEndpoint  string        `yaml:"apiEndpoint"`
	TargetChatID string        `yaml:"targetChatId"`
	AdminIDs     []int64       `yaml:"adminIds"`
	PollTimeout  time.Duration `yaml:"pollTimeout"`
}

// RewriteConfig defines how to contact the generative-text service.
type RewriteConfig struct {
	Provider         string `yaml:"provider"`
	Endpoint         string `yaml:"endpoint"`
	Model            string `yaml:"model"`
	APIKey           string `yaml:"apiKey"`
	MaxContentLength int    `yaml:"maxContentLength"`
	PromptTemplate   string `yaml:"promptTemplate"`
}

// ScraperConfig tunes message retrieval from sources.
type ScraperConfig struct {
	ChannelEndpoint string        `yaml:"channelEndpoint"`
	UserAgent       string        `yaml:"userAgent"`
	PageSize        int           `yaml:"pageSize"`
	Lookback        time.Duration `yaml:"lookback"`
	MinLength       int           `yaml:"minLength"`
}

// SourceConfig describes one origin channel and the scanner strategy that reads it.
type SourceConfig struct {
	Name    string `yaml:"name"`
	Scanner string `yaml:"scanner"`
	URL     string `yaml:"url"`
}

// StorageConfig selects the article store backend.
type StorageConfig struct {
	Driver string       `yaml:"driver"`
	DSN    string       `yaml:"dsn"`
	Sheets SheetsConfig `yaml:"sheets"`
}

// SheetsConfig points at the spreadsheet used by the sheets backend.
type SheetsConfig struct {
	SpreadsheetID   string `yaml:"spreadsheetId"`
	CredentialsFile string `yaml:"credentialsFile"`
	Worksheet       string `yaml:"worksheet"`
}

// ParserConfig controls the parsing loop.
type ParserConfig struct {
	Interval           time.Duration `yaml:"interval"`
	SourcePause        time.Duration `yaml:"sourcePause"`
	Backoff            time.Duration `yaml:"backoff"`
	MaxRewriteAttempts int           `yaml:"maxRewriteAttempts"`
	RetryBatch         int           `yaml:"retryBatch"`
}

// PublisherConfig controls the publication loop.
type PublisherConfig struct {
	Interval  time.Duration `yaml:"interval"`
	BatchSize int           `yaml:"batchSize"`
	SendPause time.Duration `yaml:"sendPause"`
	Backoff   time.Duration `yaml:"backoff"`
}

// HTTPConfig enables the ops endpoints when Addr is set.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// Load reads .env, the YAML file (path argument or NEWSDESK_CONFIG) and environment overrides.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := defaultConfig()

	if path == "" {
		path = os.Getenv(configPathEnv)
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv(botTokenEnv); v != "" {
		c.Telegram.BotToken = v
	}
	if v := os.Getenv(targetChatEnv); v != "" {
		c.Telegram.TargetChatID = v
	}
	if v := os.Getenv(adminIDsEnv); v != "" {
		ids, err := parseIDs(v)
		if err != nil {
			return fmt.Errorf("%s: %w", adminIDsEnv, err)
		}
		c.Telegram.AdminIDs = ids
	}

	if v := os.Getenv(rewriteProviderEnv); v != "" {
		c.Rewrite.Provider = strings.ToLower(v)
	}
	if v := os.Getenv(rewriteModelEnv); v != "" {
		c.Rewrite.Model = v
	}
	switch c.Rewrite.Provider {
	case ProviderChatGPT:
		// Gemini defaults make no sense against an OpenAI-compatible endpoint.
		if c.Rewrite.Endpoint == geminiEndpoint {
			c.Rewrite.Endpoint = chatGPTEndpoint
		}
		if c.Rewrite.Model == geminiModel {
			c.Rewrite.Model = chatGPTModel
		}
		if v := os.Getenv(chatGPTAPIKeyEnv); v != "" {
			c.Rewrite.APIKey = v
		}
	default:
		if v := os.Getenv(geminiAPIKeyEnv); v != "" {
			c.Rewrite.APIKey = v
		}
	}
	if v := os.Getenv(maxContentLengthEnv); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", maxContentLengthEnv, err)
		}
		c.Rewrite.MaxContentLength = n
	}

	if v := os.Getenv(sourceGroupsEnv); v != "" {
		c.Sources = sourcesFromList(v)
	}

	if v := os.Getenv(databaseURLEnv); v != "" {
		c.Storage.DSN = v
	}
	if v := os.Getenv(useSheetsEnv); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", useSheetsEnv, err)
		}
		if enabled {
			c.Storage.Driver = StorageSheets
		}
	}
	if v := os.Getenv(sheetIDEnv); v != "" {
		c.Storage.Sheets.SpreadsheetID = v
	}
	if v := os.Getenv(sheetCredentialsEnv); v != "" {
		c.Storage.Sheets.CredentialsFile = v
	}

	if v := os.Getenv(parsingIntervalEnv); v != "" {
		minutes, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", parsingIntervalEnv, err)
		}
		c.Parser.Interval = time.Duration(minutes) * time.Minute
	}

	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv(httpAddrEnv); v != "" {
		c.HTTP.Addr = v
	}

	return nil
}

// Validate reports settings without which the process must not start.
func (c Config) Validate() error {
	var errs []error

	if c.Telegram.BotToken == "" {
		errs = append(errs, fmt.Errorf("telegram bot token is required (%s)", botTokenEnv))
	}
	if c.Telegram.TargetChatID == "" {
		errs = append(errs, fmt.Errorf("target chat id is required (%s)", targetChatEnv))
	}

	switch c.Rewrite.Provider {
	case ProviderGemini, ProviderChatGPT:
	default:
		errs = append(errs, fmt.Errorf("unknown rewrite provider %q", c.Rewrite.Provider))
	}
	if c.Rewrite.APIKey == "" {
		errs = append(errs, fmt.Errorf("rewrite api key is required (%s or %s)", geminiAPIKeyEnv, chatGPTAPIKeyEnv))
	}
	if c.Rewrite.MaxContentLength <= 0 {
		errs = append(errs, errors.New("rewrite maxContentLength must be positive"))
	}

	switch c.Storage.Driver {
	case StorageSQL:
		if c.Storage.DSN == "" {
			errs = append(errs, fmt.Errorf("storage dsn is required (%s)", databaseURLEnv))
		}
	case StorageSheets:
		if c.Storage.Sheets.SpreadsheetID == "" || c.Storage.Sheets.CredentialsFile == "" {
			errs = append(errs, fmt.Errorf("sheets storage needs %s and %s", sheetIDEnv, sheetCredentialsEnv))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.Storage.Driver))
	}

	for _, src := range c.Sources {
		if src.Name == "" {
			errs = append(errs, errors.New("source name must not be empty"))
		}
	}

	if c.Parser.Interval <= 0 || c.Publisher.Interval <= 0 {
		errs = append(errs, errors.New("loop intervals must be positive"))
	}
	if c.Parser.Backoff <= 0 || c.Publisher.Backoff <= 0 {
		errs = append(errs, errors.New("loop backoffs must be positive"))
	}
	if c.Publisher.BatchSize <= 0 || c.Scraper.PageSize <= 0 {
		errs = append(errs, errors.New("batch and page sizes must be positive"))
	}

	return errors.Join(errs...)
}

// IsAdmin reports whether the Telegram user id is in the operator set.
func (t TelegramConfig) IsAdmin(userID int64) bool {
	for _, id := range t.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func parseIDs(list string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad id %q: %w", part, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func sourcesFromList(list string) []SourceConfig {
	var sources []SourceConfig
	for _, part := range strings.Split(list, ",") {
		name := strings.TrimSpace(part)
		if name == "" {
			continue
		}
		sources = append(sources, SourceConfig{Name: name, Scanner: "telegram"})
	}
	return sources
}

func defaultConfig() Config {
	return Config{
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Telegram: TelegramConfig{
			APIEndpoint: "https://api.telegram.org",
			PollTimeout: 30 * time.Second,
		},
		Rewrite: RewriteConfig{
			Provider:         ProviderGemini,
			Endpoint:         geminiEndpoint,
			Model:            geminiModel,
			MaxContentLength: 2000,
		},
		Scraper: ScraperConfig{
			ChannelEndpoint: "https://t.me/s/",
			UserAgent:       "NewsDesk/1.0",
			PageSize:        20,
			Lookback:        24 * time.Hour,
			MinLength:       50,
		},
		Storage: StorageConfig{
			Driver: StorageSQL,
			DSN:    defaultDatabaseURL,
			Sheets: SheetsConfig{Worksheet: defaultWorksheetName},
		},
		Parser: ParserConfig{
			Interval:           60 * time.Minute,
			SourcePause:        5 * time.Second,
			Backoff:            5 * time.Minute,
			MaxRewriteAttempts: 3,
			RetryBatch:         10,
		},
		Publisher: PublisherConfig{
			Interval:  30 * time.Minute,
			BatchSize: 1,
			SendPause: 5 * time.Second,
			Backoff:   5 * time.Minute,
		},
	}
}
