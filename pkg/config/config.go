package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Reddit    RedditConfig
	Tracker   TrackerConfig
	Series    SeriesConfig
	Sqlite    SqliteConfig
	Postgres  PostgresConfig
	Redis     RedisConfig
	Logging   LoggingConfig
	Telemetry TelemetryConfig
}

// RedditConfig holds API credentials and client behavior
type RedditConfig struct {
	APIBase      string
	AuthBase     string
	ClientID     string
	ClientSecret string
	RefreshToken string
	UserAgent    string
	Timeout      time.Duration
	MaxRetries   int
}

// TrackerConfig holds scan and recheck configuration
type TrackerConfig struct {
	Subreddit       string
	LookbackDays    int
	StartTime       int64 // epoch seconds, 0 = derive from lookback
	EndTime         int64 // epoch seconds, 0 = open ended
	MaxPages        int
	MaxItems        int
	FetchComments   bool
	CommentLimit    int
	RecheckComments bool
	RecheckLimit    int
	RecheckMax      int
	Concurrency     int
}

// SeriesConfig bounds the per-row metric series
type SeriesConfig struct {
	PostMaxLen    int
	PostDedup     bool
	CommentMaxLen int
	CommentDedup  bool
}

// SqliteConfig holds the primary store location
type SqliteConfig struct {
	Path string
}

// PostgresConfig holds the optional mirror store connection
type PostgresConfig struct {
	URL     string
	Enabled bool
}

// RedisConfig holds the optional token cache connection
type RedisConfig struct {
	URL     string
	Enabled bool
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string // "json" or "text"
}

// TelemetryConfig holds tracing configuration
type TelemetryConfig struct {
	Enabled     bool
	JaegerURL   string
	ServiceName string
}

// Load loads configuration from environment variables and config file
func Load() (*Config, error) {
	setDefaults()

	viper.SetEnvPrefix("MODTRACK")
	viper.AutomaticEnv()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.modtrack")
	viper.AddConfigPath("/etc/modtrack")

	if err := viper.ReadInConfig(); err != nil {
		// Config file not found; this is OK if we have env vars
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := &Config{
		Reddit: RedditConfig{
			APIBase:      getString("api_base", "https://oauth.reddit.com"),
			AuthBase:     getString("auth_base", "https://www.reddit.com"),
			ClientID:     getString("client_id", ""),
			ClientSecret: getString("client_secret", ""),
			RefreshToken: getString("refresh_token", ""),
			UserAgent:    getString("user_agent", "modtrack/0.1 (moderation tracker)"),
			Timeout:      time.Duration(getInt("fetch_timeout_seconds", 30)) * time.Second,
			MaxRetries:   getInt("max_retries", 6),
		},
		Tracker: TrackerConfig{
			Subreddit:       getString("subreddit", ""),
			LookbackDays:    getInt("lookback_days", 7),
			StartTime:       int64(getInt("start_time", 0)),
			EndTime:         int64(getInt("end_time", 0)),
			MaxPages:        getInt("max_pages", 10),
			MaxItems:        getInt("max_items", 1000),
			FetchComments:   getBool("fetch_comments", true),
			CommentLimit:    getInt("comment_limit", 500),
			RecheckComments: getBool("recheck_comments", true),
			RecheckLimit:    getInt("recheck_comment_limit", 500),
			RecheckMax:      getInt("recheck_max_posts", 500),
			Concurrency:     getInt("concurrency", 4),
		},
		Series: SeriesConfig{
			PostMaxLen:    getInt("post_series_max", 96),
			PostDedup:     getBool("post_series_dedup", true),
			CommentMaxLen: getInt("comment_series_max", 48),
			CommentDedup:  getBool("comment_series_dedup", true),
		},
		Sqlite: SqliteConfig{
			Path: getString("sqlite_path", "./modtrack.db"),
		},
		Postgres: PostgresConfig{
			URL:     getString("postgres_url", ""),
			Enabled: getString("postgres_url", "") != "",
		},
		Redis: RedisConfig{
			URL:     getString("redis_url", ""),
			Enabled: getString("redis_url", "") != "",
		},
		Logging: LoggingConfig{
			Level:  getString("log_level", "INFO"),
			Format: getString("log_format", "json"),
		},
		Telemetry: TelemetryConfig{
			Enabled:     getBool("telemetry_enabled", false),
			JaegerURL:   getString("jaeger_url", "http://localhost:14268/api/traces"),
			ServiceName: getString("service_name", "modtrack"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func setDefaults() {
	viper.SetDefault("api_base", "https://oauth.reddit.com")
	viper.SetDefault("auth_base", "https://www.reddit.com")
	viper.SetDefault("user_agent", "modtrack/0.1 (moderation tracker)")
	viper.SetDefault("fetch_timeout_seconds", 30)
	viper.SetDefault("max_retries", 6)
	viper.SetDefault("lookback_days", 7)
	viper.SetDefault("max_pages", 10)
	viper.SetDefault("max_items", 1000)
	viper.SetDefault("fetch_comments", true)
	viper.SetDefault("comment_limit", 500)
	viper.SetDefault("recheck_comments", true)
	viper.SetDefault("recheck_comment_limit", 500)
	viper.SetDefault("recheck_max_posts", 500)
	viper.SetDefault("concurrency", 4)
	viper.SetDefault("post_series_max", 96)
	viper.SetDefault("post_series_dedup", true)
	viper.SetDefault("comment_series_max", 48)
	viper.SetDefault("comment_series_dedup", true)
	viper.SetDefault("sqlite_path", "./modtrack.db")
	viper.SetDefault("log_level", "INFO")
	viper.SetDefault("log_format", "json")
	viper.SetDefault("service_name", "modtrack")
}

func getString(key, defaultValue string) string {
	if viper.IsSet(key) {
		return viper.GetString(key)
	}
	// Also check environment variable directly
	if val := os.Getenv("MODTRACK_" + toEnvKey(key)); val != "" {
		return val
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if viper.IsSet(key) {
		return viper.GetInt(key)
	}
	if val := os.Getenv("MODTRACK_" + toEnvKey(key)); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	if viper.IsSet(key) {
		return viper.GetBool(key)
	}
	if val := os.Getenv("MODTRACK_" + toEnvKey(key)); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultValue
}

func toEnvKey(key string) string {
	// Convert snake_case to UPPER_SNAKE_CASE
	result := ""
	for _, r := range key {
		if r == '-' || r == '_' {
			result += "_"
		} else if r >= 'a' && r <= 'z' {
			result += string(r - 32)
		} else {
			result += string(r)
		}
	}
	return result
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Tracker.Subreddit == "" {
		return fmt.Errorf("subreddit is required")
	}
	if c.Reddit.ClientID == "" || c.Reddit.ClientSecret == "" {
		return fmt.Errorf("client_id and client_secret are required")
	}
	if c.Tracker.LookbackDays <= 0 || c.Tracker.LookbackDays > 365 {
		return fmt.Errorf("lookback_days must be between 1 and 365")
	}
	if c.Tracker.Concurrency <= 0 || c.Tracker.Concurrency > 64 {
		return fmt.Errorf("concurrency must be between 1 and 64")
	}
	if c.Reddit.MaxRetries <= 0 || c.Reddit.MaxRetries > 20 {
		return fmt.Errorf("max_retries must be between 1 and 20")
	}
	if c.Series.PostMaxLen < 0 || c.Series.CommentMaxLen < 0 {
		return fmt.Errorf("series max lengths cannot be negative")
	}
	if c.Sqlite.Path == "" {
		return fmt.Errorf("sqlite_path is required")
	}
	return nil
}

// Window returns the effective scan window as epoch seconds.
// Start is clamped to now - lookback_days; End of 0 means "no upper bound".
func (c *TrackerConfig) Window(now int64) (start, end int64) {
	start = now - int64(c.LookbackDays)*86400
	if c.StartTime > start {
		start = c.StartTime
	}
	end = c.EndTime
	if end == 0 {
		end = now
	}
	return start, end
}
