package config

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Sheet     SheetConfig
	Messaging MessagingConfig
	Notify    NotifyConfig
	Job       JobConfig
	Redis     RedisConfig
	Database  DatabaseConfig
	Server    ServerConfig
	Scheduler SchedulerConfig
	Log       LogConfig
}

type SheetConfig struct {
	SpreadsheetID string
	Tab           string
	// Credentials is the decoded service account JSON document.
	Credentials []byte
}

type MessagingConfig struct {
	BaseURL     string
	AccessToken string
	LocationID  string
	Timeout     time.Duration
	RatePerSec  float64
}

type NotifyConfig struct {
	WebhookURL string
}

type JobConfig struct {
	BatchSize     int
	Delay         time.Duration
	TemplatesFile string
}

type RedisConfig struct {
	Enabled  bool
	Address  string
	Password string
	DB       int
	TTL      time.Duration
	LockTTL  time.Duration
}

type DatabaseConfig struct {
	Enabled     bool
	PostgresURL string
}

type ServerConfig struct {
	Address string
}

type SchedulerConfig struct {
	Interval time.Duration
}

type LogConfig struct {
	Format string
}

const (
	DefaultBaseURL   = "https://services.leadconnectorhq.com"
	DefaultTab       = "Sheet1"
	DefaultBatchSize = 30
	DefaultDelay     = 24 * time.Hour
)

// LoadAll reads the whole configuration from the environment. Every problem
// found is reported in the returned error, not just the first one.
func LoadAll() (*Config, error) {
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	spreadsheetID, err := requireEnv("SPREADSHEET_ID")
	collect(err)
	token, err := requireEnv("GHL_ACCESS_TOKEN")
	collect(err)
	creds, err := loadCredentials()
	collect(err)

	batchSize, err := getEnvInt("BATCH_SIZE", DefaultBatchSize)
	collect(err)
	delayHours, err := getEnvInt("DELAY_HOURS", int(DefaultDelay/time.Hour))
	collect(err)
	timeoutSec, err := getEnvInt("HTTP_TIMEOUT_SECONDS", 30)
	collect(err)
	rate, err := getEnvFloat("SEND_RATE_PER_SECOND", 5)
	collect(err)
	intervalSec, err := getEnvInt("SCHED_INTERVAL_SECONDS", 3600)
	collect(err)

	redisCfg, err := loadRedisConfig()
	collect(err)

	cfg := &Config{
		Sheet: SheetConfig{
			SpreadsheetID: spreadsheetID,
			Tab:           getEnv("SHEET_TAB", DefaultTab),
			Credentials:   creds,
		},
		Messaging: MessagingConfig{
			BaseURL:     strings.TrimRight(getEnv("GHL_BASE_URL", DefaultBaseURL), "/"),
			AccessToken: token,
			LocationID:  os.Getenv("GHL_LOCATION_ID"),
			Timeout:     time.Duration(timeoutSec) * time.Second,
			RatePerSec:  rate,
		},
		Notify: NotifyConfig{
			WebhookURL: os.Getenv("NOTIFY_WEBHOOK_URL"),
		},
		Job: JobConfig{
			BatchSize:     batchSize,
			Delay:         time.Duration(delayHours) * time.Hour,
			TemplatesFile: os.Getenv("TEMPLATES_FILE"),
		},
		Redis: redisCfg,
		Database: DatabaseConfig{
			Enabled:     os.Getenv("POSTGRES_URL") != "",
			PostgresURL: os.Getenv("POSTGRES_URL"),
		},
		Server: ServerConfig{
			Address: getEnv("SERVER_ADDRESS", ":8080"),
		},
		Scheduler: SchedulerConfig{
			Interval: time.Duration(intervalSec) * time.Second,
		},
		Log: LogConfig{
			Format: getEnv("LOG_FORMAT", "text"),
		},
	}

	if len(errs) == 0 {
		errs = append(errs, validate(cfg)...)
	}
	if err := joinErrors(errs); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadRedisConfig() (RedisConfig, error) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		return RedisConfig{Enabled: false}, nil
	}

	var errs []error
	db, err := getEnvInt("REDIS_DB", 0)
	if err != nil {
		errs = append(errs, err)
	}
	ttl, err := getEnvInt("REDIS_TTL_SECONDS", 30*24*3600)
	if err != nil {
		errs = append(errs, err)
	}
	lockTTL, err := getEnvInt("RUN_LOCK_TTL_SECONDS", 900)
	if err != nil {
		errs = append(errs, err)
	}

	return RedisConfig{
		Enabled:  true,
		Address:  addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       db,
		TTL:      time.Duration(ttl) * time.Second,
		LockTTL:  time.Duration(lockTTL) * time.Second,
	}, joinErrors(errs)
}

func validate(cfg *Config) []error {
	var errs []error
	if cfg.Job.BatchSize <= 0 {
		errs = append(errs, errors.New("BATCH_SIZE must be > 0"))
	}
	if cfg.Job.Delay <= 0 {
		errs = append(errs, errors.New("DELAY_HOURS must be > 0"))
	}
	if cfg.Messaging.Timeout <= 0 {
		errs = append(errs, errors.New("HTTP_TIMEOUT_SECONDS must be > 0"))
	}
	if cfg.Messaging.RatePerSec <= 0 {
		errs = append(errs, errors.New("SEND_RATE_PER_SECOND must be > 0"))
	}
	if cfg.Scheduler.Interval <= 0 {
		errs = append(errs, errors.New("SCHED_INTERVAL_SECONDS must be > 0"))
	}
	if cfg.Redis.Enabled && cfg.Redis.LockTTL <= 0 {
		errs = append(errs, errors.New("RUN_LOCK_TTL_SECONDS must be > 0"))
	}
	switch cfg.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be text or json, got %q", cfg.Log.Format))
	}
	return errs
}

func loadCredentials() ([]byte, error) {
	raw, err := requireEnv("SERVICE_ACCOUNT_JSON")
	if err != nil {
		return nil, err
	}
	return DecodeServiceAccount(raw)
}

// DecodeServiceAccount accepts the service account document either base64
// encoded or as raw JSON and returns the JSON bytes.
func DecodeServiceAccount(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)

	if decoded, err := base64.StdEncoding.DecodeString(raw); err == nil {
		if checkJSONObject(decoded) == nil {
			return decoded, nil
		}
	}

	if err := checkJSONObject([]byte(raw)); err != nil {
		return nil, fmt.Errorf("failed to decode SERVICE_ACCOUNT_JSON: %w", err)
	}
	return []byte(raw), nil
}

func checkJSONObject(b []byte) error {
	var obj map[string]any
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	if len(obj) == 0 {
		return errors.New("empty JSON object")
	}
	return nil
}

func requireEnv(key string) (string, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return "", fmt.Errorf("missing required env var: %s", key)
	}
	return v, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("invalid int for env %s: %q", key, v)
	}
	return i, nil
}

func getEnvFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def, fmt.Errorf("invalid number for env %s: %q", key, v)
	}
	return f, nil
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}
