package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const incomingQueueCount = 3

type Config struct {
	Server  ServerConfig
	Broker  BrokerConfig
	Stores  StoresConfig
	Workers WorkersConfig
	HTTP    HTTPConfig
	Stats   StatsConfig
	Locale  LocaleConfig
	Log     LogConfig
}

type ServerConfig struct {
	Address string
}

type BrokerConfig struct {
	URL            string
	OutgoingQueue  string
	IncomingQueues []string
	ConsumerTag    string
	Prefetch       int
	ReconnectDelay time.Duration
}

// Queues returns every consumed queue, outgoing first.
func (b BrokerConfig) Queues() []string {
	return append([]string{b.OutgoingQueue}, b.IncomingQueues...)
}

type StoresConfig struct {
	DatabaseURL string
	RedisURL    string
	// AutoMigrate creates missing tables on connect. Off in production.
	AutoMigrate bool
}

type WorkersConfig struct {
	PoolSize int
}

type HTTPConfig struct {
	Timeout time.Duration
}

type StatsConfig struct {
	Interval time.Duration
}

type LocaleConfig struct {
	CaptionLang string
}

type LogConfig struct {
	Mode  string
	Level string
	File  string
}

func LoadAll() (*Config, error) {
	var errs []error

	str := func(key string) string {
		v, err := requireEnv(key)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}
	num := func(key string, def int) int {
		v, err := getEnvInt(key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}
	flag := func(key string) bool {
		v, err := getEnvBool(key, false)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}

	cfg := &Config{
		Server: ServerConfig{
			Address: getEnv("SERVER_ADDRESS", ":8080"),
		},
		Broker: BrokerConfig{
			URL:            str("RABBIT_URL"),
			OutgoingQueue:  getEnv("OUTGOING_QUEUE", "outgoing_requests"),
			IncomingQueues: splitList(getEnv("INCOMING_QUEUES", "incoming_requests,incoming_webhooks,incoming_contacts")),
			ConsumerTag:    getEnv("CONSUMER_TAG", "WasolConsumer"),
			Prefetch:       num("PREFETCH", 1),
			ReconnectDelay: time.Duration(num("RECONNECT_DELAY_SECONDS", 5)) * time.Second,
		},
		Stores: StoresConfig{
			DatabaseURL: str("DB_URL"),
			RedisURL:    str("REDIS_URL"),
			AutoMigrate: flag("DB_AUTO_MIGRATE"),
		},
		Workers: WorkersConfig{
			PoolSize: num("WORKER_POOL_SIZE", 10000),
		},
		HTTP: HTTPConfig{
			Timeout: time.Duration(num("HTTP_TIMEOUT_SECONDS", 10)) * time.Second,
		},
		Stats: StatsConfig{
			Interval: time.Duration(num("STATS_INTERVAL_SECONDS", 30)) * time.Second,
		},
		Locale: LocaleConfig{
			CaptionLang: getEnv("CAPTION_LANG", "pt-BR"),
		},
		Log: LogConfig{
			Mode:  getEnv("LOG_MODE", "production"),
			Level: getEnv("LOG_LEVEL", "info"),
			File:  os.Getenv("LOG_FILE"),
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

func validate(cfg *Config) []error {
	var errs []error
	if cfg.Broker.Prefetch <= 0 {
		errs = append(errs, errors.New("PREFETCH must be > 0"))
	}
	if cfg.Broker.ReconnectDelay <= 0 {
		errs = append(errs, errors.New("RECONNECT_DELAY_SECONDS must be > 0"))
	}
	if cfg.Workers.PoolSize <= 0 {
		errs = append(errs, errors.New("WORKER_POOL_SIZE must be > 0"))
	}
	if cfg.HTTP.Timeout <= 0 {
		errs = append(errs, errors.New("HTTP_TIMEOUT_SECONDS must be > 0"))
	}
	if cfg.Stats.Interval <= 0 {
		errs = append(errs, errors.New("STATS_INTERVAL_SECONDS must be > 0"))
	}
	if cfg.Broker.OutgoingQueue == "" {
		errs = append(errs, errors.New("OUTGOING_QUEUE must not be empty"))
	}
	if len(cfg.Broker.IncomingQueues) != incomingQueueCount {
		errs = append(errs, fmt.Errorf("INCOMING_QUEUES must list %d queues, got %d", incomingQueueCount, len(cfg.Broker.IncomingQueues)))
	}
	for _, q := range cfg.Broker.IncomingQueues {
		if q == cfg.Broker.OutgoingQueue {
			errs = append(errs, fmt.Errorf("INCOMING_QUEUES must not contain the outgoing queue %q", q))
		}
	}
	return errs
}

func requireEnv(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("missing required env var: %s", key)
	}
	return val, nil
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

func getEnvBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def, fmt.Errorf("invalid bool for env %s: %q", key, v)
	}
	return b, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}
