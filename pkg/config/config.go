package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"

	"ModelGate/internal/domain/models"
)

type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Host            string        `yaml:"host" default:"0.0.0.0"`
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
	Kafka struct {
		Brokers          []string `yaml:"brokers"`
		PredictionsTopic string   `yaml:"predictions_topic"`
		OutcomesTopic    string   `yaml:"outcomes_topic"`
		LiveTradesTopic  string   `yaml:"live_trades_topic"`
		DecisionsTopic   string   `yaml:"decisions_topic"`
		RequiredAcks     int      `yaml:"required_acks"`
		Compression      string   `yaml:"compression"`
		Producer         struct {
			MaxAttempts  int           `yaml:"max_attempts"`
			Linger       time.Duration `yaml:"linger"`
			BatchBytes   int           `yaml:"batch_bytes"`
			BatchSize    int           `yaml:"batch_size"`
			WriteTimeout time.Duration `yaml:"write_timeout"`
			ReadTimeout  time.Duration `yaml:"read_timeout"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id"`
			Workers    int           `yaml:"workers"`
			BufferSize int           `yaml:"buffer_size"`
			RetryMax   int           `yaml:"retry_max"`
			BackoffMin time.Duration `yaml:"backoff_min"`
			BackoffMax time.Duration `yaml:"backoff_max"`
			DLQTopic   string        `yaml:"dlq_topic"`
			MinBytes   int           `yaml:"min_bytes"`
			MaxBytes   int           `yaml:"max_bytes"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port"`
		Database         string        `yaml:"database"`
		User             string        `yaml:"user"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout"`
		ReadTimeout      time.Duration `yaml:"read_timeout"`
		WriteTimeout     time.Duration `yaml:"write_timeout"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time"`
	} `yaml:"clickhouse"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Settlements struct {
		WebSocketURL   string        `yaml:"websocket_url"`
		APIKey         string        `yaml:"api_key"`
		Symbols        []string      `yaml:"symbols"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay"`
		PingInterval   time.Duration `yaml:"ping_interval"`
	} `yaml:"settlements"`
	Regime struct {
		ServiceURL string        `yaml:"service_url"`
		Timeout    time.Duration `yaml:"timeout"`
		CacheTTL   time.Duration `yaml:"cache_ttl"`
	} `yaml:"regime"`
	Conformal models.ConformalConfig      `yaml:"conformal"`
	Shadow    models.ValidationThresholds `yaml:"shadow"`
	Promotion models.PromotionConfig      `yaml:"promotion"`
	Champion  struct {
		ChampionID   string  `yaml:"champion_id"`
		Significance float64 `yaml:"significance"`
	} `yaml:"champion"`
	Scheduler struct {
		EvaluationInterval time.Duration `yaml:"evaluation_interval"`
		RetryInterval      time.Duration `yaml:"retry_interval"`
	} `yaml:"scheduler"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("SETTLEMENTS_API_KEY"); v != "" {
		c.Settlements.APIKey = v
	}
	if v := os.Getenv("CHAMPION_ID"); v != "" {
		c.Champion.ChampionID = v
	}

	return c, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty")
	}
	if c.Kafka.PredictionsTopic == "" || c.Kafka.OutcomesTopic == "" {
		return fmt.Errorf("kafka.predictions_topic and kafka.outcomes_topic are required")
	}
	if c.Conformal.Alpha <= 0 || c.Conformal.Alpha >= 1 {
		return fmt.Errorf("conformal.alpha must be in (0, 1), got %v", c.Conformal.Alpha)
	}
	if c.Conformal.WindowSize < c.Conformal.MinSamples {
		return fmt.Errorf("conformal.window_size %d < min_samples %d",
			c.Conformal.WindowSize, c.Conformal.MinSamples)
	}
	if c.Shadow.RequiredSamples <= 0 {
		return fmt.Errorf("shadow.required_samples must be positive")
	}
	if len(c.Promotion.RampUpSteps) == 0 {
		return fmt.Errorf("promotion.ramp_up_steps cannot be empty")
	}
	if c.Champion.ChampionID == "" {
		return fmt.Errorf("champion.champion_id is required")
	}
	if c.Champion.Significance <= 0 || c.Champion.Significance >= 1 {
		return fmt.Errorf("champion.significance must be in (0, 1), got %v", c.Champion.Significance)
	}
	return nil
}
