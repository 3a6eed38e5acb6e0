package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Postgres   PostgresConfig   `yaml:"postgres"`
	Redis      RedisConfig      `yaml:"redis"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
	GeoIP      GeoIPConfig      `yaml:"geoip"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	LLM        LLMConfig        `yaml:"llm"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Batch      BatchConfig      `yaml:"batch"`
	Log        LogConfig        `yaml:"log"`
}

type ServerConfig struct {
	HTTPPort        int           `yaml:"http_port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// PostgresConfig selects the durable review store. An empty DSN runs the
// in-memory store.
type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type KafkaConfig struct {
	Brokers       []string          `yaml:"brokers"`
	Topics        map[string]string `yaml:"topics"`
	ConsumerGroup string            `yaml:"consumer_group"`
}

type ClickHouseConfig struct {
	Addr         string `yaml:"addr"`
	Database     string `yaml:"database"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

type GeoIPConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// RateLimitConfig bounds submissions per website per second.
type RateLimitConfig struct {
	RequestsPerSecond int `yaml:"requests_per_second"`
}

// LLMConfig configures the OpenAI-compatible generation backend. An empty
// APIKey disables remote generation and every insight uses the heuristic path.
type LLMConfig struct {
	BaseURL           string        `yaml:"base_url"`
	APIKey            string        `yaml:"api_key"`
	Model             string        `yaml:"model"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerMinute int           `yaml:"requests_per_minute"`
	Burst             int           `yaml:"burst"`
	Narrative         bool          `yaml:"narrative"`
}

type PipelineConfig struct {
	RecentLimit        int           `yaml:"recent_limit"`
	RefreshParallelism int           `yaml:"refresh_parallelism"`
	JobRetention       time.Duration `yaml:"job_retention"`
	JanitorSchedule    string        `yaml:"janitor_schedule"`
	SubscriberBuffer   int           `yaml:"subscriber_buffer"`
	MaxSubmitWait      time.Duration `yaml:"max_submit_wait"`
	JobDeadline        time.Duration `yaml:"job_deadline"`
}

// BatchConfig controls the ClickHouse archive writer.
type BatchConfig struct {
	Size          int           `yaml:"size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

type LogConfig struct {
	Level   string `yaml:"level"`
	Console bool   `yaml:"console"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	cfg.setDefaults()
	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.Server.HTTPPort == 0 {
		c.Server.HTTPPort = 8000
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 15 * time.Second
	}

	// Unset ${VAR} brokers expand to empty strings
	brokers := c.Kafka.Brokers[:0]
	for _, b := range c.Kafka.Brokers {
		if b != "" {
			brokers = append(brokers, b)
		}
	}
	c.Kafka.Brokers = brokers

	if c.Kafka.Topics == nil {
		c.Kafka.Topics = map[string]string{}
	}
	if c.Kafka.ConsumerGroup == "" {
		c.Kafka.ConsumerGroup = "reviewsight-ingest"
	}

	if c.ClickHouse.MaxOpenConns == 0 {
		c.ClickHouse.MaxOpenConns = 10
	}
	if c.ClickHouse.MaxIdleConns == 0 {
		c.ClickHouse.MaxIdleConns = 5
	}

	if c.RateLimit.RequestsPerSecond == 0 {
		c.RateLimit.RequestsPerSecond = 20
	}

	if c.LLM.Model == "" {
		c.LLM.Model = "openai/gpt-oss-20b"
	}
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = "https://api.groq.com/openai/v1"
	}
	if c.LLM.Timeout == 0 {
		c.LLM.Timeout = 8 * time.Second
	}
	if c.LLM.RequestsPerMinute == 0 {
		c.LLM.RequestsPerMinute = 60
	}
	if c.LLM.Burst == 0 {
		c.LLM.Burst = 5
	}

	if c.Pipeline.RecentLimit == 0 {
		c.Pipeline.RecentLimit = 20
	}
	if c.Pipeline.RefreshParallelism == 0 {
		c.Pipeline.RefreshParallelism = 4
	}
	if c.Pipeline.JobRetention == 0 {
		c.Pipeline.JobRetention = 10 * time.Minute
	}
	if c.Pipeline.JanitorSchedule == "" {
		c.Pipeline.JanitorSchedule = "@every 1m"
	}
	if c.Pipeline.SubscriberBuffer == 0 {
		c.Pipeline.SubscriberBuffer = 64
	}
	if c.Pipeline.MaxSubmitWait == 0 {
		c.Pipeline.MaxSubmitWait = 10 * time.Second
	}
	if c.Pipeline.JobDeadline == 0 {
		c.Pipeline.JobDeadline = 30 * time.Second
	}

	if c.Batch.Size == 0 {
		c.Batch.Size = 500
	}
	if c.Batch.FlushInterval == 0 {
		c.Batch.FlushInterval = 5 * time.Second
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}
