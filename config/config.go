package config

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/spf13/viper"
)

type Config struct {
	MinIOBucket string        `yaml:"minio_bucket"`
	App         App           `yaml:"app"`
	DB          *sql.DB       `yaml:"db"`
	Queue       *RabbitMQ     `yaml:"rabbitmq"`
	Storage     *minio.Client `yaml:"storage"`
	Server      Server        `yaml:"server"`
	Backend     Backend       `yaml:"backend"`
	Poller      Poller        `yaml:"poller"`
	Device      Device        `yaml:"device"`
	DataPath    string        `yaml:"data_path"`
}

type App struct {
	Environment string `yaml:"environment"`
	Host        string `yaml:"host"`
	Protocol    string `yaml:"protocol"`
}

type Server struct {
	HttpPort string `yaml:"http_port"`
	Workers  int    `yaml:"workers"`
}

type Backend struct {
	BaseURL        string        `yaml:"base_url"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	UploadTimeout  time.Duration `yaml:"upload_timeout"`
}

type Poller struct {
	Interval               time.Duration `yaml:"interval"`
	MaxConsecutiveFailures int           `yaml:"max_consecutive_failures"`
}

type Device struct {
	Kind           string        `yaml:"kind"`
	MediaPath      string        `yaml:"media_path"`
	MimeType       string        `yaml:"mime_type"`
	ChunkSize      int           `yaml:"chunk_size"`
	ChunkInterval  time.Duration `yaml:"chunk_interval"`
	AcquireRetries uint          `yaml:"acquire_retries"`
}

type RabbitMQ struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	User         string `json:"user"`
	Pass         string `json:"pass"`
	ExchangeName string `json:"exchange_name"`
	Kind         string `json:"kind"`
	QueueName    string `json:"queue_name"`
	RoutingKey   string `json:"routing_key"`
	MaxRetries   uint   `json:"max_retries"`
}

func setDefaults() {
	viper.SetDefault("app.environment", "develop")
	viper.SetDefault("server.port", "8090")
	viper.SetDefault("server.workers", 1)
	viper.SetDefault("backend.base_url", "http://localhost:8000")
	viper.SetDefault("backend.request_timeout", 15*time.Second)
	viper.SetDefault("backend.upload_timeout", 120*time.Second)
	viper.SetDefault("poller.interval", 8*time.Second)
	viper.SetDefault("poller.max_consecutive_failures", 5)
	viper.SetDefault("device.kind", "file")
	viper.SetDefault("device.mime_type", "video/webm")
	viper.SetDefault("device.chunk_size", 64*1024)
	viper.SetDefault("device.chunk_interval", time.Second)
	viper.SetDefault("device.acquire_retries", 3)
	viper.SetDefault("data_path", "./data")
	viper.SetDefault("rabbitmq_kind", "topic")
	viper.SetDefault("rabbitmq_exchange", "interview_events")
	viper.SetDefault("rabbitmq_queue", "interview_room_events")
	viper.SetDefault("rabbitmq_routing_key", "session.#")
	viper.SetDefault("rabbitmq_max_retries", 3)
}

// Load reads config.yaml from path. A .env file next to it is loaded into the
// environment first, and any key can be overridden by an env var such as
// BACKEND_BASE_URL. PostgreSQL, MinIO and RabbitMQ are optional: they are
// only wired when their host is configured.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	setDefaults()

	err := viper.ReadInConfig()
	if err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{
		MinIOBucket: viper.GetString("minio.bucket"),
		App: App{
			Environment: viper.GetString("app.environment"),
			Host:        viper.GetString("app.host"),
			Protocol:    viper.GetString("app.protocol"),
		},
		Server: Server{
			HttpPort: viper.GetString("server.port"),
			Workers:  viper.GetInt("server.workers"),
		},
		Backend: Backend{
			BaseURL:        strings.TrimRight(viper.GetString("backend.base_url"), "/"),
			RequestTimeout: viper.GetDuration("backend.request_timeout"),
			UploadTimeout:  viper.GetDuration("backend.upload_timeout"),
		},
		Poller: Poller{
			Interval:               viper.GetDuration("poller.interval"),
			MaxConsecutiveFailures: viper.GetInt("poller.max_consecutive_failures"),
		},
		Device: Device{
			Kind:           viper.GetString("device.kind"),
			MediaPath:      viper.GetString("device.media_path"),
			MimeType:       viper.GetString("device.mime_type"),
			ChunkSize:      viper.GetInt("device.chunk_size"),
			ChunkInterval:  viper.GetDuration("device.chunk_interval"),
			AcquireRetries: viper.GetUint("device.acquire_retries"),
		},
		DataPath: viper.GetString("data_path"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if dsn := viper.GetString("postgresql_host"); dsn != "" {
		db, err := sql.Open("postgres", dsn)
		if err != nil {
			return nil, err
		}
		cfg.DB = db
	}

	if host := viper.GetString("rabbitmq_host"); host != "" {
		cfg.Queue = &RabbitMQ{
			Host:         host,
			Port:         viper.GetInt("rabbitmq_port"),
			User:         viper.GetString("rabbitmq_user"),
			Pass:         viper.GetString("rabbitmq_pass"),
			Kind:         viper.GetString("rabbitmq_kind"),
			ExchangeName: viper.GetString("rabbitmq_exchange"),
			QueueName:    viper.GetString("rabbitmq_queue"),
			RoutingKey:   viper.GetString("rabbitmq_routing_key"),
			MaxRetries:   viper.GetUint("rabbitmq_max_retries"),
		}
	}

	if url := viper.GetString("minio.url"); url != "" {
		minioClient, err := minio.New(url, &minio.Options{
			Creds:  credentials.NewStaticV4(viper.GetString("minio.access_id"), viper.GetString("minio.secret_access_key"), ""),
			Secure: viper.GetBool("minio.secure"),
		})
		if err != nil {
			return nil, err
		}
		cfg.Storage = minioClient
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("backend.base_url is required")
	}
	if c.Backend.RequestTimeout <= 0 {
		return fmt.Errorf("backend.request_timeout must be positive")
	}
	if c.Backend.UploadTimeout <= c.Backend.RequestTimeout {
		return fmt.Errorf("backend.upload_timeout (%s) must be greater than backend.request_timeout (%s)",
			c.Backend.UploadTimeout, c.Backend.RequestTimeout)
	}
	if c.Poller.Interval <= 0 {
		return fmt.Errorf("poller.interval must be positive")
	}
	if c.Poller.MaxConsecutiveFailures < 1 {
		return fmt.Errorf("poller.max_consecutive_failures must be at least 1")
	}
	return nil
}
