package config

import (
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const defaultConfigPath = "./config/local.yaml"

type Config struct {
	Env        string `yaml:"env" env:"ENV" env-default:"prod"`
	HTTPServer `yaml:"http_server"`
	ErrorLog   ErrorLog `yaml:"error_log"`
	Database   Database `yaml:"database"`
	Redis      Redis    `yaml:"redis"`
	Kafka      Kafka    `yaml:"kafka"`
	Engine     Engine   `yaml:"engine"`

	// Features maps a tenant id to the feature keys its subscription enables.
	Features map[string][]string `yaml:"features"`

	CORSOrigins []string `yaml:"cors_origins" env-default:"http://localhost:5173"`
	AdminLogin  string   `yaml:"admin_login" env:"ADMIN_LOGIN"`
	AdminPass   string   `yaml:"admin_pass" env:"ADMIN_PASS"`
}

type HTTPServer struct {
	Address     string        `yaml:"address" env:"HTTP_ADDRESS" env-default:"localhost:4001"`
	Timeout     time.Duration `yaml:"timeout" env-default:"4s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
}

// ErrorLog is a JSON file receiving log records at or above Level.
type ErrorLog struct {
	Path  string `yaml:"path" env:"ERROR_LOG_PATH" env-default:"errors.log"`
	Level string `yaml:"level" env-default:"error"`
}

type Database struct {
	Driver string `yaml:"driver" env:"DB_DRIVER" env-default:"mysql"`

	// mysql / postgres
	User      string `yaml:"user" env:"DB_USER"`
	Password  string `yaml:"password" env:"DB_PASSWORD"`
	Host      string `yaml:"host" env:"DB_HOST" env-default:"localhost"`
	Port      int    `yaml:"port" env:"DB_PORT"` // 0 picks the driver's standard port
	Name      string `yaml:"name" env:"DB_NAME"`
	ParseTime bool   `yaml:"parse_time" env-default:"true"`
	SSLMode   string `yaml:"sslmode" env-default:"disable"`

	// sqlite
	Path string `yaml:"path" env:"DB_PATH" env-default:"./data/fabprogress.db"`

	MaxOpenConns int `yaml:"max_open_conns" env-default:"10"`
}

type Redis struct {
	Address  string        `yaml:"address" env:"REDIS_ADDRESS"`
	Password string        `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int           `yaml:"db" env-default:"0"`
	LockTTL  time.Duration `yaml:"lock_ttl" env-default:"10s"`
}

type Kafka struct {
	Enabled       bool          `yaml:"enabled" env:"KAFKA_ENABLED" env-default:"false"`
	Brokers       []string      `yaml:"brokers" env:"KAFKA_BROKERS"`
	Topic         string        `yaml:"topic" env-default:"fabprogress.events"`
	DrainInterval time.Duration `yaml:"drain_interval" env-default:"2s"`
	BatchSize     int           `yaml:"batch_size" env-default:"50"`
	MaxRetries    int           `yaml:"max_retries" env-default:"10"`
}

type Engine struct {
	ConflictRetries int           `yaml:"conflict_retries" env-default:"3"`
	LockTimeout     time.Duration `yaml:"lock_timeout" env-default:"5s"`
}

func MustConfig() *Config {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = defaultConfigPath
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		log.Fatalf("config file does not exist: %s", configPath)
	}

	var cfg Config
	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		log.Fatalf("cannot read config: %s", err)
	}

	return &cfg
}
