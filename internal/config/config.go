// Package config предоставляет структуры и функцию для парсинга и загрузки конфига
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Окружения запуска.
const (
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"
)

// Драйверы хранилища.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config общая структура для хранения настроек
type Config struct {
	Env             string `yaml:"env" env:"APP_ENV" env-default:"local"`
	Storage         `yaml:"storage"`
	HTTPServer      `yaml:"http_server"`
	RedisConnection `yaml:"redis_connection"`
	RabbitMQ        `yaml:"rabbitmq"`
	Identity        `yaml:"identity"`
	Billing         `yaml:"billing"`
	Security        `yaml:"security"`
	Cache           `yaml:"cache"`
}

// Storage настройки хранилища entitlement
type Storage struct {
	Driver         string `yaml:"driver" env:"STORAGE_DRIVER" env-default:"postgres"`
	DSN            string `yaml:"dsn" env:"STORAGE_DSN"`
	SkipMigrations bool   `yaml:"skip_migrations" env:"STORAGE_SKIP_MIGRATIONS"`
}

// HTTPServer структура для настройки сервера
type HTTPServer struct {
	AddressHTTP string        `yaml:"address" env:"HTTP_ADDRESS" env-default:":8080"`
	TimeoutHTTP time.Duration `yaml:"timeout" env-default:"10s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
	RateLimit   float64       `yaml:"rate_limit" env-default:"20"`
	RateBurst   int           `yaml:"rate_burst" env-default:"40"`
}

// RedisConnection структура для настройки подключения к redis.
// Пустой адрес отключает кэш каталога.
type RedisConnection struct {
	AddressRedis string        `yaml:"address" env:"REDIS_ADDRESS"`
	Password     string        `yaml:"password" env:"REDIS_PASSWORD"`
	User         string        `yaml:"user"`
	DB           int           `yaml:"db"`
	MaxRetries   int           `yaml:"max_retries" env-default:"3"`
	DialTimeout  time.Duration `yaml:"dial_timeout" env-default:"5s"`
	TimeoutRedis time.Duration `yaml:"timeout" env-default:"3s"`
}

// RabbitMQ настройки публикации событий. Пустой URL отключает публикацию.
type RabbitMQ struct {
	URL     string        `yaml:"url" env:"RABBITMQ_URL"`
	Retries int           `yaml:"retries" env-default:"5"`
	Delay   time.Duration `yaml:"delay" env-default:"2s"`
}

// Identity настройки проверки токенов провайдера идентификации
type Identity struct {
	JWTSecretKey string `yaml:"jwt_secret_key" env:"IDENTITY_JWT_SECRET"`
	Issuer       string `yaml:"issuer" env:"IDENTITY_ISSUER"`
	Audience     string `yaml:"audience" env:"IDENTITY_AUDIENCE"`
}

// Billing настройки платёжного провайдера
type Billing struct {
	APIURL           string        `yaml:"api_url" env:"BILLING_API_URL" env-default:"https://api.stripe.com"`
	SecretKey        string        `yaml:"secret_key" env:"BILLING_SECRET_KEY"`
	WebhookSecret    string        `yaml:"webhook_secret" env:"BILLING_WEBHOOK_SECRET"`
	WebhookTolerance time.Duration `yaml:"webhook_tolerance" env-default:"5m"`
	Timeout          time.Duration `yaml:"timeout" env-default:"10s"`
}

// Security ключи хэширования и доступа администратора
type Security struct {
	HashKey      string `yaml:"hash_key" env:"SECURITY_HASH_KEY"`
	AdminKeyHash string `yaml:"admin_key_hash" env:"SECURITY_ADMIN_KEY_HASH"`
}

// Cache настройки кэша каталога планов
type Cache struct {
	PlanTTL time.Duration `yaml:"plan_ttl" env-default:"5m"`
}

// MustLoad функция для загрузки конфига по пути из CONFIG_PATH
func MustLoad() *Config {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		log.Fatal("CONFIG_PATH is not set")
	}
	cfg, err := Load(configPath)
	if err != nil {
		log.Fatalf("cannot read config: %s", err)
	}
	return cfg
}

// Load читает конфиг из файла, применяет переменные окружения и проверяет его.
func Load(configPath string) (*Config, error) {
	const op = "config.Load"
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%s: file %s does not exist", op, configPath)
	}
	var cfg Config
	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &cfg, nil
}

// Validate проверяет обязательные поля.
func (c *Config) Validate() error {
	var problems []error
	switch c.Driver {
	case DriverPostgres:
		if c.DSN == "" {
			problems = append(problems, errors.New("storage.dsn is required for postgres driver"))
		}
	case DriverMemory:
	default:
		problems = append(problems, fmt.Errorf("unknown storage driver %q", c.Driver))
	}
	if c.JWTSecretKey == "" {
		problems = append(problems, errors.New("identity.jwt_secret_key is required"))
	}
	if c.HashKey == "" {
		problems = append(problems, errors.New("security.hash_key is required"))
	}
	if c.AdminKeyHash == "" {
		problems = append(problems, errors.New("security.admin_key_hash is required"))
	}
	if c.WebhookSecret == "" {
		problems = append(problems, errors.New("billing.webhook_secret is required"))
	}
	return errors.Join(problems...)
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "****"
}

func (c *Config) String() string {
	return fmt.Sprintf(
		"Env: %s\n"+
			"Storage:\n"+
			"  Driver: %s\n"+
			"  SkipMigrations: %t\n"+
			"HTTPServer:\n"+
			"  Address: %s\n"+
			"  Timeout: %s\n"+
			"  IdleTimeout: %s\n"+
			"  RateLimit: %.2f/%d\n"+
			"RedisConnection:\n"+
			"  Addr: %s\n"+
			"  Password: %s\n"+
			"RabbitMQ:\n"+
			"  URL set: %t\n"+
			"Identity:\n"+
			"  Issuer: %s\n"+
			"  Audience: %s\n"+
			"  JWTSecretKey: %s\n"+
			"Billing:\n"+
			"  APIURL: %s\n"+
			"  SecretKey: %s\n"+
			"  WebhookSecret: %s\n"+
			"Cache:\n"+
			"  PlanTTL: %s\n",
		c.Env,
		c.Driver,
		c.SkipMigrations,
		c.AddressHTTP,
		c.TimeoutHTTP,
		c.IdleTimeout,
		c.RateLimit,
		c.RateBurst,
		c.AddressRedis,
		mask(c.Password),
		c.URL != "",
		c.Issuer,
		c.Audience,
		mask(c.JWTSecretKey),
		c.APIURL,
		mask(c.SecretKey),
		mask(c.WebhookSecret),
		c.PlanTTL,
	)
}
