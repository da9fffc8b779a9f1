package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"groupbuy/pkg/crypto"
	"groupbuy/pkg/ratelimit"
	"groupbuy/pkg/retry"
)

// Config содержит всю конфигурацию приложения
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Engine    EngineConfig
	RateLimit RateLimitConfig
	Security  SecurityConfig
	Logging   LoggingConfig
}

// ServerConfig - настройки HTTP сервера
type ServerConfig struct {
	Port            int
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string // CORS и websocket Origin
}

// Addr адрес для net/http
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig - настройки подключения к БД
type DatabaseConfig struct {
	Host           string
	Port           int
	Name           string
	User           string
	Password       string
	SSLMode        string
	MaxOpenConns   int
	MigrateOnStart bool
}

// RedisConfig - общее хранилище вёдер rate limiter'а, пустой Addr = память процесса
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Enabled используется ли Redis
func (r RedisConfig) Enabled() bool { return r.Addr != "" }

// KafkaConfig - публикация событий переходов, пустой Brokers = выключено
type KafkaConfig struct {
	Brokers      string
	Topic        string
	WriteTimeout time.Duration
}

// Enabled используется ли Kafka
func (k KafkaConfig) Enabled() bool { return strings.TrimSpace(k.Brokers) != "" }

// EngineConfig - параметры движка пулов
type EngineConfig struct {
	PersistMaxAttempts  int
	PersistBaseDelay    time.Duration
	PersistMaxDelay     time.Duration
	ExpirySweepInterval time.Duration
}

// RetryPolicy политика повторов единиц работы хранилища
func (e EngineConfig) RetryPolicy() retry.Policy {
	p := retry.DefaultPolicy()
	p.MaxAttempts = e.PersistMaxAttempts
	p.BaseDelay = e.PersistBaseDelay
	p.MaxDelay = e.PersistMaxDelay
	return p
}

// RateLimitConfig - admission control
type RateLimitConfig struct {
	Enabled bool
	File    string // YAML с лимитами по классам эндпоинтов, пустой = значения по умолчанию
	Limits  map[ratelimit.Endpoint]ratelimit.Config
}

// SecurityConfig - настройки безопасности
type SecurityConfig struct {
	AuthEnabled bool // true = запросы без токена отклоняются
	BcryptCost  int
}

// LoggingConfig - настройки логирования
type LoggingConfig struct {
	Level  string
	Format string
	Output string
}

// Load загружает конфигурацию из переменных окружения
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvAsInt("SERVER_PORT", 8080),
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			AllowedOrigins:  getEnvAsList("CORS_ALLOWED_ORIGINS"),
		},
		Database: DatabaseConfig{
			Host:           getEnv("DB_HOST", "localhost"),
			Port:           getEnvAsInt("DB_PORT", 5432),
			Name:           getEnv("DB_NAME", "groupbuy"),
			User:           getEnv("DB_USER", "groupbuy"),
			Password:       getEnv("DB_PASSWORD", ""),
			SSLMode:        getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns:   getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MigrateOnStart: getEnvAsBool("DB_MIGRATE_ON_START", false),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Brokers:      getEnv("KAFKA_BROKERS", ""),
			Topic:        getEnv("KAFKA_TOPIC", "groupbuy.events"),
			WriteTimeout: getEnvAsDuration("KAFKA_WRITE_TIMEOUT", 5*time.Second),
		},
		Engine: EngineConfig{
			PersistMaxAttempts:  getEnvAsInt("PERSIST_MAX_ATTEMPTS", 3),
			PersistBaseDelay:    getEnvAsDuration("PERSIST_BASE_DELAY", 20*time.Millisecond),
			PersistMaxDelay:     getEnvAsDuration("PERSIST_MAX_DELAY", time.Second),
			ExpirySweepInterval: getEnvAsDuration("EXPIRY_SWEEP_INTERVAL", 30*time.Second),
		},
		RateLimit: RateLimitConfig{
			Enabled: getEnvAsBool("RATE_LIMIT_ENABLED", true),
			File:    getEnv("RATE_LIMIT_FILE", ""),
		},
		Security: SecurityConfig{
			AuthEnabled: getEnvAsBool("AUTH_ENABLED", false),
			BcryptCost:  getEnvAsInt("BCRYPT_COST", crypto.DefaultCost),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
			Output: getEnv("LOG_OUTPUT", "stdout"),
		},
	}

	limits, err := LoadRateLimits(cfg.RateLimit.File)
	if err != nil {
		return nil, err
	}
	cfg.RateLimit.Limits = limits

	// Валидация критичных параметров безопасности
	if err := cfg.validateSecurity(); err != nil {
		return nil, err
	}

	// Валидация числовых диапазонов
	if err := cfg.validateRanges(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// rateLimitFile формат RATE_LIMIT_FILE
//
//	limits:
//	  pool-join: {tokens_per_interval: 5, interval: second}
//	  login: {tokens_per_interval: 5, interval: minute}
type rateLimitFile struct {
	Limits map[ratelimit.Endpoint]ratelimit.Config `yaml:"limits"`
}

// LoadRateLimits читает лимиты из YAML поверх значений по умолчанию.
// Пустой путь = ratelimit.DefaultConfigs().
func LoadRateLimits(path string) (map[ratelimit.Endpoint]ratelimit.Config, error) {
	limits := ratelimit.DefaultConfigs()
	if path == "" {
		return limits, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read RATE_LIMIT_FILE: %w", err)
	}

	var file rateLimitFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse RATE_LIMIT_FILE %s: %w", path, err)
	}

	for endpoint, c := range file.Limits {
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("RATE_LIMIT_FILE %s: %s: %w", path, endpoint, err)
		}
		limits[endpoint] = c
	}
	return limits, nil
}

// validateSecurity проверяет параметры безопасности
func (c *Config) validateSecurity() error {
	if c.Security.BcryptCost < crypto.MinCost || c.Security.BcryptCost > crypto.MaxCost {
		return fmt.Errorf("BCRYPT_COST must be between %d and %d, got %d",
			crypto.MinCost, crypto.MaxCost, c.Security.BcryptCost)
	}

	// пароль БД обязателен вне локального окружения
	if c.Database.Password == "" && c.Database.Host != "localhost" && c.Database.Host != "127.0.0.1" {
		return fmt.Errorf("DB_PASSWORD is required for non-local database %s", c.Database.Host)
	}

	return nil
}

// validateRanges проверяет числовые диапазоны параметров
func (c *Config) validateRanges() error {
	// Валидация портов
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("DB_PORT must be between 1 and 65535, got %d", c.Database.Port)
	}

	if c.Database.MaxOpenConns < 1 {
		return fmt.Errorf("DB_MAX_OPEN_CONNS must be positive, got %d", c.Database.MaxOpenConns)
	}

	if c.Redis.DB < 0 {
		return fmt.Errorf("REDIS_DB cannot be negative, got %d", c.Redis.DB)
	}

	// Валидация retry параметров
	if c.Engine.PersistMaxAttempts < 1 {
		return fmt.Errorf("PERSIST_MAX_ATTEMPTS must be at least 1, got %d", c.Engine.PersistMaxAttempts)
	}

	if c.Engine.PersistMaxAttempts > 10 {
		return fmt.Errorf("PERSIST_MAX_ATTEMPTS should not exceed 10, got %d", c.Engine.PersistMaxAttempts)
	}

	if c.Engine.PersistBaseDelay < 0 {
		return fmt.Errorf("PERSIST_BASE_DELAY cannot be negative, got %v", c.Engine.PersistBaseDelay)
	}

	if c.Engine.PersistMaxDelay < c.Engine.PersistBaseDelay {
		return fmt.Errorf("PERSIST_MAX_DELAY (%v) must not be less than PERSIST_BASE_DELAY (%v)",
			c.Engine.PersistMaxDelay, c.Engine.PersistBaseDelay)
	}

	// Валидация таймаутов (должны быть положительными)
	if c.Engine.ExpirySweepInterval <= 0 {
		return fmt.Errorf("EXPIRY_SWEEP_INTERVAL must be positive, got %v", c.Engine.ExpirySweepInterval)
	}

	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("SERVER_SHUTDOWN_TIMEOUT must be positive, got %v", c.Server.ShutdownTimeout)
	}

	if c.Kafka.Enabled() && c.Kafka.WriteTimeout <= 0 {
		return fmt.Errorf("KAFKA_WRITE_TIMEOUT must be positive, got %v", c.Kafka.WriteTimeout)
	}

	return nil
}

// DSN возвращает строку подключения к базе данных
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// DSNWithoutPassword возвращает строку подключения без пароля (для логирования)
func (d DatabaseConfig) DSNWithoutPassword() string {
	return fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Name, d.SSLMode)
}

// Вспомогательные функции для чтения переменных окружения

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
