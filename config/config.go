package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config представляет конфигурацию приложения
type Config struct {
	Server struct {
		Port       int
		RateLimit  int           // запросов в окне на один IP
		RateWindow time.Duration // длина окна
	}
	DB struct {
		Host           string
		Port           int
		User           string
		Password       string
		DBName         string
		SSLMode        string
		MigrationsPath string
	}
	JWT struct {
		SecretKey string
	}
	SMTP struct {
		Host     string
		Port     int
		Username string
		Password string
		From     string
	}
	Redis struct {
		Addr     string // пустой адрес - блокировки внутри процесса
		Password string
		DB       int
		LockTTL  time.Duration
	}
	Kafka struct {
		Brokers  string // пустой список - события в шину не публикуются
		Topic    string
		ClientID string
	}
	CatalogPath         string
	Workers             int
	OverdueScanInterval time.Duration
	LogLevel            string
}

// defaults содержит значения по умолчанию для переменных окружения
var defaults = map[string]interface{}{
	"SERVER_PORT":           8080,
	"RATE_LIMIT":            100,
	"RATE_WINDOW":           "1m",
	"DB_HOST":               "localhost",
	"DB_PORT":               5432,
	"DB_USER":               "postgres",
	"DB_PASSWORD":           "postgres",
	"DB_NAME":               "lending_db",
	"DB_SSLMODE":            "disable",
	"MIGRATIONS_PATH":       "migrations",
	"JWT_SECRET_KEY":        "your-secret-key-here",
	"SMTP_HOST":             "",
	"SMTP_PORT":             587,
	"SMTP_USERNAME":         "",
	"SMTP_PASSWORD":         "",
	"SMTP_FROM":             "no-reply@lending.local",
	"REDIS_ADDR":            "",
	"REDIS_PASSWORD":        "",
	"REDIS_DB":              0,
	"REDIS_LOCK_TTL":        "30s",
	"KAFKA_BROKERS":         "",
	"KAFKA_TOPIC":           "lending.events",
	"KAFKA_CLIENT_ID":       "lending-core",
	"CATALOG_PATH":          "config/offers.xml",
	"WORKER_POOL":           4,
	"OVERDUE_SCAN_INTERVAL": "24h",
	"LOG_LEVEL":             "info",
}

// NewConfig создает новый экземпляр конфигурации из окружения и файла .env
func NewConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("Ошибка чтения файла .env: %v", err)
	}

	v := viper.New()
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{}

	// Настройки сервера
	cfg.Server.Port = v.GetInt("SERVER_PORT")
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return nil, fmt.Errorf("неверный формат порта сервера: %q", v.GetString("SERVER_PORT"))
	}
	cfg.Server.RateLimit = v.GetInt("RATE_LIMIT")
	if cfg.Server.RateLimit <= 0 {
		return nil, fmt.Errorf("неверное значение RATE_LIMIT: %q", v.GetString("RATE_LIMIT"))
	}
	cfg.Server.RateWindow = v.GetDuration("RATE_WINDOW")
	if cfg.Server.RateWindow <= 0 {
		return nil, fmt.Errorf("неверное значение RATE_WINDOW: %q", v.GetString("RATE_WINDOW"))
	}

	// Настройки базы данных
	cfg.DB.Host = v.GetString("DB_HOST")
	cfg.DB.Port = v.GetInt("DB_PORT")
	if cfg.DB.Port <= 0 {
		return nil, fmt.Errorf("неверный формат порта базы данных: %q", v.GetString("DB_PORT"))
	}
	cfg.DB.User = v.GetString("DB_USER")
	cfg.DB.Password = v.GetString("DB_PASSWORD")
	cfg.DB.DBName = v.GetString("DB_NAME")
	cfg.DB.SSLMode = v.GetString("DB_SSLMODE")
	cfg.DB.MigrationsPath = v.GetString("MIGRATIONS_PATH")

	// Настройки JWT
	cfg.JWT.SecretKey = v.GetString("JWT_SECRET_KEY")
	if cfg.JWT.SecretKey == "" {
		return nil, errors.New("JWT_SECRET_KEY не задан")
	}

	// Настройки SMTP
	cfg.SMTP.Host = v.GetString("SMTP_HOST")
	cfg.SMTP.Port = v.GetInt("SMTP_PORT")
	cfg.SMTP.Username = v.GetString("SMTP_USERNAME")
	cfg.SMTP.Password = v.GetString("SMTP_PASSWORD")
	cfg.SMTP.From = v.GetString("SMTP_FROM")

	// Настройки Redis
	cfg.Redis.Addr = v.GetString("REDIS_ADDR")
	cfg.Redis.Password = v.GetString("REDIS_PASSWORD")
	cfg.Redis.DB = v.GetInt("REDIS_DB")
	cfg.Redis.LockTTL = v.GetDuration("REDIS_LOCK_TTL")

	// Настройки Kafka
	cfg.Kafka.Brokers = v.GetString("KAFKA_BROKERS")
	cfg.Kafka.Topic = v.GetString("KAFKA_TOPIC")
	cfg.Kafka.ClientID = v.GetString("KAFKA_CLIENT_ID")

	cfg.CatalogPath = v.GetString("CATALOG_PATH")
	cfg.Workers = v.GetInt("WORKER_POOL")
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	cfg.OverdueScanInterval = v.GetDuration("OVERDUE_SCAN_INTERVAL")
	cfg.LogLevel = v.GetString("LOG_LEVEL")

	return cfg, nil
}
