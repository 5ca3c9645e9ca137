package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/JoeShih716/go-credit-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-credit-ledger/pkg/logger"
	"github.com/JoeShih716/go-credit-ledger/pkg/mysql"
	"github.com/JoeShih716/go-credit-ledger/pkg/postgres"
)

// Engine 使用哪種 Ledger
type Engine string

const (
	EngineMySQL    Engine = "mysql"
	EnginePostgres Engine = "postgres"
	EngineMutex    Engine = "mutex"
	EngineLMAX     Engine = "lmax"
)

type Config struct {
	Server   ServerConfig    `yaml:"server"`
	Ledger   LedgerConfig    `yaml:"ledger"`
	MySQL    mysql.Config    `yaml:"mysql"`
	Postgres postgres.Config `yaml:"postgres"`
	Kafka    KafkaConfig     `yaml:"kafka"`
	Log      logger.Config   `yaml:"log"`
	// Accounts 開戶資料，服務本身不開戶，只在帳戶不存在時寫入
	Accounts []AccountSeed `yaml:"accounts"`
}

type ServerConfig struct {
	HTTPAddr        string        `yaml:"httpAddr"`
	GRPCAddr        string        `yaml:"grpcAddr"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

type LedgerConfig struct {
	Engine        Engine `yaml:"engine"`
	StatementSize int    `yaml:"statementSize"`
	// MaxRetries SQL 帳本遇到鎖衝突時的重試次數
	MaxRetries int    `yaml:"maxRetries"`
	WALPath    string `yaml:"walPath"`
	// Partitions LMAX 帳本的分區數，0 代表 CPU 數
	Partitions int `yaml:"partitions"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// Enabled 有設定 broker 才發布事件
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

type AccountSeed struct {
	ID      int64 `yaml:"id"`
	Limit   int64 `yaml:"limit"`
	Balance int64 `yaml:"balance"`
}

// Default 回傳預設配置
func Default() Config {
	return Config{
		Server: ServerConfig{
			HTTPAddr:        ":8080",
			GRPCAddr:        ":50051",
			ShutdownTimeout: 10 * time.Second,
		},
		Ledger: LedgerConfig{
			Engine:        EngineMutex,
			StatementSize: domain.DefaultStatementSize,
			MaxRetries:    3,
			WALPath:       "wal.log",
		},
		MySQL: mysql.Config{
			Host:            "127.0.0.1",
			Port:            3306,
			User:            "rinha",
			Password:        "rinha",
			DBName:          "rinha",
			Charset:         "utf8mb4",
			MaxOpenConns:    100,
			MaxIdleConns:    10,
			ConnMaxLifetime: 30 * time.Minute,
			LogLevel:        "error",
		},
		Postgres: postgres.Config{
			Host:            "127.0.0.1",
			Port:            5432,
			User:            "rinha",
			Password:        "rinha",
			DBName:          "rinha",
			MaxOpenConns:    100,
			MaxIdleConns:    10,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Kafka: KafkaConfig{
			Topic: "transaction_applied",
		},
		Log: logger.Config{
			Level:  "info",
			Format: "json",
		},
		Accounts: []AccountSeed{
			{ID: 1, Limit: 100000},
			{ID: 2, Limit: 80000},
			{ID: 3, Limit: 1000000},
			{ID: 4, Limit: 10000000},
			{ID: 5, Limit: 500000},
		},
	}
}

// Load 載入設定
// 順序: 預設值 -> yaml 檔 (不存在則略過) -> .env (不覆蓋已存在的環境變數) -> 環境變數
func Load(path string, envFile string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv 環境變數覆蓋
// DB_* 沿用部署時既有的變數名稱，同時套用到 MySQL 與 PostgreSQL
func applyEnv(cfg *Config) error {
	if v := os.Getenv("DB_CONNECTION"); v != "" {
		switch v {
		case "mysql":
			cfg.Ledger.Engine = EngineMySQL
		case "pgsql", "postgres":
			cfg.Ledger.Engine = EnginePostgres
		default:
			return fmt.Errorf("unsupported DB_CONNECTION %q", v)
		}
	}
	if v := os.Getenv("LEDGER_ENGINE"); v != "" {
		cfg.Ledger.Engine = Engine(v)
	}
	if v := os.Getenv("DB_HOST"); v != "" {
		cfg.MySQL.Host = v
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("DB_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid DB_PORT %q: %w", v, err)
		}
		cfg.MySQL.Port = port
		cfg.Postgres.Port = port
	}
	if v := os.Getenv("DB_NAME"); v != "" {
		cfg.MySQL.DBName = v
		cfg.Postgres.DBName = v
	}
	if v := os.Getenv("DB_USER"); v != "" {
		cfg.MySQL.User = v
		cfg.Postgres.User = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		cfg.MySQL.Password = v
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("DB_CHARSET"); v != "" {
		cfg.MySQL.Charset = v
	}
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		cfg.Server.HTTPAddr = v
	}
	if v := os.Getenv("GRPC_ADDR"); v != "" {
		cfg.Server.GRPCAddr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = splitList(v)
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate 檢查設定
func (c Config) Validate() error {
	switch c.Ledger.Engine {
	case EngineMySQL, EnginePostgres, EngineMutex, EngineLMAX:
	default:
		return fmt.Errorf("invalid ledger engine %q", c.Ledger.Engine)
	}
	if c.Ledger.StatementSize <= 0 {
		return fmt.Errorf("ledger.statementSize must be positive, got %d", c.Ledger.StatementSize)
	}
	if c.Ledger.MaxRetries < 0 {
		return fmt.Errorf("ledger.maxRetries must not be negative, got %d", c.Ledger.MaxRetries)
	}
	seen := make(map[int64]bool, len(c.Accounts))
	for _, a := range c.Accounts {
		if a.ID <= 0 {
			return fmt.Errorf("account id must be positive, got %d", a.ID)
		}
		if seen[a.ID] {
			return fmt.Errorf("duplicate account id %d", a.ID)
		}
		seen[a.ID] = true
		if a.Limit < 0 {
			return fmt.Errorf("account %d: limit must not be negative", a.ID)
		}
		if a.Balance < -a.Limit {
			return fmt.Errorf("account %d: balance %d below limit %d", a.ID, a.Balance, a.Limit)
		}
	}
	return nil
}

// SeedAccounts 轉成 domain.Account Map
func (c Config) SeedAccounts() map[int64]*domain.Account {
	accounts := make(map[int64]*domain.Account, len(c.Accounts))
	for _, a := range c.Accounts {
		accounts[a.ID] = domain.NewAccount(a.ID, a.Limit, a.Balance)
	}
	return accounts
}
