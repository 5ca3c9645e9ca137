package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	// 註冊 "postgres" driver
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
)

const (
	connectRetries       = 10
	connectRetryInterval = 2 * time.Second
)

// NewDB 開啟 PostgreSQL 連線池並確認可以連線
func NewDB(ctx context.Context, cfg Config, log zerolog.Logger) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	for i := 0; i < connectRetries; i++ {
		if err = db.PingContext(ctx); err == nil {
			return db, nil
		}
		if i < connectRetries-1 {
			log.Warn().Err(err).
				Int("attempt", i+1).
				Int("max_attempts", connectRetries).
				Dur("retry_in", connectRetryInterval).
				Msg("failed to connect to postgres")
			select {
			case <-ctx.Done():
				_ = db.Close()
				return nil, ctx.Err()
			case <-time.After(connectRetryInterval):
			}
		}
	}
	_ = db.Close()
	return nil, fmt.Errorf("failed to connect to postgres after %d attempts: %w", connectRetries, err)
}
