package db

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // Postgres driver
	"go.uber.org/zap"

	"github.com/meridianpay/treasury/pkg/common"
)

// Connect establishes a connection to the database, waiting for it to
// become ready.
func Connect(cfg common.DBConfig, log *zap.Logger) (*sql.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	for i := 0; i < 5; i++ {
		err = db.Ping()
		if err == nil {
			break
		}
		log.Warn("waiting for database", zap.Int("attempt", i+1), zap.Error(err))
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	log.Info("connected to database", zap.String("host", cfg.Host), zap.String("name", cfg.Name))
	return db, nil
}
