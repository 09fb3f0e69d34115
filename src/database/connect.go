package database

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"tradetrace/src/model"
)

// DB is the pipeline database connection used by all repositories.
var DB *gorm.DB

// InitDB opens the database and runs migrations. It should be called once at
// application startup (e.g. in main()). The sqlite driver exists for local
// runs where a Postgres instance is not available.
func InitDB() error {
	config := GetConfig()

	var dialector gorm.Dialector
	switch config.Driver {
	case "sqlite":
		dialector = sqlite.Open(config.SQLitePath)
	default:
		dialector = postgres.Open(config.DatabaseURL)
	}

	db, err := gorm.Open(dialector,
		&gorm.Config{
			TranslateError: true,
			Logger:         logger.Default.LogMode(logger.LogLevel(config.GormLogLevel)),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB from GORM: %w", err)
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(1 * time.Hour)

	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	// Assign to the global variable only after a successful connection.
	DB = db

	logrus.WithField("driver", config.Driver).Info("[database] connection established")

	if err := DB.AutoMigrate(
		&model.Trace{},
		&model.TraceEvent{},
		&model.Fill{},
		&model.WebhookAlert{},
		&model.Settings{},
	); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	logrus.Info("[database] migrations completed")

	return nil
}
