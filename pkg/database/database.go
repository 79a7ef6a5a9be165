package database

import (
	"fmt"

	"switchfuzz/config"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// NewDBConnection returns nil when no database is configured.
func NewDBConnection(appConfig *config.AppConfig, logger *zap.Logger) (*gorm.DB, error) {
	if appConfig.DatabaseURL == "" {
		logger.Debug("no database configured, phase history is not recorded")
		return nil, nil
	}

	db, err := gorm.Open(postgres.Open(appConfig.DatabaseURL), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}
	if err := db.AutoMigrate(&PhaseRecord{}, &Crash{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	logger.Debug("connected to database")
	return db, nil
}
