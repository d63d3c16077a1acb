package app

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/lotline-backend/internal/data/db"
	"github.com/yungbote/lotline-backend/internal/platform/logger"
)

// OpenDatabase connects to the configured driver. When migrate is set the
// schema is brought up to date and the storage triggers are (re)installed.
func OpenDatabase(log *logger.Logger, cfg Config, migrate bool) (*gorm.DB, error) {
	var theDB *gorm.DB
	switch cfg.DBDriver {
	case DriverSQLite:
		svc, err := db.NewSQLiteService(log)
		if err != nil {
			return nil, fmt.Errorf("init sqlite: %w", err)
		}
		theDB = svc.DB()
	default:
		svc, err := db.NewPostgresService(log)
		if err != nil {
			return nil, fmt.Errorf("init postgres: %w", err)
		}
		theDB = svc.DB()
	}
	if !migrate {
		return theDB, nil
	}
	if err := Migrate(log, theDB); err != nil {
		closeDB(theDB)
		return nil, err
	}
	return theDB, nil
}

func Migrate(log *logger.Logger, theDB *gorm.DB) error {
	log.Info("Migrating schema...", "dialect", theDB.Dialector.Name())
	if err := db.AutoMigrateAll(theDB); err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}
	if err := db.InstallTriggers(theDB); err != nil {
		return fmt.Errorf("install triggers: %w", err)
	}
	return nil
}

func closeDB(theDB *gorm.DB) {
	if theDB == nil {
		return
	}
	if sqlDB, err := theDB.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
