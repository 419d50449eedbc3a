package db

import (
	"github.com/dunmininu/oms-trading/internal/models"
)

func AutoMigrate(db *DB) error {
	if db == nil || db.Gorm == nil || db.SQL == nil {
		return nil
	}

	return db.Gorm.AutoMigrate(
		&models.Tenant{},
		&models.BrokerConnection{},
		&models.BrokerAccount{},
		&models.Instrument{},
		&models.Order{},
		&models.Execution{},
		&models.Position{},
		&models.PnLSnapshot{},
		&models.IdempotencyRecord{},
		&models.AuditLog{},
	)
}
