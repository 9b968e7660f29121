package datastore

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/radgrid/radreview-go/internal/pathology"
)

// performAutoMigration migrates all tables and seeds the finding-class
// vocabulary. The vocabulary is append-only: existing rows are never
// updated, missing ones are inserted.
func performAutoMigration(db *gorm.DB, debug bool, dbType, connectionInfo string) error {
	migrationStart := time.Now()
	migrationLogger := getLogger().With("db_type", dbType)

	migrationLogger.Debug("Starting database migration")

	err := db.AutoMigrate(
		&User{},
		&Patient{},
		&Exam{},
		&Image{},
		&ImageGroundTruth{},
		&Pathology{},
		&ModelVersion{},
		&PredictedLabel{},
		&DoctorLabel{},
	)
	if err != nil {
		return fmt.Errorf("failed to auto-migrate %s database: %w", dbType, err)
	}

	if err := seedVocabulary(db); err != nil {
		return fmt.Errorf("failed to seed pathology vocabulary: %w", err)
	}

	if debug {
		migrationLogger.Debug("Database migration completed",
			"connection", connectionInfo,
			"duration", time.Since(migrationStart))
	}
	return nil
}

// seedVocabulary inserts any vocabulary classes not yet present.
func seedVocabulary(db *gorm.DB) error {
	for _, class := range pathology.Vocabulary() {
		row := Pathology{
			Code:        class.Code,
			DisplayName: class.DisplayName,
			Description: class.Description,
		}
		if err := db.Where("code = ?", class.Code).FirstOrCreate(&row).Error; err != nil {
			return fmt.Errorf("seeding pathology %q: %w", class.Code, err)
		}
	}
	return nil
}
