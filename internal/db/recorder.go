// Package db implements the persistence/reporting store: durable
// records of periodic AssetSnapshots for postmortem analysis.
package db

import (
	"fmt"
	"math/big"
	"time"

	"arbengine"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// AssetSnapshotRecord is the database model for arbengine.AssetSnapshot.
type AssetSnapshotRecord struct {
	ID              uint      `gorm:"primaryKey;autoIncrement"`
	Timestamp       time.Time `gorm:"index;not null"`
	Phase           int       `gorm:"not null;comment:EnginePhase as integer"`
	TotalTradeable  string    `gorm:"type:varchar(78);not null;comment:big.Int as string"`
	InFlight        string    `gorm:"type:varchar(78);not null;comment:big.Int as string"`
	DailyTradeCount int       `gorm:"not null"`
	CumulativePnL   string    `gorm:"type:varchar(78);not null;comment:big.Int as string"`
	CreatedAt       time.Time `gorm:"autoCreateTime"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime"`
}

// TableName specifies the table name for GORM.
func (AssetSnapshotRecord) TableName() string {
	return "asset_snapshots"
}

// MySQLRecorder implements durable snapshot recording using GORM+MySQL.
type MySQLRecorder struct {
	db *gorm.DB
}

// NewMySQLRecorder opens a MySQL connection from dsn and migrates the
// schema. dsn format:
// "user:password@tcp(host:port)/dbname?charset=utf8mb4&parseTime=True&loc=Local"
func NewMySQLRecorder(dsn string) (*MySQLRecorder, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MySQL: %w", err)
	}
	return NewMySQLRecorderWithDB(db)
}

// NewMySQLRecorderWithDB wraps an already-open GORM DB instance, used by
// tests with go-sqlmock.
func NewMySQLRecorderWithDB(db *gorm.DB) (*MySQLRecorder, error) {
	if err := db.AutoMigrate(&AssetSnapshotRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return &MySQLRecorder{db: db}, nil
}

// RecordSnapshot persists one AssetSnapshot.
func (r *MySQLRecorder) RecordSnapshot(s arbengine.AssetSnapshot) error {
	record := AssetSnapshotRecord{
		Timestamp:       s.Timestamp,
		Phase:           int(s.Phase),
		TotalTradeable:  bigIntToString(s.TotalTradeable),
		InFlight:        bigIntToString(s.InFlight),
		DailyTradeCount: s.DailyTradeCount,
		CumulativePnL:   bigIntToString(s.CumulativePnL),
	}

	result := r.db.Create(&record)
	if result.Error != nil {
		return fmt.Errorf("failed to record snapshot: %w", result.Error)
	}
	return nil
}

// GetDB returns the underlying GORM DB instance for advanced queries.
func (r *MySQLRecorder) GetDB() *gorm.DB {
	return r.db
}

// Close closes the database connection.
func (r *MySQLRecorder) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying DB: %w", err)
	}
	return sqlDB.Close()
}

func bigIntToString(value *big.Int) string {
	if value == nil {
		return "0"
	}
	return value.String()
}

// GetLatestSnapshot retrieves the most recent snapshot from the database.
func (r *MySQLRecorder) GetLatestSnapshot() (*AssetSnapshotRecord, error) {
	var record AssetSnapshotRecord
	result := r.db.Order("timestamp DESC").First(&record)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to get latest snapshot: %w", result.Error)
	}
	return &record, nil
}

// GetSnapshotsByTimeRange retrieves snapshots within [start, end].
func (r *MySQLRecorder) GetSnapshotsByTimeRange(start, end time.Time) ([]AssetSnapshotRecord, error) {
	var records []AssetSnapshotRecord
	result := r.db.Where("timestamp BETWEEN ? AND ?", start, end).
		Order("timestamp ASC").
		Find(&records)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to get snapshots by time range: %w", result.Error)
	}
	return records, nil
}

// GetSnapshotsByPhase retrieves all snapshots for a specific engine phase.
func (r *MySQLRecorder) GetSnapshotsByPhase(phase arbengine.EnginePhase) ([]AssetSnapshotRecord, error) {
	var records []AssetSnapshotRecord
	result := r.db.Where("phase = ?", int(phase)).
		Order("timestamp ASC").
		Find(&records)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to get snapshots by phase: %w", result.Error)
	}
	return records, nil
}

// CountSnapshots returns the total number of snapshots in the database.
func (r *MySQLRecorder) CountSnapshots() (int64, error) {
	var count int64
	result := r.db.Model(&AssetSnapshotRecord{}).Count(&count)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to count snapshots: %w", result.Error)
	}
	return count, nil
}
