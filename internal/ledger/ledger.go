package ledger

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Config controls how the ledger's SQLite database is opened.
type Config struct {
	Path           string
	MaxConnections int
	WALMode        bool
}

// DefaultConfig returns sensible defaults for Path under the given
// downloads root.
func DefaultConfig(downloadsRoot string) Config {
	return Config{
		Path:           filepath.Join(downloadsRoot, "hlsvault.db"),
		MaxConnections: 4,
		WALMode:        true,
	}
}

// Ledger wraps a *gorm.DB scoped to the job_ledger table.
type Ledger struct {
	db *gorm.DB
}

// Open opens (and migrates) the ledger database at cfg.Path.
func Open(cfg Config) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("ledger: create directory: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(cfg.Path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("ledger: open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("ledger: get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxConnections)
	sqlDB.SetMaxIdleConns(cfg.MaxConnections / 2)

	if cfg.WALMode {
		if err := db.Exec("PRAGMA journal_mode=WAL").Error; err != nil {
			return nil, fmt.Errorf("ledger: enable WAL mode: %w", err)
		}
	}

	if err := db.AutoMigrate(&JobRecord{}); err != nil {
		return nil, fmt.Errorf("ledger: migrate: %w", err)
	}

	return &Ledger{db: db}, nil
}

// Close closes the underlying database connection.
func (l *Ledger) Close() error {
	sqlDB, err := l.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Upsert creates or updates the row for id with the given status. A
// missing name/actress on an existing row is left untouched.
func (l *Ledger) Upsert(id, name, actress, status string) error {
	now := time.Now()
	var rec JobRecord
	err := l.db.First(&rec, "id = ?", id).Error
	if err == gorm.ErrRecordNotFound {
		rec = JobRecord{ID: id, Name: name, Actress: actress, Status: status, CreatedAt: now, UpdatedAt: now}
		return l.db.Create(&rec).Error
	}
	if err != nil {
		return err
	}
	rec.Status = status
	if name != "" {
		rec.Name = name
	}
	if actress != "" {
		rec.Actress = actress
	}
	rec.UpdatedAt = now
	if status == "finished" || status == "failed" {
		finished := now
		rec.FinishedAt = &finished
	}
	return l.db.Save(&rec).Error
}

// SetError records the last error message for id.
func (l *Ledger) SetError(id, errMsg string) error {
	return l.db.Model(&JobRecord{}).Where("id = ?", id).Update("last_error", errMsg).Error
}

// SetProgress updates a job's progress percentage (0-100) and bytes
// downloaded.
func (l *Ledger) SetProgress(id string, progress float64, bytesDone int64) error {
	return l.db.Model(&JobRecord{}).Where("id = ?", id).Updates(map[string]any{
		"progress":   progress,
		"bytes_done": bytesDone,
		"updated_at": time.Now(),
	}).Error
}

// All returns every job record, most recently updated first.
func (l *Ledger) All() ([]JobRecord, error) {
	var recs []JobRecord
	err := l.db.Order("updated_at desc").Find(&recs).Error
	return recs, err
}

// Get returns the record for id.
func (l *Ledger) Get(id string) (*JobRecord, error) {
	var rec JobRecord
	if err := l.db.First(&rec, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

// InFlight returns every job whose status is downloading or merging, for
// startup auto-resume.
func (l *Ledger) InFlight() ([]JobRecord, error) {
	var recs []JobRecord
	err := l.db.Where("status IN ?", []string{"downloading", "merging"}).Find(&recs).Error
	return recs, err
}

// InFlightIDs returns the ids of InFlight's rows. It satisfies
// engine.JobPrioritizer without the engine package importing the ledger.
func (l *Ledger) InFlightIDs() ([]string, error) {
	recs, err := l.InFlight()
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(recs))
	for i, r := range recs {
		ids[i] = r.ID
	}
	return ids, nil
}
