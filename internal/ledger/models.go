// Package ledger persists a queryable index of job status and progress
// into SQLite via gorm. It mirrors job status alongside the engine's
// Download-Info Store but is never authoritative: the engine never reads
// it, and a missing or stale ledger never blocks engine correctness.
// Progress, bytes downloaded and the last error are kept only here.
package ledger

import "time"

// JobRecord is one row: the current known status of a job, for the CLI's
// status/queue surfaces and for crash-resume discovery at startup.
type JobRecord struct {
	ID          string `gorm:"primaryKey"`
	Name        string
	Actress     string
	Status      string
	Progress    float64 // 0.0 - 100.0, segments done / total
	BytesDone   int64
	LastError   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	FinishedAt  *time.Time
}

// TableName pins the table name so it reads clearly in the sqlite file
// regardless of gorm's pluralization rules.
func (JobRecord) TableName() string { return "job_ledger" }
