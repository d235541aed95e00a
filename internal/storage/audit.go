package storage

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/your-org/facegate/internal/models"
	"github.com/your-org/facegate/internal/observability"
)

// AuditRecord is one persisted access decision.
type AuditRecord struct {
	ID             uint      `gorm:"primaryKey"`
	VerificationID string    `gorm:"column:verification_id;uniqueIndex;size:36"`
	Action         string    `gorm:"column:action;size:32;index"`
	Decision       string    `gorm:"column:decision;size:16"`
	IdentityID     *string   `gorm:"column:identity_id;size:36;index"`
	MatchedName    string    `gorm:"column:matched_name"`
	Confidence     float64   `gorm:"column:confidence"`
	Threshold      float64   `gorm:"column:threshold"`
	Provider       string    `gorm:"column:provider;size:64"`
	Filter         string    `gorm:"column:filter;size:16"`
	Reason         string    `gorm:"column:reason;type:text"`
	Candidates     int       `gorm:"column:candidates"`
	Comparisons    int       `gorm:"column:comparisons"`
	DurationMS     int64     `gorm:"column:duration_ms"`
	CreatedAt      time.Time `gorm:"column:created_at;index"`
}

func (AuditRecord) TableName() string {
	return "verification_audit"
}

// NewAuditRecord flattens an outcome into its audit row.
func NewAuditRecord(out *models.VerificationOutcome) AuditRecord {
	rec := AuditRecord{
		VerificationID: out.ID.String(),
		Action:         string(out.Action()),
		Decision:       string(out.Decision),
		MatchedName:    out.MatchedName,
		Confidence:     out.Confidence,
		Threshold:      out.Threshold,
		Provider:       out.Provider,
		Filter:         out.Filter,
		Reason:         out.Reason,
		Candidates:     out.Stats.Candidates,
		Comparisons:    out.Stats.Comparisons,
		DurationMS:     out.Duration.Milliseconds(),
		CreatedAt:      out.CreatedAt,
	}
	if out.MatchedIdentityID != nil {
		id := out.MatchedIdentityID.String()
		rec.IdentityID = &id
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	return rec
}

// AuditLog persists verification outcomes with gorm.
type AuditLog struct {
	db *gorm.DB
}

func NewAuditLog(db *gorm.DB) *AuditLog {
	return &AuditLog{db: db}
}

// OpenAuditDB connects gorm to Postgres.
func OpenAuditDB(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	return db, nil
}

// AutoMigrate ensures the schema is available.
func (l *AuditLog) AutoMigrate(ctx context.Context) error {
	return l.db.WithContext(ctx).AutoMigrate(&AuditRecord{})
}

// Record stores the outcome. Redelivered outcomes are ignored.
func (l *AuditLog) Record(ctx context.Context, out *models.VerificationOutcome) error {
	rec := NewAuditRecord(out)
	err := l.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "verification_id"}}, DoNothing: true}).
		Create(&rec).Error
	if err != nil {
		observability.AuditRecords.WithLabelValues("db", "error").Inc()
		return fmt.Errorf("write audit record: %w", err)
	}
	observability.AuditRecords.WithLabelValues("db", "ok").Inc()
	return nil
}

// Recent returns the newest records, optionally restricted to one action.
func (l *AuditLog) Recent(ctx context.Context, limit int, action models.AuditAction) ([]AuditRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	q := l.db.WithContext(ctx).Order("created_at DESC").Order("id DESC").Limit(limit)
	if action != "" {
		q = q.Where("action = ?", string(action))
	}
	var recs []AuditRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("query audit records: %w", err)
	}
	return recs, nil
}
