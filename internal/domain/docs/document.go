package docs

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ProcessingStatus string

const (
	StatusPending    ProcessingStatus = "pending"
	StatusProcessing ProcessingStatus = "processing"
	StatusCompleted  ProcessingStatus = "completed"
	StatusFailed     ProcessingStatus = "failed"
)

const DefaultWorkspace = "docs"

// Document is the canonical stored content unit. (workspace, technology, content_hash)
// is unique; re-ingesting the same body refreshes expires_at/updated_at in place.
type Document struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;column:content_id;index:idx_document_workspace_expiry,priority:3" json:"content_id"`
	Workspace string    `gorm:"column:workspace;not null;uniqueIndex:idx_document_dedup,priority:1;index:idx_document_workspace_expiry,priority:1;index:idx_document_workspace_provider,priority:1" json:"workspace"`

	Title       string `gorm:"column:title;type:text" json:"title"`
	SourceURL   string `gorm:"column:source_url;type:text" json:"source_url"`
	Technology  string `gorm:"column:technology;not null;uniqueIndex:idx_document_dedup,priority:2" json:"technology"`
	ContentHash string `gorm:"column:content_hash;not null;uniqueIndex:idx_document_dedup,priority:3" json:"content_hash"`
	Content     string `gorm:"column:content;type:text" json:"-"`

	ProcessingStatus ProcessingStatus `gorm:"column:processing_status;not null" json:"processing_status"`
	QualityScore     float64          `gorm:"column:quality_score;not null" json:"quality_score"`
	Metadata         datatypes.JSON   `gorm:"column:metadata;type:jsonb" json:"metadata"`

	// Nil means the document never expires.
	ExpiresAt      *time.Time `gorm:"column:expires_at;index:idx_document_workspace_expiry,priority:2" json:"expires_at"`
	SourceProvider string     `gorm:"column:source_provider;not null;index:idx_document_workspace_provider,priority:2" json:"source_provider"`

	CreatedAt time.Time `gorm:"column:created_at;not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null" json:"updated_at"`
}

func (Document) TableName() string { return "document" }

func (d *Document) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}

// Expired reports whether the document is past its expiry at now.
func (d *Document) Expired(now time.Time) bool {
	return d != nil && d.ExpiresAt != nil && d.ExpiresAt.Before(now)
}
