package docs

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DocumentChunk is a searchable slice of a document body. Chunks live and die with
// their document: they are replaced on re-ingestion and deleted in the same
// transaction as the document.
type DocumentChunk struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	DocumentID uuid.UUID `gorm:"type:uuid;column:document_id;not null;index" json:"document_id"`
	Document   *Document `gorm:"constraint:OnDelete:CASCADE;foreignKey:DocumentID;references:ID" json:"-"`
	Workspace  string    `gorm:"column:workspace;not null;index" json:"workspace"`
	Position   int       `gorm:"column:position;not null" json:"position"`
	Content    string    `gorm:"column:content;type:text;not null" json:"content"`
	CreatedAt  time.Time `gorm:"column:created_at;not null" json:"created_at"`
}

func (DocumentChunk) TableName() string { return "document_chunk" }

func (c *DocumentChunk) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
