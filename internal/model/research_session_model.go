package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ResearchSessionArchive is the persisted record of a finished pipeline run.
// Stage outputs are stored as JSON documents; they are read back whole, never
// queried field by field.
type ResearchSessionArchive struct {
	Id         uuid.UUID      `gorm:"type:uuid;primaryKey"`
	Query      string         `gorm:"type:text;not null"`
	Sources    datatypes.JSON `gorm:"type:jsonb"`
	Status     string         `gorm:"type:varchar(16);not null;index"`
	Error      string         `gorm:"type:text"`
	Plan       datatypes.JSON `gorm:"type:jsonb"`
	Results    datatypes.JSON `gorm:"type:jsonb"`
	Feedback   datatypes.JSON `gorm:"type:jsonb"`
	Answer     datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt  time.Time      `gorm:"autoCreateTime"`
	FinishedAt *time.Time
}

func (ResearchSessionArchive) TableName() string {
	return "research_session_archives"
}
