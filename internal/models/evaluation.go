package models

import (
	"time"

	"gorm.io/datatypes"
)

// Submission types persisted in the submission_type column.
const (
	SubmissionTypeCode  = "code"
	SubmissionTypeImage = "image"
)

// Evaluation is the durable record of one scored submission. Rows are written
// once and never updated or deleted by the API.
type Evaluation struct {
	ID             string            `gorm:"type:uuid;primaryKey" json:"id"`
	TaskName       string            `gorm:"size:255;not null" json:"task_name"`
	SubmissionType string            `gorm:"size:16;not null" json:"submission_type"`
	Code           *string           `gorm:"type:text" json:"code"`
	ImageURL       *string           `gorm:"size:512" json:"image_url"`
	Score          int               `gorm:"not null" json:"score"`
	Feedback       string            `gorm:"type:text;not null" json:"feedback"`
	Provider       string            `gorm:"size:32" json:"provider"`
	Metadata       datatypes.JSONMap `json:"metadata"`
	CreatedAt      time.Time         `gorm:"index" json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// TableName pins the table name used by the evaluation store.
func (Evaluation) TableName() string {
	return "evaluations"
}
