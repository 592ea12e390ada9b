package models

import (
	"time"

	"gorm.io/datatypes"
)

// Evaluation outcomes stored on each record.
const (
	EvaluationOutcomeWinnerA = "a"
	EvaluationOutcomeWinnerB = "b"
	EvaluationOutcomeTie     = "tie"
)

// EvaluationRecord captures one completed comparison.
type EvaluationRecord struct {
	ID              uint              `gorm:"primaryKey" json:"id"`
	ReferenceID     string            `gorm:"size:36;uniqueIndex;not null" json:"reference_id"`
	CorrelationID   string            `gorm:"size:64" json:"correlation_id"`
	CorrectPrompt   string            `gorm:"type:text;not null" json:"correct_prompt"`
	SubmissionAName string            `gorm:"size:255" json:"submission_a_name"`
	SubmissionBName string            `gorm:"size:255" json:"submission_b_name"`
	SubmissionAURL  string            `gorm:"size:512" json:"submission_a_url,omitempty"`
	SubmissionBURL  string            `gorm:"size:512" json:"submission_b_url,omitempty"`
	Checksum        string            `gorm:"size:64;index" json:"checksum"`
	DecisionType    string            `gorm:"size:32" json:"decision_type"`
	Outcome         string            `gorm:"size:8" json:"outcome"`
	Provider        string            `gorm:"size:32" json:"provider"`
	Model           string            `gorm:"size:128" json:"model"`
	TotalTokens     int               `json:"total_tokens"`
	DurationMs      int64             `json:"duration_ms"`
	Result          datatypes.JSONMap `json:"result"`
	CreatedAt       time.Time         `json:"created_at"`
}
