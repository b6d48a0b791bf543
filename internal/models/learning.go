package models

import "time"

// Learning review states.
const (
	LearningPending  = "pending"
	LearningApproved = "approved"
	LearningRejected = "rejected"
)

// Learning is a correction rule proposed by the conversation auditor.
// Approved rules are added to the agent's instructions.
type Learning struct {
	ID            uint   `gorm:"primaryKey;autoIncrement"`
	CustomerPhone string `gorm:"size:32;index"`
	Description   string `gorm:"type:text"`
	Severity      string `gorm:"size:16;default:medium"`
	ProposedRule  string `gorm:"type:text;not null"`
	Status        string `gorm:"size:16;default:pending;index"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
