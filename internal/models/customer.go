package models

import "time"

// Customer status tags.
const (
	CustomerNew      = "nuevo"
	CustomerQuoted   = "cotizado"
	CustomerOrdered  = "cliente"
	CustomerInactive = "inactivo"
)

// Customer is a WhatsApp contact tracked by phone number. Fiscal fields are
// filled incrementally as the conversation reveals them.
type Customer struct {
	ID              uint   `gorm:"primaryKey;autoIncrement"`
	Phone           string `gorm:"size:32;not null;uniqueIndex"`
	Name            string `gorm:"size:128"`
	TaxID           string `gorm:"size:32"`
	Address         string `gorm:"size:256"`
	Email           string `gorm:"size:128"`
	Status          string `gorm:"size:32;default:nuevo;index"`
	AIEnabled       bool   `gorm:"default:true"`
	LastInteraction time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
