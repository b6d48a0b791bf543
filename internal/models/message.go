package models

import "time"

// Message sender roles.
const (
	RoleCustomer = "customer"
	RoleAgent    = "agent"
)

// Message classification tags.
const (
	TagInactivityAlert    = "inactivity_alert"
	TagSessionClosed      = "session_closed"
	TagManual             = "manual"
	TagStatusUpdate       = "status_update"
	TagPaymentUpdate      = "payment_update"
	TagAttachmentRejected = "attachment_rejected"
)

// Message is one immutable entry in a customer's conversation history.
// Delivery holds the JSON-encoded outbound delivery status, if any.
type Message struct {
	ID         uint      `gorm:"primaryKey;autoIncrement"`
	CustomerID uint      `gorm:"not null;index"`
	Role       string    `gorm:"size:16;not null"`
	Content    string    `gorm:"type:text"`
	Tag        string    `gorm:"size:32;index"`
	Tokens     int       `gorm:"default:0"`
	Delivery   string    `gorm:"type:text"`
	CreatedAt  time.Time `gorm:"index"`
}
