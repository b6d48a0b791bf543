package models

import "time"

// PendingFile is an accepted customer upload. A nil OrderID means the file
// is unclaimed; it is set once, when an order absorbs the file.
type PendingFile struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	CustomerID uint   `gorm:"not null;index"`
	Path       string `gorm:"size:512;not null"`
	URL        string `gorm:"size:1024"`
	FileName   string `gorm:"size:256"`
	MimeType   string `gorm:"size:64"`
	Size       int64
	OrderID    *uint     `gorm:"index"`
	CreatedAt  time.Time `gorm:"index"`
}

// Claimed reports whether the file is linked to an order.
func (f PendingFile) Claimed() bool {
	return f.OrderID != nil
}
