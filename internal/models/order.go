package models

import (
	"encoding/json"
	"time"
)

// Order statuses, in their usual progression.
const (
	OrderNew        = "NUEVO"
	OrderDesign     = "DISEÑO"
	OrderProduction = "PRODUCCIÓN"
	OrderReady      = "LISTO"
	OrderDelivered  = "ENTREGADO"
)

// OrderStatuses lists every valid order status.
var OrderStatuses = []string{OrderNew, OrderDesign, OrderProduction, OrderReady, OrderDelivered}

// ValidOrderStatus reports whether s is a known order status.
func ValidOrderStatus(s string) bool {
	for _, v := range OrderStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// Order is a registered print job. Files is a JSON array of storage URLs.
type Order struct {
	ID          uint    `gorm:"primaryKey;autoIncrement"`
	Code        string  `gorm:"size:16;not null;uniqueIndex"`
	CustomerID  uint    `gorm:"not null;index"`
	Description string  `gorm:"type:text"`
	Total       float64 `gorm:"not null;default:0"`
	Deposit     float64 `gorm:"not null;default:0"`
	Status      string  `gorm:"size:16;default:NUEVO;index"`
	Files       string  `gorm:"type:json"`
	Quantity    int
	Material    string `gorm:"size:128"`
	Dimensions  string `gorm:"size:64"`
	Sides       int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// FileList decodes the Files column. Malformed data yields nil.
func (o Order) FileList() []string {
	if o.Files == "" {
		return nil
	}
	var files []string
	if err := json.Unmarshal([]byte(o.Files), &files); err != nil {
		return nil
	}
	return files
}

// Balance returns the amount still owed on the order.
func (o Order) Balance() float64 {
	b := o.Total - o.Deposit
	if b < 0 {
		return 0
	}
	return b
}

// EncodeFiles encodes a file list for the Files column.
func EncodeFiles(files []string) string {
	if len(files) == 0 {
		return "[]"
	}
	data, err := json.Marshal(files)
	if err != nil {
		return "[]"
	}
	return string(data)
}
