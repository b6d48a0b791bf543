package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pbimprenta/printdesk/internal/models"
	"gorm.io/gorm"
)

// CreatePendingFile records an accepted upload as unclaimed.
func (s *Store) CreatePendingFile(ctx context.Context, f *models.PendingFile) error {
	if f.CreatedAt.IsZero() {
		f.CreatedAt = s.now()
	}
	if err := s.db.WithContext(ctx).Create(f).Error; err != nil {
		return fmt.Errorf("store: create pending file %s: %w", f.Path, err)
	}
	return nil
}

// UnclaimedFiles returns the customer's unclaimed files created at or after
// since, newest first.
func (s *Store) UnclaimedFiles(ctx context.Context, customerID uint, since time.Time) ([]models.PendingFile, error) {
	var files []models.PendingFile
	err := s.db.WithContext(ctx).
		Where("customer_id = ? AND order_id IS NULL AND created_at >= ?", customerID, since).
		Order("created_at DESC").Order("id DESC").
		Find(&files).Error
	if err != nil {
		return nil, fmt.Errorf("store: unclaimed files for %d: %w", customerID, err)
	}
	return files, nil
}

// ClaimFile links an unclaimed file to an order. A non-empty path and url
// record the file's relocated storage location. Claiming happens at most
// once; a second claim returns ErrAlreadyClaimed.
func (s *Store) ClaimFile(ctx context.Context, fileID, orderID uint, path, url string) error {
	updates := map[string]interface{}{"order_id": orderID}
	if path != "" {
		updates["path"] = path
	}
	if url != "" {
		updates["url"] = url
	}
	res := s.db.WithContext(ctx).Model(&models.PendingFile{}).
		Where("id = ? AND order_id IS NULL", fileID).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("store: claim file %d for order %d: %w", fileID, orderID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrAlreadyClaimed
	}
	return nil
}

// ListFiles returns the customer's files, newest first. A zero customerID
// lists every file.
func (s *Store) ListFiles(ctx context.Context, customerID uint) ([]models.PendingFile, error) {
	var files []models.PendingFile
	q := s.db.WithContext(ctx).Order("created_at DESC")
	if customerID != 0 {
		q = q.Where("customer_id = ?", customerID)
	}
	if err := q.Find(&files).Error; err != nil {
		return nil, fmt.Errorf("store: list files: %w", err)
	}
	return files, nil
}

// CreateOrder inserts a new order.
func (s *Store) CreateOrder(ctx context.Context, o *models.Order) error {
	if o.Status == "" {
		o.Status = models.OrderNew
	}
	if o.Files == "" {
		o.Files = models.EncodeFiles(nil)
	}
	if err := s.db.WithContext(ctx).Create(o).Error; err != nil {
		return fmt.Errorf("store: create order: %w", err)
	}
	return nil
}

// GetOrder loads an order by ID.
func (s *Store) GetOrder(ctx context.Context, id uint) (*models.Order, error) {
	var o models.Order
	if err := s.db.WithContext(ctx).First(&o, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: get order %d: %w", id, err)
	}
	return &o, nil
}

// ListOrders returns orders newest first, optionally filtered by customer.
func (s *Store) ListOrders(ctx context.Context, customerID uint) ([]models.Order, error) {
	var out []models.Order
	q := s.db.WithContext(ctx).Order("created_at DESC").Order("id DESC")
	if customerID != 0 {
		q = q.Where("customer_id = ?", customerID)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("store: list orders: %w", err)
	}
	return out, nil
}

// SetOrderFiles replaces the order's linked file list.
func (s *Store) SetOrderFiles(ctx context.Context, orderID uint, files []string) error {
	return s.updateOrder(ctx, orderID, "files", models.EncodeFiles(files))
}

// UpdateOrderStatus sets the order status.
func (s *Store) UpdateOrderStatus(ctx context.Context, orderID uint, status string) error {
	if !models.ValidOrderStatus(status) {
		return fmt.Errorf("store: invalid order status %q", status)
	}
	return s.updateOrder(ctx, orderID, "status", status)
}

// UpdatePayment records the deposit paid on an order.
func (s *Store) UpdatePayment(ctx context.Context, orderID uint, deposit float64) error {
	if deposit < 0 {
		return fmt.Errorf("store: deposit must not be negative")
	}
	return s.updateOrder(ctx, orderID, "deposit", deposit)
}

func (s *Store) updateOrder(ctx context.Context, orderID uint, column string, value interface{}) error {
	res := s.db.WithContext(ctx).Model(&models.Order{}).Where("id = ?", orderID).Update(column, value)
	if res.Error != nil {
		return fmt.Errorf("store: update order %d %s: %w", orderID, column, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
