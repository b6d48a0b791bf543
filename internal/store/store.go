// Package store is the durable conversation store: customers, their message
// history, uploaded files, orders and auditor learnings.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pbimprenta/printdesk/internal/models"
	"gorm.io/gorm"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("store: not found")

// ErrAlreadyClaimed is returned when a file is already linked to an order.
var ErrAlreadyClaimed = errors.New("store: file already claimed")

// Store wraps a GORM connection with the conversation operations.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// Opts holds parameters for creating a Store.
type Opts struct {
	DB  *gorm.DB
	Now func() time.Time // defaults to time.Now
}

// New creates a Store.
func New(opts Opts) (*Store, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("store: db is required")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Store{db: opts.DB, now: now}, nil
}

// DB exposes the underlying connection.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// UpsertCustomer returns the customer for phone, creating it on first
// contact. Every call bumps the last-interaction timestamp, and a display
// name is recorded when none is stored yet.
func (s *Store) UpsertCustomer(ctx context.Context, phone, name string) (*models.Customer, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return nil, fmt.Errorf("store: upsert customer: phone is required")
	}
	now := s.now()

	var c models.Customer
	err := s.db.WithContext(ctx).Where("phone = ?", phone).First(&c).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		c = models.Customer{
			Phone:           phone,
			Name:            strings.TrimSpace(name),
			Status:          models.CustomerNew,
			AIEnabled:       true,
			LastInteraction: now,
		}
		if err := s.db.WithContext(ctx).Create(&c).Error; err != nil {
			return nil, fmt.Errorf("store: create customer %s: %w", phone, err)
		}
		return &c, nil
	case err != nil:
		return nil, fmt.Errorf("store: lookup customer %s: %w", phone, err)
	}

	updates := map[string]interface{}{"last_interaction": now}
	if c.Name == "" && strings.TrimSpace(name) != "" {
		updates["name"] = strings.TrimSpace(name)
	}
	if err := s.db.WithContext(ctx).Model(&models.Customer{}).Where("id = ?", c.ID).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("store: touch customer %s: %w", phone, err)
	}
	c.LastInteraction = now
	if n, ok := updates["name"].(string); ok {
		c.Name = n
	}
	return &c, nil
}

// GetCustomer loads a customer by ID.
func (s *Store) GetCustomer(ctx context.Context, id uint) (*models.Customer, error) {
	var c models.Customer
	if err := s.db.WithContext(ctx).First(&c, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: get customer %d: %w", id, err)
	}
	return &c, nil
}

// GetCustomerByPhone loads a customer by phone number.
func (s *Store) GetCustomerByPhone(ctx context.Context, phone string) (*models.Customer, error) {
	var c models.Customer
	if err := s.db.WithContext(ctx).Where("phone = ?", phone).First(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: get customer %s: %w", phone, err)
	}
	return &c, nil
}

// SetAIEnabled toggles whether the agent answers this customer.
func (s *Store) SetAIEnabled(ctx context.Context, customerID uint, enabled bool) error {
	res := s.db.WithContext(ctx).Model(&models.Customer{}).
		Where("id = ?", customerID).
		Update("ai_enabled", enabled)
	if res.Error != nil {
		return fmt.Errorf("store: set ai_enabled for %d: %w", customerID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetCustomerStatus updates the customer's status tag.
func (s *Store) SetCustomerStatus(ctx context.Context, customerID uint, status string) error {
	res := s.db.WithContext(ctx).Model(&models.Customer{}).
		Where("id = ?", customerID).
		Update("status", status)
	if res.Error != nil {
		return fmt.Errorf("store: set status for %d: %w", customerID, res.Error)
	}
	return nil
}

// ListCustomers returns customers ordered by most recent interaction.
func (s *Store) ListCustomers(ctx context.Context, limit int) ([]models.Customer, error) {
	var out []models.Customer
	q := s.db.WithContext(ctx).Order("last_interaction DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("store: list customers: %w", err)
	}
	return out, nil
}
