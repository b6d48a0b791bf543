package store

import (
	"context"
	"fmt"
	"time"

	"github.com/pbimprenta/printdesk/internal/models"
)

// AppendMessage records a message. CreatedAt is filled when zero.
func (s *Store) AppendMessage(ctx context.Context, m *models.Message) error {
	if m.CustomerID == 0 {
		return fmt.Errorf("store: append message: customer is required")
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.now()
	}
	if err := s.db.WithContext(ctx).Create(m).Error; err != nil {
		return fmt.Errorf("store: append message for %d: %w", m.CustomerID, err)
	}
	return nil
}

// RecentMessages returns up to n of the customer's latest messages in
// chronological order.
func (s *Store) RecentMessages(ctx context.Context, customerID uint, n int) ([]models.Message, error) {
	var msgs []models.Message
	err := s.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("created_at DESC").Order("id DESC").
		Limit(n).
		Find(&msgs).Error
	if err != nil {
		return nil, fmt.Errorf("store: recent messages for %d: %w", customerID, err)
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// SetDelivery attaches JSON delivery metadata to a persisted message.
func (s *Store) SetDelivery(ctx context.Context, messageID uint, delivery string) error {
	err := s.db.WithContext(ctx).Model(&models.Message{}).
		Where("id = ?", messageID).
		Update("delivery", delivery).Error
	if err != nil {
		return fmt.Errorf("store: set delivery for message %d: %w", messageID, err)
	}
	return nil
}

// MessagesSince returns every message created at or after since, grouped
// by customer and ordered chronologically within each customer.
func (s *Store) MessagesSince(ctx context.Context, since time.Time) ([]models.Message, error) {
	var msgs []models.Message
	err := s.db.WithContext(ctx).
		Where("created_at >= ?", since).
		Order("customer_id ASC").Order("created_at ASC").Order("id ASC").
		Find(&msgs).Error
	if err != nil {
		return nil, fmt.Errorf("store: messages since %s: %w", since.Format(time.RFC3339), err)
	}
	return msgs, nil
}

// CountMessages returns the number of messages with the given tag for a
// customer. An empty tag counts every message.
func (s *Store) CountMessages(ctx context.Context, customerID uint, tag string) (int64, error) {
	var n int64
	q := s.db.WithContext(ctx).Model(&models.Message{}).Where("customer_id = ?", customerID)
	if tag != "" {
		q = q.Where("tag = ?", tag)
	}
	if err := q.Count(&n).Error; err != nil {
		return 0, fmt.Errorf("store: count messages for %d: %w", customerID, err)
	}
	return n, nil
}
