package store

import (
	"context"
	"fmt"

	"github.com/pbimprenta/printdesk/internal/models"
)

// CreateLearning stores a proposed correction rule as pending.
func (s *Store) CreateLearning(ctx context.Context, l *models.Learning) error {
	if l.Status == "" {
		l.Status = models.LearningPending
	}
	if err := s.db.WithContext(ctx).Create(l).Error; err != nil {
		return fmt.Errorf("store: create learning: %w", err)
	}
	return nil
}

// ListLearnings returns learnings newest first, optionally filtered by status.
func (s *Store) ListLearnings(ctx context.Context, status string) ([]models.Learning, error) {
	var out []models.Learning
	q := s.db.WithContext(ctx).Order("created_at DESC").Order("id DESC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("store: list learnings: %w", err)
	}
	return out, nil
}

// SetLearningStatus approves or rejects a learning.
func (s *Store) SetLearningStatus(ctx context.Context, id uint, status string) error {
	switch status {
	case models.LearningPending, models.LearningApproved, models.LearningRejected:
	default:
		return fmt.Errorf("store: invalid learning status %q", status)
	}
	res := s.db.WithContext(ctx).Model(&models.Learning{}).Where("id = ?", id).Update("status", status)
	if res.Error != nil {
		return fmt.Errorf("store: set learning %d status: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ApprovedRules returns the text of every approved learning, oldest first.
func (s *Store) ApprovedRules(ctx context.Context) ([]string, error) {
	var rules []string
	err := s.db.WithContext(ctx).Model(&models.Learning{}).
		Where("status = ?", models.LearningApproved).
		Order("id ASC").
		Pluck("proposed_rule", &rules).Error
	if err != nil {
		return nil, fmt.Errorf("store: approved rules: %w", err)
	}
	return rules, nil
}
