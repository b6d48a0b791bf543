package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/pbimprenta/printdesk/internal/models"
)

// FiscalFields are the billing details gathered for a customer.
type FiscalFields struct {
	Name    string
	TaxID   string
	Address string
	Email   string
}

// placeholders are values the model uses when it does not know a field.
var placeholders = map[string]bool{
	"-": true, ".": true, "...": true, "x": true, "0": true,
	"n/a": true, "na": true, "no": true, "none": true, "null": true, "nil": true,
	"unknown": true, "desconocido": true, "pendiente": true, "sin dato": true,
	"sin datos": true, "no informado": true, "no indica": true, "por definir": true,
}

// IsPlaceholder reports whether v carries no real information.
func IsPlaceholder(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "" || placeholders[v]
}

// Merge returns f with blank or placeholder fields filled from fallback.
func (f FiscalFields) Merge(fallback FiscalFields) FiscalFields {
	pick := func(a, b string) string {
		if IsPlaceholder(a) {
			return b
		}
		return a
	}
	return FiscalFields{
		Name:    pick(f.Name, fallback.Name),
		TaxID:   pick(f.TaxID, fallback.TaxID),
		Address: pick(f.Address, fallback.Address),
		Email:   pick(f.Email, fallback.Email),
	}
}

// UpdateFiscal writes the meaningful fields of f onto the customer. Blank
// and placeholder values never overwrite stored data. It returns the names
// of the columns that changed.
func (s *Store) UpdateFiscal(ctx context.Context, customerID uint, f FiscalFields) ([]string, error) {
	c, err := s.GetCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	set := func(column, current, incoming string) {
		incoming = strings.TrimSpace(incoming)
		if IsPlaceholder(incoming) || incoming == current {
			return
		}
		updates[column] = incoming
	}
	set("name", c.Name, f.Name)
	set("tax_id", c.TaxID, f.TaxID)
	set("address", c.Address, f.Address)
	set("email", c.Email, f.Email)

	if len(updates) == 0 {
		return nil, nil
	}
	if err := s.db.WithContext(ctx).Model(&models.Customer{}).Where("id = ?", customerID).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("store: update fiscal data for %d: %w", customerID, err)
	}
	changed := make([]string, 0, len(updates))
	for _, col := range []string{"name", "tax_id", "address", "email"} {
		if _, ok := updates[col]; ok {
			changed = append(changed, col)
		}
	}
	return changed, nil
}

// Fiscal returns the stored fiscal fields of a customer.
func Fiscal(c *models.Customer) FiscalFields {
	if c == nil {
		return FiscalFields{}
	}
	return FiscalFields{Name: c.Name, TaxID: c.TaxID, Address: c.Address, Email: c.Email}
}
