// Package customer resolves borrowers from the customer directory.
package customer

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/capitalize-ai/deal-conversations/internal/apperr"
	"github.com/capitalize-ai/deal-conversations/internal/model"
)

// Customer is a borrower known to the directory.
type Customer struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	ContactName string             `json:"contact_name,omitempty"`
	Risk        model.BorrowerRisk `json:"risk"`
}

// Directory looks up customers. Implementations return apperr NotFound for
// unknown ids; any other failure is treated as an upstream error.
type Directory interface {
	Lookup(ctx context.Context, id string) (Customer, error)
}

// StaticDirectory is an in-memory Directory.
type StaticDirectory struct {
	mu        sync.RWMutex
	customers map[string]Customer
}

// NewStaticDirectory creates a directory seeded with customers.
func NewStaticDirectory(customers ...Customer) *StaticDirectory {
	d := &StaticDirectory{customers: make(map[string]Customer, len(customers))}
	for _, c := range customers {
		d.customers[c.ID] = c
	}
	return d
}

// Put adds or replaces a customer.
func (d *StaticDirectory) Put(c Customer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.customers[c.ID] = c
}

// Lookup returns the customer with id.
func (d *StaticDirectory) Lookup(ctx context.Context, id string) (Customer, error) {
	if err := ctx.Err(); err != nil {
		return Customer{}, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()

	c, ok := d.customers[strings.TrimSpace(id)]
	if !ok {
		return Customer{}, apperr.NotFound("customer %q not found", id)
	}
	return c, nil
}

// LoadFile reads a JSON array of customers.
func LoadFile(path string) (*StaticDirectory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read customer file: %w", err)
	}
	var customers []Customer
	if err := json.Unmarshal(data, &customers); err != nil {
		return nil, fmt.Errorf("parse customer file: %w", err)
	}
	return NewStaticDirectory(customers...), nil
}
