package customer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/deal-conversations/internal/apperr"
	"github.com/capitalize-ai/deal-conversations/internal/model"
)

func TestStaticDirectory_Lookup(t *testing.T) {
	d := NewStaticDirectory(Customer{ID: "cust-1", Name: "Northwind Logistics"})

	c, err := d.Lookup(context.Background(), " cust-1 ")
	require.NoError(t, err)
	assert.Equal(t, "Northwind Logistics", c.Name)

	_, err = d.Lookup(context.Background(), "cust-2")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	d.Put(Customer{ID: "cust-2", Name: "Contoso Dental"})
	_, err = d.Lookup(context.Background(), "cust-2")
	assert.NoError(t, err)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "customers.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{"id": "cust-1", "name": "Northwind Logistics", "risk": {"credit_score": 712, "dscr": 1.35}}
	]`), 0o600))

	d, err := LoadFile(path)
	require.NoError(t, err)

	c, err := d.Lookup(context.Background(), "cust-1")
	require.NoError(t, err)
	assert.Equal(t, model.BorrowerRisk{CreditScore: 712, DSCR: 1.35}, c.Risk)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
