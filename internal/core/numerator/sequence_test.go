package numerator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormat(t *testing.T) {
	tests := []struct {
		prefix string
		n      int64
		want   string
	}{
		{"", 1, "000001"},
		{"INV-", 42, "INV-000042"},
		{"R", 1000, "R001000"},
		{"", 999999, "999999"},
		{"X", 1234567, "X1234567"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Format(tt.prefix, tt.n))
	}
}

func TestSequence_Next(t *testing.T) {
	t.Run("fresh sequence starts at starting number", func(t *testing.T) {
		s := &Sequence{StartingNumber: 1000, CurrentNumber: 999}
		assert.Equal(t, int64(1000), s.Next())
		assert.False(t, s.Issued())
	})

	t.Run("issued sequence continues", func(t *testing.T) {
		s := &Sequence{StartingNumber: 1000, CurrentNumber: 1004}
		assert.Equal(t, int64(1005), s.Next())
		assert.True(t, s.Issued())
	})

	t.Run("lagging current resumes at start", func(t *testing.T) {
		s := &Sequence{StartingNumber: 50, CurrentNumber: 0}
		assert.Equal(t, int64(50), s.Next())
	})
}

func TestValidateInit(t *testing.T) {
	assert.NoError(t, ValidateInit(1, ""))
	assert.NoError(t, ValidateInit(1000, "INV-"))
	assert.NoError(t, ValidateInit(1, "ABCDEFGHIJKLMNOP"))

	assert.Error(t, ValidateInit(0, ""))
	assert.Error(t, ValidateInit(-5, ""))
	assert.Error(t, ValidateInit(1, "ABCDEFGHIJKLMNOPQ"))
	assert.Error(t, ValidateInit(1, "IN V"))
	assert.Error(t, ValidateInit(1, "INV\t"))
}

func TestParseDocumentType(t *testing.T) {
	dt, err := ParseDocumentType(" Tax_Invoice ")
	assert.NoError(t, err)
	assert.Equal(t, TypeTaxInvoice, dt)

	_, err = ParseDocumentType("purchase_order")
	assert.Error(t, err)
}
