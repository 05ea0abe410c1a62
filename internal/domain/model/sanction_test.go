package model_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bibbank/origination/internal/domain/event"
	"github.com/bibbank/origination/internal/domain/model"
	"github.com/bibbank/origination/internal/domain/valueobject"
)

func testLetter() model.SanctionLetter {
	return model.SanctionLetter{
		SanctionID:   "SAN-1",
		CustomerID:   "CUST001",
		CustomerName: "Rajesh Kumar",
		Terms: model.LoanTerms{
			Amount:       decimal.NewFromInt(50_000),
			TenureMonths: 12,
			InterestRate: decimal.RequireFromString("11.99"),
			EMI:          decimal.NewFromInt(4442),
		},
		IssuedAt: now,
	}
}

func TestNewSanction(t *testing.T) {
	s, err := model.NewSanction(testLetter(), "sess-1", "file:///tmp/sanction_SAN-1.pdf")
	require.NoError(t, err)

	assert.Equal(t, valueobject.SanctionStatusGenerated, s.Status())
	assert.Equal(t, "sess-1", s.SessionID())
	assert.True(t, s.Terms().TotalPayable().Equal(decimal.NewFromInt(53_304)))
	require.Len(t, s.DomainEvents(), 1)
	assert.IsType(t, event.SanctionGenerated{}, s.DomainEvents()[0])
	assert.Equal(t, testLetter(), s.Letter())
}

func TestNewSanction_RequiresDocument(t *testing.T) {
	_, err := model.NewSanction(testLetter(), "sess-1", "")
	assert.Error(t, err)

	l := testLetter()
	l.Terms.Amount = decimal.Zero
	_, err = model.NewSanction(l, "sess-1", "doc")
	assert.Error(t, err)
}

func TestSanction_MarkDownloadedIsOneWay(t *testing.T) {
	s, err := model.NewSanction(testLetter(), "sess-1", "doc")
	require.NoError(t, err)

	d, changed, err := s.MarkDownloaded(now)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, valueobject.SanctionStatusDownloaded, d.Status())
	assert.Equal(t, 2, d.Version())

	again, changed, err := d.MarkDownloaded(now)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, d.Version(), again.Version())

	// Original copy is unaffected.
	assert.Equal(t, valueobject.SanctionStatusGenerated, s.Status())
}
