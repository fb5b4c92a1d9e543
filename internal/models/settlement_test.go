package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFeeFor(t *testing.T) {
	assert.Equal(t, int64(500), FeeFor(10000, 500))
	assert.Equal(t, int64(0), FeeFor(0, 500))
	// округление вниз
	assert.Equal(t, int64(4), FeeFor(99, 500))
	assert.Equal(t, int64(0), FeeFor(19, 500))
}

func TestReleaseSplit(t *testing.T) {
	s := ReleaseSplit(10000, 500)
	assert.Equal(t, SettlementSplit{BuyerCredit: 0, SellerCredit: 9500, PlatformCredit: 1000}, s)
	assert.Equal(t, int64(10500), s.Total())
}

func TestRefundSplit(t *testing.T) {
	s := RefundSplit(10000, 500)
	assert.Equal(t, SettlementSplit{BuyerCredit: 10500, SellerCredit: 0, PlatformCredit: 0}, s)
	assert.Equal(t, int64(10500), s.Total())
}

func TestPartialSplit(t *testing.T) {
	s := PartialSplit(10000, 500, 2000, 500)
	assert.Equal(t, SettlementSplit{BuyerCredit: 2000, SellerCredit: 7600, PlatformCredit: 900}, s)
	assert.Equal(t, int64(10500), s.Total())
}

// Любая раскладка распределяет ровно замороженную сумму заказа.
func TestSplitConservation(t *testing.T) {
	cases := []struct{ amount, buyerPortion int64 }{
		{10000, 1},
		{10000, 9999},
		{99, 50},
		{1, 0},
		{123457, 61728},
	}
	for _, tc := range cases {
		fee := FeeFor(tc.amount, 500)
		escrow := tc.amount + fee

		assert.Equal(t, escrow, ReleaseSplit(tc.amount, fee).Total(), "release %d", tc.amount)
		assert.Equal(t, escrow, RefundSplit(tc.amount, fee).Total(), "refund %d", tc.amount)

		p := PartialSplit(tc.amount, fee, tc.buyerPortion, 500)
		assert.Equal(t, escrow, p.Total(), "partial %d/%d", tc.amount, tc.buyerPortion)
		assert.GreaterOrEqual(t, p.SellerCredit, int64(0))
		assert.GreaterOrEqual(t, p.PlatformCredit, int64(0))
	}
}
