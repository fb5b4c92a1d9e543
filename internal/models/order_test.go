package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransitionOrder(t *testing.T) {
	allowed := []struct{ from, to string }{
		{OrderStatusCreated, OrderStatusAwaitingPayment},
		{OrderStatusCreated, OrderStatusCancelled},
		{OrderStatusAwaitingPayment, OrderStatusHeld},
		{OrderStatusAwaitingPayment, OrderStatusCancelled},
		{OrderStatusHeld, OrderStatusDeliveredPending},
		{OrderStatusHeld, OrderStatusDisputed},
		{OrderStatusDeliveredPending, OrderStatusCompleted},
		{OrderStatusDeliveredPending, OrderStatusDisputed},
		{OrderStatusDisputed, OrderStatusCompleted},
	}
	for _, tc := range allowed {
		assert.True(t, CanTransitionOrder(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}

	forbidden := []struct{ from, to string }{
		{OrderStatusHeld, OrderStatusCancelled},
		{OrderStatusHeld, OrderStatusCompleted},
		{OrderStatusDeliveredPending, OrderStatusCancelled},
		{OrderStatusDisputed, OrderStatusCancelled},
		{OrderStatusDisputed, OrderStatusHeld},
		{OrderStatusCompleted, OrderStatusDisputed},
		{OrderStatusCancelled, OrderStatusAwaitingPayment},
		{OrderStatusAwaitingPayment, OrderStatusDeliveredPending},
	}
	for _, tc := range forbidden {
		assert.False(t, CanTransitionOrder(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestTerminalStatusesHaveNoExits(t *testing.T) {
	all := []string{
		OrderStatusCreated, OrderStatusAwaitingPayment, OrderStatusHeld,
		OrderStatusDeliveredPending, OrderStatusDisputed,
		OrderStatusCompleted, OrderStatusCancelled,
	}
	for _, terminal := range []string{OrderStatusCompleted, OrderStatusCancelled} {
		assert.True(t, IsTerminalOrderStatus(terminal))
		for _, to := range all {
			assert.False(t, CanTransitionOrder(terminal, to), "%s -> %s", terminal, to)
		}
	}
}

func TestIsDisputableOrderStatus(t *testing.T) {
	assert.True(t, IsDisputableOrderStatus(OrderStatusHeld))
	assert.True(t, IsDisputableOrderStatus(OrderStatusDeliveredPending))
	assert.False(t, IsDisputableOrderStatus(OrderStatusAwaitingPayment))
	assert.False(t, IsDisputableOrderStatus(OrderStatusDisputed))
	assert.False(t, IsDisputableOrderStatus(OrderStatusCompleted))
	assert.False(t, IsDisputableOrderStatus(OrderStatusCancelled))
}

func TestEscrowTotal(t *testing.T) {
	o := Order{Amount: 10000, FeeAmount: 500}
	assert.Equal(t, int64(10500), o.EscrowTotal())
}
