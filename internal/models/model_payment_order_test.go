package models

import (
	"reflect"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/castaway-live/castaway/pkg/types"
)

func TestPaymentOrder_TableName(t *testing.T) {
	var m PaymentOrder
	require.Equal(t, "payment_order", m.TableName())
}

func TestPaymentOrder_IsFinal(t *testing.T) {
	require.False(t, (&PaymentOrder{Status: types.OrderStatusPending}).IsFinal())
	require.True(t, (&PaymentOrder{Status: types.OrderStatusCompleted}).IsFinal())
	require.True(t, (&PaymentOrder{Status: types.OrderStatusFailed}).IsFinal())
	require.True(t, (&PaymentOrder{Status: types.OrderStatusRefunded}).IsFinal())

	var nilOrder *PaymentOrder
	require.False(t, nilOrder.IsFinal())
}

// The idempotency key is globally unique on its own, not only per user, so two
// principals can never share a key.
func TestPaymentOrder_IdempotencyKeyGloballyUnique(t *testing.T) {
	f, ok := reflect.TypeOf(PaymentOrder{}).FieldByName("IdempotencyKey")
	require.True(t, ok)

	tags := strings.Split(f.Tag.Get("gorm"), ";")
	require.Contains(t, tags, "uniqueIndex")
	require.Contains(t, tags, "uniqueIndex:unique_user_id_idempotency_key,priority:2")
}
