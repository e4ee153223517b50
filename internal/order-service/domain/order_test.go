package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var validAddress = Address{
	Street:  "1 Main St",
	City:    "Springfield",
	State:   "IL",
	Zip:     "62701",
	Country: "US",
}

func TestNewOrder_ComputesTotalFromLines(t *testing.T) {
	tests := []struct {
		name  string
		lines []OrderLine
		want  string
	}{
		{
			name:  "single line",
			lines: []OrderLine{{ProductID: "p1", Quantity: 2, UnitPrice: decimal.RequireFromString("10.00")}},
			want:  "20",
		},
		{
			name: "multiple lines",
			lines: []OrderLine{
				{ProductID: "p1", Quantity: 3, UnitPrice: decimal.RequireFromString("250")},
				{ProductID: "p2", Quantity: 2, UnitPrice: decimal.RequireFromString("500")},
				{ProductID: "p3", Quantity: 5, UnitPrice: decimal.RequireFromString("150")},
			},
			want: "2500",
		},
		{
			name: "cents do not drift",
			lines: []OrderLine{
				{ProductID: "p1", Quantity: 3, UnitPrice: decimal.RequireFromString("0.10")},
				{ProductID: "p2", Quantity: 1, UnitPrice: decimal.RequireFromString("0.20")},
			},
			want: "0.5",
		},
		{
			name:  "free item",
			lines: []OrderLine{{ProductID: "p1", Quantity: 1, UnitPrice: decimal.Zero}},
			want:  "0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, err := NewOrder("user-1", tt.lines, validAddress, time.Now())
			require.NoError(t, err)
			assert.True(t, decimal.RequireFromString(tt.want).Equal(o.TotalAmount), "got %s", o.TotalAmount)
			assert.Equal(t, StatusPending, o.Status)
			assert.NotEmpty(t, o.ID)
		})
	}
}

func TestNewOrder_CopiesLines(t *testing.T) {
	lines := []OrderLine{{ProductID: "p1", Quantity: 1, UnitPrice: decimal.NewFromInt(5)}}
	o, err := NewOrder("user-1", lines, validAddress, time.Now())
	require.NoError(t, err)

	lines[0].UnitPrice = decimal.NewFromInt(1)
	assert.True(t, decimal.NewFromInt(5).Equal(o.Lines[0].UnitPrice))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		userID   string
		lines    []OrderLine
		addr     Address
		contains string
	}{
		{name: "no lines", userID: "u", addr: validAddress, contains: "at least one item"},
		{
			name:     "zero quantity",
			userID:   "u",
			lines:    []OrderLine{{ProductID: "p1", Quantity: 0}},
			addr:     validAddress,
			contains: "items[0].quantity",
		},
		{
			name:     "negative price",
			userID:   "u",
			lines:    []OrderLine{{ProductID: "p1", Quantity: 1, UnitPrice: decimal.NewFromInt(-1)}},
			addr:     validAddress,
			contains: "items[0].unit_price",
		},
		{
			name:     "missing product",
			userID:   "u",
			lines:    []OrderLine{{Quantity: 1}},
			addr:     validAddress,
			contains: "items[0].product_id",
		},
		{
			name:     "missing city",
			userID:   "u",
			lines:    []OrderLine{{ProductID: "p1", Quantity: 1}},
			addr:     Address{Street: "s", State: "st", Zip: "z", Country: "c"},
			contains: "shipping_address.city",
		},
		{
			name:     "missing user",
			lines:    []OrderLine{{ProductID: "p1", Quantity: 1}},
			addr:     validAddress,
			contains: "user id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.userID, tt.lines, tt.addr)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}

func TestOrderStatus_Transitions(t *testing.T) {
	tests := []struct {
		from, to OrderStatus
		want     bool
	}{
		{StatusPending, StatusConfirmed, true},
		{StatusPending, StatusFailed, true},
		{StatusPending, StatusCancelled, true},
		{StatusConfirmed, StatusCancelled, true},
		{StatusConfirmed, StatusFailed, false},
		{StatusFailed, StatusCancelled, false},
		{StatusFailed, StatusConfirmed, false},
		{StatusCancelled, StatusPending, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestOrder_Quantities(t *testing.T) {
	o := &Order{Lines: []OrderLine{
		{ProductID: "p1", Quantity: 2},
		{ProductID: "p2", Quantity: 1},
		{ProductID: "p1", Quantity: 3},
	}}
	assert.Equal(t, map[string]int{"p1": 5, "p2": 1}, o.Quantities())
}
