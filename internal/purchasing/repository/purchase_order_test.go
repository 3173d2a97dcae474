package repository

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestFoldStatus(t *testing.T) {
	tests := []struct {
		name  string
		items []*PurchaseOrderItem
		want  string
	}{
		{
			name: "all lines completed",
			items: []*PurchaseOrderItem{
				{Status: LineStatusCompleted, OrderedQty: 10, ReceivedQty: 10},
				{Status: LineStatusCompleted, OrderedQty: 5, ReceivedQty: 5},
			},
			want: POStatusCompleted,
		},
		{
			name: "nothing received yet",
			items: []*PurchaseOrderItem{
				{Status: LineStatusBackordered, OrderedQty: 10, ReceivedQty: 0},
				{Status: LineStatusBackordered, OrderedQty: 5, ReceivedQty: 0},
			},
			want: POStatusOrdered,
		},
		{
			name: "mixed progress",
			items: []*PurchaseOrderItem{
				{Status: LineStatusCompleted, OrderedQty: 10, ReceivedQty: 10},
				{Status: LineStatusPartial, OrderedQty: 5, ReceivedQty: 2},
			},
			want: POStatusPartial,
		},
		{
			name: "one line touched one untouched",
			items: []*PurchaseOrderItem{
				{Status: LineStatusPartial, OrderedQty: 10, ReceivedQty: 3},
				{Status: LineStatusBackordered, OrderedQty: 5, ReceivedQty: 0},
			},
			want: POStatusPartial,
		},
		{
			name:  "no lines",
			items: nil,
			want:  POStatusOrdered,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FoldStatus(tt.items))
		})
	}
}

func TestFoldLineStatus(t *testing.T) {
	tests := []struct {
		name             string
		item             *PurchaseOrderItem
		receivedThisCall int
		want             string
	}{
		{"fully received", &PurchaseOrderItem{OrderedQty: 10, ReceivedQty: 10}, 4, LineStatusCompleted},
		{"over-received counts as completed", &PurchaseOrderItem{OrderedQty: 10, ReceivedQty: 12}, 2, LineStatusCompleted},
		{"shortfall with nothing in this receipt", &PurchaseOrderItem{OrderedQty: 10, ReceivedQty: 3}, 0, LineStatusBackordered},
		{"shortfall with progress in this receipt", &PurchaseOrderItem{OrderedQty: 10, ReceivedQty: 3}, 3, LineStatusPartial},
		{"untouched line skipped entirely", &PurchaseOrderItem{OrderedQty: 10, ReceivedQty: 0}, 0, LineStatusBackordered},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FoldLineStatus(tt.item, tt.receivedThisCall))
		})
	}
}

func TestPurchaseOrderItemShortfall(t *testing.T) {
	assert.Equal(t, 7, (&PurchaseOrderItem{OrderedQty: 10, ReceivedQty: 3}).Shortfall())
	assert.Equal(t, 0, (&PurchaseOrderItem{OrderedQty: 10, ReceivedQty: 10}).Shortfall())
	assert.Equal(t, 0, (&PurchaseOrderItem{OrderedQty: 10, ReceivedQty: 12}).Shortfall())
}

func TestPurchaseOrderTotalCost(t *testing.T) {
	po := &PurchaseOrder{
		Items: []*PurchaseOrderItem{
			{OrderedQty: 100, Price: decimal.RequireFromString("25.50")},
			{OrderedQty: 40, Price: decimal.RequireFromString("12.00")},
		},
	}
	assert.True(t, po.TotalCost().Equal(decimal.RequireFromString("3030.00")),
		"got %s", po.TotalCost())

	empty := &PurchaseOrder{}
	assert.True(t, empty.TotalCost().IsZero())
}

func TestBackorderOutstanding(t *testing.T) {
	assert.True(t, (&Backorder{Status: BackorderStatusOpen}).Outstanding())
	assert.True(t, (&Backorder{Status: BackorderStatusReminded}).Outstanding())
	assert.True(t, (&Backorder{Status: BackorderStatusPartial}).Outstanding())
	assert.False(t, (&Backorder{Status: BackorderStatusClosed}).Outstanding())
	assert.False(t, (&Backorder{Status: BackorderStatusFulfilled}).Outstanding())
}
