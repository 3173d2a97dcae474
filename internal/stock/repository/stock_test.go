package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAggregateCheckDrifted(t *testing.T) {
	tests := []struct {
		name  string
		check AggregateCheck
		want  bool
	}{
		{"all agree", AggregateCheck{StockOnHand: 50, ItemsTotal: 50, ReplayTotal: 50}, false},
		{"aggregate ahead of items", AggregateCheck{StockOnHand: 55, ItemsTotal: 50, ReplayTotal: 50}, true},
		{"items ahead of replay", AggregateCheck{StockOnHand: 50, ItemsTotal: 50, ReplayTotal: 45}, true},
		{"everything empty", AggregateCheck{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.check.Drifted())
		})
	}
}
