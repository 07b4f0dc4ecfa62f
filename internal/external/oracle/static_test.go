package oracle

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/moves/backend/internal/contracts"
)

func TestLoadStatic_DemoFixture(t *testing.T) {
	p, err := LoadStatic("../../../config/demo_book.yaml")
	require.NoError(t, err)

	snap, err := p.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1000000.0, snap.NAV)
	pos, held := snap.PositionFor("tsla")
	require.True(t, held)
	assert.Equal(t, contracts.SideShort, pos.Side)

	mc, err := p.MarketContext(context.Background(), "amd")
	require.NoError(t, err)
	assert.Equal(t, "AMD", mc.Symbol)
	require.NotNil(t, mc.NextEarnings)

	unknown, err := p.MarketContext(context.Background(), "QQQ")
	require.NoError(t, err)
	assert.Equal(t, "QQQ", unknown.Symbol)
	assert.Equal(t, "Unclassified", unknown.Sector)
}

func TestParseStatic_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"unknown field", "portfolio:\n  navv: 1\n"},
		{"bad earnings date", "markets:\n  - {symbol: X, next_earnings: tomorrow}\n"},
		{"bad side", "portfolio:\n  positions:\n    - {symbol: X, side: flat}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseStatic([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}
