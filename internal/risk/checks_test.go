package risk

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/moves/backend/internal/contracts"
)

func testInput(action contracts.SignalAction, size float64) Input {
	return Input{
		Candidate: contracts.Candidate{
			ThesisID: 1,
			Symbol:   "NVDA",
			Action:   action,
			SizePct:  size,
			Sector:   "Semiconductors",
		},
		Snapshot: contracts.PortfolioSnapshot{NAV: 100000, PeakNAV: 100000},
		Limits:   contracts.NewLimitSet(DefaultLimits()),
	}
}

func long(symbol, sector string, value float64) contracts.Position {
	return contracts.Position{Symbol: symbol, Sector: sector, Side: contracts.SideLong, MarketValue: value}
}

func short(symbol, sector string, value float64) contracts.Position {
	return contracts.Position{Symbol: symbol, Sector: sector, Side: contracts.SideShort, MarketValue: value}
}

func TestEvaluate_CleanBuyPassesAllChecks(t *testing.T) {
	d := Evaluate(testInput(contracts.ActionBuy, 0.05))

	assert.True(t, d.Approved)
	assert.Nil(t, d.Failure)
	require.Len(t, d.Checks, 8)
	for _, c := range d.Checks {
		assert.True(t, c.Passed, c.Check)
	}
	assert.Equal(t, contracts.CheckKillSwitch, d.Checks[0].Check)
	assert.Equal(t, contracts.CheckDailyLoss, d.Checks[7].Check)
}

func TestEvaluate_FailingCheck(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(in *Input)
		action contracts.SignalAction
		check  string
	}{
		{
			name:   "kill switch blocks buy",
			action: contracts.ActionBuy,
			mutate: func(in *Input) { in.KillSwitch = contracts.KillSwitch{Active: true, Reason: "halt"} },
			check:  contracts.CheckKillSwitch,
		},
		{
			name:   "kill switch blocks short",
			action: contracts.ActionShort,
			mutate: func(in *Input) { in.KillSwitch = contracts.KillSwitch{Active: true, Reason: "halt"} },
			check:  contracts.CheckKillSwitch,
		},
		{
			name:   "position size",
			action: contracts.ActionBuy,
			mutate: func(in *Input) {
				in.Snapshot.Positions = []contracts.Position{long("NVDA", "Semiconductors", 12000)}
			},
			check: contracts.CheckPositionSize,
		},
		{
			name:   "sector concentration",
			action: contracts.ActionBuy,
			mutate: func(in *Input) {
				in.Snapshot.Positions = []contracts.Position{
					long("AMD", "Semiconductors", 20000),
					long("AVGO", "semiconductors", 12000),
				}
			},
			check: contracts.CheckSectorConcentration,
		},
		{
			name:   "gross exposure",
			action: contracts.ActionBuy,
			mutate: func(in *Input) {
				for i := 0; i < 5; i++ {
					in.Snapshot.Positions = append(in.Snapshot.Positions,
						long(fmt.Sprintf("L%d", i), fmt.Sprintf("sector-l%d", i), 14800),
						short(fmt.Sprintf("S%d", i), fmt.Sprintf("sector-s%d", i), 14800),
					)
				}
			},
			check: contracts.CheckGrossExposure,
		},
		{
			name:   "net exposure above band",
			action: contracts.ActionBuy,
			mutate: func(in *Input) {
				for i := 0; i < 9; i++ {
					in.Snapshot.Positions = append(in.Snapshot.Positions,
						long(fmt.Sprintf("L%d", i), fmt.Sprintf("sector-%d", i), 14000))
				}
			},
			check: contracts.CheckNetExposure,
		},
		{
			name:   "closing trade widening a net breach",
			action: contracts.ActionSell,
			mutate: func(in *Input) {
				for i := 0; i < 4; i++ {
					in.Snapshot.Positions = append(in.Snapshot.Positions,
						short(fmt.Sprintf("S%d", i), fmt.Sprintf("sector-%d", i), 10000))
				}
			},
			check: contracts.CheckNetExposure,
		},
		{
			name:   "blackout blocks closing trade too",
			action: contracts.ActionSell,
			mutate: func(in *Input) { in.Candidate.InBlackout = true },
			check:  contracts.CheckTradingBlackout,
		},
		{
			name:   "drawdown blocks new position",
			action: contracts.ActionBuy,
			mutate: func(in *Input) { in.Snapshot.NAV = 75000 },
			check:  contracts.CheckDrawdown,
		},
		{
			name:   "daily loss blocks buy",
			action: contracts.ActionBuy,
			mutate: func(in *Input) { in.Snapshot.DailyRealizedPnL = -4000 },
			check:  contracts.CheckDailyLoss,
		},
		{
			name:   "missing NAV blocks open",
			action: contracts.ActionBuy,
			mutate: func(in *Input) { in.Snapshot.NAV = 0 },
			check:  contracts.CheckPositionSize,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := testInput(tt.action, 0.05)
			tt.mutate(&in)

			d := Evaluate(in)

			assert.False(t, d.Approved)
			require.NotNil(t, d.Failure)
			assert.Equal(t, tt.check, d.Failure.Check)
			// short-circuit: the failing check is the last one recorded
			assert.Equal(t, tt.check, d.Checks[len(d.Checks)-1].Check)
		})
	}
}

func TestEvaluate_ClosingTradesAllowedUnderHalt(t *testing.T) {
	tests := []struct {
		name   string
		action contracts.SignalAction
		mutate func(in *Input)
	}{
		{
			name:   "kill switch active",
			action: contracts.ActionSell,
			mutate: func(in *Input) { in.KillSwitch = contracts.KillSwitch{Active: true} },
		},
		{
			name:   "cover under kill switch",
			action: contracts.ActionCover,
			mutate: func(in *Input) { in.KillSwitch = contracts.KillSwitch{Active: true} },
		},
		{
			name:   "drawdown exceeded",
			action: contracts.ActionSell,
			mutate: func(in *Input) { in.Snapshot.NAV = 75000 },
		},
		{
			name:   "daily loss only restricts buys",
			action: contracts.ActionShort,
			mutate: func(in *Input) { in.Snapshot.DailyRealizedPnL = -4000 },
		},
		{
			name:   "closing trade narrows net breach",
			action: contracts.ActionSell,
			mutate: func(in *Input) {
				for i := 0; i < 10; i++ {
					in.Snapshot.Positions = append(in.Snapshot.Positions,
						long(fmt.Sprintf("L%d", i), fmt.Sprintf("sector-%d", i), 14000))
				}
			},
		},
		{
			name:   "missing NAV",
			action: contracts.ActionSell,
			mutate: func(in *Input) { in.Snapshot.NAV = 0 },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := testInput(tt.action, 0.05)
			tt.mutate(&in)

			d := Evaluate(in)
			assert.True(t, d.Approved, "failure: %+v", d.Failure)
		})
	}
}

func TestEvaluate_DisabledLimitIsSkippedNotPassed(t *testing.T) {
	in := testInput(contracts.ActionBuy, 0.05)
	l := in.Limits[contracts.LimitMaxPositionPct]
	l.Enabled = false
	in.Limits[contracts.LimitMaxPositionPct] = l
	in.Snapshot.Positions = []contracts.Position{long("NVDA", "Semiconductors", 20000)}

	d := Evaluate(in)

	assert.True(t, d.Approved)
	assert.Equal(t, []string{contracts.CheckPositionSize}, d.SkippedChecks())

	pos := d.Checks[1]
	assert.Equal(t, contracts.CheckPositionSize, pos.Check)
	assert.True(t, pos.Skipped)
	assert.False(t, pos.Passed)
	assert.False(t, pos.Failed())
}

func TestEvaluate_MissingNAVMessage(t *testing.T) {
	in := testInput(contracts.ActionBuy, 0.05)
	in.Snapshot.NAV = 0

	d := Evaluate(in)

	require.NotNil(t, d.Failure)
	assert.Equal(t, navUnavailable, d.Failure.Message)
}

func TestBandDistance(t *testing.T) {
	assert.Equal(t, 0.0, bandDistance(0.5, -0.3, 1.3))
	assert.InDelta(t, 0.1, bandDistance(1.4, -0.3, 1.3), 1e-9)
	assert.InDelta(t, 0.2, bandDistance(-0.5, -0.3, 1.3), 1e-9)
}
