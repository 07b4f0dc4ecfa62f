package contracts

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseThesisStatus(t *testing.T) {
	for _, st := range AllThesisStatuses {
		got, err := ParseThesisStatus(string(st))
		require.NoError(t, err)
		assert.Equal(t, st, got)
	}

	_, err := ParseThesisStatus("Active")
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = ParseThesisStatus("bullish")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestThesisStatus_EntryExit(t *testing.T) {
	tests := []struct {
		status ThesisStatus
		entry  bool
		exit   bool
	}{
		{ThesisActive, true, false},
		{ThesisStrengthening, true, false},
		{ThesisConfirmed, true, false},
		{ThesisWeakening, false, true},
		{ThesisInvalidated, false, true},
		{ThesisArchived, false, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.entry, tt.status.SupportsEntry())
			assert.Equal(t, tt.exit, tt.status.RequiresExit())
		})
	}
}

func TestNormalizeSymbols(t *testing.T) {
	assert.Equal(t, []string{"NVDA", "AMD", "TSM"},
		NormalizeSymbols([]string{" nvda", "AMD", "", "Nvda", "tsm"}))
}

func TestValidateConviction(t *testing.T) {
	assert.NoError(t, ValidateConviction(0))
	assert.NoError(t, ValidateConviction(1))
	assert.ErrorIs(t, ValidateConviction(1.01), ErrInvalidInput)
	assert.ErrorIs(t, ValidateConviction(-0.1), ErrInvalidInput)
	assert.ErrorIs(t, ValidateConviction(math.NaN()), ErrInvalidInput)
}

func TestCanTransitionSignal(t *testing.T) {
	assert.True(t, CanTransitionSignal(SignalPending, SignalApproved))
	assert.True(t, CanTransitionSignal(SignalPending, SignalCancelled))
	assert.True(t, CanTransitionSignal(SignalApproved, SignalExecuted))
	assert.False(t, CanTransitionSignal(SignalPending, SignalExecuted))
	assert.False(t, CanTransitionSignal(SignalRejected, SignalApproved))
	assert.False(t, CanTransitionSignal(SignalExpired, SignalPending))
}

func TestLimitSet_Validate(t *testing.T) {
	full := func() LimitSet {
		set := LimitSet{}
		for _, lt := range AllLimitTypes {
			set[lt] = RiskLimit{Type: lt, Value: 0.2, Enabled: true}
		}
		return set
	}

	require.NoError(t, full().Validate())

	missing := full()
	delete(missing, LimitMaxDrawdown)
	err := missing.Validate()
	require.ErrorIs(t, err, ErrConfiguration)
	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, string(LimitMaxDrawdown), cfgErr.Field)

	badBand := full()
	badBand[LimitNetExposureBand] = RiskLimit{Type: LimitNetExposureBand, Floor: 1, Value: 0.5, Enabled: true}
	assert.ErrorIs(t, badBand.Validate(), ErrConfiguration)

	nan := full()
	nan[LimitMaxPositionPct] = RiskLimit{Type: LimitMaxPositionPct, Value: math.NaN(), Enabled: true}
	assert.ErrorIs(t, nan.Validate(), ErrConfiguration)
}

func TestTransitionError_Is(t *testing.T) {
	err := fmt.Errorf("update: %w", &TransitionError{Entity: "thesis", ID: 7, From: "archived", To: "active"})
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Contains(t, err.Error(), "archived")
}

func TestPortfolioSnapshot_Exposures(t *testing.T) {
	snap := &PortfolioSnapshot{
		NAV:     100_000,
		PeakNAV: 125_000,
		Positions: []Position{
			{Symbol: "NVDA", Sector: "Semis", Side: SideLong, MarketValue: 20_000},
			{Symbol: "AMD", Sector: "semis", Side: SideLong, MarketValue: 10_000},
			{Symbol: "TSLA", Sector: "Autos", Side: SideShort, MarketValue: 5_000},
		},
	}

	pos, ok := snap.PositionFor("nvda")
	require.True(t, ok)
	assert.Equal(t, SideLong, pos.Side)
	_, ok = snap.PositionFor("MSFT")
	assert.False(t, ok)

	assert.Equal(t, 30_000.0, snap.SectorExposure("SEMIS"))
	assert.Equal(t, 35_000.0, snap.GrossExposure())
	assert.Equal(t, 25_000.0, snap.NetExposure())
	assert.InDelta(t, 0.2, snap.Drawdown(), 1e-9)
}

func TestSourceStats_WinRate(t *testing.T) {
	var none *SourceStats
	assert.Nil(t, none.WinRate())
	assert.Nil(t, (&SourceStats{}).WinRate())

	rate := (&SourceStats{Wins: 3, Losses: 1, Total: 4}).WinRate()
	require.NotNil(t, rate)
	assert.Equal(t, 0.75, *rate)
}
