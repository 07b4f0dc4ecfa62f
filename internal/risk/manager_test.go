package risk

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/moves/backend/internal/audit"
	"github.com/wonny/moves/backend/internal/contracts"
	"github.com/wonny/moves/backend/internal/metrics"
	"github.com/wonny/moves/backend/internal/store/memstore"
	"github.com/wonny/moves/backend/pkg/logger"
)

func newTestManager(t *testing.T) (*Manager, *memstore.Store) {
	t.Helper()
	store := memstore.New()
	rec := audit.NewRecorder(store.Audit(), logger.NewNop())
	m := NewManager(store.Risk(), store.Signals(), store, rec, metrics.New(), logger.NewNop())

	n, err := m.SeedLimits(context.Background(), DefaultLimits())
	require.NoError(t, err)
	require.Equal(t, len(contracts.AllLimitTypes), n)
	return m, store
}

func buyCandidate() contracts.Candidate {
	return contracts.Candidate{ThesisID: 1, Symbol: "NVDA", Action: contracts.ActionBuy, SizePct: 0.05, Sector: "Semiconductors"}
}

func healthyBook() *contracts.PortfolioSnapshot {
	return &contracts.PortfolioSnapshot{NAV: 100000, PeakNAV: 100000}
}

func TestManager_CheckAuditsEveryDecision(t *testing.T) {
	ctx := context.Background()
	m, store := newTestManager(t)

	d, err := m.Check(ctx, buyCandidate(), healthyBook())
	require.NoError(t, err)
	assert.True(t, d.Approved)

	assert.Equal(t, []string{
		contracts.AuditKillSwitchChecked,
		contracts.AuditRiskCheckPassed,
	}, store.Audit().Actions())
}

func TestManager_MissingLimitIsConfigurationError(t *testing.T) {
	ctx := context.Background()
	m, store := newTestManager(t)
	store.Risk().DeleteLimit(contracts.LimitMaxDrawdown)

	_, err := m.Check(ctx, buyCandidate(), healthyBook())

	require.Error(t, err)
	assert.ErrorIs(t, err, contracts.ErrConfiguration)
	var cfgErr *contracts.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, string(contracts.LimitMaxDrawdown), cfgErr.Field)
	assert.Empty(t, store.Audit().Actions())
}

func TestManager_SeedLimitsNeverOverwrites(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)

	require.NoError(t, m.SetLimit(ctx, contracts.RiskLimit{
		Type: contracts.LimitMaxPositionPct, Value: 0.08, Enabled: true,
	}, contracts.ActorUser))

	n, err := m.SeedLimits(ctx, DefaultLimits())
	require.NoError(t, err)
	assert.Zero(t, n)

	set, err := m.LimitSet(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0.08, set[contracts.LimitMaxPositionPct].Value)
}

func TestManager_SetLimitValidates(t *testing.T) {
	ctx := context.Background()
	m, store := newTestManager(t)

	err := m.SetLimit(ctx, contracts.RiskLimit{
		Type: contracts.LimitNetExposureBand, Value: -0.5, Floor: 0.2, Enabled: true,
	}, contracts.ActorUser)
	assert.ErrorIs(t, err, contracts.ErrConfiguration)

	err = m.SetLimit(ctx, contracts.RiskLimit{Type: "max_leverage", Value: 2}, contracts.ActorUser)
	assert.ErrorIs(t, err, contracts.ErrInvalidInput)

	assert.Empty(t, store.Audit().Actions())

	require.NoError(t, m.SetLimit(ctx, contracts.RiskLimit{
		Type: contracts.LimitDailyLossLimit, Value: 0.02, Enabled: false,
	}, contracts.ActorUser))
	assert.Equal(t, []string{contracts.AuditRiskLimitChanged}, store.Audit().Actions())
}

func TestManager_KillSwitchCancelsPendingOpenSignals(t *testing.T) {
	ctx := context.Background()
	m, store := newTestManager(t)
	signals := store.Signals()

	pending := []*contracts.Signal{
		{ThesisID: 1, Symbol: "NVDA", Action: contracts.ActionBuy, Status: contracts.SignalPending},
		{ThesisID: 2, Symbol: "AMD", Action: contracts.ActionSell, Status: contracts.SignalPending},
		{ThesisID: 1, Symbol: "TSLA", Action: contracts.ActionShort, Status: contracts.SignalPending},
	}
	for _, sig := range pending {
		require.NoError(t, signals.Insert(ctx, sig))
	}

	ks, cancelled, err := m.ActivateKillSwitch(ctx, "broker outage", contracts.ActorUser)
	require.NoError(t, err)
	assert.True(t, ks.Active)
	assert.ElementsMatch(t, []int64{pending[0].ID, pending[2].ID}, cancelled)

	for _, id := range cancelled {
		sig, err := signals.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, contracts.SignalCancelled, sig.Status)
	}
	sell, err := signals.Get(ctx, pending[1].ID)
	require.NoError(t, err)
	assert.Equal(t, contracts.SignalPending, sell.Status)

	d, err := m.Check(ctx, buyCandidate(), healthyBook())
	require.NoError(t, err)
	assert.False(t, d.Approved)
	assert.Equal(t, contracts.CheckKillSwitch, d.Failure.Check)

	_, err = m.DeactivateKillSwitch(ctx, contracts.ActorUser)
	require.NoError(t, err)

	d, err = m.Check(ctx, buyCandidate(), healthyBook())
	require.NoError(t, err)
	assert.True(t, d.Approved)

	// cancelled stays cancelled after deactivation
	sig, err := signals.Get(ctx, pending[0].ID)
	require.NoError(t, err)
	assert.Equal(t, contracts.SignalCancelled, sig.Status)

	actions := store.Audit().Actions()
	assert.Contains(t, actions, contracts.AuditKillSwitchActivated)
	assert.Contains(t, actions, contracts.AuditKillSwitchDeactivated)
	assert.Contains(t, actions, contracts.AuditRiskCheckFailed)
}

func TestManager_ActivateRequiresReason(t *testing.T) {
	m, _ := newTestManager(t)

	_, _, err := m.ActivateKillSwitch(context.Background(), "  ", contracts.ActorUser)
	assert.ErrorIs(t, err, contracts.ErrInvalidInput)
}

func TestManager_CancelPendingOpenForOneThesis(t *testing.T) {
	ctx := context.Background()
	m, store := newTestManager(t)
	signals := store.Signals()

	mine := &contracts.Signal{ThesisID: 1, Symbol: "NVDA", Action: contracts.ActionBuy, Status: contracts.SignalPending}
	other := &contracts.Signal{ThesisID: 2, Symbol: "AMD", Action: contracts.ActionBuy, Status: contracts.SignalPending}
	require.NoError(t, signals.Insert(ctx, mine))
	require.NoError(t, signals.Insert(ctx, other))

	cancelled, err := m.CancelPendingOpen(ctx, 1, "kill switch active")
	require.NoError(t, err)
	assert.Equal(t, []int64{mine.ID}, cancelled)

	got, err := signals.Get(ctx, other.ID)
	require.NoError(t, err)
	assert.True(t, got.IsPending())
}
