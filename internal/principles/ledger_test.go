package principles

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/moves/backend/internal/audit"
	"github.com/wonny/moves/backend/internal/contracts"
	"github.com/wonny/moves/backend/internal/store/memstore"
	"github.com/wonny/moves/backend/pkg/logger"
)

func newTestLedger(t *testing.T) (*Ledger, *memstore.Store) {
	t.Helper()
	store := memstore.New()
	rec := audit.NewRecorder(store.Audit(), logger.NewNop())
	return NewLedger(store.Principles(), store.SourceStats(), store, rec, logger.NewNop()), store
}

func TestMatches(t *testing.T) {
	mc := ContextFor(contracts.StrategyLong, "AI", contracts.ActionBuy, contracts.SourceScheduledScan)

	tests := []struct {
		name string
		cond contracts.PrincipleCondition
		want bool
	}{
		{"empty condition matches anything", contracts.PrincipleCondition{}, true},
		{"always-on category", contracts.PrincipleCondition{Category: "conviction"}, true},
		{"domain category needs a domain", contracts.PrincipleCondition{Category: "domain"}, true},
		{"strategy category", contracts.PrincipleCondition{Category: "short"}, false},
		{"domain equal ignoring case", contracts.PrincipleCondition{Domain: "ai"}, true},
		{"domain differs", contracts.PrincipleCondition{Domain: "energy"}, false},
		{"action differs", contracts.PrincipleCondition{Action: contracts.ActionSell}, false},
		{"source matches", contracts.PrincipleCondition{Source: contracts.SourceScheduledScan}, true},
		{"all fields must agree", contracts.PrincipleCondition{Domain: "AI", Action: contracts.ActionShort}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Matches(tt.cond, mc))
		})
	}

	noDomain := ContextFor(contracts.StrategyLong, "", contracts.ActionBuy, contracts.SourceManual)
	assert.False(t, Matches(contracts.PrincipleCondition{Category: CategoryDomain}, noDomain))
}

func TestShouldDeactivate(t *testing.T) {
	tests := []struct {
		validated, invalidated int
		want                   bool
	}{
		{0, 2, false},
		{0, 3, true},
		{1, 3, true},
		{2, 4, false},
		{2, 5, true},
	}
	for _, tt := range tests {
		p := &contracts.Principle{ValidatedCount: tt.validated, InvalidatedCount: tt.invalidated}
		assert.Equal(t, tt.want, ShouldDeactivate(p), "%d/%d", tt.validated, tt.invalidated)
	}
}

func TestReweight(t *testing.T) {
	tests := []struct {
		name   string
		p      contracts.Principle
		expect float64
	}{
		{"too few samples", contracts.Principle{Weight: 0.05, ValidatedCount: 2}, 0.05},
		{"all wins", contracts.Principle{Weight: 0.05, ValidatedCount: 3}, 0.055},
		{"all losses", contracts.Principle{Weight: 0.05, InvalidatedCount: 4}, 0.045},
		{"even record", contracts.Principle{Weight: 0.05, ValidatedCount: 2, InvalidatedCount: 2}, 0.05},
		{"clamped high", contracts.Principle{Weight: 0.20, ValidatedCount: 10}, 0.20},
		{"clamped low", contracts.Principle{Weight: 0.01, InvalidatedCount: 10}, 0.01},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expect, Reweight(&tt.p), 1e-9)
		})
	}
}

func TestLedger_CreateValidates(t *testing.T) {
	ctx := context.Background()
	l, store := newTestLedger(t)

	_, err := l.Create(ctx, Input{Text: " "})
	assert.ErrorIs(t, err, contracts.ErrInvalidInput)

	_, err = l.Create(ctx, Input{Text: "size down", Weight: 0.5})
	assert.ErrorIs(t, err, contracts.ErrInvalidInput)

	_, err = l.Create(ctx, Input{Text: "x", Condition: contracts.PrincipleCondition{Source: "rumor"}})
	assert.ErrorIs(t, err, contracts.ErrInvalidInput)

	p, err := l.Create(ctx, Input{Text: "Trust domain expertise", Condition: contracts.PrincipleCondition{Domain: "AI"}})
	require.NoError(t, err)
	assert.Equal(t, DefaultWeight, p.Weight)
	assert.True(t, p.Active)
	assert.Equal(t, []string{contracts.AuditPrincipleCreated}, store.Audit().Actions())
}

func TestLedger_MatchSkipsInactive(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)

	a, err := l.Create(ctx, Input{Text: "Buy quality on dips", Condition: contracts.PrincipleCondition{Action: contracts.ActionBuy}})
	require.NoError(t, err)
	b, err := l.Create(ctx, Input{Text: "Respect stops"})
	require.NoError(t, err)
	_, err = l.Deactivate(ctx, b.ID, contracts.ActorUser, "obsolete")
	require.NoError(t, err)

	matched, err := l.Match(ctx, ContextFor(contracts.StrategyLong, "", contracts.ActionBuy, contracts.SourceManual))
	require.NoError(t, err)
	require.Len(t, matched, 1)
	assert.Equal(t, a.ID, matched[0].ID)
}

func TestLedger_RecordOutcomeDeactivatesPoorPrinciple(t *testing.T) {
	ctx := context.Background()
	l, store := newTestLedger(t)

	p, err := l.Create(ctx, Input{Text: "Chase momentum"})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		res, err := l.RecordOutcome(ctx, int64(i+1), []int64{p.ID}, false)
		require.NoError(t, err)
		assert.False(t, res[0].Deactivated)
	}

	res, err := l.RecordOutcome(ctx, 3, []int64{p.ID}, false)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.True(t, res[0].Deactivated)

	got, err := l.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)
	assert.Equal(t, 3, got.InvalidatedCount)
	assert.NotNil(t, got.LastApplied)
	assert.Contains(t, store.Audit().Actions(), contracts.AuditPrincipleDeactivated)
}

func TestLedger_AdjustWeights(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)

	p, err := l.Create(ctx, Input{Text: "Buy confirmed theses", Weight: 0.10})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := l.RecordOutcome(ctx, int64(i+1), []int64{p.ID}, true)
		require.NoError(t, err)
	}

	changes, err := l.AdjustWeights(ctx)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, 0.10, changes[0].OldWeight)
	assert.InDelta(t, 0.11, changes[0].NewWeight, 1e-9)

	// second pass moves again (factor is applied to the new weight)
	changes, err = l.AdjustWeights(ctx)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.InDelta(t, 0.121, changes[0].NewWeight, 1e-9)
}

func TestLedger_SourceWinRate(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)

	rate, err := l.SourceWinRate(ctx, contracts.SourceNewsEvent)
	require.NoError(t, err)
	assert.Nil(t, rate)

	for _, r := range []float64{0.10, -0.05, 0.02, 0.04} {
		_, err := l.RecordSourceOutcome(ctx, contracts.SourceNewsEvent, r)
		require.NoError(t, err)
	}

	rate, err = l.SourceWinRate(ctx, contracts.SourceNewsEvent)
	require.NoError(t, err)
	require.NotNil(t, rate)
	assert.InDelta(t, 0.75, *rate, 1e-9)
}

func TestLedger_DiscoverPatterns(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)

	patterns, err := l.DiscoverPatterns(ctx)
	require.NoError(t, err)
	assert.Empty(t, patterns)

	record := func(source contracts.SignalSource, returns ...float64) {
		for _, r := range returns {
			_, err := l.RecordSourceOutcome(ctx, source, r)
			require.NoError(t, err)
		}
	}
	record(contracts.SourceManual, 0.05, 0.02, 0.03, 0.01, 0.04)
	record(contracts.SourceNewsEvent, 0.05, -0.02, 0.03, -0.01, 0.04) // 60%, not an outlier

	for _, r := range []float64{0.02, -0.03, -0.01, -0.04, -0.02} {
		_, err := l.RecordStrategyOutcome(ctx, contracts.StrategyShort, r)
		require.NoError(t, err)
	}
	for _, r := range []float64{0.02, 0.03} {
		_, err := l.RecordStrategyOutcome(ctx, contracts.StrategyLong, r) // too few samples
		require.NoError(t, err)
	}

	patterns, err = l.DiscoverPatterns(ctx)
	require.NoError(t, err)
	require.Len(t, patterns, 2)

	assert.Equal(t, contracts.PatternSourcePerformance, patterns[0].Type)
	assert.Equal(t, string(contracts.SourceManual), patterns[0].Subject)
	assert.InDelta(t, 1.0, patterns[0].WinRate, 1e-9)
	assert.Contains(t, patterns[0].Description, "wins 100% of 5")

	assert.Equal(t, contracts.PatternStrategyPerformance, patterns[1].Type)
	assert.Equal(t, "short", patterns[1].Subject)
	assert.InDelta(t, 0.2, patterns[1].WinRate, 1e-9)
	assert.Contains(t, patterns[1].Description, "loses 80% of 5")

	_, err = l.RecordStrategyOutcome(ctx, contracts.StrategyLong, math.NaN())
	assert.ErrorIs(t, err, contracts.ErrInvalidInput)
}
