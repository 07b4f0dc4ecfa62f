package signals

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/moves/backend/internal/audit"
	"github.com/wonny/moves/backend/internal/contracts"
	"github.com/wonny/moves/backend/internal/metrics"
	"github.com/wonny/moves/backend/internal/principles"
	"github.com/wonny/moves/backend/internal/risk"
	"github.com/wonny/moves/backend/internal/store/memstore"
	"github.com/wonny/moves/backend/internal/strategyconfig"
	"github.com/wonny/moves/backend/pkg/logger"
)

// =============================================================================
// Fixtures
// =============================================================================

type fakeOracle struct {
	mu       sync.Mutex
	contexts map[string]*contracts.MarketContext
	err      error
}

func (o *fakeOracle) MarketContext(ctx context.Context, symbol string) (*contracts.MarketContext, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return nil, o.err
	}
	if mc, ok := o.contexts[symbol]; ok {
		c := *mc
		return &c, nil
	}
	return &contracts.MarketContext{Symbol: symbol, Sector: "Semiconductors"}, nil
}

type fakeBook struct {
	mu   sync.Mutex
	snap contracts.PortfolioSnapshot
}

func (b *fakeBook) Snapshot(ctx context.Context) (*contracts.PortfolioSnapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.snap
	s.Positions = append([]contracts.Position(nil), b.snap.Positions...)
	return &s, nil
}

type recordingNotifier struct {
	mu      sync.Mutex
	symbols []string
}

func (n *recordingNotifier) NotifyPending(ctx context.Context, s *contracts.Signal) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.symbols = append(n.symbols, s.Symbol)
	return nil
}

type harness struct {
	store     *memstore.Store
	deps      Deps
	gen       *Generator
	lifecycle *Lifecycle
	whatIf    *WhatIfTracker
	risk      *risk.Manager
	ledger    *principles.Ledger
	oracle    *fakeOracle
	book      *fakeBook
	notifier  *recordingNotifier
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := memstore.New()
	log := logger.NewNop()
	reg := metrics.New()
	rec := audit.NewRecorder(store.Audit(), log)

	rm := risk.NewManager(store.Risk(), store.Signals(), store, rec, reg, log)
	_, err := rm.SeedLimits(context.Background(), risk.DefaultLimits())
	require.NoError(t, err)

	ledger := principles.NewLedger(store.Principles(), store.SourceStats(), store, rec, log)
	h := &harness{
		store:    store,
		risk:     rm,
		ledger:   ledger,
		oracle:   &fakeOracle{contexts: map[string]*contracts.MarketContext{}},
		book:     &fakeBook{snap: contracts.PortfolioSnapshot{NAV: 100000, PeakNAV: 100000}},
		notifier: &recordingNotifier{},
	}

	cfg := strategyconfig.Default()
	h.deps = Deps{
		Theses:     store.Theses(),
		Signals:    store.Signals(),
		Tx:         store,
		Risk:       rm,
		Principles: ledger,
		Audit:      rec,
		Oracle:     h.oracle,
		Portfolio:  h.book,
		Notifier:   h.notifier,
		Metrics:    reg,
		Logger:     log,
	}
	h.gen = NewGenerator(h.deps, cfg)
	h.whatIf = NewWhatIfTracker(store.WhatIfs(), h.oracle, rec, log)
	h.lifecycle = NewLifecycle(store.Signals(), store, ledger, rec, reg, log, cfg.Signals.Expiry).WithWhatIf(h.whatIf)
	return h
}

// withConfig rebuilds the generator over the same store.
func (h *harness) withConfig(mutate func(cfg *strategyconfig.Config)) *Generator {
	cfg := strategyconfig.Default()
	mutate(cfg)
	h.gen = NewGenerator(h.deps, cfg)
	return h.gen
}

// price sets the oracle price of symbol.
func (h *harness) price(symbol string, p float64) {
	h.oracle.mu.Lock()
	defer h.oracle.mu.Unlock()
	mc, ok := h.oracle.contexts[symbol]
	if !ok {
		mc = &contracts.MarketContext{Symbol: symbol, Sector: "Semiconductors"}
		h.oracle.contexts[symbol] = mc
	}
	mc.Price = p
}

// addThesis stores a thesis that clears every entry gate unless mutated.
func (h *harness) addThesis(t *testing.T, mutate func(th *contracts.Thesis)) *contracts.Thesis {
	t.Helper()
	created := time.Now().Add(-10 * 24 * time.Hour)
	th := &contracts.Thesis{
		Title:            "AI capex cycle",
		Strategy:         contracts.StrategyLong,
		Status:           contracts.ThesisActive,
		Symbols:          []string{"NVDA"},
		Conviction:       0.80,
		ResearchSessions: 2,
		CreatedAt:        created,
		UpdatedAt:        created,
	}
	if mutate != nil {
		mutate(th)
	}
	require.NoError(t, h.store.Theses().Create(context.Background(), th))
	return th
}

func countActions(actions []string, action string) int {
	n := 0
	for _, a := range actions {
		if a == action {
			n++
		}
	}
	return n
}

// =============================================================================
// Scenarios
// =============================================================================

func TestEvaluate_HighConvictionCreatesPendingBuy(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	th := h.addThesis(t, nil)

	outcomes, err := h.gen.Evaluate(ctx, th.ID)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)

	o := outcomes[0]
	assert.Equal(t, contracts.OutcomeCreated, o.Result)
	assert.Equal(t, contracts.ActionBuy, o.Action)
	assert.InDelta(t, 0.80, o.Confidence, 1e-9)
	assert.InDelta(t, 0.032, o.SizePct, 1e-9)

	sig, err := h.store.Signals().Get(ctx, o.SignalID)
	require.NoError(t, err)
	assert.Equal(t, contracts.SignalPending, sig.Status)
	assert.Equal(t, "NVDA", sig.Symbol)
	assert.Equal(t, contracts.SourceThesisUpdate, sig.Source)
	assert.Equal(t, "3-6 months", sig.Horizon)
	assert.Contains(t, sig.Reasoning, "AI capex cycle")

	actions := h.store.Audit().Actions()
	assert.Equal(t, 1, countActions(actions, contracts.AuditKillSwitchChecked))
	assert.Equal(t, 1, countActions(actions, contracts.AuditRiskCheckPassed))
	assert.Equal(t, 1, countActions(actions, contracts.AuditSignalCreated))
	assert.Equal(t, []string{"NVDA"}, h.notifier.symbols)
}

func TestEvaluate_LowConvictionSuppressedAtGate(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	th := h.addThesis(t, func(th *contracts.Thesis) { th.Conviction = 0.65 })

	outcomes, err := h.gen.Evaluate(ctx, th.ID)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)

	o := outcomes[0]
	assert.True(t, o.Suppressed())
	assert.Equal(t, contracts.GateConviction, o.Gate)
	assert.Zero(t, o.SignalID)
	assert.Equal(t, 0, h.store.Signals().CountPending("NVDA"))

	entries, err := h.store.Audit().ByEntity(ctx, contracts.EntityThesis, th.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, contracts.AuditSignalSuppressed, entries[0].Action)
	assert.Contains(t, string(entries[0].Details), `"gate":"conviction"`)
	assert.Empty(t, h.notifier.symbols)
}

func TestEvaluate_EntryGates(t *testing.T) {
	earnings := time.Now().Add(48 * time.Hour)

	tests := []struct {
		name   string
		thesis func(th *contracts.Thesis)
		market *contracts.MarketContext
		gate   string
	}{
		{"one research session", func(th *contracts.Thesis) { th.ResearchSessions = 1 }, nil, contracts.GateResearchSessions},
		{"thesis too young", func(th *contracts.Thesis) { th.CreatedAt = time.Now().Add(-time.Hour) }, nil, contracts.GateThesisAge},
		{"earnings in two days", nil, &contracts.MarketContext{Symbol: "NVDA", NextEarnings: &earnings}, contracts.GateEarningsBlackout},
		{"trading window closed", nil, &contracts.MarketContext{Symbol: "NVDA", InBlackout: true}, contracts.GateTradingBlackout},
		{"already held", nil, nil, contracts.GatePositionHeld},
		{"weakening thesis without position", func(th *contracts.Thesis) { th.Status = contracts.ThesisWeakening }, nil, contracts.GateThesisStatus},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			th := h.addThesis(t, tt.thesis)
			if tt.market != nil {
				h.oracle.contexts["NVDA"] = tt.market
			}
			if tt.gate == contracts.GatePositionHeld {
				h.book.snap.Positions = []contracts.Position{{Symbol: "NVDA", Side: contracts.SideLong, MarketValue: 5000}}
			}

			outcomes, err := h.gen.Evaluate(context.Background(), th.ID)
			require.NoError(t, err)
			require.Len(t, outcomes, 1)
			assert.Equal(t, tt.gate, outcomes[0].Gate)
			assert.True(t, outcomes[0].Suppressed())
		})
	}
}

func TestEvaluate_KillSwitchCancelsPendingOpens(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	th := h.addThesis(t, nil)

	first, err := h.gen.Evaluate(ctx, th.ID)
	require.NoError(t, err)
	require.Equal(t, contracts.OutcomeCreated, first[0].Result)

	// switch flipped behind the manager's back: the generator must still
	// clean up when it meets the active switch
	now := time.Now()
	require.NoError(t, h.store.Risk().SaveKillSwitch(ctx, &contracts.KillSwitch{
		Active: true, Reason: "drawdown breach", ActivatedBy: "user", ActivatedAt: &now,
	}))

	outcomes, err := h.gen.Evaluate(ctx, th.ID)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].Suppressed())
	assert.Equal(t, contracts.GateRisk, outcomes[0].Gate)
	assert.True(t, strings.HasPrefix(outcomes[0].Detail, contracts.CheckKillSwitch))

	sig, err := h.store.Signals().Get(ctx, first[0].SignalID)
	require.NoError(t, err)
	assert.Equal(t, contracts.SignalCancelled, sig.Status)
	assert.Equal(t, 0, h.store.Signals().CountPending("NVDA"))
	assert.Equal(t, 1, countActions(h.store.Audit().Actions(), contracts.AuditSignalCancelled))
}

func TestEvaluate_InvalidatedThesisWithPositionSells(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	th := h.addThesis(t, func(th *contracts.Thesis) {
		th.Status = contracts.ThesisInvalidated
		th.Conviction = 0.20
		th.ResearchSessions = 0
	})
	h.book.snap.Positions = []contracts.Position{
		{Symbol: "NVDA", Sector: "Semiconductors", Side: contracts.SideLong, MarketValue: 10000},
	}

	outcomes, err := h.gen.Evaluate(ctx, th.ID)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)

	o := outcomes[0]
	assert.Equal(t, contracts.OutcomeCreated, o.Result)
	assert.Equal(t, contracts.ActionSell, o.Action)
	assert.Zero(t, o.Confidence)
	assert.InDelta(t, 0.10, o.SizePct, 1e-9)
}

func TestEvaluate_ShortPositionCovers(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	th := h.addThesis(t, func(th *contracts.Thesis) {
		th.Strategy = contracts.StrategyShort
		th.Status = contracts.ThesisWeakening
	})
	h.book.snap.Positions = []contracts.Position{
		{Symbol: "NVDA", Side: contracts.SideShort, MarketValue: 4000},
	}

	// kill switch does not block closing trades
	_, _, err := h.risk.ActivateKillSwitch(ctx, "halt", contracts.ActorUser)
	require.NoError(t, err)

	outcomes, err := h.gen.Evaluate(ctx, th.ID)
	require.NoError(t, err)
	assert.Equal(t, contracts.OutcomeCreated, outcomes[0].Result)
	assert.Equal(t, contracts.ActionCover, outcomes[0].Action)
}

func TestEvaluate_ConcurrentEvaluationsLeaveOnePending(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	th := h.addThesis(t, nil)

	const workers = 12
	var wg sync.WaitGroup
	results := make(chan contracts.SignalOutcome, workers)
	errs := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := h.gen.Evaluate(ctx, th.ID)
			if err != nil {
				errs <- err
				return
			}
			results <- out[0]
		}()
	}
	wg.Wait()
	close(results)
	close(errs)

	for err := range errs {
		t.Fatalf("evaluate failed: %v", err)
	}

	created := 0
	ids := map[int64]bool{}
	for o := range results {
		if o.Result == contracts.OutcomeCreated {
			created++
		}
		ids[o.SignalID] = true
	}
	assert.Equal(t, 1, created)
	assert.Len(t, ids, 1)
	assert.Equal(t, 1, h.store.Signals().CountPending("NVDA"))
}

func TestEvaluate_RepeatUpdatesInPlace(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	th := h.addThesis(t, nil)

	first, err := h.gen.Evaluate(ctx, th.ID)
	require.NoError(t, err)

	th.Conviction = 0.90
	require.NoError(t, h.store.Theses().Update(ctx, th))

	second, err := h.gen.EvaluateFrom(ctx, th.ID, contracts.SourceManual)
	require.NoError(t, err)

	assert.Equal(t, contracts.OutcomeUpdated, second[0].Result)
	assert.Equal(t, first[0].SignalID, second[0].SignalID)

	sig, err := h.store.Signals().Get(ctx, second[0].SignalID)
	require.NoError(t, err)
	assert.InDelta(t, 0.90, sig.Confidence, 1e-9)
	assert.Equal(t, contracts.SourceManual, sig.Source)
	assert.Equal(t, 1, countActions(h.store.Audit().Actions(), contracts.AuditSignalUpdated))
}

func TestEvaluate_ConfidenceFloor(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	th := h.addThesis(t, nil)

	// three losing principles at max weight pull 0.80 down to 0.20
	for i := 0; i < 3; i++ {
		p, err := h.ledger.Create(ctx, principles.Input{
			Text:      "crowded trades unwind",
			Condition: contracts.PrincipleCondition{Category: principles.CategoryConviction},
			Weight:    principles.MaxWeight,
		})
		require.NoError(t, err)
		p.InvalidatedCount = 1
		require.NoError(t, h.store.Principles().Update(ctx, p))
	}

	outcomes, err := h.gen.Evaluate(ctx, th.ID)
	require.NoError(t, err)
	assert.Equal(t, contracts.GateConfidenceFloor, outcomes[0].Gate)
	assert.InDelta(t, 0.20, outcomes[0].Confidence, 1e-9)
	assert.Equal(t, 0, h.store.Signals().CountPending("NVDA"))
}

func TestEvaluate_LinksMatchedPrinciples(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	th := h.addThesis(t, nil)

	p, err := h.ledger.Create(ctx, principles.Input{
		Text:      "size up on conviction",
		Condition: contracts.PrincipleCondition{Category: principles.CategoryConviction},
	})
	require.NoError(t, err)

	outcomes, err := h.gen.Evaluate(ctx, th.ID)
	require.NoError(t, err)

	ids, err := h.store.Signals().PrincipleIDs(ctx, outcomes[0].SignalID)
	require.NoError(t, err)
	assert.Equal(t, []int64{p.ID}, ids)

	got, err := h.ledger.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.LastApplied)
}

func TestEvaluate_OracleFailureIsError(t *testing.T) {
	h := newHarness(t)
	th := h.addThesis(t, nil)
	h.oracle.err = errors.New("oracle down")

	_, err := h.gen.Evaluate(context.Background(), th.ID)
	require.Error(t, err)
	assert.Equal(t, 0, h.store.Signals().CountPending("NVDA"))
}

func TestEvaluate_MissingThesis(t *testing.T) {
	h := newHarness(t)
	_, err := h.gen.Evaluate(context.Background(), 404)
	assert.ErrorIs(t, err, contracts.ErrNotFound)
}

func TestScan_EvaluatesAllLiveTheses(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.addThesis(t, nil)
	h.addThesis(t, func(th *contracts.Thesis) { th.Symbols = []string{"AMD", "TSM"} })
	h.addThesis(t, func(th *contracts.Thesis) {
		th.Status = contracts.ThesisArchived
		th.Symbols = []string{"INTC"}
	})

	outcomes, err := h.gen.Scan(ctx)
	require.NoError(t, err)
	assert.Len(t, outcomes, 3)

	for _, o := range outcomes {
		assert.Equal(t, contracts.OutcomeCreated, o.Result, o.Symbol)
	}
	assert.Equal(t, 0, h.store.Signals().CountPending("INTC"))

	recent, err := h.store.Audit().Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, contracts.AuditScanCompleted, recent[0].Action)
	assert.Contains(t, string(recent[0].Details), `"created":3`)
	assert.Contains(t, string(recent[0].Details), `"config_hash":"`)
}

func TestEvaluate_ThesisLeavingEntryCancelsPendingOpen(t *testing.T) {
	tests := []struct {
		name string
		path []contracts.ThesisStatus
	}{
		{"weakening", []contracts.ThesisStatus{contracts.ThesisWeakening}},
		{"invalidated", []contracts.ThesisStatus{contracts.ThesisInvalidated}},
		{"archived", []contracts.ThesisStatus{contracts.ThesisInvalidated, contracts.ThesisArchived}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			h := newHarness(t)
			th := h.addThesis(t, nil)

			first, err := h.gen.Evaluate(ctx, th.ID)
			require.NoError(t, err)
			require.Equal(t, contracts.OutcomeCreated, first[0].Result)

			from := contracts.ThesisActive
			for _, to := range tt.path {
				require.NoError(t, h.store.Theses().UpdateStatus(ctx, th.ID, from, to, time.Now()))
				from = to
			}

			outcomes, err := h.gen.Evaluate(ctx, th.ID)
			require.NoError(t, err)
			require.Len(t, outcomes, 1)
			assert.Equal(t, contracts.GateThesisStatus, outcomes[0].Gate)

			sig, err := h.store.Signals().Get(ctx, first[0].SignalID)
			require.NoError(t, err)
			assert.Equal(t, contracts.SignalCancelled, sig.Status)
			assert.Equal(t, 0, h.store.Signals().CountPending("NVDA"))
			assert.Equal(t, 1, countActions(h.store.Audit().Actions(), contracts.AuditSignalCancelled))
		})
	}
}

func TestEvaluate_RescoreReplacesPrincipleLinks(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	th := h.addThesis(t, nil)

	old, err := h.ledger.Create(ctx, principles.Input{
		Text:      "size up on conviction",
		Condition: contracts.PrincipleCondition{Category: principles.CategoryConviction},
	})
	require.NoError(t, err)

	first, err := h.gen.Evaluate(ctx, th.ID)
	require.NoError(t, err)
	id := first[0].SignalID
	ids, err := h.store.Signals().PrincipleIDs(ctx, id)
	require.NoError(t, err)
	require.Equal(t, []int64{old.ID}, ids)

	// the old principle stops matching and a new one takes its place
	_, err = h.ledger.Deactivate(ctx, old.ID, contracts.ActorUser, "superseded")
	require.NoError(t, err)
	fresh, err := h.ledger.Create(ctx, principles.Input{
		Text:      "respect the trend",
		Condition: contracts.PrincipleCondition{Category: principles.CategoryConviction},
	})
	require.NoError(t, err)

	again, err := h.gen.Evaluate(ctx, th.ID)
	require.NoError(t, err)
	require.Equal(t, contracts.OutcomeUpdated, again[0].Result)
	require.Equal(t, id, again[0].SignalID)

	ids, err = h.store.Signals().PrincipleIDs(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []int64{fresh.ID}, ids)

	// nothing matches any more: the link set empties
	_, err = h.ledger.Deactivate(ctx, fresh.ID, contracts.ActorUser, "retired")
	require.NoError(t, err)
	_, err = h.gen.Evaluate(ctx, th.ID)
	require.NoError(t, err)

	ids, err = h.store.Signals().PrincipleIDs(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

// racingSignals lets a rival writer insert the symbol's pending row just
// before the first Insert lands, as a second process would.
type racingSignals struct {
	contracts.SignalRepository
	raced bool
	rival *contracts.Signal
}

func (r *racingSignals) Insert(ctx context.Context, sig *contracts.Signal) error {
	if !r.raced {
		r.raced = true
		rival := *sig
		rival.PrincipleIDs = nil
		if err := r.SignalRepository.Insert(ctx, &rival); err != nil {
			return err
		}
		r.rival = &rival
	}
	return r.SignalRepository.Insert(ctx, sig)
}

func TestEvaluate_LostInsertRaceUpdatesWinner(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	th := h.addThesis(t, nil)

	racing := &racingSignals{SignalRepository: h.store.Signals()}
	deps := h.deps
	deps.Signals = racing
	gen := NewGenerator(deps, strategyconfig.Default())

	outcomes, err := gen.Evaluate(ctx, th.ID)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	require.NotNil(t, racing.rival)

	assert.Equal(t, contracts.OutcomeUpdated, outcomes[0].Result)
	assert.Equal(t, racing.rival.ID, outcomes[0].SignalID)
	assert.Equal(t, 1, h.store.Signals().CountPending("NVDA"))
	assert.Equal(t, 1, countActions(h.store.Audit().Actions(), contracts.AuditSignalUpdated))
	assert.Zero(t, countActions(h.store.Audit().Actions(), contracts.AuditSignalCreated))
}

func TestEvaluate_IndependentGeneratorsLeaveOnePending(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	th := h.addThesis(t, nil)

	// separate in-process lockers: only the store keeps them apart
	const workers = 8
	gens := make([]*Generator, workers)
	for i := range gens {
		deps := h.deps
		deps.Locker = NewSymbolLocker(nil)
		gens[i] = NewGenerator(deps, strategyconfig.Default())
	}

	var wg sync.WaitGroup
	results := make(chan contracts.SignalOutcome, workers)
	for _, g := range gens {
		wg.Add(1)
		go func(g *Generator) {
			defer wg.Done()
			out, err := g.Evaluate(ctx, th.ID)
			if assert.NoError(t, err) {
				results <- out[0]
			}
		}(g)
	}
	wg.Wait()
	close(results)

	created, updated := 0, 0
	for o := range results {
		switch o.Result {
		case contracts.OutcomeCreated:
			created++
		case contracts.OutcomeUpdated:
			updated++
		}
	}
	assert.Equal(t, 1, created)
	assert.Equal(t, workers-1, updated)
	assert.Equal(t, 1, h.store.Signals().CountPending("NVDA"))
}

func TestShouldAutoApprove(t *testing.T) {
	on := strategyconfig.Approval{Enabled: true, MaxValue: 500, MinConfidence: 0.90}
	tests := []struct {
		name   string
		sig    contracts.Signal
		status contracts.ThesisStatus
		nav    float64
		cfg    strategyconfig.Approval
		want   bool
	}{
		{"disabled", contracts.Signal{Status: contracts.SignalPending, SizePct: 0.001}, contracts.ThesisActive, 100000, strategyconfig.Approval{MaxValue: 500}, false},
		{"small order", contracts.Signal{Status: contracts.SignalPending, SizePct: 0.004}, contracts.ThesisActive, 100000, on, true},
		{"order at the limit", contracts.Signal{Status: contracts.SignalPending, SizePct: 0.005}, contracts.ThesisActive, 100000, on, false},
		{"confident on confirmed", contracts.Signal{Status: contracts.SignalPending, SizePct: 0.05, Confidence: 0.92}, contracts.ThesisConfirmed, 100000, on, true},
		{"confident but only active", contracts.Signal{Status: contracts.SignalPending, SizePct: 0.05, Confidence: 0.95}, contracts.ThesisActive, 100000, on, false},
		{"unknown nav", contracts.Signal{Status: contracts.SignalPending, SizePct: 0.001}, contracts.ThesisActive, 0, on, false},
		{"already decided", contracts.Signal{Status: contracts.SignalApproved, SizePct: 0.001}, contracts.ThesisActive, 100000, on, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig := tt.sig
			got, reason := ShouldAutoApprove(&sig, tt.status, tt.nav, tt.cfg)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want, reason != "")
		})
	}
}

func TestEvaluate_AutoApprovesSmallOrders(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	th := h.addThesis(t, nil)
	// 3.2% of a 10k book is a 320 order
	h.book.snap.NAV, h.book.snap.PeakNAV = 10000, 10000

	gen := h.withConfig(func(cfg *strategyconfig.Config) {
		cfg.Approval.Enabled = true
	})

	outcomes, err := gen.Evaluate(ctx, th.ID)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, contracts.OutcomeCreated, outcomes[0].Result)
	assert.True(t, outcomes[0].AutoApproved)

	sig, err := h.store.Signals().Get(ctx, outcomes[0].SignalID)
	require.NoError(t, err)
	assert.Equal(t, contracts.SignalApproved, sig.Status)
	assert.NotNil(t, sig.DecidedAt)
	assert.Equal(t, 1, countActions(h.store.Audit().Actions(), contracts.AuditSignalAutoApproved))
	assert.Empty(t, h.notifier.symbols, "approved signals skip the review queue")
}

func TestEvaluate_AutoApproveDisabledByDefault(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	th := h.addThesis(t, nil)
	h.book.snap.NAV, h.book.snap.PeakNAV = 10000, 10000

	outcomes, err := h.gen.Evaluate(ctx, th.ID)
	require.NoError(t, err)
	assert.False(t, outcomes[0].AutoApproved)
	assert.Equal(t, 1, h.store.Signals().CountPending("NVDA"))
	assert.Equal(t, []string{"NVDA"}, h.notifier.symbols)
}

func TestModifySize(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	th := h.addThesis(t, nil)

	out, err := h.gen.Evaluate(ctx, th.ID)
	require.NoError(t, err)
	id := out[0].SignalID

	sig, decision, err := h.gen.ModifySize(ctx, id, 0.05, "scale in")
	require.NoError(t, err)
	assert.True(t, decision.Approved)
	assert.InDelta(t, 0.05, sig.SizePct, 1e-9)
	assert.Equal(t, contracts.SignalPending, sig.Status)

	stored, err := h.store.Signals().Get(ctx, id)
	require.NoError(t, err)
	assert.InDelta(t, 0.05, stored.SizePct, 1e-9)
	assert.Equal(t, 1, countActions(h.store.Audit().Actions(), contracts.AuditSignalModified))

	// above max_position_pct: refused, nothing written
	sig, decision, err = h.gen.ModifySize(ctx, id, 0.40, "")
	require.NoError(t, err)
	assert.False(t, decision.Approved)
	assert.Equal(t, contracts.CheckPositionSize, decision.Failure.Check)
	assert.InDelta(t, 0.05, sig.SizePct, 1e-9)
	assert.Equal(t, 1, countActions(h.store.Audit().Actions(), contracts.AuditSignalModified))

	_, _, err = h.gen.ModifySize(ctx, id, 0, "")
	assert.ErrorIs(t, err, contracts.ErrInvalidInput)
	_, _, err = h.gen.ModifySize(ctx, 404, 0.02, "")
	assert.ErrorIs(t, err, contracts.ErrNotFound)

	_, err = h.lifecycle.Reject(ctx, id, "")
	require.NoError(t, err)
	_, _, err = h.gen.ModifySize(ctx, id, 0.02, "")
	assert.ErrorIs(t, err, contracts.ErrInvalidTransition)

	// the override lasts until the next evaluation rewrites the size
	th2 := h.addThesis(t, func(th *contracts.Thesis) { th.Symbols = []string{"AMD"} })
	out, err = h.gen.Evaluate(ctx, th2.ID)
	require.NoError(t, err)
	_, _, err = h.gen.ModifySize(ctx, out[0].SignalID, 0.01, "")
	require.NoError(t, err)
	out, err = h.gen.Evaluate(ctx, th2.ID)
	require.NoError(t, err)
	assert.InDelta(t, 0.032, out[0].SizePct, 1e-9)
}
