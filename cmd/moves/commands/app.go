package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/moves/backend/internal/api"
	"github.com/wonny/moves/backend/internal/api/handlers"
	"github.com/wonny/moves/backend/internal/audit"
	"github.com/wonny/moves/backend/internal/contracts"
	"github.com/wonny/moves/backend/internal/external/oracle"
	"github.com/wonny/moves/backend/internal/metrics"
	"github.com/wonny/moves/backend/internal/principles"
	"github.com/wonny/moves/backend/internal/risk"
	"github.com/wonny/moves/backend/internal/signals"
	"github.com/wonny/moves/backend/internal/store/memstore"
	"github.com/wonny/moves/backend/internal/strategyconfig"
	"github.com/wonny/moves/backend/internal/thesis"
	"github.com/wonny/moves/backend/pkg/config"
	"github.com/wonny/moves/backend/pkg/database"
	"github.com/wonny/moves/backend/pkg/httputil"
	"github.com/wonny/moves/backend/pkg/logger"
	"github.com/wonny/moves/backend/pkg/redis"
)

const keyPrefix = "moves"

// app holds every wired service of one process
// ⭐ SSOT: dependency wiring happens here only
type app struct {
	cfg     *config.Config
	core    *strategyconfig.Config
	log     *logger.Logger
	metrics *metrics.Registry

	db    *database.DB   // nil with --demo
	mem   *memstore.Store // non-nil with --demo
	redis *redis.Client

	audit     *audit.Recorder
	theses    *thesis.Service
	risk      *risk.Manager
	ledger    *principles.Ledger
	generator *signals.Generator
	lifecycle *signals.Lifecycle
	whatIf    *signals.WhatIfTracker
}

// stores groups the repository implementations of one backend.
type stores struct {
	theses     contracts.ThesisRepository
	signals    contracts.SignalRepository
	risk       contracts.RiskRepository
	audit      contracts.AuditRepository
	principles contracts.PrincipleRepository
	stats      contracts.SourceStatsRepository
	whatIf     contracts.WhatIfRepository
	tx         contracts.TxRunner
}

// newApp loads configuration and wires services against Postgres, or
// against the in-memory store and the static fixture when --demo is set.
func newApp() (*app, error) {
	var (
		cfg *config.Config
		err error
	)
	if demoMode {
		cfg, err = config.LoadLocal()
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	log := logger.New(cfg)

	core, err := strategyconfig.LoadOrDefault(cfg.CoreConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load core config: %w", err)
	}
	for _, w := range strategyconfig.Warn(core) {
		log.WithField("code", w.Code).Warn(w.Message)
	}

	a := &app{cfg: cfg, core: core, log: log}
	if cfg.MetricsEnabled {
		a.metrics = metrics.New()
	}

	var st stores
	var oracleClient contracts.MarketOracle
	var book contracts.PortfolioProvider
	var notifier contracts.Notifier

	if demoMode {
		a.mem = memstore.New()
		a.redis = redis.Disabled()
		st = memStores(a.mem)

		fixture, err := oracle.LoadStatic(fixturePath)
		if err != nil {
			return nil, err
		}
		oracleClient, book = fixture, fixture
		notifier = oracle.LogNotifier{Print: func(s *contracts.Signal) {
			log.WithFields(map[string]interface{}{
				"signal_id": s.ID,
				"action":    s.Action,
				"symbol":    s.Symbol,
			}).Info("Pending signal ready for review")
		}}
	} else {
		a.db, err = database.New(cfg)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		a.redis, err = redis.New(cfg)
		if err != nil {
			a.db.Close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		st = pgStores(a.db)

		hc := httputil.New(log, cfg.Oracle.Timeout).WithLocalLimit(cfg.Oracle.RatePerSec)
		var cache *redis.Cache
		if a.redis.Enabled() {
			hc = hc.WithRateLimiter(redis.NewRateLimiter(a.redis, keyPrefix), redis.OracleRateLimit(cfg.Oracle.RatePerSec))
			if cfg.Oracle.CacheEnabled {
				cache = redis.NewCache(a.redis, keyPrefix)
			}
		}
		client := oracle.NewClient(cfg.Oracle, hc, cache, a.metrics, log)
		if cache == nil && cfg.Oracle.CacheEnabled {
			client.WithLocalCache(oracle.NewLocalCache(redis.TTLMarketContext, log))
		}
		oracleClient, book, notifier = client, client, client
	}

	var symbolLocks *redis.Locker
	if a.redis.Enabled() {
		symbolLocks = redis.NewLocker(a.redis, keyPrefix+":symbol", core.Signals.LockTTL)
	}

	a.audit = audit.NewRecorder(st.audit, log)
	a.theses = thesis.NewService(st.theses, st.tx, a.audit, log)
	a.risk = risk.NewManager(st.risk, st.signals, st.tx, a.audit, a.metrics, log)
	a.ledger = principles.NewLedger(st.principles, st.stats, st.tx, a.audit, log)
	a.generator = signals.NewGenerator(signals.Deps{
		Theses:     st.theses,
		Signals:    st.signals,
		Tx:         st.tx,
		Risk:       a.risk,
		Principles: a.ledger,
		Audit:      a.audit,
		Oracle:     oracleClient,
		Portfolio:  book,
		Notifier:   notifier,
		Locker:     signals.NewSymbolLocker(symbolLocks),
		Metrics:    a.metrics,
		Logger:     log,
	}, core)
	a.whatIf = signals.NewWhatIfTracker(st.whatIf, oracleClient, a.audit, log)
	a.lifecycle = signals.NewLifecycle(st.signals, st.tx, a.ledger, a.audit, a.metrics, log, core.Signals.Expiry).
		WithWhatIf(a.whatIf)

	if demoMode {
		// the in-memory store starts empty; give the gate a limit table
		if _, err := a.risk.SeedLimits(context.Background(), core.Limits()); err != nil {
			return nil, fmt.Errorf("seed risk limits: %w", err)
		}
	}

	return a, nil
}

func memStores(m *memstore.Store) stores {
	return stores{
		theses:     m.Theses(),
		signals:    m.Signals(),
		risk:       m.Risk(),
		audit:      m.Audit(),
		principles: m.Principles(),
		stats:      m.SourceStats(),
		whatIf:     m.WhatIfs(),
		tx:         m,
	}
}

func pgStores(db *database.DB) stores {
	return stores{
		theses:     thesis.NewRepository(db.Pool),
		signals:    signals.NewRepository(db.Pool),
		risk:       risk.NewRepository(db.Pool),
		audit:      audit.NewRepository(db.Pool),
		principles: principles.NewRepository(db.Pool),
		stats:      principles.NewStatsRepository(db.Pool),
		whatIf:     signals.NewWhatIfRepository(db.Pool),
		tx:         db,
	}
}

// server builds the HTTP server over the wired services.
func (a *app) server() *api.Server {
	var health api.HealthFunc
	if a.db != nil {
		health = a.db.Ping
	}

	router := api.NewRouter(api.Handlers{
		Theses:     handlers.NewThesisHandler(a.theses, a.generator, a.log),
		Signals:    handlers.NewSignalHandler(a.generator, a.lifecycle, a.log),
		Risk:       handlers.NewRiskHandler(a.risk, a.log),
		Audit:      handlers.NewAuditHandler(a.audit, a.log),
		Principles: handlers.NewPrincipleHandler(a.ledger, a.log),
		WhatIf:     handlers.NewWhatIfHandler(a.whatIf, a.log),
	}, a.metrics, health, a.log)

	return api.New(a.cfg, a.log, router)
}

// jobLocker returns the cross-process job lock, nil without Redis.
func (a *app) jobLocker() *redis.Locker {
	if !a.redis.Enabled() {
		return nil
	}
	return redis.NewLocker(a.redis, keyPrefix+":job", 10*time.Minute)
}

// Close releases connections.
func (a *app) Close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}
