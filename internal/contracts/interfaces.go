package contracts

import "context"

// MarketOracle supplies per-symbol market context (price, sector, domain,
// earnings date, trading window).
type MarketOracle interface {
	MarketContext(ctx context.Context, symbol string) (*MarketContext, error)
}

// PortfolioProvider supplies the current book. It must never be cached.
type PortfolioProvider interface {
	Snapshot(ctx context.Context) (*PortfolioSnapshot, error)
}

// Notifier forwards new or refreshed pending signals to the approval
// channel. Decisions come back through signals.Lifecycle.Decide.
type Notifier interface {
	NotifyPending(ctx context.Context, s *Signal) error
}

// TxRunner runs fn in one store transaction carried by ctx.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}
