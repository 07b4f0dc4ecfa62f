package risk

import "github.com/wonny/moves/backend/internal/contracts"

// DefaultLimits is the limit table seeded by `moves migrate` when a type is
// missing. Values are fractions of NAV.
func DefaultLimits() []contracts.RiskLimit {
	return []contracts.RiskLimit{
		{Type: contracts.LimitMaxPositionPct, Value: 0.15, Enabled: true},
		{Type: contracts.LimitMaxSectorPct, Value: 0.35, Enabled: true},
		{Type: contracts.LimitMaxGrossExposure, Value: 1.50, Enabled: true},
		{Type: contracts.LimitNetExposureBand, Value: 1.30, Floor: -0.30, Enabled: true},
		{Type: contracts.LimitMaxDrawdown, Value: 0.20, Enabled: true},
		{Type: contracts.LimitDailyLossLimit, Value: 0.03, Enabled: true},
	}
}
