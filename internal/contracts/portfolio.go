package contracts

import (
	"math"
	"strings"
	"time"
)

// Side of a held position
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// Position is one holding in the portfolio snapshot.
// MarketValue is the absolute value; Side carries the sign.
type Position struct {
	Symbol      string  `json:"symbol"`
	Sector      string  `json:"sector"`
	Side        Side    `json:"side"`
	MarketValue float64 `json:"market_value"`
	ThesisID    int64   `json:"thesis_id,omitempty"`
}

// Signed returns the position value with short positions negative.
func (p Position) Signed() float64 {
	if p.Side == SideShort {
		return -math.Abs(p.MarketValue)
	}
	return math.Abs(p.MarketValue)
}

// PortfolioSnapshot is the collaborator-supplied view of the book
// ⭐ SSOT: risk ratios are derived from this struct only
type PortfolioSnapshot struct {
	NAV              float64    `json:"nav"`
	PeakNAV          float64    `json:"peak_nav"`
	DailyRealizedPnL float64    `json:"daily_realized_pnl"`
	Positions        []Position `json:"positions"`
	AsOf             time.Time  `json:"as_of"`
}

// PositionFor returns the holding for symbol, if any.
func (s *PortfolioSnapshot) PositionFor(symbol string) (Position, bool) {
	symbol = strings.ToUpper(symbol)
	for _, p := range s.Positions {
		if strings.ToUpper(p.Symbol) == symbol && p.MarketValue != 0 {
			return p, true
		}
	}
	return Position{}, false
}

// SymbolExposure is the absolute value held in symbol.
func (s *PortfolioSnapshot) SymbolExposure(symbol string) float64 {
	symbol = strings.ToUpper(symbol)
	var total float64
	for _, p := range s.Positions {
		if strings.ToUpper(p.Symbol) == symbol {
			total += math.Abs(p.MarketValue)
		}
	}
	return total
}

// SectorExposure is the absolute value held across a sector.
func (s *PortfolioSnapshot) SectorExposure(sector string) float64 {
	if sector == "" {
		return 0
	}
	var total float64
	for _, p := range s.Positions {
		if strings.EqualFold(p.Sector, sector) {
			total += math.Abs(p.MarketValue)
		}
	}
	return total
}

// GrossExposure is |long| + |short|.
func (s *PortfolioSnapshot) GrossExposure() float64 {
	var total float64
	for _, p := range s.Positions {
		total += math.Abs(p.MarketValue)
	}
	return total
}

// NetExposure is long − short.
func (s *PortfolioSnapshot) NetExposure() float64 {
	var total float64
	for _, p := range s.Positions {
		total += p.Signed()
	}
	return total
}

// Drawdown is the fractional decline from peak NAV; 0 when unknown.
func (s *PortfolioSnapshot) Drawdown() float64 {
	if s.PeakNAV <= 0 || s.NAV >= s.PeakNAV {
		return 0
	}
	return (s.PeakNAV - s.NAV) / s.PeakNAV
}

// MarketContext is the per-symbol market view supplied by the oracle.
type MarketContext struct {
	Symbol         string     `json:"symbol"`
	Price          float64    `json:"price"`
	Sector         string     `json:"sector"`
	Domain         string     `json:"domain"`
	NextEarnings   *time.Time `json:"next_earnings,omitempty"`
	InBlackout     bool       `json:"in_blackout"`
	BlackoutReason string     `json:"blackout_reason,omitempty"`
	AsOf           time.Time  `json:"as_of"`
}
