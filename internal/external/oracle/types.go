package oracle

import (
	"fmt"
	"strings"
	"time"

	"github.com/wonny/moves/backend/internal/contracts"
)

const dateLayout = "2006-01-02"

// marketContextDTO is the sidecar's wire format for /v1/market/{symbol}.
type marketContextDTO struct {
	Symbol         string  `json:"symbol" yaml:"symbol"`
	Price          float64 `json:"price" yaml:"price"`
	Sector         string  `json:"sector" yaml:"sector"`
	Domain         string  `json:"domain" yaml:"domain"`
	NextEarnings   string  `json:"next_earnings" yaml:"next_earnings"` // YYYY-MM-DD, empty if unknown
	InBlackout     bool    `json:"in_blackout" yaml:"in_blackout"`
	BlackoutReason string  `json:"blackout_reason" yaml:"blackout_reason"`
	AsOf           string  `json:"as_of" yaml:"as_of"` // RFC 3339
}

func (d marketContextDTO) toContract(symbol string) (*contracts.MarketContext, error) {
	mc := &contracts.MarketContext{
		Symbol:         symbol,
		Price:          d.Price,
		Sector:         d.Sector,
		Domain:         d.Domain,
		InBlackout:     d.InBlackout,
		BlackoutReason: d.BlackoutReason,
	}
	if d.Symbol != "" && !strings.EqualFold(d.Symbol, symbol) {
		return nil, fmt.Errorf("oracle answered for %s, asked %s", d.Symbol, symbol)
	}
	if d.NextEarnings != "" {
		t, err := time.Parse(dateLayout, d.NextEarnings)
		if err != nil {
			return nil, fmt.Errorf("invalid next_earnings %q: %w", d.NextEarnings, err)
		}
		mc.NextEarnings = &t
	}
	if d.AsOf != "" {
		t, err := time.Parse(time.RFC3339, d.AsOf)
		if err != nil {
			return nil, fmt.Errorf("invalid as_of %q: %w", d.AsOf, err)
		}
		mc.AsOf = t
	}
	return mc, nil
}

type positionDTO struct {
	Symbol      string  `json:"symbol" yaml:"symbol"`
	Sector      string  `json:"sector" yaml:"sector"`
	Side        string  `json:"side" yaml:"side"`
	MarketValue float64 `json:"market_value" yaml:"market_value"`
	ThesisID    int64   `json:"thesis_id" yaml:"thesis_id"`
}

// portfolioDTO is the wire format for /v1/portfolio.
type portfolioDTO struct {
	NAV              float64       `json:"nav" yaml:"nav"`
	PeakNAV          float64       `json:"peak_nav" yaml:"peak_nav"`
	DailyRealizedPnL float64       `json:"daily_realized_pnl" yaml:"daily_realized_pnl"`
	Positions        []positionDTO `json:"positions" yaml:"positions"`
	AsOf             string        `json:"as_of" yaml:"as_of"`
}

func (d portfolioDTO) toContract() (*contracts.PortfolioSnapshot, error) {
	snap := &contracts.PortfolioSnapshot{
		NAV:              d.NAV,
		PeakNAV:          d.PeakNAV,
		DailyRealizedPnL: d.DailyRealizedPnL,
		Positions:        make([]contracts.Position, 0, len(d.Positions)),
	}
	for _, p := range d.Positions {
		side := contracts.Side(strings.ToLower(p.Side))
		switch side {
		case "":
			side = contracts.SideLong
		case contracts.SideLong, contracts.SideShort:
		default:
			return nil, fmt.Errorf("position %s: unknown side %q", p.Symbol, p.Side)
		}
		snap.Positions = append(snap.Positions, contracts.Position{
			Symbol:      strings.ToUpper(p.Symbol),
			Sector:      p.Sector,
			Side:        side,
			MarketValue: p.MarketValue,
			ThesisID:    p.ThesisID,
		})
	}
	if d.AsOf != "" {
		t, err := time.Parse(time.RFC3339, d.AsOf)
		if err != nil {
			return nil, fmt.Errorf("invalid as_of %q: %w", d.AsOf, err)
		}
		snap.AsOf = t
	}
	return snap, nil
}
