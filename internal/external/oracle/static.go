package oracle

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/wonny/moves/backend/internal/contracts"
)

// StaticProvider serves a fixed book and market from a YAML fixture. It
// backs `moves scan --demo` and local runs without the sidecar.
type StaticProvider struct {
	mu       sync.RWMutex
	markets  map[string]marketContextDTO
	book     portfolioDTO
	fallback marketContextDTO // used for symbols the fixture does not list
}

type staticFixture struct {
	Portfolio portfolioDTO       `yaml:"portfolio"`
	Markets   []marketContextDTO `yaml:"markets"`
	Default   marketContextDTO   `yaml:"default"`
}

// LoadStatic reads a fixture file.
func LoadStatic(path string) (*StaticProvider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read oracle fixture: %w", err)
	}
	return ParseStatic(data)
}

// ParseStatic decodes a fixture document; unknown fields are rejected.
func ParseStatic(data []byte) (*StaticProvider, error) {
	var fx staticFixture
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&fx); err != nil {
		return nil, fmt.Errorf("failed to parse oracle fixture: %w", err)
	}

	// validate eagerly so a bad fixture fails at load, not mid-scan
	if _, err := fx.Portfolio.toContract(); err != nil {
		return nil, err
	}
	p := &StaticProvider{
		markets:  make(map[string]marketContextDTO, len(fx.Markets)),
		book:     fx.Portfolio,
		fallback: fx.Default,
	}
	for _, m := range fx.Markets {
		sym := strings.ToUpper(m.Symbol)
		if _, err := m.toContract(sym); err != nil {
			return nil, err
		}
		p.markets[sym] = m
	}
	return p, nil
}

var (
	_ contracts.MarketOracle      = (*StaticProvider)(nil)
	_ contracts.PortfolioProvider = (*StaticProvider)(nil)
)

func (p *StaticProvider) MarketContext(ctx context.Context, symbol string) (*contracts.MarketContext, error) {
	symbol = strings.ToUpper(symbol)
	p.mu.RLock()
	m, ok := p.markets[symbol]
	p.mu.RUnlock()
	if !ok {
		m = p.fallback
		m.Symbol = ""
	}
	return m.toContract(symbol)
}

func (p *StaticProvider) Snapshot(ctx context.Context) (*contracts.PortfolioSnapshot, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.book.toContract()
}

// LogNotifier writes pending signals to a callback, typically stdout in
// the demo command.
type LogNotifier struct {
	Print func(s *contracts.Signal)
}

func (n LogNotifier) NotifyPending(ctx context.Context, s *contracts.Signal) error {
	if n.Print != nil {
		n.Print(s)
	}
	return nil
}
