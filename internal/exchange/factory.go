package exchange

import (
	"fmt"
	"sync"
)

// Factory owns every configured venue and the two logical roles decoupled
// from any single implementation, per spec.md §4.1: the trading exchange
// (changeable at runtime) and the data exchange (always Kraken).
type Factory struct {
	mu       sync.RWMutex
	venues   map[string]Exchange
	enabled  map[string]bool
	trading  string
	dataName string
}

// NewFactory builds a Factory. dataExchangeName must name a Kraken
// registration — the data exchange is hardcoded to Kraken per spec.
func NewFactory(dataExchangeName string) *Factory {
	return &Factory{
		venues:   make(map[string]Exchange),
		enabled:  make(map[string]bool),
		dataName: dataExchangeName,
	}
}

// Register adds a venue, enabled by default.
func (f *Factory) Register(ex Exchange) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.venues[ex.Name()] = ex
	f.enabled[ex.Name()] = true
	if f.trading == "" {
		f.trading = ex.Name()
	}
}

// SetTradingExchange changes which venue is used for order submission. The
// target must be registered and enabled.
func (f *Factory) SetTradingExchange(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.venues[name]; !ok {
		return fmt.Errorf("exchange: unknown venue %q", name)
	}
	if !f.enabled[name] {
		return fmt.Errorf("exchange: venue %q is disabled", name)
	}
	f.trading = name
	return nil
}

// Disable disables a venue. Disabling the currently-selected trading
// exchange is rejected, and at least one exchange must remain enabled, per
// spec.md §4.1.
func (f *Factory) Disable(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if name == f.trading {
		return fmt.Errorf("exchange: cannot disable the active trading exchange %q", name)
	}
	remainingEnabled := 0
	for n, en := range f.enabled {
		if en && n != name {
			remainingEnabled++
		}
	}
	if remainingEnabled == 0 {
		return fmt.Errorf("exchange: cannot disable %q, at least one exchange must remain enabled", name)
	}
	f.enabled[name] = false
	return nil
}

// Enable re-enables a previously disabled venue.
func (f *Factory) Enable(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.venues[name]; !ok {
		return fmt.Errorf("exchange: unknown venue %q", name)
	}
	f.enabled[name] = true
	return nil
}

// Trading returns the current trading-exchange implementation.
func (f *Factory) Trading() (Exchange, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	ex, ok := f.venues[f.trading]
	if !ok {
		return nil, fmt.Errorf("exchange: no trading exchange configured")
	}
	return ex, nil
}

// Data returns the data-exchange implementation — always Kraken.
func (f *Factory) Data() (Exchange, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	ex, ok := f.venues[f.dataName]
	if !ok {
		return nil, fmt.Errorf("exchange: data exchange %q is not registered", f.dataName)
	}
	return ex, nil
}

// Get returns any registered, enabled venue by name.
func (f *Factory) Get(name string) (Exchange, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	ex, ok := f.venues[name]
	if !ok || !f.enabled[name] {
		return nil, fmt.Errorf("exchange: venue %q is not available", name)
	}
	return ex, nil
}

// Enabled reports every currently enabled venue name.
func (f *Factory) Enabled() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]string, 0, len(f.enabled))
	for n, en := range f.enabled {
		if en {
			out = append(out, n)
		}
	}
	return out
}
