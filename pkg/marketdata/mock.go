package marketdata

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// MockProvider serves synthetic quotes and bars for local development and
// tests. Prices follow a simple random walk around the seeded value.
type MockProvider struct {
	mu     sync.Mutex
	prices map[string]float64
	bars   map[string][]Bar
	Step   float64
}

func NewMockProvider() *MockProvider {
	return &MockProvider{
		prices: make(map[string]float64),
		bars:   make(map[string][]Bar),
		Step:   0.5,
	}
}

// SetPrice seeds the current price for a symbol.
func (m *MockProvider) SetPrice(symbol string, price float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices[symbol] = price
}

// SetBars seeds daily bars for a symbol.
func (m *MockProvider) SetBars(symbol string, bars []Bar) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bars[symbol] = bars
}

func (m *MockProvider) GetQuote(_ context.Context, symbol string) (Quote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	price, ok := m.prices[symbol]
	if !ok {
		return Quote{}, fmt.Errorf("mock: no price for %s", symbol)
	}
	price += (rand.Float64()*2 - 1) * m.Step
	if price < 0.01 {
		price = 0.01
	}
	m.prices[symbol] = price
	return Quote{Symbol: symbol, Price: price, Timestamp: time.Now()}, nil
}

func (m *MockProvider) GetBars(_ context.Context, symbol string, limit int) ([]Bar, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	bars, ok := m.bars[symbol]
	if !ok {
		return nil, fmt.Errorf("mock: no bars for %s", symbol)
	}
	if limit > 0 && len(bars) > limit {
		bars = bars[len(bars)-limit:]
	}
	out := make([]Bar, len(bars))
	copy(out, bars)
	return out, nil
}
