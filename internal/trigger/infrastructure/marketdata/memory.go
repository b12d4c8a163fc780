// Package marketdata 市场数据协作方的内存实现，供模拟环境与测试使用。
package marketdata

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/executioncore/internal/trigger/domain"
)

// MemoryProvider 内存行情源。行情由外部推送写入，门禁状态可随时切换。
type MemoryProvider struct {
	mu      sync.RWMutex
	quotes  map[string]*domain.Quote
	open    bool
	halted  map[string]bool
	breaker bool
}

// NewMemoryProvider 创建内存行情源，初始为开市状态。
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{
		quotes: make(map[string]*domain.Quote),
		halted: make(map[string]bool),
		open:   true,
	}
}

// SetQuote 写入最新行情；买卖价缺省时围绕最新价合成。
func (p *MemoryProvider) SetQuote(symbol string, last, bid, ask, volume decimal.Decimal) {
	if bid.IsZero() {
		bid = last.Mul(decimal.RequireFromString("0.9995"))
	}
	if ask.IsZero() {
		ask = last.Mul(decimal.RequireFromString("1.0005"))
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.quotes[symbol] = &domain.Quote{
		Symbol:    symbol,
		LastPrice: last,
		BidPrice:  bid,
		AskPrice:  ask,
		Volume:    volume,
		Timestamp: time.Now().UnixMilli(),
	}
}

// SetMarketOpen 切换开闭市。
func (p *MemoryProvider) SetMarketOpen(open bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.open = open
}

// SetStockHalted 切换个股停牌。
func (p *MemoryProvider) SetStockHalted(symbol string, halted bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if halted {
		p.halted[symbol] = true
	} else {
		delete(p.halted, symbol)
	}
}

// SetCircuitBreaker 切换全市场熔断。
func (p *MemoryProvider) SetCircuitBreaker(active bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.breaker = active
}

// GetQuote 实现 domain.MarketDataProvider。
func (p *MemoryProvider) GetQuote(ctx context.Context, symbol string) (*domain.Quote, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	q, ok := p.quotes[symbol]
	if !ok {
		return nil, fmt.Errorf("no quote for symbol %s", symbol)
	}
	dup := *q
	return &dup, nil
}

// IsMarketOpen 实现 domain.MarketDataProvider。
func (p *MemoryProvider) IsMarketOpen(ctx context.Context) (bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.open, nil
}

// IsStockHalted 实现 domain.MarketDataProvider。
func (p *MemoryProvider) IsStockHalted(ctx context.Context, symbol string) (bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.halted[symbol], nil
}

// IsCircuitBreakerActive 实现 domain.MarketDataProvider。
func (p *MemoryProvider) IsCircuitBreakerActive(ctx context.Context) (bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.breaker, nil
}
