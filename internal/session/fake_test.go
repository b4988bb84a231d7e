package session

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/saltfish/allocdesk/internal/domain"
)

type calcCall struct {
	strategyID string
	total      float64
	payload    domain.ParameterPayload
}

type perfCall struct {
	strategyID string
	force      bool
}

// fakeAllocator is a scriptable Allocator. Hooks run on the calling goroutine.
type fakeAllocator struct {
	mu         sync.Mutex
	available  bool
	strategies map[string]domain.StrategyDefinition
	listErr    error

	onCalc func(ctx context.Context, c calcCall) (*domain.RemoteAllocation, error)
	onPerf func(ctx context.Context, c perfCall) (*domain.PerformanceSnapshot, error)

	probes    int
	lists     int
	calcCalls []calcCall
	perfCalls []perfCall
}

func newFakeAllocator() *fakeAllocator {
	return &fakeAllocator{
		available: true,
		strategies: map[string]domain.StrategyDefinition{
			"paa": {
				Name:        "Protective Asset Allocation",
				Description: "Momentum with crash protection",
				Parameters: []domain.ParameterSpec{
					{Name: "etfs", Label: "ETF Tickers", Type: domain.ParameterTypeTickerList, Default: "SPY,QQQ,IWM"},
					{Name: "top_n", Label: "Top N ETFs", Type: domain.ParameterTypeNumber, Default: 6.0},
					{Name: "lookback_months", Label: "Lookback", Type: domain.ParameterTypeNumber, Default: 12.0},
				},
			},
			"vaa": {
				Name: "Vigilant Asset Allocation",
				Parameters: []domain.ParameterSpec{
					{Name: "offensive_assets", Type: domain.ParameterTypeTickerList, Default: "SPY,EFA,EEM,AGG"},
					{Name: "defensive_assets", Type: domain.ParameterTypeTickerList, Default: "LQD,IEF,SHY"},
				},
			},
		},
		onCalc: func(ctx context.Context, c calcCall) (*domain.RemoteAllocation, error) {
			return &domain.RemoteAllocation{Allocation: domain.AssetAmounts{
				{Asset: "IEF", Amount: c.total * 0.4},
				{Asset: "SPY", Amount: c.total * 0.6},
			}}, nil
		},
		onPerf: func(ctx context.Context, c perfCall) (*domain.PerformanceSnapshot, error) {
			return &domain.PerformanceSnapshot{
				StrategyID: c.strategyID,
				Metrics:    map[string]float64{domain.MetricCAGR: 0.08},
			}, nil
		},
	}
}

func (f *fakeAllocator) ProbeAvailability(ctx context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probes++
	return f.available
}

func (f *fakeAllocator) ListStrategies(ctx context.Context) (map[string]domain.StrategyDefinition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists++
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make(map[string]domain.StrategyDefinition, len(f.strategies))
	for k, v := range f.strategies {
		out[k] = v.Clone()
	}
	return out, nil
}

func (f *fakeAllocator) ComputeAllocation(ctx context.Context, strategyID string, total float64, payload domain.ParameterPayload) (*domain.RemoteAllocation, error) {
	c := calcCall{strategyID: strategyID, total: total, payload: payload}
	f.mu.Lock()
	f.calcCalls = append(f.calcCalls, c)
	hook := f.onCalc
	f.mu.Unlock()
	return hook(ctx, c)
}

func (f *fakeAllocator) GetPerformance(ctx context.Context, strategyID string, force bool) (*domain.PerformanceSnapshot, error) {
	c := perfCall{strategyID: strategyID, force: force}
	f.mu.Lock()
	f.perfCalls = append(f.perfCalls, c)
	hook := f.onPerf
	f.mu.Unlock()
	return hook(ctx, c)
}

func (f *fakeAllocator) calcCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calcCalls)
}

func (f *fakeAllocator) perfCallsCopy() []perfCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]perfCall(nil), f.perfCalls...)
}

func (f *fakeAllocator) setCalc(hook func(ctx context.Context, c calcCall) (*domain.RemoteAllocation, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onCalc = hook
}

func (f *fakeAllocator) setPerf(hook func(ctx context.Context, c perfCall) (*domain.PerformanceSnapshot, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onPerf = hook
}

// recorder captures notifications.
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) Notify(_ uuid.UUID, eventType string, _ interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, eventType)
}

func (r *recorder) count(eventType string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e == eventType {
			n++
		}
	}
	return n
}
