package session

import (
	"context"

	"github.com/saltfish/allocdesk/internal/domain"
)

// Pending is the outcome of a calculation that may still be in flight.
type Pending struct {
	done   chan struct{}
	result *domain.AllocationResult
	err    error
}

func newPending() *Pending {
	return &Pending{done: make(chan struct{})}
}

func resolvedPending(res *domain.AllocationResult, err error) *Pending {
	p := newPending()
	p.resolve(res, err)
	return p
}

func (p *Pending) resolve(res *domain.AllocationResult, err error) {
	p.result = res
	p.err = err
	close(p.done)
}

// Done is closed once the outcome is known.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the outcome is known or ctx ends.
// A response dropped as stale yields ErrDiscarded.
func (p *Pending) Wait(ctx context.Context) (*domain.AllocationResult, error) {
	select {
	case <-p.done:
		return p.result, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// PerformancePending is the outcome of a performance fetch.
type PerformancePending struct {
	done     chan struct{}
	snapshot *domain.PerformanceSnapshot
	err      error
}

func newPerformancePending() *PerformancePending {
	return &PerformancePending{done: make(chan struct{})}
}

func (p *PerformancePending) resolve(snap *domain.PerformanceSnapshot, err error) {
	p.snapshot = snap
	p.err = err
	close(p.done)
}

// Done is closed once the outcome is known.
func (p *PerformancePending) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the outcome is known or ctx ends.
func (p *PerformancePending) Wait(ctx context.Context) (*domain.PerformanceSnapshot, error) {
	select {
	case <-p.done:
		return p.snapshot, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
