// Package session implements the per-user allocation state machine.
//
// A Machine owns its state exclusively. Remote calls run on background goroutines and
// report back through tagged apply functions; a response whose tag no longer matches
// the current selection is dropped.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/saltfish/allocdesk/internal/allocation"
	"github.com/saltfish/allocdesk/internal/catalog"
	"github.com/saltfish/allocdesk/internal/domain"
	"github.com/saltfish/allocdesk/internal/params"
)

// ErrDiscarded is reported to waiters whose response arrived after the selection changed.
var ErrDiscarded = errors.New("response discarded: selection changed")

// ErrClosed is returned by operations on a closed session.
var ErrClosed = errors.New("session closed")

// Validation messages.
const (
	MsgSelectStrategy = "Please select a strategy"
	MsgInvalidAmount  = "Please enter a valid amount"
)

// Allocator is the remote allocation service as seen by a session.
type Allocator interface {
	ProbeAvailability(ctx context.Context) bool
	ListStrategies(ctx context.Context) (map[string]domain.StrategyDefinition, error)
	ComputeAllocation(ctx context.Context, strategyID string, totalAmount float64, params domain.ParameterPayload) (*domain.RemoteAllocation, error)
	GetPerformance(ctx context.Context, strategyID string, forceRefresh bool) (*domain.PerformanceSnapshot, error)
}

// Deps are the collaborators injected into every session.
type Deps struct {
	Client    Allocator
	Registry  *params.Registry
	Static    []domain.StrategyDefinition
	Flagship  string
	Overrides catalog.DisplayOverrides
	Notifier  Notifier
	Logger    *zap.Logger
	Now       func() time.Time
}

// calcTag identifies an outstanding calculation.
type calcTag struct {
	strategyID string
	epoch      uint64
}

// perfTag identifies an outstanding performance fetch.
type perfTag struct {
	strategyID string
	selEpoch   uint64
	seq        uint64
}

// Machine is one session's state machine. It is safe for concurrent use.
type Machine struct {
	id       uuid.UUID
	client   Allocator
	registry *params.Registry
	static   []domain.StrategyDefinition
	flagship string
	overs    catalog.DisplayOverrides
	notifier Notifier
	logger   *zap.Logger
	now      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu               sync.Mutex
	catalog          *catalog.Catalog
	closed           bool
	phase            domain.SessionPhase
	selectedID       string
	amount           string
	paramValues      domain.RawParams
	result           *domain.AllocationResult
	loading          bool
	errMsg           string
	errKind          string
	backendAvailable bool
	perfCache        map[string]*domain.PerformanceSnapshot
	perfPhase        domain.PerformancePhase
	perfLoading      bool
	perfErr          string
	selEpoch         uint64
	calcEpoch        uint64
	perfSeq          uint64
	lastActive       time.Time
}

// NewMachine creates an idle session with a static-only catalog.
func NewMachine(id uuid.UUID, deps Deps) *Machine {
	if deps.Registry == nil {
		deps.Registry = params.DefaultRegistry()
	}
	if deps.Static == nil {
		deps.Static = catalog.StaticDefinitions()
	}
	if deps.Notifier == nil {
		deps.Notifier = nopNotifier{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Machine{
		id:          id,
		client:      deps.Client,
		registry:    deps.Registry,
		static:      deps.Static,
		flagship:    deps.Flagship,
		overs:       deps.Overrides,
		notifier:    deps.Notifier,
		logger:      deps.Logger.With(zap.String("session_id", id.String())),
		now:         deps.Now,
		ctx:         ctx,
		cancel:      cancel,
		catalog:     catalog.Build(deps.Static, nil),
		phase:       domain.SessionPhaseIdle,
		paramValues: domain.RawParams{},
		perfCache:   make(map[string]*domain.PerformanceSnapshot),
		perfPhase:   domain.PerformancePhaseIdle,
		lastActive:  deps.Now(),
	}
}

// ID returns the session id.
func (m *Machine) ID() uuid.UUID {
	return m.id
}

// Start probes the remote service, loads the catalog, and selects the default strategy.
// A failed probe or listing leaves the session in static-only mode.
func (m *Machine) Start(ctx context.Context) {
	available := false
	var remoteDefs map[string]domain.StrategyDefinition

	if m.client != nil {
		available = m.client.ProbeAvailability(ctx)
		if available {
			defs, err := m.client.ListStrategies(ctx)
			if err != nil {
				m.logger.Warn("Failed to list remote strategies, using static catalog", zap.Error(err))
				available = false
			} else {
				remoteDefs = defs
			}
		}
	}

	var opts []catalog.Option
	if m.overs != nil {
		opts = append(opts, catalog.WithDisplayOverrides(m.overs))
	}
	cat := catalog.Build(m.static, remoteDefs, opts...)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.catalog = cat
	m.backendAvailable = available
	m.touch()

	events := []pendingEvent{{EventSessionCreated, map[string]interface{}{
		"backend_available": available,
		"strategies":        cat.Len(),
	}}}
	if id := cat.DefaultID(m.flagship); id != "" {
		def, _ := cat.Get(id)
		events = append(events, m.selectLocked(def)...)
	}
	m.mu.Unlock()

	m.logger.Info("Session started",
		zap.Bool("backend_available", available),
		zap.Int("strategies", cat.Len()),
	)
	m.emit(events)
}

// Strategies returns the catalog ordered by display name.
func (m *Machine) Strategies() []domain.StrategyDefinition {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.catalog.Sorted()
}

// Panel returns the configuration panel for a strategy in the catalog.
func (m *Machine) Panel(strategyID string) (params.PanelShape, error) {
	m.mu.Lock()
	def, err := m.catalog.Get(strategyID)
	m.mu.Unlock()
	if err != nil {
		return params.PanelShape{}, err
	}
	return m.registry.Panel(def), nil
}

// Select makes strategyID current. Reselecting the current strategy is a no-op.
func (m *Machine) Select(strategyID string) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.touch()
	if strategyID == m.selectedID {
		m.mu.Unlock()
		return nil
	}
	def, err := m.catalog.Get(strategyID)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	events := m.selectLocked(def)
	m.mu.Unlock()

	m.emit(events)
	return nil
}

// selectLocked switches selection. Outstanding responses for the old selection become stale.
func (m *Machine) selectLocked(def domain.StrategyDefinition) []pendingEvent {
	m.selectedID = def.ID
	m.selEpoch++
	m.calcEpoch++
	m.result = nil
	m.loading = false
	m.clearErrorLocked()
	m.paramValues = m.registry.Defaults(def)
	m.phase = domain.SessionPhaseStrategySelected

	m.perfLoading = false
	m.perfErr = ""
	if _, ok := m.perfCache[def.ID]; ok {
		m.perfPhase = domain.PerformancePhaseReady
	} else {
		m.perfPhase = domain.PerformancePhaseIdle
	}

	m.logger.Debug("Strategy selected", zap.String("strategy_id", def.ID), zap.String("kind", def.Kind.String()))

	events := []pendingEvent{{EventStrategySelected, map[string]interface{}{
		"strategy_id": def.ID,
		"kind":        def.Kind,
	}}}
	if def.IsDynamic() && m.backendAvailable {
		if _, cached := m.perfCache[def.ID]; !cached {
			m.startPerformanceLocked(def.ID, false)
		}
	}
	return events
}

// SetAmount stores the raw amount text.
func (m *Machine) SetAmount(raw string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.touch()
	m.amount = raw
	return nil
}

// SetParams merges raw parameter values into the current form.
func (m *Machine) SetParams(values map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.touch()
	for k, v := range values {
		m.paramValues[k] = v
	}
	return nil
}

// Calculate validates input and computes an allocation.
//
// Static strategies complete synchronously. Dynamic strategies return a Pending that
// resolves when the remote response is applied or discarded. Validation failures set
// the session error, leave loading untouched, and issue no request.
func (m *Machine) Calculate() (*Pending, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	m.touch()

	if m.loading {
		m.mu.Unlock()
		return nil, domain.ErrCalculationInFlight
	}

	if m.selectedID == "" {
		err := domain.NewValidationError("strategy", MsgSelectStrategy)
		m.setErrorLocked(err, err.Message)
		m.mu.Unlock()
		return nil, err
	}
	total, ok := params.ParseNumber(m.amount)
	if !ok || total <= 0 {
		err := domain.NewValidationError("amount", MsgInvalidAmount)
		m.setErrorLocked(err, err.Message)
		m.mu.Unlock()
		return nil, err
	}

	def, err := m.catalog.Get(m.selectedID)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	m.clearErrorLocked()

	if !def.IsDynamic() {
		res, err := allocation.ComputeStatic(def, total)
		if err != nil {
			m.setErrorLocked(err, domain.UserMessage(err, domain.MsgCalculateFailed))
			m.phase = domain.SessionPhaseFailed
			m.mu.Unlock()
			return nil, err
		}
		m.result = res
		m.phase = domain.SessionPhaseReady
		m.mu.Unlock()

		m.emit([]pendingEvent{{EventAllocationCalculated, res}})
		return resolvedPending(res, nil), nil
	}

	if !m.backendAvailable || m.client == nil {
		err := &domain.NetworkError{Op: "calculate", Err: domain.ErrBackendUnavailable}
		m.setErrorLocked(err, domain.MsgCalculateFailed)
		m.phase = domain.SessionPhaseFailed
		m.mu.Unlock()
		return nil, err
	}

	payload := m.registry.Normalize(def.ID, def.Parameters, m.paramValues)
	tag := calcTag{strategyID: def.ID, epoch: m.calcEpoch}
	m.loading = true
	m.phase = domain.SessionPhaseCalculating
	p := newPending()

	m.wg.Add(1)
	m.mu.Unlock()

	m.logger.Debug("Calculating allocation",
		zap.String("strategy_id", def.ID),
		zap.Float64("total_amount", total),
		zap.Int("parameters", len(payload)),
	)

	go func() {
		defer m.wg.Done()
		raw, err := m.client.ComputeAllocation(m.ctx, def.ID, total, payload)
		m.applyCalculation(tag, def, total, raw, err, p)
	}()

	return p, nil
}

func (m *Machine) applyCalculation(tag calcTag, def domain.StrategyDefinition, total float64, raw *domain.RemoteAllocation, callErr error, p *Pending) {
	m.mu.Lock()
	if m.closed || tag.strategyID != m.selectedID || tag.epoch != m.calcEpoch {
		m.mu.Unlock()
		m.logger.Debug("Discarding stale calculation", zap.String("strategy_id", tag.strategyID))
		p.resolve(nil, ErrDiscarded)
		return
	}

	m.loading = false
	if callErr != nil {
		msg := domain.UserMessage(callErr, domain.MsgCalculateFailed)
		m.setErrorLocked(callErr, msg)
		m.phase = domain.SessionPhaseFailed
		m.mu.Unlock()

		m.logger.Warn("Allocation calculation failed", zap.String("strategy_id", def.ID), zap.Error(callErr))
		m.emit([]pendingEvent{{EventAllocationFailed, map[string]interface{}{
			"strategy_id": def.ID,
			"error":       msg,
		}}})
		p.resolve(nil, callErr)
		return
	}

	res := allocation.Reconcile(raw, def, total)
	m.result = res
	m.phase = domain.SessionPhaseReady
	m.mu.Unlock()

	m.emit([]pendingEvent{{EventAllocationCalculated, res}})
	p.resolve(res, nil)
}

// Reset clears the amount, result, and error and restores the selected strategy's
// parameter defaults. The selection itself is kept and an outstanding calculation becomes stale.
func (m *Machine) Reset() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.touch()

	m.amount = ""
	m.result = nil
	m.clearErrorLocked()
	m.calcEpoch++
	m.loading = false

	if def, err := m.catalog.Get(m.selectedID); err == nil {
		m.paramValues = m.registry.Defaults(def)
		m.phase = domain.SessionPhaseStrategySelected
	} else {
		m.paramValues = domain.RawParams{}
		m.phase = domain.SessionPhaseIdle
	}
	selected := m.selectedID
	m.mu.Unlock()

	m.emit([]pendingEvent{{EventSessionReset, map[string]interface{}{"strategy_id": selected}}})
	return nil
}

// RefreshPerformance refetches metrics for the selected dynamic strategy, asking the service to recompute.
func (m *Machine) RefreshPerformance() (*PerformancePending, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	m.touch()

	def, err := m.catalog.Get(m.selectedID)
	if err != nil {
		return nil, domain.NewValidationError("strategy", MsgSelectStrategy)
	}
	if !def.IsDynamic() {
		return nil, domain.NewValidationError("strategy", "performance metrics are only available for dynamic strategies")
	}
	if !m.backendAvailable || m.client == nil {
		return nil, fmt.Errorf("refresh performance: %w", domain.ErrBackendUnavailable)
	}
	if m.perfLoading {
		return nil, domain.ErrPerformanceInFlight
	}
	return m.startPerformanceLocked(def.ID, true), nil
}

func (m *Machine) startPerformanceLocked(strategyID string, force bool) *PerformancePending {
	m.perfSeq++
	tag := perfTag{strategyID: strategyID, selEpoch: m.selEpoch, seq: m.perfSeq}
	m.perfLoading = true
	m.perfErr = ""
	m.perfPhase = domain.PerformancePhaseLoading
	p := newPerformancePending()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		snap, err := m.client.GetPerformance(m.ctx, strategyID, force)
		m.applyPerformance(tag, snap, err, p)
	}()
	return p
}

func (m *Machine) applyPerformance(tag perfTag, snap *domain.PerformanceSnapshot, callErr error, p *PerformancePending) {
	m.mu.Lock()
	if m.closed || tag.strategyID != m.selectedID || tag.selEpoch != m.selEpoch || tag.seq != m.perfSeq {
		m.mu.Unlock()
		m.logger.Debug("Discarding stale performance response", zap.String("strategy_id", tag.strategyID))
		p.resolve(nil, ErrDiscarded)
		return
	}

	m.perfLoading = false
	if callErr != nil {
		msg := domain.UserMessage(callErr, domain.MsgFetchPerformanceFailed)
		m.perfErr = msg
		m.perfPhase = domain.PerformancePhaseFailed
		m.mu.Unlock()

		m.logger.Warn("Performance fetch failed", zap.String("strategy_id", tag.strategyID), zap.Error(callErr))
		m.emit([]pendingEvent{{EventPerformanceFailed, map[string]interface{}{
			"strategy_id": tag.strategyID,
			"error":       msg,
		}}})
		p.resolve(nil, callErr)
		return
	}

	m.perfCache[tag.strategyID] = snap
	m.perfPhase = domain.PerformancePhaseReady
	m.mu.Unlock()

	m.emit([]pendingEvent{{EventPerformanceLoaded, snap}})
	p.resolve(snap, nil)
}

// State returns a copy of the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	cache := make(map[string]*domain.PerformanceSnapshot, len(m.perfCache))
	for k, v := range m.perfCache {
		cache[k] = v
	}
	return State{
		SessionID:          m.id,
		Phase:              m.phase,
		SelectedStrategyID: m.selectedID,
		Amount:             m.amount,
		ParamValues:        m.paramValues.Clone(),
		Result:             m.result,
		Loading:            m.loading,
		Error:              m.errMsg,
		ErrorKind:          m.errKind,
		BackendAvailable:   m.backendAvailable,
		PerformancePhase:   m.perfPhase,
		PerformanceCache:   cache,
		PerformanceLoading: m.perfLoading,
		PerformanceError:   m.perfErr,
		LastActive:         m.lastActive,
	}
}

// LastActive returns when the session was last touched.
func (m *Machine) LastActive() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastActive
}

// Close stops the session. Outstanding responses are discarded.
func (m *Machine) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.cancel()
	m.mu.Unlock()

	m.wg.Wait()
	m.notifier.Notify(m.id, EventSessionClosed, nil)
}

func (m *Machine) setErrorLocked(err error, msg string) {
	m.errMsg = msg
	m.errKind = errorKind(err)
}

func (m *Machine) clearErrorLocked() {
	m.errMsg = ""
	m.errKind = ""
}

func (m *Machine) touch() {
	m.lastActive = m.now()
}

func (m *Machine) emit(events []pendingEvent) {
	for _, e := range events {
		m.notifier.Notify(m.id, e.eventType, e.data)
	}
}
