// Package tier implements the tier resource manager: it gates and
// accounts for every resource consumption against the caller's static
// tier limits, and keeps the usage invariants verified after every
// mutation.
package tier

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/docuflow/docuflow/internal/config"
	"github.com/docuflow/docuflow/pkg/models"
)

// ErrQuotaExceeded indicates an allocation was denied because the
// tier's remaining quota could not cover it. Callers surface this as
// an "upgrade required" signal.
var ErrQuotaExceeded = errors.New("tier quota exceeded")

// ErrFeatureDisabled indicates the feature is not enabled for the tier.
var ErrFeatureDisabled = errors.New("feature not enabled for tier")

// ErrUnknownTier indicates a tier change targeted a tier missing from
// the table.
var ErrUnknownTier = errors.New("unknown tier")

// recommendationThreshold is the blended utilization above which an
// upgrade recommendation is produced.
const recommendationThreshold = 0.8

// UpgradeRecommendation proposes the next tier up with concrete deltas.
type UpgradeRecommendation struct {
	// From is the current tier.
	From models.Tier
	// To is the proposed tier.
	To models.Tier
	// Utilization is the blended utilization that triggered the proposal.
	Utilization float64
	// AgentDelta is the additional agents the upgrade grants.
	AgentDelta int
	// WorkflowDelta is the additional concurrent workflows granted.
	WorkflowDelta int
	// DailyCallDelta is the additional daily external calls granted.
	DailyCallDelta int
	// UnlockedFeatures lists features the upgrade newly enables.
	UnlockedFeatures []models.Feature
}

// Manager gates and accounts for resources for one tier account. It is
// the only state shared across concurrent workflows; all counter
// updates happen under the mutex and the limit checks are re-verified
// after every change.
type Manager struct {
	mu sync.Mutex

	table  config.TierTable
	limits *models.TierLimits
	usage  models.TierUsage
	status models.TierStatus

	// active tracks outstanding allocation ids; Release consults it so
	// a double release is a no-op. Bounded by in-flight workflows.
	active map[string]struct{}

	// callWindowStart anchors the daily coordination-call window; the
	// counter resets once the window is a day old.
	callWindowStart time.Time

	// now is stubbed in tests.
	now func() time.Time

	// completedWorkflows backs the rolling average execution time.
	completedWorkflows int

	// pausedWorkflows counts workflows flagged for pause/queue by a
	// downgrade that left usage over the new cap.
	pausedWorkflows int

	debugLog func(format string, args ...interface{})
}

// NewManager creates a Manager for the given tier using the static
// tier table.
func NewManager(table config.TierTable, tier models.Tier) (*Manager, error) {
	limits := table.Get(tier)
	if limits == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTier, tier)
	}
	return &Manager{
		table:           table,
		limits:          limits,
		status:          models.TierStatusActive,
		active:          make(map[string]struct{}),
		callWindowStart: time.Now(),
		now:             time.Now,
		usage: models.TierUsage{
			FeatureUsage:   make(map[models.Feature]int),
			FrameworkUsage: make(map[models.Framework]int),
		},
		debugLog: func(format string, args ...interface{}) {},
	}, nil
}

// SetDebugLog sets the debug logging function.
func (m *Manager) SetDebugLog(fn func(format string, args ...interface{})) {
	if fn != nil {
		m.mu.Lock()
		m.debugLog = fn
		m.mu.Unlock()
	}
}

// CanAllocateAgents reports whether n more agents fit the quota.
func (m *Manager) CanAllocateAgents(n int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return n > 0 && m.usage.CurrentAgents+n <= m.limits.MaxAgents
}

// CanStartWorkflow reports whether another workflow fits the quota.
func (m *Manager) CanStartWorkflow() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.usage.ActiveWorkflows < m.limits.MaxConcurrentWorkflows
}

// CanUseFramework reports whether the tier allows the framework.
func (m *Manager) CanUseFramework(f models.Framework) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.limits.FrameworkAllowed(f)
}

// IsFeatureAvailable reports whether the tier enables the feature.
func (m *Manager) IsFeatureAvailable(f models.Feature) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.limits.HasFeature(f)
}

// Allocate grants resources for one workflow, sized to
// min(requested, remaining quota). It fails closed: if no workflow
// slot or no agent is available, it denies rather than over-allocating.
func (m *Manager) Allocate(task *models.Task, agentsRequested int) (*models.ResourceAllocation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.usage.ActiveWorkflows >= m.limits.MaxConcurrentWorkflows {
		return nil, fmt.Errorf("%w: %d workflows active, tier %s allows %d",
			ErrQuotaExceeded, m.usage.ActiveWorkflows, m.limits.Tier, m.limits.MaxConcurrentWorkflows)
	}

	if agentsRequested < 1 {
		agentsRequested = 1
	}
	remaining := m.limits.MaxAgents - m.usage.CurrentAgents
	if remaining < 1 {
		return nil, fmt.Errorf("%w: all %d agents in use on tier %s",
			ErrQuotaExceeded, m.limits.MaxAgents, m.limits.Tier)
	}
	granted := agentsRequested
	if granted > remaining {
		granted = remaining
	}

	memory := task.MemoryLimitMB
	if memory <= 0 || memory > m.limits.MaxMemoryPerWorkflowMB {
		memory = m.limits.MaxMemoryPerWorkflowMB
	}

	cores := int(float64(granted) * m.limits.ResourceMultiplier)
	if cores < 1 {
		cores = 1
	}

	alloc := &models.ResourceAllocation{
		ID:          uuid.New().String(),
		Tier:        m.limits.Tier,
		Agents:      granted,
		MemoryMB:    memory,
		Cores:       cores,
		Priority:    m.limits.PriorityLevel,
		Accelerated: task.HardwareAccelerable && m.limits.HasFeature(models.FeatureHardwareAcceleration),
		Features:    m.limits.Features,
		Frameworks:  m.limits.AllowedFrameworks,
	}

	m.active[alloc.ID] = struct{}{}
	m.usage.CurrentAgents += granted
	m.usage.ActiveWorkflows++
	m.recomputeUtilizationLocked()
	m.checkInvariantsLocked()

	m.debugLog("[tier.Allocate] granted %d/%d agents, allocation %s, usage now %d agents / %d workflows",
		granted, agentsRequested, alloc.ID, m.usage.CurrentAgents, m.usage.ActiveWorkflows)

	return alloc, nil
}

// Release returns an allocation's resources. Safe to call more than
// once for the same allocation: the second release is a no-op, and
// counters clamp at zero rather than going negative.
func (m *Manager) Release(alloc *models.ResourceAllocation) {
	if alloc == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, outstanding := m.active[alloc.ID]; !outstanding {
		m.debugLog("[tier.Release] allocation %s not outstanding, ignoring", alloc.ID)
		return
	}
	delete(m.active, alloc.ID)

	m.usage.CurrentAgents -= alloc.Agents
	if m.usage.CurrentAgents < 0 {
		m.debugLog("[tier.Release] agent counter went negative, clamping to zero")
		m.usage.CurrentAgents = 0
	}
	m.usage.ActiveWorkflows--
	if m.usage.ActiveWorkflows < 0 {
		m.debugLog("[tier.Release] workflow counter went negative, clamping to zero")
		m.usage.ActiveWorkflows = 0
	}

	m.recomputeUtilizationLocked()
	m.checkInvariantsLocked()
}

// RecordFrameworkUsage counts a framework use for upgrade
// recommendations. Denied if the tier does not allow the framework.
func (m *Manager) RecordFrameworkUsage(f models.Framework) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.limits.FrameworkAllowed(f) {
		return fmt.Errorf("record framework %s: %w", f, ErrFeatureDisabled)
	}
	m.usage.FrameworkUsage[f]++
	return nil
}

// RecordFeatureUsage counts a feature use. Denied if the feature is
// not enabled for the tier.
func (m *Manager) RecordFeatureUsage(f models.Feature) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.limits.HasFeature(f) {
		return fmt.Errorf("record feature %s: %w", f, ErrFeatureDisabled)
	}
	m.usage.FeatureUsage[f]++
	return nil
}

// RecordCoordinationCalls counts external coordination calls against
// the daily quota. Returns ErrQuotaExceeded once the quota is spent.
// The counter resets when the current window turns a day old.
func (m *Manager) RecordCoordinationCalls(n int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.now().Sub(m.callWindowStart) >= 24*time.Hour {
		m.debugLog("[tier.RecordCoordinationCalls] daily window elapsed, resetting %d used calls",
			m.usage.DailyCallsUsed)
		m.usage.DailyCallsUsed = 0
		m.callWindowStart = m.now()
	}

	if m.usage.DailyCallsUsed+n > m.limits.MaxDailyCalls {
		return fmt.Errorf("%w: daily coordination calls", ErrQuotaExceeded)
	}
	m.usage.DailyCallsUsed += n
	m.recomputeUtilizationLocked()
	return nil
}

// RecordCompletion folds a finished workflow's run time into the
// rolling average.
func (m *Manager) RecordCompletion(elapsed time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	total := m.usage.AvgExecutionTime*time.Duration(m.completedWorkflows) + elapsed
	m.completedWorkflows++
	m.usage.AvgExecutionTime = total / time.Duration(m.completedWorkflows)
}

// UpgradeTier moves the account to a higher tier.
func (m *Manager) UpgradeTier(to models.Tier) error {
	return m.changeTier(to)
}

// DowngradeTier moves the account to a lower tier. If current usage
// exceeds the new limits, the excess is forcibly reclaimed: the agent
// count is reduced to the new cap and excess workflows are flagged for
// pause rather than left over-quota.
func (m *Manager) DowngradeTier(to models.Tier) error {
	return m.changeTier(to)
}

func (m *Manager) changeTier(to models.Tier) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	limits := m.table.Get(to)
	if limits == nil {
		return fmt.Errorf("%w: %s", ErrUnknownTier, to)
	}
	m.limits = limits

	if m.usage.CurrentAgents > limits.MaxAgents {
		m.debugLog("[tier.changeTier] reclaiming %d agents over the %s cap",
			m.usage.CurrentAgents-limits.MaxAgents, to)
		m.usage.CurrentAgents = limits.MaxAgents
	}
	if m.usage.ActiveWorkflows > limits.MaxConcurrentWorkflows {
		excess := m.usage.ActiveWorkflows - limits.MaxConcurrentWorkflows
		m.pausedWorkflows += excess
		m.usage.ActiveWorkflows = limits.MaxConcurrentWorkflows
		m.debugLog("[tier.changeTier] flagged %d workflows for pause after downgrade to %s", excess, to)
	}

	m.recomputeUtilizationLocked()
	m.checkInvariantsLocked()
	return nil
}

// UpgradeRecommendation returns a proposal for the next tier up when
// blended utilization exceeds the threshold, or nil otherwise.
func (m *Manager) UpgradeRecommendation() *UpgradeRecommendation {
	m.mu.Lock()
	defer m.mu.Unlock()

	util := m.blendedUtilizationLocked()
	next := m.limits.Tier.Next()
	if util <= recommendationThreshold || next == m.limits.Tier {
		return nil
	}

	nextLimits := m.table.Get(next)
	if nextLimits == nil {
		return nil
	}

	rec := &UpgradeRecommendation{
		From:           m.limits.Tier,
		To:             next,
		Utilization:    util,
		AgentDelta:     nextLimits.MaxAgents - m.limits.MaxAgents,
		WorkflowDelta:  nextLimits.MaxConcurrentWorkflows - m.limits.MaxConcurrentWorkflows,
		DailyCallDelta: nextLimits.MaxDailyCalls - m.limits.MaxDailyCalls,
	}
	for _, f := range nextLimits.Features {
		if !m.limits.HasFeature(f) {
			rec.UnlockedFeatures = append(rec.UnlockedFeatures, f)
		}
	}
	return rec
}

// Limits returns the current static limits.
func (m *Manager) Limits() *models.TierLimits {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.limits
}

// Usage returns a snapshot of current usage counters.
func (m *Manager) Usage() models.TierUsage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Status returns the current tier status.
func (m *Manager) Status() models.TierStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// PausedWorkflows returns how many workflows a downgrade flagged for
// pause.
func (m *Manager) PausedWorkflows() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pausedWorkflows
}

func (m *Manager) snapshotLocked() models.TierUsage {
	snapshot := m.usage
	snapshot.FeatureUsage = make(map[models.Feature]int, len(m.usage.FeatureUsage))
	for k, v := range m.usage.FeatureUsage {
		snapshot.FeatureUsage[k] = v
	}
	snapshot.FrameworkUsage = make(map[models.Framework]int, len(m.usage.FrameworkUsage))
	for k, v := range m.usage.FrameworkUsage {
		snapshot.FrameworkUsage[k] = v
	}
	return snapshot
}

// blendedUtilizationLocked averages the agent, workflow, and daily-call
// ratios.
func (m *Manager) blendedUtilizationLocked() float64 {
	ratios := []float64{
		ratio(m.usage.CurrentAgents, m.limits.MaxAgents),
		ratio(m.usage.ActiveWorkflows, m.limits.MaxConcurrentWorkflows),
		ratio(m.usage.DailyCallsUsed, m.limits.MaxDailyCalls),
	}
	var sum float64
	for _, r := range ratios {
		sum += r
	}
	return sum / float64(len(ratios))
}

// checkInvariantsLocked verifies usage never exceeds limits. A
// violation flips the status to limit-reached, which throttles new
// allocations until usage drops.
func (m *Manager) checkInvariantsLocked() {
	if m.usage.CurrentAgents > m.limits.MaxAgents || m.usage.ActiveWorkflows > m.limits.MaxConcurrentWorkflows {
		m.status = models.TierStatusLimitReached
		m.debugLog("[tier.invariant] violated: %d/%d agents, %d/%d workflows",
			m.usage.CurrentAgents, m.limits.MaxAgents, m.usage.ActiveWorkflows, m.limits.MaxConcurrentWorkflows)
		return
	}
	m.status = models.TierStatusActive
}

func (m *Manager) recomputeUtilizationLocked() {
	m.usage.ResourceUtilization = m.blendedUtilizationLocked()
}

func ratio(used, limit int) float64 {
	if limit <= 0 {
		return 0
	}
	r := float64(used) / float64(limit)
	if r > 1 {
		r = 1
	}
	return r
}
