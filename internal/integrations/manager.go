package integrations

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hearth-home/hearth-backend-go/internal/coordinator"
	"github.com/hearth-home/hearth-backend-go/internal/entities"
	"github.com/hearth-home/hearth-backend-go/internal/metrics"
	apperrors "github.com/hearth-home/hearth-backend-go/pkg/errors"
)

// unavailableAfter is the number of consecutive failed refreshes before an
// integration's entities are marked unavailable. Below the threshold the
// last good values are served as stale-but-available.
const unavailableAfter = 3

// ManagerConfig controls setup retry behavior
type ManagerConfig struct {
	SetupInitialDelay time.Duration
	SetupMaxDelay     time.Duration
}

type runner struct {
	integration Integration
	coord       *coordinator.Coordinator[[]entities.State]
	lastDur     atomic.Int64 // nanoseconds of the last Refresh call
	ready       atomic.Bool
}

// Manager owns one coordinator per integration. Ownership is explicit: the
// manager holds its runners directly and nothing is looked up through
// process-wide state.
type Manager struct {
	cfg       ManagerConfig
	logger    *logrus.Logger
	entitySvc *entities.Service
	metrics   *metrics.Registry
	recorder  RefreshRecorder
	status    StatusSink

	mu      sync.RWMutex
	runners []*runner

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager creates an integration manager. recorder and status may be nil.
func NewManager(cfg ManagerConfig, entitySvc *entities.Service, reg *metrics.Registry, recorder RefreshRecorder, status StatusSink, logger *logrus.Logger) *Manager {
	if cfg.SetupInitialDelay <= 0 {
		cfg.SetupInitialDelay = 5 * time.Second
	}
	if cfg.SetupMaxDelay <= 0 {
		cfg.SetupMaxDelay = 5 * time.Minute
	}
	return &Manager{
		cfg:       cfg,
		logger:    logger,
		entitySvc: entitySvc,
		metrics:   reg,
		recorder:  recorder,
		status:    status,
	}
}

// Register adds an integration. Must be called before Start.
func (m *Manager) Register(integration Integration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r := &runner{integration: integration}
	r.coord = coordinator.New(
		integration.ID(),
		integration.Interval(),
		m.wrapFetch(r),
		m.logger,
	)
	r.coord.Subscribe(func(u coordinator.Update[[]entities.State]) {
		m.onRefresh(r, u)
	})
	m.runners = append(m.runners, r)

	m.logger.WithFields(logrus.Fields{
		"integration": integration.ID(),
		"interval":    integration.Interval(),
	}).Info("Integration registered")
}

// Start performs the eager initial refresh for every registered integration.
// An integration whose initial refresh fails is left not-ready and its setup
// is retried in the background with doubling backoff.
func (m *Manager) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)

	m.mu.RLock()
	runners := make([]*runner, len(m.runners))
	copy(runners, m.runners)
	m.mu.RUnlock()

	for _, r := range runners {
		if err := m.setup(ctx, r); err != nil {
			m.logger.WithError(err).WithField("integration", r.integration.ID()).
				Warn("Initial refresh failed, will retry setup")
			m.wg.Add(1)
			go m.retrySetup(ctx, r)
		}
	}
}

func (m *Manager) setup(ctx context.Context, r *runner) error {
	if _, err := r.coord.Start(ctx); err != nil {
		return fmt.Errorf("%w: %s: %v", apperrors.ErrSetupNotReady, r.integration.ID(), err)
	}
	r.ready.Store(true)
	m.logger.WithField("integration", r.integration.ID()).Info("Integration ready")
	return nil
}

// retrySetup re-attempts the initial refresh with doubling delays, capped at
// SetupMaxDelay, until it succeeds or the manager shuts down.
func (m *Manager) retrySetup(ctx context.Context, r *runner) {
	defer m.wg.Done()

	delay := m.cfg.SetupInitialDelay
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		if err := m.setup(ctx, r); err == nil {
			return
		}

		delay *= 2
		if delay > m.cfg.SetupMaxDelay {
			delay = m.cfg.SetupMaxDelay
		}
		m.logger.WithFields(logrus.Fields{
			"integration": r.integration.ID(),
			"retry_in":    delay,
		}).Debug("Setup still not ready")
	}
}

// wrapFetch times the vendor refresh so the subscriber can record duration
// alongside the outcome.
func (m *Manager) wrapFetch(r *runner) coordinator.FetchFunc[[]entities.State] {
	return func(ctx context.Context) ([]entities.State, error) {
		begin := time.Now()
		states, err := r.integration.Refresh(ctx)
		r.lastDur.Store(int64(time.Since(begin)))
		return states, err
	}
}

// onRefresh is the single subscriber the manager installs per coordinator.
// It fans the refresh outcome into the entity registry, metrics, refresh log
// and the status sink.
func (m *Manager) onRefresh(r *runner, u coordinator.Update[[]entities.State]) {
	id := r.integration.ID()
	duration := time.Duration(r.lastDur.Load())

	if m.metrics != nil {
		m.metrics.ObserveRefresh(id, duration, u.ConsecutiveFailures, u.Err)
	}
	if m.recorder != nil {
		record := RefreshRecord{
			IntegrationID: id,
			Success:       u.Err == nil,
			Duration:      duration,
			At:            time.Now(),
		}
		if u.Err != nil {
			record.Error = u.Err.Error()
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := m.recorder.RecordRefresh(ctx, record); err != nil {
			m.logger.WithError(err).Warn("Failed to record refresh outcome")
		}
		cancel()
	}

	if u.Err == nil {
		m.entitySvc.Upsert(u.Value)
	} else if u.ConsecutiveFailures >= unavailableAfter {
		m.entitySvc.SetAvailability(id, false)
	}

	if m.status != nil {
		m.status.OnIntegrationStatus(m.healthOf(r))
	}
}

// ExecuteAction routes an entity command to the owning integration
func (m *Manager) ExecuteAction(ctx context.Context, entityID, action string) error {
	state, err := m.entitySvc.Get(entityID)
	if err != nil {
		return err
	}

	m.mu.RLock()
	var target *runner
	for _, r := range m.runners {
		if r.integration.ID() == state.IntegrationID {
			target = r
			break
		}
	}
	m.mu.RUnlock()

	if target == nil {
		return apperrors.ErrNotFound
	}

	handler, ok := target.integration.(ActionHandler)
	if !ok {
		return apperrors.New(400, fmt.Sprintf("integration %s does not support actions", state.IntegrationID))
	}

	if err := handler.HandleAction(ctx, entityID, action); err != nil {
		return fmt.Errorf("action %q on %s failed: %w", action, entityID, err)
	}
	return nil
}

// Health reports the status of every registered integration
func (m *Manager) Health() []Health {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Health, 0, len(m.runners))
	for _, r := range m.runners {
		out = append(out, m.healthOf(r))
	}
	return out
}

func (m *Manager) healthOf(r *runner) Health {
	h := Health{
		ID:                  r.integration.ID(),
		Name:                r.integration.Name(),
		ConsecutiveFailures: r.coord.ConsecutiveFailures(),
		Interval:            r.coord.Interval(),
		Entities:            len(m.entitySvc.ListByIntegration(r.integration.ID())),
	}
	switch {
	case !r.ready.Load():
		h.State = "not_ready"
	default:
		h.State = r.coord.State()
	}
	if last := r.coord.LastSuccess(); !last.IsZero() {
		h.LastSuccess = &last
	}
	return h
}

// Stop tears down all coordinators and closes vendor connections
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()

	m.mu.RLock()
	runners := make([]*runner, len(m.runners))
	copy(runners, m.runners)
	m.mu.RUnlock()

	for _, r := range runners {
		r.coord.Stop()
		if err := r.integration.Close(); err != nil {
			m.logger.WithError(err).WithField("integration", r.integration.ID()).
				Warn("Error closing integration")
		}
	}
	m.logger.Info("Integration manager stopped")
}
