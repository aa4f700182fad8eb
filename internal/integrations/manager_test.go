package integrations

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearth-home/hearth-backend-go/internal/entities"
	"github.com/hearth-home/hearth-backend-go/internal/metrics"
)

type fakeIntegration struct {
	id       string
	interval time.Duration

	mu       sync.Mutex
	failures int // initial refreshes to fail before succeeding
	calls    int
	value    float64
	actions  []string
	closed   bool
}

func (f *fakeIntegration) ID() string              { return f.id }
func (f *fakeIntegration) Name() string            { return "Fake " + f.id }
func (f *fakeIntegration) Interval() time.Duration { return f.interval }

func (f *fakeIntegration) Refresh(ctx context.Context) ([]entities.State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("vendor unreachable")
	}
	return []entities.State{{
		ID:            f.id + "_value",
		IntegrationID: f.id,
		Name:          "Value",
		Type:          entities.TypeSensor,
		Value:         f.value,
		Available:     true,
	}}, nil
}

func (f *fakeIntegration) HandleAction(ctx context.Context, entityID, action string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, entityID+":"+action)
	return nil
}

func (f *fakeIntegration) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeIntegration) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestManager(t *testing.T, ints ...Integration) (*Manager, *entities.Service) {
	t.Helper()
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	svc := entities.NewService(log)
	mgr := NewManager(ManagerConfig{
		SetupInitialDelay: 10 * time.Millisecond,
		SetupMaxDelay:     50 * time.Millisecond,
	}, svc, metrics.New(), nil, nil, log)

	for _, i := range ints {
		mgr.Register(i)
	}
	return mgr, svc
}

func TestStartPopulatesEntitiesEagerly(t *testing.T) {
	fake := &fakeIntegration{id: "fake", interval: time.Hour, value: 42}
	mgr, svc := newTestManager(t, fake)
	defer mgr.Stop()

	mgr.Start(context.Background())

	state, err := svc.Get("fake_value")
	require.NoError(t, err, "initial refresh must land before Start returns")
	assert.Equal(t, 42.0, state.Value)

	health := mgr.Health()
	require.Len(t, health, 1)
	assert.Equal(t, "healthy", health[0].State)
	assert.Equal(t, 1, health[0].Entities)
	require.NotNil(t, health[0].LastSuccess)
}

func TestSetupRetriesUntilReady(t *testing.T) {
	fake := &fakeIntegration{id: "flaky", interval: time.Hour, value: 7, failures: 2}
	mgr, svc := newTestManager(t, fake)
	defer mgr.Stop()

	mgr.Start(context.Background())

	// Not ready yet: first attempt failed.
	health := mgr.Health()
	require.Len(t, health, 1)
	assert.Equal(t, "not_ready", health[0].State)

	require.Eventually(t, func() bool {
		_, err := svc.Get("flaky_value")
		return err == nil
	}, 2*time.Second, 5*time.Millisecond, "setup retry should eventually succeed")

	assert.Equal(t, "healthy", mgr.Health()[0].State)
	assert.GreaterOrEqual(t, fake.callCount(), 3)
}

func TestRepeatedFailuresMarkEntitiesUnavailable(t *testing.T) {
	fake := &fakeIntegration{id: "fake", interval: 5 * time.Millisecond, value: 1}
	mgr, svc := newTestManager(t, fake)
	defer mgr.Stop()

	mgr.Start(context.Background())
	_, err := svc.Get("fake_value")
	require.NoError(t, err)

	// Keep refreshes failing until past the threshold.
	fake.mu.Lock()
	fake.failures = 1 << 20
	fake.mu.Unlock()

	require.Eventually(t, func() bool {
		state, err := svc.Get("fake_value")
		return err == nil && !state.Available
	}, 2*time.Second, 5*time.Millisecond)

	// Last good value is still served while unavailable.
	state, err := svc.Get("fake_value")
	require.NoError(t, err)
	assert.Equal(t, 1.0, state.Value)

	// Recovery restores availability.
	fake.mu.Lock()
	fake.failures = 0
	fake.mu.Unlock()

	require.Eventually(t, func() bool {
		state, err := svc.Get("fake_value")
		return err == nil && state.Available
	}, 2*time.Second, 5*time.Millisecond)
}

func TestExecuteActionRoutesToOwner(t *testing.T) {
	fake := &fakeIntegration{id: "fake", interval: time.Hour, value: 1}
	mgr, _ := newTestManager(t, fake)
	defer mgr.Stop()

	mgr.Start(context.Background())

	err := mgr.ExecuteAction(context.Background(), "fake_value", "toggle")
	require.NoError(t, err)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, []string{"fake_value:toggle"}, fake.actions)
}

func TestExecuteActionUnknownEntity(t *testing.T) {
	mgr, _ := newTestManager(t)
	defer mgr.Stop()

	err := mgr.ExecuteAction(context.Background(), "ghost", "toggle")
	assert.Error(t, err)
}

func TestStopClosesIntegrations(t *testing.T) {
	fake := &fakeIntegration{id: "fake", interval: time.Hour, value: 1}
	mgr, _ := newTestManager(t, fake)

	mgr.Start(context.Background())
	mgr.Stop()

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.True(t, fake.closed)
}
