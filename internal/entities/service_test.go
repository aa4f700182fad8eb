package entities

import (
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/hearth-home/hearth-backend-go/pkg/errors"
)

type recordingSink struct {
	mu      sync.Mutex
	updates []State
}

func (r *recordingSink) OnEntityUpdate(state State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, state)
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.updates)
}

func testService() (*Service, *recordingSink) {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	svc := NewService(log)
	sink := &recordingSink{}
	svc.AddSink(sink)
	return svc, sink
}

func TestUpsertAndGet(t *testing.T) {
	svc, sink := testService()

	svc.Upsert([]State{{
		ID:            "openmeteo_temperature",
		IntegrationID: "openmeteo",
		Name:          "Outdoor Temperature",
		Type:          TypeSensor,
		Value:         21.4,
		Unit:          "°C",
		Available:     true,
	}})

	state, err := svc.Get("openmeteo_temperature")
	require.NoError(t, err)
	assert.Equal(t, 21.4, state.Value)
	assert.False(t, state.UpdatedAt.IsZero())
	assert.Equal(t, 1, sink.count())
}

func TestGetUnknownReturnsNotFound(t *testing.T) {
	svc, _ := testService()

	_, err := svc.Get("nope")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestSinkOnlyNotifiedOnChange(t *testing.T) {
	svc, sink := testService()

	state := State{ID: "plug_power", IntegrationID: "shellyplug", Type: TypeSensor, Value: 12.0, Available: true}
	svc.Upsert([]State{state})
	svc.Upsert([]State{state})
	assert.Equal(t, 1, sink.count(), "identical value must not re-notify")

	state.Value = 13.5
	svc.Upsert([]State{state})
	assert.Equal(t, 2, sink.count())
}

func TestSetAvailabilityFlipsOnlyOwnedEntities(t *testing.T) {
	svc, sink := testService()

	svc.Upsert([]State{
		{ID: "nut_battery", IntegrationID: "nut", Type: TypeSensor, Value: 100.0, Available: true},
		{ID: "sysmon_cpu", IntegrationID: "sysmon", Type: TypeSensor, Value: 3.0, Available: true},
	})
	before := sink.count()

	svc.SetAvailability("nut", false)

	state, err := svc.Get("nut_battery")
	require.NoError(t, err)
	assert.False(t, state.Available)
	assert.Equal(t, 100.0, state.Value, "last known value survives unavailability")

	other, err := svc.Get("sysmon_cpu")
	require.NoError(t, err)
	assert.True(t, other.Available)

	assert.Equal(t, before+1, sink.count())

	// Flipping to the same value is a no-op.
	svc.SetAvailability("nut", false)
	assert.Equal(t, before+1, sink.count())
}

func TestListSortedAndFiltered(t *testing.T) {
	svc, _ := testService()

	svc.Upsert([]State{
		{ID: "b", IntegrationID: "x", Type: TypeSensor},
		{ID: "a", IntegrationID: "x", Type: TypeSensor},
		{ID: "c", IntegrationID: "y", Type: TypeSensor},
	})

	all := svc.List()
	require.Len(t, all, 3)
	assert.Equal(t, "a", all[0].ID)
	assert.Equal(t, "b", all[1].ID)

	owned := svc.ListByIntegration("x")
	require.Len(t, owned, 2)
	assert.Equal(t, "a", owned[0].ID)
}
