package openmeteo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearth-home/hearth-backend-go/internal/entities"
)

const currentFixture = `{
	"current": {
		"time": "2026-08-25T14:00",
		"temperature_2m": 21.4,
		"relative_humidity_2m": 58.0,
		"wind_speed_10m": 12.3,
		"wind_direction_10m": 270.0,
		"surface_pressure": 1013.2
	}
}`

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func TestRefreshMapsObservationToEntities(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/forecast", r.URL.Path)
		assert.Equal(t, "52.5200", r.URL.Query().Get("latitude"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(currentFixture))
	}))
	defer server.Close()

	integration := New(Config{
		BaseURL:   server.URL,
		Latitude:  52.52,
		Longitude: 13.405,
	}, testLogger())

	states, err := integration.Refresh(context.Background())
	require.NoError(t, err)
	require.Len(t, states, 4)

	byID := make(map[string]entities.State)
	for _, s := range states {
		byID[s.ID] = s
		assert.Equal(t, "openmeteo", s.IntegrationID)
		assert.Equal(t, entities.TypeSensor, s.Type)
		assert.True(t, s.Available)
	}

	assert.Equal(t, 21.4, byID["openmeteo_temperature"].Value)
	assert.Equal(t, "°C", byID["openmeteo_temperature"].Unit)
	assert.Equal(t, 58.0, byID["openmeteo_humidity"].Value)
	assert.Equal(t, 12.3, byID["openmeteo_wind_speed"].Value)
	assert.Equal(t, 270.0, byID["openmeteo_wind_speed"].Attributes["direction"])
	assert.Equal(t, 1013.2, byID["openmeteo_pressure"].Value)
}

func TestRefreshPropagatesAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()

	integration := New(Config{BaseURL: server.URL}, testLogger())

	_, err := integration.Refresh(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestDefaultsApplied(t *testing.T) {
	integration := New(Config{}, testLogger())
	assert.Equal(t, 15*time.Minute, integration.Interval())
	assert.Equal(t, "openmeteo", integration.ID())
}
