// Package openmeteo polls the Open-Meteo weather API and exposes the
// current conditions as sensor entities.
package openmeteo

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hearth-home/hearth-backend-go/internal/entities"
)

// Config holds the openmeteo integration configuration
type Config struct {
	BaseURL      string
	Latitude     float64
	Longitude    float64
	PollInterval time.Duration
}

// Integration adapts the Open-Meteo weather service
type Integration struct {
	client *Client
	config Config
	logger *logrus.Logger
}

// New creates the weather integration
func New(config Config, logger *logrus.Logger) *Integration {
	if config.BaseURL == "" {
		config.BaseURL = "https://api.open-meteo.com"
	}
	if config.PollInterval <= 0 {
		config.PollInterval = 15 * time.Minute
	}
	return &Integration{
		client: NewClient(config.BaseURL, logger),
		config: config,
		logger: logger,
	}
}

func (i *Integration) ID() string              { return "openmeteo" }
func (i *Integration) Name() string            { return "Open-Meteo Weather" }
func (i *Integration) Interval() time.Duration { return i.config.PollInterval }

// Refresh fetches the current observation and maps it onto sensor entities
func (i *Integration) Refresh(ctx context.Context) ([]entities.State, error) {
	obs, err := i.client.CurrentObservation(ctx, i.config.Latitude, i.config.Longitude)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch weather: %w", err)
	}
	return i.convert(obs), nil
}

// Close has nothing to release; the HTTP client carries no persistent state
func (i *Integration) Close() error {
	return nil
}

func (i *Integration) convert(obs *Observation) []entities.State {
	attrs := map[string]interface{}{
		"latitude":    i.config.Latitude,
		"longitude":   i.config.Longitude,
		"observed_at": obs.ObservedAt.Format(time.RFC3339),
	}

	return []entities.State{
		{
			ID:            "openmeteo_temperature",
			IntegrationID: i.ID(),
			Name:          "Outdoor Temperature",
			Type:          entities.TypeSensor,
			Value:         obs.Temperature,
			Unit:          "°C",
			Icon:          "mdi:thermometer",
			Available:     true,
			Attributes:    attrs,
		},
		{
			ID:            "openmeteo_humidity",
			IntegrationID: i.ID(),
			Name:          "Outdoor Humidity",
			Type:          entities.TypeSensor,
			Value:         obs.Humidity,
			Unit:          "%",
			Icon:          "mdi:water-percent",
			Available:     true,
			Attributes:    attrs,
		},
		{
			ID:            "openmeteo_wind_speed",
			IntegrationID: i.ID(),
			Name:          "Wind Speed",
			Type:          entities.TypeSensor,
			Value:         obs.WindSpeed,
			Unit:          "km/h",
			Icon:          "mdi:weather-windy",
			Available:     true,
			Attributes: map[string]interface{}{
				"direction": obs.WindDirection,
			},
		},
		{
			ID:            "openmeteo_pressure",
			IntegrationID: i.ID(),
			Name:          "Surface Pressure",
			Type:          entities.TypeSensor,
			Value:         obs.Pressure,
			Unit:          "hPa",
			Icon:          "mdi:gauge",
			Available:     true,
		},
	}
}
