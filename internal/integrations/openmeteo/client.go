package openmeteo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
)

const httpTimeout = 10 * time.Second

// Observation is the typed weather snapshot produced by one fetch
type Observation struct {
	Temperature   float64   `json:"temperature"`
	Humidity      float64   `json:"humidity"`
	WindSpeed     float64   `json:"wind_speed"`
	WindDirection float64   `json:"wind_direction"`
	Pressure      float64   `json:"pressure"`
	ObservedAt    time.Time `json:"observed_at"`
}

// Client talks to the Open-Meteo forecast API
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewClient creates an Open-Meteo API client
func NewClient(baseURL string, logger *logrus.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: httpTimeout,
		},
		logger: logger,
	}
}

type currentResponse struct {
	Current struct {
		Time            string  `json:"time"`
		Temperature     float64 `json:"temperature_2m"`
		Humidity        float64 `json:"relative_humidity_2m"`
		WindSpeed       float64 `json:"wind_speed_10m"`
		WindDirection   float64 `json:"wind_direction_10m"`
		SurfacePressure float64 `json:"surface_pressure"`
	} `json:"current"`
}

// CurrentObservation fetches the current weather for a coordinate
func (c *Client) CurrentObservation(ctx context.Context, latitude, longitude float64) (*Observation, error) {
	endpoint := fmt.Sprintf("%s/v1/forecast", c.baseURL)

	params := url.Values{}
	params.Set("latitude", fmt.Sprintf("%.4f", latitude))
	params.Set("longitude", fmt.Sprintf("%.4f", longitude))
	params.Set("current", "temperature_2m,relative_humidity_2m,wind_speed_10m,wind_direction_10m,surface_pressure")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("weather request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("weather API returned status %d", resp.StatusCode)
	}

	var payload currentResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode weather response: %w", err)
	}

	observedAt := time.Now()
	if t, err := time.Parse("2006-01-02T15:04", payload.Current.Time); err == nil {
		observedAt = t
	}

	return &Observation{
		Temperature:   payload.Current.Temperature,
		Humidity:      payload.Current.Humidity,
		WindSpeed:     payload.Current.WindSpeed,
		WindDirection: payload.Current.WindDirection,
		Pressure:      payload.Current.SurfacePressure,
		ObservedAt:    observedAt,
	}, nil
}
