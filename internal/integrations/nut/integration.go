// Package nut adapts UPS devices served by a NUT (Network UPS Tools)
// daemon, exposing battery, load and voltage sensors per UPS.
package nut

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hearth-home/hearth-backend-go/internal/entities"
)

// Config holds the NUT integration configuration
type Config struct {
	Host         string
	Port         int
	UPSNames     []string
	PollInterval time.Duration
}

// Integration adapts one NUT server
type Integration struct {
	client *Client
	config Config
	logger *logrus.Logger
}

// New creates the UPS integration
func New(config Config, logger *logrus.Logger) *Integration {
	if config.PollInterval <= 0 {
		config.PollInterval = 30 * time.Second
	}
	return &Integration{
		client: NewClient(config.Host, config.Port, logger),
		config: config,
		logger: logger,
	}
}

func (i *Integration) ID() string              { return "nut" }
func (i *Integration) Name() string            { return "UPS Monitoring (NUT)" }
func (i *Integration) Interval() time.Duration { return i.config.PollInterval }

// Refresh polls every configured UPS. With no names configured the server's
// full UPS list is used.
func (i *Integration) Refresh(ctx context.Context) ([]entities.State, error) {
	names := i.config.UPSNames
	if len(names) == 0 {
		listed, err := i.client.ListUPS(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list UPS devices: %w", err)
		}
		names = listed
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("NUT server reports no UPS devices")
	}

	states := make([]entities.State, 0, len(names)*4)
	fetched := 0
	var lastErr error

	for _, name := range names {
		data, err := i.client.GetUPSData(ctx, name)
		if err != nil {
			i.logger.WithError(err).WithField("ups", name).Warn("Failed to poll UPS")
			lastErr = err
			continue
		}
		fetched++
		states = append(states, i.convert(data)...)
	}

	if fetched == 0 {
		return nil, fmt.Errorf("no UPS reachable: %w", lastErr)
	}
	return states, nil
}

func (i *Integration) Close() error {
	return nil
}

func (i *Integration) convert(data *UPSData) []entities.State {
	attrs := map[string]interface{}{
		"ups_status":   data.Status,
		"model":        data.Model,
		"manufacturer": data.Manufacturer,
	}

	sensor := func(suffix, name string, value *float64, unit, icon string) *entities.State {
		if value == nil {
			return nil
		}
		return &entities.State{
			ID:            fmt.Sprintf("nut_%s_%s", data.Name, suffix),
			IntegrationID: i.ID(),
			Name:          fmt.Sprintf("%s %s", data.Name, name),
			Type:          entities.TypeSensor,
			Value:         *value,
			Unit:          unit,
			Icon:          icon,
			Available:     true,
			Attributes:    attrs,
		}
	}

	states := make([]entities.State, 0, 5)
	for _, s := range []*entities.State{
		sensor("battery", "Battery Charge", data.BatteryCharge, "%", "mdi:battery"),
		sensor("runtime", "Battery Runtime", data.BatteryRuntime, "s", "mdi:timer"),
		sensor("load", "Load", data.LoadPercent, "%", "mdi:flash"),
		sensor("input_voltage", "Input Voltage", data.InputVoltage, "V", "mdi:flash-triangle"),
		sensor("output_voltage", "Output Voltage", data.OutputVoltage, "V", "mdi:flash-triangle"),
	} {
		if s != nil {
			states = append(states, *s)
		}
	}
	return states
}
