// Package sysmon exposes the hub's own host as an integration: CPU, memory,
// load and uptime sensors gathered locally.
package sysmon

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/sirupsen/logrus"

	"github.com/hearth-home/hearth-backend-go/internal/entities"
)

// Snapshot is the typed host metrics snapshot for one refresh
type Snapshot struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	Load1         float64 `json:"load1"`
	UptimeSeconds uint64  `json:"uptime_seconds"`
}

// Config holds the sysmon integration configuration
type Config struct {
	PollInterval time.Duration
}

// Integration reports local host metrics
type Integration struct {
	config Config
	logger *logrus.Logger
}

// New creates the host monitoring integration
func New(config Config, logger *logrus.Logger) *Integration {
	if config.PollInterval <= 0 {
		config.PollInterval = time.Minute
	}
	return &Integration{config: config, logger: logger}
}

func (i *Integration) ID() string              { return "sysmon" }
func (i *Integration) Name() string            { return "Host Monitor" }
func (i *Integration) Interval() time.Duration { return i.config.PollInterval }

// Refresh gathers the current host metrics
func (i *Integration) Refresh(ctx context.Context) ([]entities.State, error) {
	snap, err := i.collect(ctx)
	if err != nil {
		return nil, err
	}
	return i.convert(snap), nil
}

func (i *Integration) Close() error {
	return nil
}

func (i *Integration) collect(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{}

	cpuPercents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return nil, fmt.Errorf("failed to read CPU usage: %w", err)
	}
	if len(cpuPercents) > 0 {
		snap.CPUPercent = cpuPercents[0]
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read memory usage: %w", err)
	}
	snap.MemoryPercent = vm.UsedPercent

	if avg, err := load.AvgWithContext(ctx); err == nil {
		snap.Load1 = avg.Load1
	} else {
		// Load average is unavailable on some platforms; not fatal.
		i.logger.WithError(err).Debug("Load average unavailable")
	}

	uptime, err := host.UptimeWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read uptime: %w", err)
	}
	snap.UptimeSeconds = uptime

	return snap, nil
}

func (i *Integration) convert(snap *Snapshot) []entities.State {
	return []entities.State{
		{
			ID:            "sysmon_cpu",
			IntegrationID: i.ID(),
			Name:          "CPU Usage",
			Type:          entities.TypeSensor,
			Value:         snap.CPUPercent,
			Unit:          "%",
			Icon:          "mdi:cpu-64-bit",
			Available:     true,
		},
		{
			ID:            "sysmon_memory",
			IntegrationID: i.ID(),
			Name:          "Memory Usage",
			Type:          entities.TypeSensor,
			Value:         snap.MemoryPercent,
			Unit:          "%",
			Icon:          "mdi:memory",
			Available:     true,
		},
		{
			ID:            "sysmon_load1",
			IntegrationID: i.ID(),
			Name:          "Load Average (1m)",
			Type:          entities.TypeSensor,
			Value:         snap.Load1,
			Icon:          "mdi:chart-line",
			Available:     true,
		},
		{
			ID:            "sysmon_uptime",
			IntegrationID: i.ID(),
			Name:          "Uptime",
			Type:          entities.TypeSensor,
			Value:         snap.UptimeSeconds,
			Unit:          "s",
			Icon:          "mdi:clock-outline",
			Available:     true,
		},
	}
}
