// Package shellyplug adapts Shelly Gen2 smart plugs on the local network:
// switch state plus power metering, polled over the RPC HTTP API.
package shellyplug

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hearth-home/hearth-backend-go/internal/entities"
)

// pushBuffer bounds the queue of device-pushed status events. Vendor
// notifications arrive on arbitrary goroutines; the refresh cycle is the
// only writer into entity state, so pushes are queued here and drained by
// Refresh.
const pushBuffer = 64

// Config holds the shellyplug integration configuration
type Config struct {
	Hosts        []string
	Discovery    bool
	PollInterval time.Duration
}

// PushEvent is a device-initiated status report
type PushEvent struct {
	Host   string
	Status PlugStatus
}

type device struct {
	host string
	info *DeviceInfo
	// last pushed status not yet folded into a refresh, nil if none
	pushed *PlugStatus
}

// Integration adapts a set of Shelly Gen2 plugs
type Integration struct {
	client *Client
	config Config
	logger *logrus.Logger

	mu         sync.Mutex
	devices    map[string]*device // keyed by host
	discovered bool

	pushes chan PushEvent
}

// New creates the Shelly plug integration
func New(config Config, logger *logrus.Logger) *Integration {
	if config.PollInterval <= 0 {
		config.PollInterval = 30 * time.Second
	}

	devices := make(map[string]*device)
	for _, host := range config.Hosts {
		devices[host] = &device{host: host}
	}

	return &Integration{
		client:  NewClient(logger),
		config:  config,
		logger:  logger,
		devices: devices,
		pushes:  make(chan PushEvent, pushBuffer),
	}
}

func (i *Integration) ID() string              { return "shellyplug" }
func (i *Integration) Name() string            { return "Shelly Smart Plugs" }
func (i *Integration) Interval() time.Duration { return i.config.PollInterval }

// NotifyStatus enqueues a device-pushed status report. Safe to call from any
// goroutine; the event is dropped when the queue is full (the next poll will
// pick the state up anyway).
func (i *Integration) NotifyStatus(host string, status PlugStatus) {
	select {
	case i.pushes <- PushEvent{Host: host, Status: status}:
	default:
		i.logger.WithField("host", host).Debug("Push queue full, dropping status event")
	}
}

// Refresh drains pending push events, then polls every known plug. A device
// that cannot be reached is skipped with its entities left to go stale; the
// refresh as a whole fails only when no device responds.
func (i *Integration) Refresh(ctx context.Context) ([]entities.State, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.config.Discovery && !i.discovered {
		i.discoverLocked(ctx)
	}
	if len(i.devices) == 0 {
		return nil, fmt.Errorf("no shelly devices configured or discovered")
	}

	i.drainPushesLocked()

	states := make([]entities.State, 0, len(i.devices)*4)
	reachable := 0
	var lastErr error

	for _, dev := range i.devices {
		if dev.info == nil {
			info, err := i.client.GetDeviceInfo(ctx, dev.host)
			if err != nil {
				i.logger.WithError(err).WithField("host", dev.host).Warn("Shelly device not identified yet")
				lastErr = err
				continue
			}
			dev.info = info
		}

		status, err := i.client.GetSwitchStatus(ctx, dev.host)
		if err != nil {
			// Fall back to a pushed status from this cycle, if any.
			if dev.pushed == nil {
				i.logger.WithError(err).WithField("host", dev.host).Warn("Failed to poll shelly device")
				lastErr = err
				continue
			}
			status = dev.pushed
		}
		dev.pushed = nil

		reachable++
		states = append(states, i.convert(dev, status)...)
	}

	if reachable == 0 {
		return nil, fmt.Errorf("no shelly devices reachable: %w", lastErr)
	}
	return states, nil
}

// HandleAction executes switch commands: "on", "off", or "toggle"
func (i *Integration) HandleAction(ctx context.Context, entityID, action string) error {
	dev := i.deviceForEntity(entityID)
	if dev == nil {
		return fmt.Errorf("no shelly device owns entity %s", entityID)
	}

	var on bool
	switch action {
	case "on":
		on = true
	case "off":
		on = false
	case "toggle":
		status, err := i.client.GetSwitchStatus(ctx, dev.host)
		if err != nil {
			return fmt.Errorf("cannot toggle %s: %w", entityID, err)
		}
		on = !status.Output
	default:
		return fmt.Errorf("unsupported action %q", action)
	}

	return i.client.SetSwitch(ctx, dev.host, on)
}

// Close drops the push queue; plugs hold no persistent connection
func (i *Integration) Close() error {
	return nil
}

func (i *Integration) discoverLocked(ctx context.Context) {
	hosts, err := i.client.Discover(ctx)
	if err != nil {
		i.logger.WithError(err).Warn("Shelly discovery failed")
		return
	}
	for _, host := range hosts {
		if _, ok := i.devices[host]; !ok {
			i.devices[host] = &device{host: host}
		}
	}
	i.discovered = true
}

// drainPushesLocked folds queued push events into the device table. Only the
// newest event per device survives.
func (i *Integration) drainPushesLocked() {
	for {
		select {
		case ev := <-i.pushes:
			if dev, ok := i.devices[ev.Host]; ok {
				status := ev.Status
				dev.pushed = &status
			}
		default:
			return
		}
	}
}

func (i *Integration) deviceForEntity(entityID string) *device {
	i.mu.Lock()
	defer i.mu.Unlock()
	for _, dev := range i.devices {
		if dev.info != nil && strings.HasPrefix(entityID, i.entityPrefix(dev)) {
			return dev
		}
	}
	return nil
}

func (i *Integration) entityPrefix(dev *device) string {
	return fmt.Sprintf("shellyplug_%s", strings.ToLower(dev.info.ID))
}

func (i *Integration) convert(dev *device, status *PlugStatus) []entities.State {
	prefix := i.entityPrefix(dev)
	attrs := map[string]interface{}{
		"host":     dev.host,
		"model":    dev.info.Model,
		"mac":      dev.info.MACAddress,
		"firmware": dev.info.Firmware,
	}

	return []entities.State{
		{
			ID:            prefix + "_switch",
			IntegrationID: i.ID(),
			Name:          fmt.Sprintf("%s Switch", dev.info.ID),
			Type:          entities.TypeSwitch,
			Value:         status.Output,
			Icon:          "mdi:power-socket-eu",
			Available:     true,
			Attributes:    attrs,
		},
		{
			ID:            prefix + "_power",
			IntegrationID: i.ID(),
			Name:          fmt.Sprintf("%s Power", dev.info.ID),
			Type:          entities.TypeSensor,
			Value:         status.PowerW,
			Unit:          "W",
			Icon:          "mdi:flash",
			Available:     true,
		},
		{
			ID:            prefix + "_voltage",
			IntegrationID: i.ID(),
			Name:          fmt.Sprintf("%s Voltage", dev.info.ID),
			Type:          entities.TypeSensor,
			Value:         status.Voltage,
			Unit:          "V",
			Icon:          "mdi:sine-wave",
			Available:     true,
		},
		{
			ID:            prefix + "_temperature",
			IntegrationID: i.ID(),
			Name:          fmt.Sprintf("%s Temperature", dev.info.ID),
			Type:          entities.TypeSensor,
			Value:         status.Temperature.Celsius,
			Unit:          "°C",
			Icon:          "mdi:thermometer",
			Available:     true,
		},
	}
}
