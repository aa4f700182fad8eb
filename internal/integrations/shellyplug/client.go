package shellyplug

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/sirupsen/logrus"
)

const (
	httpTimeout      = 10 * time.Second
	shellyService    = "_shelly._tcp"
	shellyDomain     = "local."
	discoveryTimeout = 10 * time.Second
)

// DeviceInfo identifies a Gen2 Shelly device
type DeviceInfo struct {
	ID         string `json:"id"`
	Model      string `json:"model"`
	MACAddress string `json:"mac"`
	Firmware   string `json:"fw_id"`
	Generation int    `json:"gen"`
}

// PlugStatus is the typed snapshot of one plug's switch channel
type PlugStatus struct {
	Output      bool    `json:"output"`
	PowerW      float64 `json:"apower"`
	Voltage     float64 `json:"voltage"`
	CurrentA    float64 `json:"current"`
	Temperature struct {
		Celsius float64 `json:"tC"`
	} `json:"temperature"`
}

// Client speaks the Gen2 RPC-over-HTTP protocol to Shelly plugs
type Client struct {
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewClient creates a Shelly RPC client
func NewClient(logger *logrus.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: httpTimeout},
		logger:     logger,
	}
}

// GetDeviceInfo fetches the device identity from /shelly
func (c *Client) GetDeviceInfo(ctx context.Context, host string) (*DeviceInfo, error) {
	var info DeviceInfo
	if err := c.getJSON(ctx, fmt.Sprintf("http://%s/shelly", host), &info); err != nil {
		return nil, fmt.Errorf("failed to identify shelly device at %s: %w", host, err)
	}
	if info.Generation < 2 {
		return nil, fmt.Errorf("device %s is generation %d, only Gen2+ RPC is supported", host, info.Generation)
	}
	return &info, nil
}

// GetSwitchStatus fetches the status of switch channel 0
func (c *Client) GetSwitchStatus(ctx context.Context, host string) (*PlugStatus, error) {
	var status PlugStatus
	url := fmt.Sprintf("http://%s/rpc/Switch.GetStatus?id=0", host)
	if err := c.getJSON(ctx, url, &status); err != nil {
		return nil, fmt.Errorf("failed to get switch status from %s: %w", host, err)
	}
	return &status, nil
}

// SetSwitch turns switch channel 0 on or off
func (c *Client) SetSwitch(ctx context.Context, host string, on bool) error {
	url := fmt.Sprintf("http://%s/rpc/Switch.Set?id=0&on=%t", host, on)
	var result struct {
		WasOn bool `json:"was_on"`
	}
	if err := c.getJSON(ctx, url, &result); err != nil {
		return fmt.Errorf("failed to set switch on %s: %w", host, err)
	}
	c.logger.WithFields(logrus.Fields{
		"host":   host,
		"on":     on,
		"was_on": result.WasOn,
	}).Debug("Switch state changed")
	return nil
}

// Discover browses mDNS for Shelly devices and returns their addresses
func (c *Client) Discover(ctx context.Context) ([]string, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, discoveryTimeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry, 16)
	if err := resolver.Browse(ctx, shellyService, shellyDomain, entries); err != nil {
		return nil, fmt.Errorf("mDNS browse failed: %w", err)
	}

	var hosts []string
	for entry := range entries {
		if len(entry.AddrIPv4) == 0 {
			continue
		}
		host := entry.AddrIPv4[0].String()
		hosts = append(hosts, host)
		c.logger.WithFields(logrus.Fields{
			"instance": entry.Instance,
			"host":     host,
		}).Info("Discovered Shelly device")
	}
	return hosts, nil
}

func (c *Client) getJSON(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
