package nut

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	defaultPort = 3493
	nutTimeout  = 10 * time.Second
)

// UPSData is the typed snapshot of one UPS, parsed from NUT variables.
// Optional metrics are pointers so an absent variable is distinguishable
// from zero.
type UPSData struct {
	Name           string   `json:"name"`
	Status         string   `json:"status"`
	Model          string   `json:"model"`
	Manufacturer   string   `json:"manufacturer"`
	BatteryCharge  *float64 `json:"battery_charge,omitempty"`
	BatteryRuntime *float64 `json:"battery_runtime,omitempty"`
	LoadPercent    *float64 `json:"load_percent,omitempty"`
	InputVoltage   *float64 `json:"input_voltage,omitempty"`
	OutputVoltage  *float64 `json:"output_voltage,omitempty"`
}

// Client speaks the NUT (Network UPS Tools) line protocol. Each call dials a
// fresh connection; upsd sessions are cheap and a stale connection across
// poll intervals is worth less than the reconnect.
type Client struct {
	host   string
	port   int
	logger *logrus.Logger
}

// NewClient creates a NUT client
func NewClient(host string, port int, logger *logrus.Logger) *Client {
	if port == 0 {
		port = defaultPort
	}
	return &Client{host: host, port: port, logger: logger}
}

// ListUPS returns the UPS names known to the server
func (c *Client) ListUPS(ctx context.Context) ([]string, error) {
	conn, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	lines, err := c.request(conn, "LIST UPS")
	if err != nil {
		return nil, err
	}

	var names []string
	for _, line := range lines {
		if strings.HasPrefix(line, "UPS ") {
			parts := strings.Fields(line)
			if len(parts) >= 2 {
				names = append(names, strings.Trim(parts[1], "\""))
			}
		}
	}
	return names, nil
}

// GetUPSData fetches and parses all variables for one UPS
func (c *Client) GetUPSData(ctx context.Context, name string) (*UPSData, error) {
	conn, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	lines, err := c.request(conn, fmt.Sprintf("LIST VAR %s", name))
	if err != nil {
		return nil, err
	}

	data := &UPSData{Name: name}
	for _, line := range lines {
		if !strings.HasPrefix(line, "VAR ") {
			continue
		}
		parts := strings.SplitN(line, " ", 4)
		if len(parts) < 4 {
			continue
		}
		varName := parts[2]
		value := strings.Trim(parts[3], "\"")

		switch varName {
		case "ups.status":
			data.Status = value
		case "ups.model":
			data.Model = value
		case "ups.mfr":
			data.Manufacturer = value
		case "battery.charge":
			data.BatteryCharge = parseFloat(value)
		case "battery.runtime":
			data.BatteryRuntime = parseFloat(value)
		case "ups.load":
			data.LoadPercent = parseFloat(value)
		case "input.voltage":
			data.InputVoltage = parseFloat(value)
		case "output.voltage":
			data.OutputVoltage = parseFloat(value)
		}
	}
	return data, nil
}

func (c *Client) dial(ctx context.Context) (net.Conn, error) {
	address := fmt.Sprintf("%s:%d", c.host, c.port)
	dialer := &net.Dialer{Timeout: nutTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NUT server at %s: %w", address, err)
	}
	return conn, nil
}

// request writes one command and reads lines until the END marker
func (c *Client) request(conn net.Conn, command string) ([]string, error) {
	conn.SetWriteDeadline(time.Now().Add(nutTimeout))
	if _, err := fmt.Fprintf(conn, "%s\n", command); err != nil {
		return nil, fmt.Errorf("failed to send %q: %w", command, err)
	}

	conn.SetReadDeadline(time.Now().Add(nutTimeout))
	scanner := bufio.NewScanner(conn)

	var lines []string
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "ERR ") {
			return nil, fmt.Errorf("NUT error: %s", line)
		}
		if strings.HasPrefix(line, "BEGIN ") {
			continue
		}
		if strings.HasPrefix(line, "END ") {
			break
		}
		lines = append(lines, line)
	}
	return lines, scanner.Err()
}

func parseFloat(s string) *float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}
