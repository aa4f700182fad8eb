package nut

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearth-home/hearth-backend-go/internal/entities"
)

// fakeNUTServer answers the subset of the upsd line protocol the client uses
type fakeNUTServer struct {
	listener net.Listener
	vars     map[string]map[string]string
}

func newFakeNUTServer(t *testing.T) *fakeNUTServer {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := &fakeNUTServer{
		listener: listener,
		vars: map[string]map[string]string{
			"apc": {
				"ups.status":      "OL",
				"ups.model":       "Back-UPS ES 700",
				"ups.mfr":         "APC",
				"battery.charge":  "95.0",
				"battery.runtime": "1260",
				"ups.load":        "23",
				"output.voltage":  "230.1",
			},
		},
	}
	go srv.serve()
	t.Cleanup(func() { listener.Close() })
	return srv
}

func (s *fakeNUTServer) hostPort(t *testing.T) (string, int) {
	t.Helper()
	host, portStr, err := net.SplitHostPort(s.listener.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return host, port
}

func (s *fakeNUTServer) serve() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		go s.handle(conn)
	}
}

func (s *fakeNUTServer) handle(conn net.Conn) {
	defer conn.Close()
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "LIST UPS":
			fmt.Fprint(conn, "BEGIN LIST UPS\n")
			for name := range s.vars {
				fmt.Fprintf(conn, "UPS %s \"Fake UPS\"\n", name)
			}
			fmt.Fprint(conn, "END LIST UPS\n")
		case strings.HasPrefix(line, "LIST VAR "):
			name := strings.TrimPrefix(line, "LIST VAR ")
			vars, ok := s.vars[name]
			if !ok {
				fmt.Fprintf(conn, "ERR UNKNOWN-UPS\n")
				continue
			}
			fmt.Fprintf(conn, "BEGIN LIST VAR %s\n", name)
			for k, v := range vars {
				fmt.Fprintf(conn, "VAR %s %s \"%s\"\n", name, k, v)
			}
			fmt.Fprintf(conn, "END LIST VAR %s\n", name)
		default:
			fmt.Fprint(conn, "ERR UNKNOWN-COMMAND\n")
		}
	}
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func TestRefreshConvertsUPSVariables(t *testing.T) {
	srv := newFakeNUTServer(t)
	host, port := srv.hostPort(t)

	integration := New(Config{Host: host, Port: port, UPSNames: []string{"apc"}}, testLogger())

	states, err := integration.Refresh(context.Background())
	require.NoError(t, err)
	require.Len(t, states, 4, "battery, runtime, load, output voltage")

	byID := make(map[string]entities.State)
	for _, s := range states {
		byID[s.ID] = s
		assert.Equal(t, "nut", s.IntegrationID)
		assert.True(t, s.Available)
	}

	assert.Equal(t, 95.0, byID["nut_apc_battery"].Value)
	assert.Equal(t, 1260.0, byID["nut_apc_runtime"].Value)
	assert.Equal(t, 23.0, byID["nut_apc_load"].Value)
	assert.Equal(t, 230.1, byID["nut_apc_output_voltage"].Value)
	assert.Equal(t, "OL", byID["nut_apc_battery"].Attributes["ups_status"])
	assert.Equal(t, "APC", byID["nut_apc_battery"].Attributes["manufacturer"])
}

func TestRefreshDiscoversUPSNames(t *testing.T) {
	srv := newFakeNUTServer(t)
	host, port := srv.hostPort(t)

	// No names configured: the server's LIST UPS answer is used.
	integration := New(Config{Host: host, Port: port}, testLogger())

	states, err := integration.Refresh(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, states)
}

func TestRefreshFailsOnUnknownUPS(t *testing.T) {
	srv := newFakeNUTServer(t)
	host, port := srv.hostPort(t)

	integration := New(Config{Host: host, Port: port, UPSNames: []string{"ghost"}}, testLogger())

	_, err := integration.Refresh(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no UPS reachable")
}

func TestRefreshFailsWhenServerDown(t *testing.T) {
	integration := New(Config{Host: "127.0.0.1", Port: 1, UPSNames: []string{"apc"}}, testLogger())

	_, err := integration.Refresh(context.Background())
	assert.Error(t, err)
}
