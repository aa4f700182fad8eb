package shellyplug

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearth-home/hearth-backend-go/internal/entities"
)

type fakePlug struct {
	mu     sync.Mutex
	output bool
	power  float64
	sets   []bool
	fail   bool
}

func (p *fakePlug) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/shelly", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.fail {
			http.Error(w, "offline", http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"id":"shellyplusplugs-abc123","model":"SNPL-00112EU","mac":"AABBCCDDEEFF","fw_id":"1.0.8","gen":2}`)
	})
	mux.HandleFunc("/rpc/Switch.GetStatus", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.fail {
			http.Error(w, "offline", http.StatusServiceUnavailable)
			return
		}
		fmt.Fprintf(w, `{"output":%t,"apower":%f,"voltage":229.8,"current":0.21,"temperature":{"tC":34.5}}`, p.output, p.power)
	})
	mux.HandleFunc("/rpc/Switch.Set", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		defer p.mu.Unlock()
		on := r.URL.Query().Get("on") == "true"
		wasOn := p.output
		p.output = on
		p.sets = append(p.sets, on)
		fmt.Fprintf(w, `{"was_on":%t}`, wasOn)
	})
	return mux
}

func newTestIntegration(t *testing.T, plug *fakePlug) (*Integration, string) {
	t.Helper()
	server := httptest.NewServer(plug.handler())
	t.Cleanup(server.Close)
	host := strings.TrimPrefix(server.URL, "http://")

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return New(Config{Hosts: []string{host}}, log), host
}

func TestRefreshConvertsPlugStatus(t *testing.T) {
	plug := &fakePlug{output: true, power: 42.5}
	integration, host := newTestIntegration(t, plug)

	states, err := integration.Refresh(context.Background())
	require.NoError(t, err)
	require.Len(t, states, 4)

	byID := make(map[string]entities.State)
	for _, s := range states {
		byID[s.ID] = s
	}

	sw := byID["shellyplug_shellyplusplugs-abc123_switch"]
	assert.Equal(t, entities.TypeSwitch, sw.Type)
	assert.Equal(t, true, sw.Value)
	assert.Equal(t, host, sw.Attributes["host"])

	assert.Equal(t, 42.5, byID["shellyplug_shellyplusplugs-abc123_power"].Value)
	assert.Equal(t, 229.8, byID["shellyplug_shellyplusplugs-abc123_voltage"].Value)
	assert.Equal(t, 34.5, byID["shellyplug_shellyplusplugs-abc123_temperature"].Value)
}

func TestRefreshFailsWhenNoDeviceReachable(t *testing.T) {
	plug := &fakePlug{fail: true}
	integration, _ := newTestIntegration(t, plug)

	_, err := integration.Refresh(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no shelly devices reachable")
}

func TestPushedStatusCoversPollFailure(t *testing.T) {
	plug := &fakePlug{output: true, power: 10}
	integration, host := newTestIntegration(t, plug)

	// First refresh learns the device identity.
	_, err := integration.Refresh(context.Background())
	require.NoError(t, err)

	// Device stops answering polls but pushed a status beforehand.
	plug.mu.Lock()
	plug.fail = true
	plug.mu.Unlock()

	pushed := PlugStatus{Output: false, PowerW: 0, Voltage: 230}
	integration.NotifyStatus(host, pushed)

	states, err := integration.Refresh(context.Background())
	require.NoError(t, err)

	byID := make(map[string]entities.State)
	for _, s := range states {
		byID[s.ID] = s
	}
	assert.Equal(t, false, byID["shellyplug_shellyplusplugs-abc123_switch"].Value)
	assert.Equal(t, 0.0, byID["shellyplug_shellyplusplugs-abc123_power"].Value)
}

func TestPushQueueDropsWhenFull(t *testing.T) {
	plug := &fakePlug{}
	integration, host := newTestIntegration(t, plug)

	// Overfill the bounded queue; must not block the caller.
	done := make(chan struct{})
	go func() {
		for n := 0; n < pushBuffer*2; n++ {
			integration.NotifyStatus(host, PlugStatus{PowerW: float64(n)})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("NotifyStatus blocked on full queue")
	}
}

func TestHandleActionToggle(t *testing.T) {
	plug := &fakePlug{output: true}
	integration, _ := newTestIntegration(t, plug)

	_, err := integration.Refresh(context.Background())
	require.NoError(t, err)

	err = integration.HandleAction(context.Background(), "shellyplug_shellyplusplugs-abc123_switch", "toggle")
	require.NoError(t, err)

	plug.mu.Lock()
	defer plug.mu.Unlock()
	require.Len(t, plug.sets, 1)
	assert.False(t, plug.sets[0], "toggle from on must switch off")
}

func TestHandleActionUnknownEntity(t *testing.T) {
	plug := &fakePlug{}
	integration, _ := newTestIntegration(t, plug)

	err := integration.HandleAction(context.Background(), "ghost_switch", "on")
	assert.Error(t, err)
}
