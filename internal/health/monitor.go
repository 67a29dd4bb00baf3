// Package health probes the admin endpoint of every configured cell and
// keeps a per-cell liveness view for operators.
//
// Liveness never feeds into master selection; the master cell is chosen
// from the configured cellids alone.
package health

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dreamware/multicell/internal/cluster"
)

// Status is the probed state of a cell.
type Status string

const (
	StatusUnknown   Status = "unknown"
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
)

var cellUp = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "multicell",
		Subsystem: "health",
		Name:      "cell_up",
		Help:      "Whether the last probe of a cell's admin endpoint succeeded.",
	},
	[]string{"cellid"})

func init() {
	prometheus.MustRegister(cellUp)
}

// CellHealth tracks the probe history of a single cell.
type CellHealth struct {
	LastCheck        time.Time `json:"last_check"`
	LastHealthy      time.Time `json:"last_healthy"`
	CellID           int       `json:"cellid"`
	AdminVIP         string    `json:"admin_vip"`
	Status           Status    `json:"status"`
	ConsecutiveFails int       `json:"consecutive_fails"`
}

// CheckFunc probes one admin address.
type CheckFunc func(ctx context.Context, addr string) error

// Monitor periodically probes every cell returned by a provider.
// Thread-safe: All methods are safe for concurrent access.
type Monitor struct {
	cells       map[int]*CellHealth
	httpClient  *http.Client
	checkFunc   CheckFunc
	onUnhealthy func(cellID int)
	cancel      context.CancelFunc
	done        chan struct{}
	interval    time.Duration
	mu          sync.RWMutex
	maxFailures int
}

// NewMonitor creates a monitor probing every interval. A cell is marked
// unhealthy after 3 consecutive failed probes.
//
// Example:
//
//	monitor := health.NewMonitor(5 * time.Second)
//	monitor.Start(ctx, cellsFromTopology)
//	defer monitor.Stop()
func NewMonitor(interval time.Duration) *Monitor {
	m := &Monitor{
		cells:       make(map[int]*CellHealth),
		httpClient:  &http.Client{Timeout: 2 * time.Second},
		interval:    interval,
		maxFailures: 3,
	}
	m.checkFunc = m.probe
	return m
}

// SetCheckFunction replaces the HTTP probe, typically in tests.
func (m *Monitor) SetCheckFunction(fn CheckFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkFunc = fn
}

// SetOnUnhealthy registers a callback invoked, on its own goroutine, when
// a cell turns unhealthy.
func (m *Monitor) SetOnUnhealthy(fn func(cellID int)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onUnhealthy = fn
}

// Start probes all cells once, then every interval on a background
// goroutine, until ctx is canceled or Stop is called.
func (m *Monitor) Start(ctx context.Context, cells func() []cluster.CellInfo) {
	ctx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.cancel = cancel
	m.done = make(chan struct{})
	done := m.done
	m.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		log.Printf("Health monitor started with interval %v", m.interval)
		m.CheckAll(ctx, cells())
		for {
			select {
			case <-ticker.C:
				m.CheckAll(ctx, cells())
			case <-ctx.Done():
				log.Println("Health monitor stopping")
				return
			}
		}
	}()
}

// Stop cancels the probe loop and waits for it to exit.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// CheckAll probes every given cell and forgets cells no longer present.
func (m *Monitor) CheckAll(ctx context.Context, cells []cluster.CellInfo) {
	present := make(map[int]bool, len(cells))
	for _, c := range cells {
		present[c.ID] = true
		m.check(ctx, c)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for id := range m.cells {
		if !present[id] {
			delete(m.cells, id)
			cellUp.DeleteLabelValues(strconv.Itoa(id))
			log.Printf("Removed cell %d from health monitoring", id)
		}
	}
}

func (m *Monitor) check(ctx context.Context, c cluster.CellInfo) {
	m.mu.Lock()
	h, ok := m.cells[c.ID]
	if !ok {
		h = &CellHealth{CellID: c.ID, Status: StatusUnknown}
		m.cells[c.ID] = h
	}
	h.AdminVIP = c.AdminVIP
	check := m.checkFunc
	m.mu.Unlock()

	err := check(ctx, c.AdminVIP)

	m.mu.Lock()
	defer m.mu.Unlock()
	h.LastCheck = time.Now()
	label := strconv.Itoa(c.ID)

	if err != nil {
		cellUp.WithLabelValues(label).Set(0)
		h.ConsecutiveFails++
		log.Printf("Health check failed for cell %d (attempt %d/%d): %v",
			c.ID, h.ConsecutiveFails, m.maxFailures, err)
		if h.ConsecutiveFails >= m.maxFailures && h.Status != StatusUnhealthy {
			h.Status = StatusUnhealthy
			log.Printf("Cell %d marked as unhealthy after %d failures", c.ID, h.ConsecutiveFails)
			if m.onUnhealthy != nil {
				go m.onUnhealthy(c.ID)
			}
		}
		return
	}

	cellUp.WithLabelValues(label).Set(1)
	if h.Status == StatusUnhealthy {
		log.Printf("Cell %d recovered and is now healthy", c.ID)
	}
	h.Status = StatusHealthy
	h.ConsecutiveFails = 0
	h.LastHealthy = h.LastCheck
}

// probe GETs <addr>/health. addr may be a host, host:port or URL.
func (m *Monitor) probe(ctx context.Context, addr string) error {
	if addr == "" {
		return fmt.Errorf("no admin address")
	}
	url := addr
	if !strings.HasPrefix(addr, "http://") && !strings.HasPrefix(addr, "https://") {
		url = "http://" + addr
	}
	if !strings.HasSuffix(url, "/health") {
		url = strings.TrimRight(url, "/") + "/health"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}
	return nil
}

// CellHealth returns a copy of the record of one cell, or nil.
func (m *Monitor) CellHealth(cellID int) *CellHealth {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.cells[cellID]
	if !ok {
		return nil
	}
	cp := *h
	return &cp
}

// All returns copies of all records keyed by cellid.
func (m *Monitor) All() map[int]*CellHealth {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[int]*CellHealth, len(m.cells))
	for id, h := range m.cells {
		cp := *h
		out[id] = &cp
	}
	return out
}

// IsHealthy reports whether the last probes of a cell succeeded.
// Unmonitored cells are not healthy.
func (m *Monitor) IsHealthy(cellID int) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.cells[cellID]
	return ok && h.Status == StatusHealthy
}
