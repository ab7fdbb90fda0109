// Package health tracks per-worker liveness and error state. The state is
// process-local; a restart resets all counters, which is acceptable for an
// operational signal.
package health

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/keelhq/nurture/internal/models"
	"github.com/keelhq/nurture/internal/notify"
)

// Status describes a worker's current health.
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusDegraded Status = "degraded"
	StatusFailed   Status = "failed"
)

const (
	// degradedErrorLimit is the error count above which a worker is failed
	// rather than merely degraded.
	degradedErrorLimit = 3

	// selfCheckInterval is how often the monitor looks for stalled workers.
	selfCheckInterval = 5 * time.Minute

	// staleAfter is how long a worker may go without a successful run before
	// the self-check demotes it.
	staleAfter = 30 * time.Minute
)

// WorkerState is a snapshot of one worker's counters.
type WorkerState struct {
	Name       string
	Status     Status
	RunCount   int
	ErrorCount int
	LastRun    time.Time
	LastError  string
}

// Monitor tracks worker health and escalates repeated failures to admins.
type Monitor struct {
	mu       sync.Mutex
	workers  map[string]*WorkerState
	notifier *notify.Notifier
	now      func() time.Time

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewMonitor creates a Monitor. The notifier may be nil, in which case
// failure escalation is skipped.
func NewMonitor(notifier *notify.Notifier) *Monitor {
	return &Monitor{
		workers:  make(map[string]*WorkerState),
		notifier: notifier,
		now:      time.Now,
	}
}

// RegisterWorker initializes counters for a named worker. Registering an
// already-known worker resets it.
func (m *Monitor) RegisterWorker(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workers[name] = &WorkerState{
		Name:    name,
		Status:  StatusHealthy,
		LastRun: m.now(),
	}
	slog.Debug("Monitor.RegisterWorker: worker registered", "worker", name)
}

// RecordSuccess marks a successful run: lastRun is refreshed, the run count
// incremented, and the worker restored to healthy.
func (m *Monitor) RecordSuccess(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w := m.worker(name)
	w.LastRun = m.now()
	w.RunCount++
	w.Status = StatusHealthy
	w.LastError = ""
}

// RecordError increments the worker's error count. Up to three errors the
// worker is degraded; past that it is failed, and crossing into failed
// alerts every admin user.
func (m *Monitor) RecordError(name, message string) {
	m.mu.Lock()
	w := m.worker(name)
	w.ErrorCount++
	w.LastError = message
	crossed := false
	if w.ErrorCount <= degradedErrorLimit {
		w.Status = StatusDegraded
	} else {
		crossed = w.Status != StatusFailed
		w.Status = StatusFailed
	}
	errorCount := w.ErrorCount
	m.mu.Unlock()

	slog.Warn("Monitor.RecordError: worker error recorded", "worker", name, "errorCount", errorCount, "error", message)
	if crossed && m.notifier != nil {
		m.notifier.AlertAdmins("worker_alert", "Worker failed",
			"worker "+name+" exceeded the error threshold: "+message,
			models.Metadata{"worker": name})
	}
}

// Snapshot returns a copy of every worker's state.
func (m *Monitor) Snapshot() []WorkerState {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]WorkerState, 0, len(m.workers))
	for _, w := range m.workers {
		out = append(out, *w)
	}
	return out
}

// Start launches the periodic self-check. It returns immediately.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.stopCh != nil {
		m.mu.Unlock()
		return
	}
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	stopCh, doneCh := m.stopCh, m.doneCh
	m.mu.Unlock()

	go func() {
		defer close(doneCh)
		ticker := time.NewTicker(selfCheckInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stopCh:
				return
			case <-ticker.C:
				m.selfCheck()
			}
		}
	}()
}

// Stop halts the self-check loop and waits for it to exit.
func (m *Monitor) Stop() {
	m.mu.Lock()
	stopCh, doneCh := m.stopCh, m.doneCh
	m.stopCh, m.doneCh = nil, nil
	m.mu.Unlock()
	if stopCh == nil {
		return
	}
	close(stopCh)
	<-doneCh
}

// selfCheck demotes healthy workers whose last run is stale. This catches
// workers that silently stopped ticking without recording an error.
func (m *Monitor) selfCheck() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for _, w := range m.workers {
		if w.Status == StatusHealthy && now.Sub(w.LastRun) > staleAfter {
			w.Status = StatusDegraded
			slog.Warn("Monitor.selfCheck: worker stalled", "worker", w.Name, "lastRun", w.LastRun)
		}
	}
}

// worker returns the state for name, registering it on first use. Callers
// must hold the mutex.
func (m *Monitor) worker(name string) *WorkerState {
	w, ok := m.workers[name]
	if !ok {
		w = &WorkerState{Name: name, Status: StatusHealthy, LastRun: m.now()}
		m.workers[name] = w
	}
	return w
}
