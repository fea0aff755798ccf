package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/nicktill/dirview/pkg/dirsize"
)

// maxConsecutiveFailures is how many unknown results in a row mark the
// server degraded.
const maxConsecutiveFailures = 3

// Computer matches presenter.Computer.
type Computer interface {
	Compute(ctx context.Context, path string) (dirsize.Result, error)
}

// ComputeMonitor tracks directory size computations for health checks.
type ComputeMonitor struct {
	mu                  sync.RWMutex
	inFlight            int
	completed           uint64
	partial             uint64
	unknown             uint64
	cancelled           uint64
	consecutiveFailures int
	lastSuccess         time.Time
	lastAttempt         time.Time
	lastPath            string
	lastDuration        time.Duration
}

// Instrument wraps c so every computation is recorded.
func (cm *ComputeMonitor) Instrument(c Computer) Computer {
	return &instrumented{next: c, monitor: cm}
}

type instrumented struct {
	next    Computer
	monitor *ComputeMonitor
}

func (i *instrumented) Compute(ctx context.Context, path string) (dirsize.Result, error) {
	i.monitor.RecordStart()
	res, err := i.next.Compute(ctx, path)
	i.monitor.RecordResult(path, res, err)
	return res, err
}

// RecordStart marks a computation as running.
func (cm *ComputeMonitor) RecordStart() {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.inFlight++
	cm.lastAttempt = time.Now()
}

// RecordResult records a finished computation. An error means the walk was
// cancelled; an unknown result counts as a failure.
func (cm *ComputeMonitor) RecordResult(path string, res dirsize.Result, err error) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.inFlight > 0 {
		cm.inFlight--
	}

	switch {
	case err != nil:
		cm.cancelled++
		return
	case res.Unknown:
		cm.unknown++
		cm.consecutiveFailures++
		return
	case res.Partial:
		cm.partial++
	default:
		cm.completed++
	}

	cm.consecutiveFailures = 0
	cm.lastSuccess = time.Now()
	cm.lastPath = path
	cm.lastDuration = res.Duration
}

// IsHealthy returns false after more than maxConsecutiveFailures unknown
// results in a row.
func (cm *ComputeMonitor) IsHealthy() bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.consecutiveFailures <= maxConsecutiveFailures
}

// ComputeStatus is the computation section of the health response.
type ComputeStatus struct {
	Healthy             bool   `json:"healthy"`
	InFlight            int    `json:"in_flight"`
	Completed           uint64 `json:"completed"`
	Partial             uint64 `json:"partial"`
	Unknown             uint64 `json:"unknown"`
	Cancelled           uint64 `json:"cancelled"`
	ConsecutiveFailures int    `json:"consecutive_failures,omitempty"`
	LastSuccess         string `json:"last_success,omitempty"`
	TimeSinceSuccess    string `json:"time_since_success,omitempty"`
	LastAttempt         string `json:"last_attempt,omitempty"`
	LastPath            string `json:"last_path,omitempty"`
	LastDuration        string `json:"last_duration,omitempty"`
}

// Status returns current computation status for health checks.
func (cm *ComputeMonitor) Status() ComputeStatus {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	status := ComputeStatus{
		Healthy:             cm.consecutiveFailures <= maxConsecutiveFailures,
		InFlight:            cm.inFlight,
		Completed:           cm.completed,
		Partial:             cm.partial,
		Unknown:             cm.unknown,
		Cancelled:           cm.cancelled,
		ConsecutiveFailures: cm.consecutiveFailures,
		LastPath:            cm.lastPath,
	}

	if !cm.lastSuccess.IsZero() {
		status.LastSuccess = cm.lastSuccess.Format(time.RFC3339)
		status.TimeSinceSuccess = time.Since(cm.lastSuccess).String()
		status.LastDuration = cm.lastDuration.String()
	}

	if !cm.lastAttempt.IsZero() {
		status.LastAttempt = cm.lastAttempt.Format(time.RFC3339)
	}

	return status
}
