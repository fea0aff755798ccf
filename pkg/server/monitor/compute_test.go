package monitor

import (
	"context"
	"testing"

	"github.com/nicktill/dirview/pkg/dirsize"
)

type fixedComputer struct {
	res dirsize.Result
	err error
}

func (f fixedComputer) Compute(context.Context, string) (dirsize.Result, error) {
	return f.res, f.err
}

func TestComputeMonitor_RecordResult(t *testing.T) {
	cm := &ComputeMonitor{}
	cm.RecordStart()
	cm.RecordResult("/a", dirsize.Result{TotalBytes: 10}, nil)

	status := cm.Status()
	if !status.Healthy {
		t.Error("Status should be healthy after success")
	}
	if status.Completed != 1 {
		t.Errorf("Completed = %d, want 1", status.Completed)
	}
	if status.InFlight != 0 {
		t.Errorf("InFlight = %d, want 0", status.InFlight)
	}
	if status.LastPath != "/a" {
		t.Errorf("LastPath = %q, want %q", status.LastPath, "/a")
	}
	if status.LastSuccess == "" || status.TimeSinceSuccess == "" {
		t.Error("LastSuccess and TimeSinceSuccess should be set")
	}
}

func TestComputeMonitor_Outcomes(t *testing.T) {
	cm := &ComputeMonitor{}
	record := func(res dirsize.Result, err error) {
		cm.RecordStart()
		cm.RecordResult("/p", res, err)
	}

	record(dirsize.Result{Partial: true}, nil)
	record(dirsize.Result{Unknown: true}, nil)
	record(dirsize.Result{}, context.Canceled)

	status := cm.Status()
	if status.Partial != 1 || status.Unknown != 1 || status.Cancelled != 1 || status.Completed != 0 {
		t.Errorf("unexpected counters: %+v", status)
	}
	if status.ConsecutiveFailures != 1 {
		t.Errorf("ConsecutiveFailures = %d, want 1", status.ConsecutiveFailures)
	}
}

func TestComputeMonitor_IsHealthy(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(*ComputeMonitor)
		expected bool
	}{
		{
			name:     "nothing computed yet",
			setup:    func(*ComputeMonitor) {},
			expected: true,
		},
		{
			name: "too many unknown results",
			setup: func(cm *ComputeMonitor) {
				for i := 0; i < maxConsecutiveFailures+1; i++ {
					cm.RecordResult("/gone", dirsize.Result{Unknown: true}, nil)
				}
			},
			expected: false,
		},
		{
			name: "success resets failures",
			setup: func(cm *ComputeMonitor) {
				for i := 0; i < maxConsecutiveFailures+1; i++ {
					cm.RecordResult("/gone", dirsize.Result{Unknown: true}, nil)
				}
				cm.RecordResult("/ok", dirsize.Result{TotalBytes: 1}, nil)
			},
			expected: true,
		},
		{
			name: "cancellations are not failures",
			setup: func(cm *ComputeMonitor) {
				for i := 0; i < 10; i++ {
					cm.RecordResult("/slow", dirsize.Result{}, context.Canceled)
				}
			},
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cm := &ComputeMonitor{}
			tt.setup(cm)
			if got := cm.IsHealthy(); got != tt.expected {
				t.Errorf("IsHealthy() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestComputeMonitor_Instrument(t *testing.T) {
	cm := &ComputeMonitor{}
	c := cm.Instrument(fixedComputer{res: dirsize.Result{TotalBytes: 42}})

	res, err := c.Compute(context.Background(), "/x")
	if err != nil {
		t.Fatalf("Compute() error = %v", err)
	}
	if res.TotalBytes != 42 {
		t.Errorf("TotalBytes = %d, want 42", res.TotalBytes)
	}

	status := cm.Status()
	if status.Completed != 1 || status.InFlight != 0 {
		t.Errorf("unexpected status: %+v", status)
	}
}
