package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/byerim/brandshield/internal/scanner"
)

type fakeRunner struct {
	calls int32
}

func (f *fakeRunner) RunFullScan(_ context.Context, _, _ string) (*scanner.Summary, error) {
	atomic.AddInt32(&f.calls, 1)
	return &scanner.Summary{}, nil
}

type fakeReporter struct {
	calls int32
}

func (f *fakeReporter) SendWeeklyReport(_ context.Context) error {
	atomic.AddInt32(&f.calls, 1)
	return nil
}

type fakeResolver struct {
	calls int32
}

func (f *fakeResolver) Run(_ context.Context) int {
	atomic.AddInt32(&f.calls, 1)
	return 0
}

func newTestScheduler() (*Scheduler, *fakeRunner, *fakeReporter, *fakeResolver) {
	runner := &fakeRunner{}
	reporter := &fakeReporter{}
	resolver := &fakeResolver{}
	s := New(DefaultConfig(), runner, reporter, resolver, nil)
	return s, runner, reporter, resolver
}

func TestStartRegistersJobs(t *testing.T) {
	s, _, _, _ := newTestScheduler()

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	status := s.Status()
	if !status.Running {
		t.Error("expected scheduler running")
	}
	if !status.Enabled {
		t.Error("expected scanning enabled by default")
	}
	if len(status.Jobs) != 3 {
		t.Fatalf("registered jobs = %d, want 3", len(status.Jobs))
	}
	for _, job := range status.Jobs {
		if job.NextRun == nil {
			t.Errorf("job %s has no next run", job.ID)
		}
	}
}

func TestStartTwiceIsNoop(t *testing.T) {
	s, _, _, _ := newTestScheduler()

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	if err := s.Start(); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if got := len(s.Status().Jobs); got != 3 {
		t.Errorf("jobs after double start = %d, want 3", got)
	}
}

func TestDisabledScanIsNoop(t *testing.T) {
	s, runner, _, _ := newTestScheduler()

	s.Disable()
	s.runScheduledScan()

	if got := atomic.LoadInt32(&runner.calls); got != 0 {
		t.Errorf("scan ran %d times while disabled, want 0", got)
	}

	s.Enable()
	s.runScheduledScan()

	if got := atomic.LoadInt32(&runner.calls); got != 1 {
		t.Errorf("scan ran %d times after enable, want 1", got)
	}
}

func TestDisableDoesNotGateReportOrSweep(t *testing.T) {
	s, _, reporter, resolver := newTestScheduler()

	s.Disable()
	s.runWeeklyReport()
	s.runAutoResolve()

	if got := atomic.LoadInt32(&reporter.calls); got != 1 {
		t.Errorf("report ran %d times, want 1", got)
	}
	if got := atomic.LoadInt32(&resolver.calls); got != 1 {
		t.Errorf("sweep ran %d times, want 1", got)
	}
}

func TestTriggerScanBypassesEnabledFlag(t *testing.T) {
	s, runner, _, _ := newTestScheduler()

	s.Disable()
	s.TriggerScan("@byerim", "")

	deadline := time.After(2 * time.Second)
	for atomic.LoadInt32(&runner.calls) == 0 {
		select {
		case <-deadline:
			t.Fatal("triggered scan never ran")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestInvalidScheduleFailsStart(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ReportSchedule = "not a cron spec"
	s := New(cfg, &fakeRunner{}, &fakeReporter{}, &fakeResolver{}, nil)

	if err := s.Start(); err == nil {
		t.Fatal("expected error for invalid cron expression")
	}
}
