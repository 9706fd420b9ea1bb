// Package scheduler owns the recurring jobs: periodic scans, the weekly
// report and the nightly auto-resolve sweep.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/byerim/brandshield/internal/scanner"
)

const (
	JobScan         = "brand_shield_scan"
	JobWeeklyReport = "brand_shield_weekly_report"
	JobAutoResolve  = "brand_shield_auto_resolve"
)

// ScanRunner starts a scan and blocks until it finishes.
type ScanRunner interface {
	RunFullScan(ctx context.Context, brand, platform string) (*scanner.Summary, error)
}

// ReportSender produces and emails the weekly digest.
type ReportSender interface {
	SendWeeklyReport(ctx context.Context) error
}

// Resolver sweeps stale threats.
type Resolver interface {
	Run(ctx context.Context) int
}

type Config struct {
	// ScanInterval is the gap between scheduled scans.
	ScanInterval time.Duration
	// ReportSchedule is a cron expression for the weekly report.
	ReportSchedule string
	// SweepSchedule is a cron expression for the auto-resolve sweep.
	SweepSchedule string
	// JobTimeout bounds a single scheduled execution.
	JobTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		ScanInterval:   6 * time.Hour,
		ReportSchedule: "0 8 * * 1",
		SweepSchedule:  "0 0 * * *",
		JobTimeout:     30 * time.Minute,
	}
}

// Scheduler drives the three recurring jobs. Disabling it skips
// scheduled scans while the timers keep firing; reports and sweeps are
// not gated.
type Scheduler struct {
	config   Config
	cron     *cron.Cron
	scanner  ScanRunner
	reporter ReportSender
	resolver Resolver
	logger   *slog.Logger

	mu      sync.RWMutex
	entries map[string]cron.EntryID
	names   map[string]string
	enabled bool
	running bool
}

func New(cfg Config, scanRunner ScanRunner, reporter ReportSender, resolver Resolver, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ScanInterval <= 0 {
		cfg.ScanInterval = 6 * time.Hour
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 30 * time.Minute
	}
	return &Scheduler{
		config:   cfg,
		cron:     cron.New(),
		scanner:  scanRunner,
		reporter: reporter,
		resolver: resolver,
		logger:   logger.With("component", "scheduler"),
		entries:  make(map[string]cron.EntryID),
		names:    make(map[string]string),
		enabled:  true,
	}
}

// Start registers the jobs and begins the timers.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		s.logger.Warn("scheduler already started")
		return nil
	}

	scanSpec := fmt.Sprintf("@every %s", s.config.ScanInterval)
	if err := s.addJob(JobScan,
		fmt.Sprintf("Scheduled scan (every %s)", s.config.ScanInterval),
		scanSpec, s.runScheduledScan); err != nil {
		return err
	}

	if s.reporter != nil && s.config.ReportSchedule != "" {
		if err := s.addJob(JobWeeklyReport, "Weekly report", s.config.ReportSchedule, s.runWeeklyReport); err != nil {
			return err
		}
	}

	if s.resolver != nil && s.config.SweepSchedule != "" {
		if err := s.addJob(JobAutoResolve, "Daily auto-resolve", s.config.SweepSchedule, s.runAutoResolve); err != nil {
			return err
		}
	}

	s.cron.Start()
	s.running = true
	s.logger.Info("scheduler started",
		"scan_interval", s.config.ScanInterval,
		"report_schedule", s.config.ReportSchedule,
		"sweep_schedule", s.config.SweepSchedule,
	)
	return nil
}

// addJob registers a cron entry; callers hold s.mu.
func (s *Scheduler) addJob(id, name, spec string, fn func()) error {
	entryID, err := s.cron.AddFunc(spec, fn)
	if err != nil {
		return fmt.Errorf("scheduling %s (%q): %w", id, spec, err)
	}
	s.entries[id] = entryID
	s.names[id] = name
	return nil
}

// Stop halts the timers. Jobs already running are not interrupted.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.cron.Stop()
	s.running = false
	s.logger.Info("scheduler stopped")
}

// Enable resumes scheduled scans.
func (s *Scheduler) Enable() {
	s.mu.Lock()
	s.enabled = true
	s.mu.Unlock()
	s.logger.Info("scheduled scanning enabled")
}

// Disable makes scheduled scans no-ops. The timers keep firing.
func (s *Scheduler) Disable() {
	s.mu.Lock()
	s.enabled = false
	s.mu.Unlock()
	s.logger.Info("scheduled scanning disabled")
}

func (s *Scheduler) Enabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.enabled
}

// TriggerScan starts a scan in the background, bypassing the enabled
// flag. Results land in scan_history.
func (s *Scheduler) TriggerScan(brand, platform string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.config.JobTimeout)
		defer cancel()
		if _, err := s.scanner.RunFullScan(ctx, brand, platform); err != nil {
			s.logger.Error("triggered scan failed", "brand", brand, "error", err)
		}
	}()
}

// TriggerReport sends the weekly report now.
func (s *Scheduler) TriggerReport(ctx context.Context) error {
	if s.reporter == nil {
		return fmt.Errorf("reporting not configured")
	}
	return s.reporter.SendWeeklyReport(ctx)
}

func (s *Scheduler) runScheduledScan() {
	if !s.Enabled() {
		s.logger.Info("scheduled scan skipped (disabled)")
		return
	}

	s.logger.Info("scheduled scan starting")
	ctx, cancel := context.WithTimeout(context.Background(), s.config.JobTimeout)
	defer cancel()
	summary, err := s.scanner.RunFullScan(ctx, "", "")
	if err != nil {
		s.logger.Error("scheduled scan failed", "error", err)
		return
	}
	s.logger.Info("scheduled scan complete",
		"items_scanned", summary.ItemsScanned,
		"threats_found", summary.ThreatsFound,
	)
}

func (s *Scheduler) runWeeklyReport() {
	s.logger.Info("weekly report starting")
	ctx, cancel := context.WithTimeout(context.Background(), s.config.JobTimeout)
	defer cancel()
	if err := s.reporter.SendWeeklyReport(ctx); err != nil {
		s.logger.Error("weekly report failed", "error", err)
	}
}

func (s *Scheduler) runAutoResolve() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.JobTimeout)
	defer cancel()
	s.resolver.Run(ctx)
}

// JobStatus describes one registered job.
type JobStatus struct {
	ID      string     `json:"id"`
	Name    string     `json:"name"`
	NextRun *time.Time `json:"next_run"`
}

// Status reports the scheduler state for the API.
type Status struct {
	Running bool        `json:"scheduler_running"`
	Enabled bool        `json:"scanning_enabled"`
	Jobs    []JobStatus `json:"jobs"`
}

func (s *Scheduler) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := Status{
		Running: s.running,
		Enabled: s.enabled,
		Jobs:    make([]JobStatus, 0, len(s.entries)),
	}
	for _, id := range []string{JobScan, JobWeeklyReport, JobAutoResolve} {
		entryID, ok := s.entries[id]
		if !ok {
			continue
		}
		job := JobStatus{ID: id, Name: s.names[id]}
		if next := s.cron.Entry(entryID).Next; !next.IsZero() {
			job.NextRun = &next
		}
		status.Jobs = append(status.Jobs, job)
	}
	return status
}
