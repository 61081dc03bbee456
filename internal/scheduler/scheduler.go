// Package scheduler triggers recurring scans from cron expressions.
package scheduler

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/anstrom/hostsweep/internal/errors"
	"github.com/anstrom/hostsweep/internal/iprange"
	"github.com/anstrom/hostsweep/internal/logging"
	"github.com/anstrom/hostsweep/internal/scanner"
)

// ScanStarter is the part of scanner.Engine the scheduler drives.
type ScanStarter interface {
	StartIfIdle(req scanner.Request) (id string, started bool, err error)
}

// Scheduler manages scheduled scan jobs.
type Scheduler struct {
	cron    *cron.Cron
	engine  ScanStarter
	jobs    map[uuid.UUID]*ScheduledJob
	mu      sync.RWMutex
	running bool
	logger  *logging.Logger
}

// ScheduledJob is one recurring scan.
type ScheduledJob struct {
	ID         uuid.UUID    `json:"id"`
	CronID     cron.EntryID `json:"-"`
	Name       string       `json:"name"`
	Cron       string       `json:"cron"`
	Range      string       `json:"range"`
	LastRun    time.Time    `json:"last_run,omitempty"`
	LastScanID string       `json:"last_scan_id,omitempty"`
	NextRun    time.Time    `json:"next_run,omitempty"`
	Skipped    int          `json:"skipped"`
}

// NewScheduler creates a new job scheduler.
func NewScheduler(engine ScanStarter) *Scheduler {
	return &Scheduler{
		cron:   cron.New(),
		engine: engine,
		jobs:   make(map[uuid.UUID]*ScheduledJob),
		logger: logging.Default().WithComponent("scheduler"),
	}
}

// Start begins the scheduler.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler is already running")
	}

	s.cron.Start()
	s.running = true

	s.logger.Info("Scheduler started", "jobs", len(s.jobs))
	return nil
}

// Stop stops the scheduler. A scan already triggered keeps running.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.logger.Info("Scheduler stopped")
}

// AddJob schedules a scan of rangeExpr on a standard five-field cron
// expression or a descriptor such as "@hourly".
func (s *Scheduler) AddJob(name, cronExpr, rangeExpr string) (uuid.UUID, error) {
	schedule, err := cron.ParseStandard(cronExpr)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid cron expression: %w", err)
	}
	if _, err := iprange.Parse(rangeExpr); err != nil {
		return uuid.Nil, err
	}

	job := &ScheduledJob{
		ID:      uuid.New(),
		Name:    name,
		Cron:    cronExpr,
		Range:   rangeExpr,
		NextRun: schedule.Next(time.Now()),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cronID, err := s.cron.AddFunc(cronExpr, func() { s.runJob(job.ID) })
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to add job to cron: %w", err)
	}
	job.CronID = cronID
	s.jobs[job.ID] = job

	s.logger.Info("Scheduled scan", "job", name, "cron", cronExpr, "range", rangeExpr)
	return job.ID, nil
}

// RemoveJob unschedules a job.
func (s *Scheduler) RemoveJob(jobID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return errors.NewScanError(errors.CodeNotFound, fmt.Sprintf("job %s not found", jobID))
	}
	s.cron.Remove(job.CronID)
	delete(s.jobs, jobID)
	return nil
}

// GetJobs returns a copy of every scheduled job, ordered by name.
func (s *Scheduler) GetJobs() []ScheduledJob {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]ScheduledJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		j := *job
		if entry := s.cron.Entry(job.CronID); entry.Valid() && !entry.Next.IsZero() {
			j.NextRun = entry.Next
		}
		jobs = append(jobs, j)
	}
	sort.Slice(jobs, func(a, b int) bool { return jobs[a].Name < jobs[b].Name })
	return jobs
}

// runJob starts the job's scan unless another scan is running. Scheduled
// scans never supersede a scan in progress.
func (s *Scheduler) runJob(jobID uuid.UUID) {
	s.mu.RLock()
	job, ok := s.jobs[jobID]
	if !ok {
		s.mu.RUnlock()
		return
	}
	name, rangeExpr := job.Name, job.Range
	s.mu.RUnlock()

	scanID, started, err := s.engine.StartIfIdle(scanner.Request{Range: rangeExpr})
	if err != nil {
		s.logger.Error("Scheduled scan failed to start", "job", name, "error", err)
		return
	}

	s.mu.Lock()
	if !started {
		job.Skipped++
		s.mu.Unlock()
		s.logger.Info("Scan in progress, skipping scheduled scan", "job", name)
		return
	}
	job.LastRun = time.Now()
	job.LastScanID = scanID
	s.mu.Unlock()
	s.logger.Info("Scheduled scan started", "job", name, "scan_id", scanID)
}
