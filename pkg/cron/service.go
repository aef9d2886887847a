// PiBear - LINE companion bot with memory and scheduled pushes
// License: MIT
//
// Copyright (c) 2026 PiBear contributors

package cron

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/adhocore/gronx"
	"github.com/dotsetgreg/pibear/pkg/logger"
)

const (
	KindEvery = "every"
	KindCron  = "cron"
)

var (
	ErrJobExists   = errors.New("cron: job id already registered")
	ErrJobNotFound = errors.New("cron: job not found")
)

// JobHandler runs when a job fires. Jobs run to completion; stopping the
// service does not cancel the context handed to an in-flight job.
type JobHandler func(ctx context.Context, job CronJob) error

type CronSchedule struct {
	Kind    string `json:"kind"`
	EveryMS *int64 `json:"every_ms,omitempty"`
	Expr    string `json:"expr,omitempty"`
}

// Every builds an interval schedule.
func Every(d time.Duration) CronSchedule {
	ms := d.Milliseconds()
	return CronSchedule{Kind: KindEvery, EveryMS: &ms}
}

// Daily builds a cron schedule firing once a day at hour:minute.
func Daily(hour, minute int) CronSchedule {
	return CronSchedule{Kind: KindCron, Expr: fmt.Sprintf("%d %d * * *", minute, hour)}
}

func (s CronSchedule) String() string {
	switch s.Kind {
	case KindEvery:
		if s.EveryMS != nil {
			return fmt.Sprintf("every %s", time.Duration(*s.EveryMS)*time.Millisecond)
		}
	case KindCron:
		return s.Expr
	}
	return "unknown"
}

type CronJobState struct {
	NextRunAtMS *int64 `json:"next_run_at_ms,omitempty"`
	LastRunAtMS *int64 `json:"last_run_at_ms,omitempty"`
	LastStatus  string `json:"last_status,omitempty"`
	LastError   string `json:"last_error,omitempty"`
	RunCount    int    `json:"run_count"`
}

type CronJob struct {
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	Schedule CronSchedule `json:"schedule"`
	State    CronJobState `json:"state"`
	handler  JobHandler
}

// CronService is a process-owned job registry keyed by stable job ids.
type CronService struct {
	mu       sync.Mutex
	jobs     map[string]*CronJob
	loc      *time.Location
	now      func() time.Time
	running  bool
	wake     chan struct{}
	stopCh   chan struct{}
	doneCh   chan struct{}
	inFlight sync.WaitGroup
}

func NewCronService(loc *time.Location) *CronService {
	if loc == nil {
		loc = time.Local
	}
	return &CronService{
		jobs: make(map[string]*CronJob),
		loc:  loc,
		now:  time.Now,
		wake: make(chan struct{}, 1),
	}
}

// ValidateSchedule reports whether s can be registered.
func ValidateSchedule(s CronSchedule) error {
	switch s.Kind {
	case KindEvery:
		if s.EveryMS == nil || *s.EveryMS <= 0 {
			return fmt.Errorf("cron: interval must be positive")
		}
	case KindCron:
		g := gronx.New()
		if !g.IsValid(s.Expr) {
			return fmt.Errorf("cron: invalid expression %q", s.Expr)
		}
	default:
		return fmt.Errorf("cron: unknown schedule kind %q", s.Kind)
	}
	return nil
}

// AddJob registers a job. Ids are unique; registering an existing id fails
// with ErrJobExists so callers can check-then-add idempotently.
func (cs *CronService) AddJob(id, name string, schedule CronSchedule, handler JobHandler) (CronJob, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return CronJob{}, fmt.Errorf("cron: job id is required")
	}
	if handler == nil {
		return CronJob{}, fmt.Errorf("cron: job %s has no handler", id)
	}
	if err := ValidateSchedule(schedule); err != nil {
		return CronJob{}, err
	}

	cs.mu.Lock()
	if _, exists := cs.jobs[id]; exists {
		cs.mu.Unlock()
		return CronJob{}, fmt.Errorf("%w: %s", ErrJobExists, id)
	}
	job := &CronJob{
		ID:       id,
		Name:     name,
		Schedule: schedule,
		handler:  handler,
	}
	now := cs.now().In(cs.loc)
	if next, err := nextRun(schedule, now); err == nil {
		ms := next.UnixMilli()
		job.State.NextRunAtMS = &ms
	}
	cs.jobs[id] = job
	snapshot := *job
	cs.mu.Unlock()

	cs.signal()

	logger.DebugCF("cron", "Job registered", map[string]interface{}{
		"job_id":   id,
		"schedule": schedule.String(),
	})
	return snapshot, nil
}

func (cs *CronService) HasJob(id string) bool {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	_, ok := cs.jobs[id]
	return ok
}

func (cs *CronService) GetJob(id string) (CronJob, bool) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	job, ok := cs.jobs[id]
	if !ok {
		return CronJob{}, false
	}
	return *job, true
}

func (cs *CronService) RemoveJob(id string) bool {
	cs.mu.Lock()
	_, ok := cs.jobs[id]
	delete(cs.jobs, id)
	cs.mu.Unlock()
	if ok {
		cs.signal()
	}
	return ok
}

// RemoveByPrefix removes every job whose id starts with prefix and returns
// the removed ids in sorted order.
func (cs *CronService) RemoveByPrefix(prefix string) []string {
	cs.mu.Lock()
	var removed []string
	for id := range cs.jobs {
		if strings.HasPrefix(id, prefix) {
			delete(cs.jobs, id)
			removed = append(removed, id)
		}
	}
	cs.mu.Unlock()

	sort.Strings(removed)
	if len(removed) > 0 {
		cs.signal()
	}
	return removed
}

// ListJobs returns copies of all jobs ordered by id.
func (cs *CronService) ListJobs() []CronJob {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	jobs := make([]CronJob, 0, len(cs.jobs))
	for _, job := range cs.jobs {
		jobs = append(jobs, *job)
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].ID < jobs[j].ID })
	return jobs
}

func (cs *CronService) IsRunning() bool {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.running
}

// Start launches the scheduling loop. Starting a running service is a no-op.
func (cs *CronService) Start() error {
	cs.mu.Lock()
	if cs.running {
		cs.mu.Unlock()
		return nil
	}
	now := cs.now().In(cs.loc)
	for _, job := range cs.jobs {
		if next, err := nextRun(job.Schedule, now); err == nil {
			ms := next.UnixMilli()
			job.State.NextRunAtMS = &ms
		}
	}
	cs.running = true
	cs.stopCh = make(chan struct{})
	cs.doneCh = make(chan struct{})
	stopCh, doneCh := cs.stopCh, cs.doneCh
	cs.mu.Unlock()

	go cs.loop(stopCh, doneCh)
	logger.InfoCF("cron", "Cron service started", map[string]interface{}{
		"jobs": len(cs.ListJobs()),
	})
	return nil
}

// Stop ends the scheduling loop. Jobs already running finish on their own.
func (cs *CronService) Stop() {
	cs.mu.Lock()
	if !cs.running {
		cs.mu.Unlock()
		return
	}
	cs.running = false
	close(cs.stopCh)
	doneCh := cs.doneCh
	cs.mu.Unlock()

	<-doneCh
	logger.InfoC("cron", "Cron service stopped")
}

// Wait blocks until every job launched so far has returned.
func (cs *CronService) Wait() {
	cs.inFlight.Wait()
}

// RunJob fires a job immediately on the calling goroutine.
func (cs *CronService) RunJob(ctx context.Context, id string) error {
	cs.mu.Lock()
	job, ok := cs.jobs[id]
	var snapshot CronJob
	if ok {
		snapshot = *job
	}
	cs.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return cs.execute(ctx, snapshot)
}

func (cs *CronService) signal() {
	select {
	case cs.wake <- struct{}{}:
	default:
	}
}

func (cs *CronService) loop(stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	for {
		var timerC <-chan time.Time
		var timer *time.Timer
		if next, ok := cs.earliest(); ok {
			delay := time.Until(time.UnixMilli(next))
			if delay < 0 {
				delay = 0
			}
			timer = time.NewTimer(delay)
			timerC = timer.C
		}

		select {
		case <-stopCh:
			if timer != nil {
				timer.Stop()
			}
			return
		case <-cs.wake:
			if timer != nil {
				timer.Stop()
			}
		case <-timerC:
			cs.runDue()
		}
	}
}

func (cs *CronService) earliest() (int64, bool) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	var best int64
	found := false
	for _, job := range cs.jobs {
		if job.State.NextRunAtMS == nil {
			continue
		}
		if !found || *job.State.NextRunAtMS < best {
			best = *job.State.NextRunAtMS
			found = true
		}
	}
	return best, found
}

func (cs *CronService) runDue() {
	now := cs.now().In(cs.loc)
	nowMS := now.UnixMilli()

	var due []CronJob
	cs.mu.Lock()
	for _, job := range cs.jobs {
		if job.State.NextRunAtMS == nil || *job.State.NextRunAtMS > nowMS {
			continue
		}
		due = append(due, *job)
		if next, err := followingRun(job, now); err == nil {
			ms := next.UnixMilli()
			job.State.NextRunAtMS = &ms
		} else {
			job.State.NextRunAtMS = nil
			logger.ErrorCF("cron", "Failed to compute next run", map[string]interface{}{
				"job_id": job.ID,
				"error":  err.Error(),
			})
		}
	}
	cs.mu.Unlock()

	for _, job := range due {
		cs.inFlight.Add(1)
		go func(job CronJob) {
			defer cs.inFlight.Done()
			_ = cs.execute(context.Background(), job)
		}(job)
	}
}

func (cs *CronService) execute(ctx context.Context, job CronJob) error {
	started := cs.now()
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("job panicked: %v", r)
			}
		}()
		return job.handler(ctx, job)
	}()

	cs.mu.Lock()
	if stored, ok := cs.jobs[job.ID]; ok {
		ms := started.UnixMilli()
		stored.State.LastRunAtMS = &ms
		stored.State.RunCount++
		if err != nil {
			stored.State.LastStatus = "error"
			stored.State.LastError = err.Error()
		} else {
			stored.State.LastStatus = "ok"
			stored.State.LastError = ""
		}
	}
	cs.mu.Unlock()

	if err != nil {
		logger.ErrorCF("cron", "Job failed", map[string]interface{}{
			"job_id": job.ID,
			"error":  err.Error(),
		})
		return err
	}
	logger.DebugCF("cron", "Job finished", map[string]interface{}{"job_id": job.ID})
	return nil
}

// NextRun returns the first fire time strictly after ref.
func NextRun(s CronSchedule, ref time.Time) (time.Time, error) {
	return nextRun(s, ref)
}

func nextRun(s CronSchedule, ref time.Time) (time.Time, error) {
	switch s.Kind {
	case KindEvery:
		if s.EveryMS == nil || *s.EveryMS <= 0 {
			return time.Time{}, fmt.Errorf("cron: interval must be positive")
		}
		return ref.Add(time.Duration(*s.EveryMS) * time.Millisecond), nil
	case KindCron:
		return gronx.NextTickAfter(s.Expr, ref, false)
	default:
		return time.Time{}, fmt.Errorf("cron: unknown schedule kind %q", s.Kind)
	}
}

// followingRun advances an interval job from its previous slot so the cadence
// does not drift, skipping slots that were missed entirely.
func followingRun(job *CronJob, now time.Time) (time.Time, error) {
	if job.Schedule.Kind == KindEvery && job.State.NextRunAtMS != nil && job.Schedule.EveryMS != nil {
		interval := time.Duration(*job.Schedule.EveryMS) * time.Millisecond
		next := time.UnixMilli(*job.State.NextRunAtMS).In(now.Location()).Add(interval)
		for !next.After(now) {
			next = next.Add(interval)
		}
		return next, nil
	}
	return nextRun(job.Schedule, now)
}
