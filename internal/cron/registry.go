package cron

import (
	"context"
	"fmt"
	"time"

	robfig "github.com/robfig/cron/v3"
)

// Job represents a scheduled task that runs inside the cron worker.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

type entry struct {
	job      Job
	spec     string
	schedule robfig.Schedule
}

// Registry tracks registered cron jobs and their standard five-field schedules.
type Registry struct {
	entries []entry
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a job under a cron expression such as "*/15 * * * *".
func (r *Registry) Register(spec string, job Job) error {
	if job == nil {
		return fmt.Errorf("job required")
	}
	schedule, err := robfig.ParseStandard(spec)
	if err != nil {
		return fmt.Errorf("job %s: parse schedule %q: %w", job.Name(), spec, err)
	}
	r.entries = append(r.entries, entry{job: job, spec: spec, schedule: schedule})
	return nil
}

// Jobs returns the registered jobs in the order they were added.
func (r *Registry) Jobs() []Job {
	jobs := make([]Job, 0, len(r.entries))
	for _, e := range r.entries {
		jobs = append(jobs, e.job)
	}
	return jobs
}

// Lookup finds a registered job by name.
func (r *Registry) Lookup(name string) (Job, bool) {
	for _, e := range r.entries {
		if e.job.Name() == name {
			return e.job, true
		}
	}
	return nil, false
}

// NextRuns maps each job name to its first activation after now.
func (r *Registry) NextRuns(now time.Time) map[string]time.Time {
	next := make(map[string]time.Time, len(r.entries))
	for _, e := range r.entries {
		next[e.job.Name()] = e.schedule.Next(now)
	}
	return next
}

// Due returns the jobs with a scheduled activation in (after, now].
func (r *Registry) Due(after, now time.Time) []Job {
	var due []Job
	for _, e := range r.entries {
		next := e.schedule.Next(after)
		if !next.After(now) {
			due = append(due, e.job)
		}
	}
	return due
}
