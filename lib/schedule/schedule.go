// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// OriginPrefix starts the origin of every scheduled submission.
const OriginPrefix = "schedule:"

// ErrStarted is returned by a second call to Start.
var ErrStarted = errors.New("schedule: already started")

// Entry submits Command whenever Spec fires.
type Entry struct {
	Name    string
	Spec    string
	Command string
}

// SubmitFunc hands a scheduled command line to the bridge. name is the
// entry's name.
type SubmitFunc func(ctx context.Context, name, line string) error

// Upcoming is an entry's next firing time.
type Upcoming struct {
	Name string
	Next time.Time
}

// Origin returns the origin scheduled submissions of name carry.
func Origin(name string) string {
	return OriginPrefix + name
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

type job struct {
	entry    Entry
	schedule cron.Schedule
	id       cron.EntryID
}

// Scheduler runs a fixed set of entries.
type Scheduler struct {
	submit SubmitFunc
	logger *slog.Logger
	cron   *cron.Cron

	mu      sync.Mutex
	jobs    []*job
	started bool
}

// New parses every entry. It fails if any spec is invalid, a name is
// empty or repeated, or a command is blank.
func New(entries []Entry, submit SubmitFunc, logger *slog.Logger) (*Scheduler, error) {
	if submit == nil {
		return nil, fmt.Errorf("schedule: submit function is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	var errs []error
	seen := make(map[string]bool, len(entries))
	jobs := make([]*job, 0, len(entries))
	for _, entry := range entries {
		if entry.Name == "" {
			errs = append(errs, fmt.Errorf("schedule: entry with spec %q has no name", entry.Spec))
			continue
		}
		if seen[entry.Name] {
			errs = append(errs, fmt.Errorf("schedule: duplicate entry %q", entry.Name))
			continue
		}
		seen[entry.Name] = true
		if strings.TrimSpace(entry.Command) == "" {
			errs = append(errs, fmt.Errorf("schedule: entry %q has no command", entry.Name))
		}
		schedule, err := parser.Parse(entry.Spec)
		if err != nil {
			errs = append(errs, fmt.Errorf("schedule: entry %q: %w", entry.Name, err))
			continue
		}
		jobs = append(jobs, &job{entry: entry, schedule: schedule})
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	logger = logger.With("component", "schedule")
	adapter := cronLogger{logger: logger}
	return &Scheduler{
		submit: submit,
		logger: logger,
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithLogger(adapter),
			cron.WithChain(cron.Recover(adapter), cron.SkipIfStillRunning(adapter)),
		),
		jobs: jobs,
	}, nil
}

// Len returns the number of entries.
func (s *Scheduler) Len() int { return len(s.jobs) }

// Start begins firing entries. Submissions use ctx; cancelling it
// makes in-progress submissions fail but does not stop the scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrStarted
	}
	s.started = true

	for _, j := range s.jobs {
		j := j
		j.id = s.cron.Schedule(j.schedule, cron.FuncJob(func() { s.fire(ctx, j.entry) }))
	}
	s.cron.Start()
	for _, upcoming := range s.upcomingLocked() {
		s.logger.Info("scheduled command", "name", upcoming.Name, "next", upcoming.Next)
	}
	return nil
}

// Stop stops firing and waits for running submissions to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Upcoming returns each entry's next firing, soonest first. Before
// Start it is computed from the current time.
func (s *Scheduler) Upcoming() []Upcoming {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upcomingLocked()
}

func (s *Scheduler) upcomingLocked() []Upcoming {
	now := time.Now()
	upcoming := make([]Upcoming, 0, len(s.jobs))
	for _, j := range s.jobs {
		next := j.schedule.Next(now)
		if s.started {
			if entry := s.cron.Entry(j.id); !entry.Next.IsZero() {
				next = entry.Next
			}
		}
		upcoming = append(upcoming, Upcoming{Name: j.entry.Name, Next: next})
	}
	sort.SliceStable(upcoming, func(a, b int) bool {
		return upcoming[a].Next.Before(upcoming[b].Next)
	})
	return upcoming
}

func (s *Scheduler) fire(ctx context.Context, entry Entry) {
	s.logger.Info("running scheduled command", "name", entry.Name, "command", entry.Command)
	if err := s.submit(ctx, entry.Name, entry.Command); err != nil {
		s.logger.Warn("scheduled command failed", "name", entry.Name, "error", err)
	}
}

// cronLogger routes the cron library's logging to slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(message string, keysAndValues ...any) {
	l.logger.Debug(message, keysAndValues...)
}

func (l cronLogger) Error(err error, message string, keysAndValues ...any) {
	l.logger.Error(message, append(keysAndValues, "error", err)...)
}
