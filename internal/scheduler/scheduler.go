// Package scheduler keeps the in-memory queue of match reminders on top of a
// gocron scheduler. Each reminder is a one-time job named by its key; it
// fires ReminderLead before its match, hands the pair of players to the
// notifier and then records the reminder as sent.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/duel-lords/internal/domain"
	"github.com/duel-lords/internal/notifier"
	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
)

// ErrSchedulerStopped is returned by Schedule when the scheduler is not running
var ErrSchedulerStopped = errors.New("reminder scheduler is not running")

// MatchStore is the slice of persistence the scheduler depends on
type MatchStore interface {
	ListUpcomingUnremindedMatches(ctx context.Context, now time.Time) ([]domain.Match, error)
	MarkReminderSent(ctx context.Context, matchID int64) error
}

// Notifier delivers a reminder to both players of a match
type Notifier interface {
	NotifyReminder(ctx context.Context, r domain.Reminder) notifier.DeliveryReport
}

type job struct {
	reminder domain.Reminder
	id       uuid.UUID
}

// Scheduler owns the reminder jobs for one process
type Scheduler struct {
	store    MatchStore
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	cron    gocron.Scheduler
	jobs    map[string]*job
	running bool
	ctx     context.Context
	cancel  context.CancelFunc

	inflight sync.WaitGroup
}

// New creates a stopped scheduler
func New(store MatchStore, n Notifier, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		store:    store,
		notifier: n,
		logger:   logger,
		now:      time.Now,
		jobs:     make(map[string]*job),
	}
}

// Start activates the queue and re-registers every future match whose
// reminder has not been handled. Calling Start on a running scheduler only
// repeats the recovery pass.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		cron, err := gocron.NewScheduler(
			gocron.WithLocation(time.UTC),
			gocron.WithLogger(s.logger),
		)
		if err != nil {
			s.mu.Unlock()
			return fmt.Errorf("creating job scheduler: %w", err)
		}
		cron.Start()

		s.cron = cron
		s.ctx, s.cancel = context.WithCancel(ctx)
		s.running = true
		s.logger.Info("reminder scheduler started")
	}
	s.mu.Unlock()

	return s.recover(ctx)
}

func (s *Scheduler) recover(ctx context.Context) error {
	matches, err := s.store.ListUpcomingUnremindedMatches(ctx, s.now())
	if err != nil {
		return fmt.Errorf("loading pending reminders: %w", err)
	}

	scheduled := 0
	for i := range matches {
		ok, err := s.Schedule(matches[i].Reminder())
		if err != nil {
			return err
		}
		if ok {
			scheduled++
		}
	}

	s.logger.Info("reminders recovered", "matches", len(matches), "scheduled", scheduled)
	return nil
}

// Schedule registers a reminder to fire ReminderLead before the match. A job
// with the same key is replaced. It returns false without error when the
// reminder time has already passed.
func (s *Scheduler) Schedule(r domain.Reminder) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return false, ErrSchedulerStopped
	}

	key := r.Key()
	fireAt := r.FireAt()
	wait := fireAt.Sub(s.now())
	if wait <= 0 {
		s.logger.Info("reminder time already passed, not scheduling",
			"key", key,
			"match_id", r.MatchID,
			"match_time", r.MatchTime,
		)
		return false, nil
	}

	if existing, ok := s.jobs[key]; ok {
		if err := s.cron.RemoveJob(existing.id); err != nil && !errors.Is(err, gocron.ErrJobNotFound) {
			s.logger.Warn("failed to remove replaced reminder", "key", key, "error", err)
		}
		delete(s.jobs, key)
	}

	// The start time is taken from the wall clock so an injected now only
	// shifts the wait, not the timer base.
	j := &job{reminder: r}
	scheduled, err := s.cron.NewJob(
		gocron.OneTimeJob(gocron.OneTimeJobStartDateTime(time.Now().Add(wait))),
		gocron.NewTask(func() { s.fire(j) }),
		gocron.WithName(key),
		gocron.WithTags(key),
	)
	if err != nil {
		return false, fmt.Errorf("scheduling reminder %s: %w", key, err)
	}
	j.id = scheduled.ID()
	s.jobs[key] = j

	s.logger.Info("reminder scheduled",
		"key", key,
		"match_id", r.MatchID,
		"fire_at", fireAt,
	)
	return true, nil
}

func (s *Scheduler) fire(j *job) {
	key := j.reminder.Key()

	s.mu.Lock()
	if !s.running || s.jobs[key] != j {
		s.mu.Unlock()
		return
	}
	delete(s.jobs, key)
	s.inflight.Add(1)
	ctx := s.ctx
	s.mu.Unlock()

	defer s.inflight.Done()

	r := j.reminder
	report := s.notifier.NotifyReminder(ctx, r)
	s.logger.Info("reminder fired",
		"key", key,
		"match_id", r.MatchID,
		"delivered", len(report.Delivered),
		"failed", len(report.Failed),
	)

	if r.MatchID == 0 {
		return
	}
	if err := s.store.MarkReminderSent(ctx, r.MatchID); err != nil {
		if errors.Is(err, domain.ErrReminderAlreadySent) {
			s.logger.Warn("reminder was already marked sent", "match_id", r.MatchID)
			return
		}
		s.logger.Error("failed to mark reminder sent", "match_id", r.MatchID, "error", err)
	}
}

// Stop cancels every pending reminder and waits for callbacks already in
// progress. No reminder fires after Stop returns.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	clear(s.jobs)
	cron, cancel := s.cron, s.cancel
	s.cron = nil
	s.mu.Unlock()

	s.inflight.Wait()
	if err := cron.Shutdown(); err != nil {
		s.logger.Warn("job scheduler shutdown", "error", err)
	}
	cancel()

	s.logger.Info("reminder scheduler stopped")
}

// Pending returns the reminders waiting to fire, ordered by key
func (s *Scheduler) Pending() []domain.Reminder {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending := make([]domain.Reminder, 0, len(s.jobs))
	for _, j := range s.jobs {
		pending = append(pending, j.reminder)
	}
	sort.Slice(pending, func(a, b int) bool {
		return pending[a].Key() < pending[b].Key()
	})
	return pending
}

// IsRunning returns whether the scheduler accepts new reminders
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
