/*
scheduler.go - Start-of-leave sweep

PURPOSE:
  A leave whose start date arrives while it is still WAITING has slipped
  through the approval workflow. The scheduler sweeps for such leaves once
  per interval and records a reminder alarm (plus a best-effort push) to
  the owner, so an undecided request never starts silently.

DESIGN:
  Background goroutine on a ticker with a stop channel; Stop blocks until
  the loop exits. A sweep failure is logged and retried on the next tick.
*/
package leave

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/warp/leave-engine/calendar"
)

// Scheduler periodically reminds owners of leaves starting while WAITING.
type Scheduler struct {
	Store    TxStore
	Alarms   *Alarms
	Notifier Notifier
	Interval time.Duration

	log    *logrus.Logger
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

func NewScheduler(store TxStore, alarms *Alarms, notifier Notifier, interval time.Duration, log *logrus.Logger) *Scheduler {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if log == nil {
		log = logrus.New()
	}
	return &Scheduler{
		Store:    store,
		Alarms:   alarms,
		Notifier: notifier,
		Interval: interval,
		log:      log,
		stop:     make(chan struct{}),
	}
}

// Start begins the sweep loop.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ticker = time.NewTicker(s.Interval)
	s.wg.Add(1)
	go s.run()
	s.log.WithField("interval", s.Interval).Info("scheduler started")
}

// Stop halts the loop and waits for it to exit. Safe to call more than
// once.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil {
		s.ticker.Stop()
		s.ticker = nil
		close(s.stop)
	}
	s.wg.Wait()
}

func (s *Scheduler) run() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ticker.C:
			if err := s.Sweep(context.Background(), calendar.Today()); err != nil {
				s.log.WithError(err).Warn("start-of-leave sweep failed")
			}
		case <-s.stop:
			return
		}
	}
}

// Sweep records a reminder for every WAITING leave starting on day.
func (s *Scheduler) Sweep(ctx context.Context, day calendar.Date) error {
	leaves, err := s.Store.ListLeavesStarting(ctx, day, StatusWaiting)
	if err != nil {
		return &StorageError{Op: "list starting leaves", Err: err}
	}

	for _, l := range leaves {
		message := fmt.Sprintf("Your %s request starting %s is still waiting for a decision.",
			typeNoun(l.Type), l.Range.Start)
		if _, err := s.Alarms.Record(ctx, l.UserID, l.ID, message); err != nil {
			return err
		}
		s.Notifier.Notify(l.UserID, "alarm", message)
	}
	if len(leaves) > 0 {
		s.log.WithFields(logrus.Fields{"day": day, "count": len(leaves)}).
			Info("reminded undecided leaves")
	}
	return nil
}
