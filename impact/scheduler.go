package impact

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"aegis/logging"
	"aegis/models"
)

const DefaultDelay = 5 * time.Minute

// Evaluator is what the scheduler runs once a delay has passed.
type Evaluator interface {
	EvaluateMeasure(ctx context.Context, m models.DeployedMeasure) (Result, error)
}

type pending struct {
	cancel context.CancelFunc
}

// Scheduler runs deferred impact evaluations. Each scheduled measure owns a
// cancel func; Stop cancels everything still waiting and joins the workers.
type Scheduler struct {
	eval  Evaluator
	delay time.Duration
	after func(time.Duration) <-chan time.Time
	log   *logrus.Entry

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	pending map[uint]*pending
}

type SchedulerOption func(*Scheduler)

func WithSchedulerLogger(l logrus.FieldLogger) SchedulerOption {
	return func(s *Scheduler) { s.log = logging.Component(l, "impact-scheduler") }
}

// WithAfter replaces time.After, so tests can fire timers by hand.
func WithAfter(after func(time.Duration) <-chan time.Time) SchedulerOption {
	return func(s *Scheduler) { s.after = after }
}

func NewScheduler(eval Evaluator, delay time.Duration, opts ...SchedulerOption) *Scheduler {
	if delay <= 0 {
		delay = DefaultDelay
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		eval:    eval,
		delay:   delay,
		after:   time.After,
		log:     logging.Component(nil, "impact-scheduler"),
		ctx:     ctx,
		cancel:  cancel,
		pending: make(map[uint]*pending),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Schedule evaluates m after the configured delay. Scheduling a measure that
// is already waiting restarts its timer.
func (s *Scheduler) Schedule(m models.DeployedMeasure) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx.Err() != nil {
		return
	}
	if prev, ok := s.pending[m.ID]; ok {
		prev.cancel()
	}

	ctx, cancel := context.WithCancel(s.ctx)
	p := &pending{cancel: cancel}
	s.pending[m.ID] = p
	timer := s.after(s.delay)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.release(m.ID, p)

		select {
		case <-ctx.Done():
			return
		case <-timer:
		}

		if _, err := s.eval.EvaluateMeasure(ctx, m); err != nil && ctx.Err() == nil {
			s.log.WithError(err).WithFields(logrus.Fields{
				"event_id":   m.EventID,
				"measure_id": m.ID,
			}).Error("Deferred impact evaluation failed")
		}
	}()

	s.log.WithFields(logrus.Fields{
		"event_id":   m.EventID,
		"measure_id": m.ID,
		"delay":      s.delay.String(),
	}).Debug("Impact evaluation scheduled")
}

// Cancel drops the pending evaluation for a measure, if any.
func (s *Scheduler) Cancel(id uint) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[id]
	if !ok {
		return false
	}
	p.cancel()
	delete(s.pending, id)
	return true
}

// Pending reports how many evaluations are waiting or running.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) release(id uint, p *pending) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.cancel()
	if s.pending[id] == p {
		delete(s.pending, id)
	}
}
