package session

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// Sweeper runs Manager.Sweep on a schedule.
type Sweeper struct {
	sched gocron.Scheduler
	m     *Manager
	log   *zap.Logger
}

func NewSweeper(m *Manager, logger *zap.Logger) (*Sweeper, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	return &Sweeper{sched: sched, m: m, log: logger}, nil
}

func (s *Sweeper) Start(interval time.Duration) error {
	_, err := s.sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			defer cancel()
			if n := s.m.Sweep(ctx); n > 0 {
				s.log.Info("expired sessions dropped", zap.Int("sessions", n))
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return err
	}
	s.sched.Start()
	s.log.Info("session sweeper started", zap.Duration("interval", interval))
	return nil
}

func (s *Sweeper) Stop() error {
	return s.sched.Shutdown()
}
