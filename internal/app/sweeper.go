package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Sweeper is implemented by session stores that expire records themselves.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// SweepScheduler runs a store sweep on a cron schedule.
type SweepScheduler struct {
	cron    *cron.Cron
	store   Sweeper
	logger  *slog.Logger
	entryID cron.EntryID
}

// NewSweepScheduler accepts standard five-field specs and descriptors such
// as "@every 10m".
func NewSweepScheduler(store Sweeper, schedule string, logger *slog.Logger) (*SweepScheduler, error) {
	if store == nil {
		return nil, errors.New("app: sweeper must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &SweepScheduler{cron: cron.New(), store: store, logger: logger}
	id, err := s.cron.AddFunc(schedule, s.run)
	if err != nil {
		return nil, fmt.Errorf("app: invalid sweep schedule %q: %w", schedule, err)
	}
	s.entryID = id
	return s, nil
}

func (s *SweepScheduler) run() {
	n, err := s.store.Sweep(context.Background())
	if err != nil {
		s.logger.Error("session sweep failed", "err", err)
		return
	}
	if n > 0 {
		s.logger.Info("expired sessions swept", "count", n)
	}
}

func (s *SweepScheduler) Start() {
	s.cron.Start()
}

// Stop waits for a running sweep to finish.
func (s *SweepScheduler) Stop() {
	<-s.cron.Stop().Done()
}
