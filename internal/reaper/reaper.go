package reaper

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/podiumhq/podium/backend/internal/room"
)

// Service evicts room ledgers that have sat empty past the grace period.
// The grace period is what lets a participant's score survive a short
// reconnect blip after the last peer drops.
type Service struct {
	store    *room.Store
	grace    time.Duration
	interval time.Duration
	logger   *zap.Logger
	stop     chan struct{}
	wg       sync.WaitGroup
}

func New(store *room.Store, grace time.Duration, logger *zap.Logger) *Service {
	interval := grace / 4
	if interval < time.Second {
		interval = time.Second
	}
	return &Service{
		store:    store,
		grace:    grace,
		interval: interval,
		logger:   logger,
		stop:     make(chan struct{}),
	}
}

func (s *Service) Start() {
	s.wg.Add(1)
	go s.run()
	s.logger.Info("room reaper started",
		zap.Duration("grace", s.grace), zap.Duration("interval", s.interval))
}

func (s *Service) Stop() {
	close(s.stop)
	s.wg.Wait()
	s.logger.Info("room reaper stopped")
}

func (s *Service) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Sweep runs one eviction pass.
func (s *Service) Sweep() {
	evicted := s.store.EvictIdle(s.grace)
	if len(evicted) > 0 {
		s.logger.Info("reaped idle rooms", zap.Strings("rooms", evicted))
	}
}
