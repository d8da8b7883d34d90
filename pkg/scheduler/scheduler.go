// Package scheduler runs the background cron sweeps: expiring lapsed
// payment sessions and marking confirmed bookings whose grace window has
// elapsed as no-show.
package scheduler

import (
	"context"

	"github.com/robfig/cron/v3"

	"github.com/datquang03/studio-booking-engine/internal/booking"
	"github.com/datquang03/studio-booking-engine/internal/payment"
	"github.com/datquang03/studio-booking-engine/pkg/logger"
)

// Scheduler drives the periodic sweeps on a cron schedule.
type Scheduler struct {
	cron     *cron.Cron
	bookings *booking.Engine
	payments *payment.Orchestrator
	log      logger.Logger
}

func New(bookings *booking.Engine, payments *payment.Orchestrator, log logger.Logger) *Scheduler {
	return &Scheduler{
		cron:     cron.New(),
		bookings: bookings,
		payments: payments,
		log:      log,
	}
}

// Start registers and starts the sweeps. Payment expiry runs every minute
// since a held checkout session is a short-lived resource; the no-show
// sweep runs every 5 minutes since its grace window is measured in tens of
// minutes.
func (s *Scheduler) Start() {
	s.log.Info("starting background scheduler")

	if _, err := s.cron.AddFunc("@every 1m", s.sweepExpiredPayments); err != nil {
		s.log.Error("failed to register payment expiry sweep", "error", err)
	}
	if _, err := s.cron.AddFunc("@every 5m", s.sweepNoShows); err != nil {
		s.log.Error("failed to register no-show sweep", "error", err)
	}

	s.cron.Start()
}

func (s *Scheduler) Stop() {
	s.log.Info("stopping background scheduler")
	s.cron.Stop()
}

func (s *Scheduler) sweepExpiredPayments() {
	ctx := context.Background()
	n, err := s.payments.SweepExpired(ctx)
	if err != nil {
		s.log.Error("payment expiry sweep failed", "error", err)
		return
	}
	if n > 0 {
		s.log.Info("expired pending payments", "count", n)
	}
}

func (s *Scheduler) sweepNoShows() {
	ctx := context.Background()
	n, err := s.bookings.SweepNoShows(ctx)
	if err != nil {
		s.log.Error("no-show sweep failed", "error", err)
		return
	}
	if n > 0 {
		s.log.Info("marked bookings no-show", "count", n)
	}
}
