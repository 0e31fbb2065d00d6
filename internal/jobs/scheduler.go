package jobs

import (
	"context"
	"log"

	"github.com/robfig/cron/v3"

	"github.com/heartlink/backend/internal/services"
)

// Scheduler owns the background sweeps. Today that is one job: expiring
// lapsed subscriptions shortly after midnight UTC.
type Scheduler struct {
	cron     *cron.Cron
	payments *services.PaymentService
}

func NewScheduler(payments *services.PaymentService) *Scheduler {
	return &Scheduler{
		cron:     cron.New(),
		payments: payments,
	}
}

// Start registers and starts the background jobs.
func (s *Scheduler) Start(ctx context.Context) {
	s.cron.AddFunc("15 0 * * *", func() {
		log.Printf("[CRON] Running subscription expiry sweep")
		expired, err := s.payments.ExpireSubscriptions(ctx)
		if err != nil {
			log.Printf("[CRON] Subscription expiry sweep failed: %v", err)
			return
		}
		log.Printf("[CRON] Subscription expiry sweep finished, %d expired", expired)
	})

	s.cron.Start()
	log.Printf("[CRON] Scheduler started")
}

// Stop stops the scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	log.Printf("[CRON] Scheduler stopped")
}
