package sweeper

import (
	"context"

	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"

	"github.com/spacedesk/spacedesk/application/port/inbound"
	"github.com/spacedesk/spacedesk/application/port/outbound"
	"github.com/spacedesk/spacedesk/domain"
	"github.com/spacedesk/spacedesk/domain/apperr"
	"github.com/spacedesk/spacedesk/infrastructure/service/logger"
)

// Sweeper periodically expires allocation lines whose period has lapsed. All
// writes go through the workflow, so sweeps contend on the same per-entity
// guards as interactive operations.
type Sweeper struct {
	events     outbound.EventRepository
	entities   outbound.EntityRepository
	allocation inbound.AllocationUseCase
	clock      clockwork.Clock
	log        logger.Logger
	schedule   string
	cron       *cron.Cron
}

// New creates a sweeper running on the given cron schedule (e.g. "@every 1m")
func New(
	events outbound.EventRepository,
	entities outbound.EntityRepository,
	allocation inbound.AllocationUseCase,
	clock clockwork.Clock,
	log logger.Logger,
	schedule string,
) *Sweeper {
	return &Sweeper{
		events:     events,
		entities:   entities,
		allocation: allocation,
		clock:      clock,
		log:        log,
		schedule:   schedule,
	}
}

// Start registers the sweep on the cron schedule and starts the scheduler
func (s *Sweeper) Start() error {
	c := cron.New()
	_, err := c.AddFunc(s.schedule, func() {
		if _, err := s.Sweep(context.Background()); err != nil {
			s.log.Error(context.Background(), "expiration sweep failed", err, nil)
		}
	})
	if err != nil {
		return err
	}
	c.Start()
	s.cron = c
	s.log.Info(context.Background(), "expiration sweeper started", map[string]interface{}{
		"schedule": s.schedule,
	})
	return nil
}

// Stop halts the scheduler; a sweep already running finishes first
func (s *Sweeper) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// Sweep expires every lapsed line and returns how many lines were closed.
// A line that loses a race against an interactive operation, or whose hours
// the recipient has re-allocated downstream, is skipped; the next sweep
// retries it against the fresh state.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	now := s.clock.Now().UTC()
	lapsed, err := s.events.FindLapsedLines(ctx, now)
	if err != nil {
		return 0, err
	}

	expired := 0
	skipped := 0
	recipients := make(map[string]bool)
	for _, event := range lapsed {
		if _, err := s.allocation.ExpireAllocation(ctx, event.ID); err != nil {
			if apperr.Retryable(err) {
				skipped++
				continue
			}
			// A lapsed line held open by downstream allocations stays live
			// until an operator revokes the recipient's outbound lines.
			if apperr.HasCode(err, apperr.ErrCodeInvalidState) {
				s.log.Warn(ctx, "lapsed line held open by downstream allocations", map[string]interface{}{
					"event_id":    event.ID,
					"from_entity": event.FromEntityID,
					"to_entity":   event.ToEntityID,
					"period":      event.Period.Name,
				})
				skipped++
				continue
			}
			return expired, err
		}
		expired++
		recipients[event.ToEntityID] = true
	}

	for id := range recipients {
		if err := s.markExpiredIfDrained(ctx, id); err != nil {
			return expired, err
		}
	}

	logger.LogSweepResult(ctx, s.log, expired, skipped, s.clock.Now().UTC().Sub(now))
	return expired, nil
}

// markExpiredIfDrained sets the terminal entity status once every line the
// entity ever received has expired
func (s *Sweeper) markExpiredIfDrained(ctx context.Context, entityID string) error {
	latest, err := s.events.LatestByRecipient(ctx, entityID)
	if err != nil {
		return err
	}
	if len(latest) == 0 {
		return nil
	}
	for _, event := range latest {
		if event.ActionType != domain.ActionExpired {
			return nil
		}
	}
	entity, err := s.entities.FindByID(ctx, entityID)
	if err != nil {
		return err
	}
	if entity.Status == domain.EntityStatusExpired {
		return nil
	}
	s.log.Info(ctx, "entity expired: all received lines lapsed", map[string]interface{}{
		"entity_id": entityID,
	})
	return s.entities.UpdateStatus(ctx, entityID, domain.EntityStatusExpired)
}
