package distribution

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Processor hosts the periodic trigger for one position kind. It fires the
// scheduled run once per cadence window; because every period is recorded
// at most once, firing more often, after an outage, or concurrently with a
// manual admin run is always safe.
type Processor struct {
	service  *Service
	kind     PeriodKind
	interval time.Duration
}

func NewProcessor(service *Service, kind PeriodKind) *Processor {
	return &Processor{
		service:  service,
		kind:     kind,
		interval: kind.PeriodLength(),
	}
}

// Start begins the distribution trigger loop. One run fires immediately so
// periods missed while the process was down are backfilled without waiting
// a full cadence window.
func (p *Processor) Start(ctx context.Context) {
	logger := log.With().
		Str("component", "distribution_processor").
		Str("kind", string(p.kind)).
		Logger()
	logger.Info().Dur("interval", p.interval).Msg("starting distribution processor")

	p.runOnce()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down distribution processor")
			return
		case <-ticker.C:
			p.runOnce()
		}
	}
}

func (p *Processor) runOnce() {
	logger := log.With().
		Str("component", "distribution_processor").
		Str("kind", string(p.kind)).
		Logger()

	if _, err := p.service.RunScheduled(p.kind); err != nil {
		// The next tick retries; idempotency makes the retry safe.
		logger.Error().Err(err).Msg("scheduled distribution run failed")
	}
}
