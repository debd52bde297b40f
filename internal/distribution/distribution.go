package distribution

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Service is the distribution orchestrator. It is invoked synchronously by
// the periodic processor and by the admin trigger; both paths share the
// same machinery and the same safety guarantees, so concurrent or duplicate
// invocations are always safe.
type Service struct {
	db         *Database
	executor   *Executor
	completion *CompletionHandler
}

func NewService(gormDB *gorm.DB) *Service {
	db := NewDatabase(gormDB)
	executor := NewExecutor(db)
	return &Service{
		db:         db,
		executor:   executor,
		completion: NewCompletionHandler(db, executor),
	}
}

// RunScheduled is the periodic-trigger entry point. It distributes owed
// periods to every due position of the kind, then finalizes any active
// position whose duration has fully elapsed.
func (s *Service) RunScheduled(kind PeriodKind) (*Summary, error) {
	return s.run(kind, time.Now(), nil)
}

// RunManual is the admin entry point. Identical semantics to the scheduled
// run, but it also returns a per-position breakdown attributed to the
// acting admin. Because the underlying scan is the all-active catch-up
// scan, a manual run repairs positions stranded by missed scheduled runs.
func (s *Service) RunManual(kind PeriodKind, actorID string) (*DetailedSummary, error) {
	detailed := &DetailedSummary{ActorID: actorID, Details: []PositionDetail{}}
	summary, err := s.run(kind, time.Now(), detailed)
	if err != nil {
		return nil, err
	}
	detailed.Summary = *summary
	return detailed, nil
}

// Preview reports, without mutating anything, how many periods each active
// position of the kind is currently owed.
func (s *Service) Preview(kind PeriodKind) ([]PendingPreview, error) {
	views, err := s.scanAllActive(kind, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to scan positions: %w", err)
	}

	preview := make([]PendingPreview, 0, len(views))
	for _, v := range views {
		if v.MissingPeriods > 0 {
			preview = append(preview, PendingPreview{
				PositionID:     v.PositionID,
				PendingPeriods: v.MissingPeriods,
			})
		}
	}
	return preview, nil
}

// run executes one distribution batch. Only a failed scan propagates as an
// error; every per-position failure is caught, counted and reported in the
// summary so one bad position never aborts its siblings.
func (s *Service) run(kind PeriodKind, now time.Time, detailed *DetailedSummary) (*Summary, error) {
	logger := log.With().
		Str("service", "distribution").
		Str("kind", string(kind)).
		Logger()

	logger.Info().Msg("starting distribution run")

	views, err := s.scanAllActive(kind, now)
	if err != nil {
		return nil, fmt.Errorf("failed to scan active positions: %w", err)
	}

	summary := &Summary{Kind: kind, Errors: []PositionError{}}

	due := filterDue(views)
	for i := range due {
		pos := &due[i]
		summary.PositionsProcessed++

		result, err := s.executor.Execute(pos, now)
		s.record(summary, detailed, pos, result, false)
		if err != nil {
			summary.Errors = append(summary.Errors, PositionError{PositionID: pos.PositionID, Message: err.Error()})
			logger.Error().Err(err).Str("position_id", pos.PositionID).Msg("failed to distribute position")
			continue
		}
		if result.PeriodsDistributed > 0 {
			logger.Info().
				Str("position_id", pos.PositionID).
				Int("periods", result.PeriodsDistributed).
				Float64("amount", result.TotalAmount).
				Msg("distributed owed periods")
		}
	}

	expired := filterExpired(views)
	for i := range expired {
		pos := &expired[i]
		summary.PositionsProcessed++

		result, completed, err := s.completion.Finalize(pos, now)
		s.record(summary, detailed, pos, result, completed)
		if err != nil {
			summary.Errors = append(summary.Errors, PositionError{PositionID: pos.PositionID, Message: err.Error()})
			logger.Error().Err(err).Str("position_id", pos.PositionID).Msg("failed to finalize position")
			continue
		}
		if completed {
			summary.PositionsCompleted++
			logger.Info().
				Str("position_id", pos.PositionID).
				Float64("principal", pos.Principal).
				Msg("position completed, principal returned")
		}
	}

	logger.Info().
		Int("positions_processed", summary.PositionsProcessed).
		Int("periods_distributed", summary.TotalPeriodsDistributed).
		Float64("amount_distributed", summary.TotalAmountDistributed).
		Int("positions_completed", summary.PositionsCompleted).
		Int("errors", len(summary.Errors)).
		Msg("distribution run complete")

	return summary, nil
}

// record folds one position's result into the aggregate and, for manual
// runs, into the per-position detail list.
func (s *Service) record(summary *Summary, detailed *DetailedSummary, pos *PositionView, result ExecutionResult, completed bool) {
	summary.TotalPeriodsDistributed += result.PeriodsDistributed
	summary.TotalAmountDistributed += result.TotalAmount
	if detailed != nil {
		detailed.Details = append(detailed.Details, PositionDetail{
			PositionID:         pos.PositionID,
			PeriodsDistributed: result.PeriodsDistributed,
			AmountDistributed:  result.TotalAmount,
			Completed:          completed,
		})
	}
}
