package distribution

import "time"

// annotate fills the derived window fields on a scanner row.
func annotate(view *PositionView, now time.Time) {
	window := CalculateWindow(view.StartTime, PeriodKind(view.Kind).PeriodLength(), now,
		view.TotalPeriods, view.DistributedCount)
	view.ElapsedPeriods = window.ElapsedPeriods
	view.MissingPeriods = window.MissingPeriods
	view.NextPeriodIndex = window.NextPeriodIndex
	view.IsExpired = window.ElapsedPeriods >= view.TotalPeriods
}

// scanAllActive returns every ACTIVE position of the kind, annotated. This
// is the catch-up scan: it includes positions whose duration lapsed during
// a scheduler outage so they can still be found and finalized.
func (s *Service) scanAllActive(kind PeriodKind, now time.Time) ([]PositionView, error) {
	views, err := s.db.ListActive(kind)
	if err != nil {
		return nil, err
	}
	for i := range views {
		annotate(&views[i], now)
	}
	return views, nil
}

// filterDue keeps positions owed at least one period and still inside their
// declared duration. Expired positions are excluded here on purpose: the
// orchestrator routes them through the completion path instead, so
// narrowing this filter can never starve them.
func filterDue(views []PositionView) []PositionView {
	due := make([]PositionView, 0, len(views))
	for _, v := range views {
		if v.MissingPeriods > 0 && !v.IsExpired {
			due = append(due, v)
		}
	}
	return due
}

// filterExpired keeps active positions whose full duration has elapsed,
// whether or not their final periods have been recorded yet.
func filterExpired(views []PositionView) []PositionView {
	expired := make([]PositionView, 0, len(views))
	for _, v := range views {
		if v.IsExpired {
			expired = append(expired, v)
		}
	}
	return expired
}
