package evaluation

import (
	"context"

	"github.com/mind-engage/mindengage-mgd/internal/catalog"
	"github.com/mind-engage/mindengage-mgd/internal/scoring"
)

type DashboardRow struct {
	Coordinator catalog.Coordinator
	// Evaluation is nil when the coordinator has none for the period.
	Evaluation *Evaluation
	Result     scoring.Result
}

type Dashboard struct {
	Periods []catalog.Period // newest first
	Period  *catalog.Period  // nil when no period exists yet
	Rows    []DashboardRow
}

// Dashboard lists active coordinators for a period with their live score.
// periodID 0 selects the newest period.
func (s *Service) Dashboard(ctx context.Context, periodID int64) (Dashboard, error) {
	var d Dashboard
	var err error
	if d.Periods, err = s.Catalog.ListPeriods(ctx, catalog.ListOpts{}); err != nil {
		return Dashboard{}, err
	}
	switch {
	case periodID != 0:
		p, err := s.Catalog.GetPeriod(ctx, periodID)
		if err != nil {
			return Dashboard{}, err
		}
		d.Period = &p
	case len(d.Periods) > 0:
		p := d.Periods[0]
		d.Period = &p
	}

	coords, err := s.Catalog.ListActiveCoordinators(ctx)
	if err != nil {
		return Dashboard{}, err
	}
	byCoord := map[int64]Evaluation{}
	if d.Period != nil {
		evs, err := s.Store.ListByPeriod(ctx, d.Period.ID)
		if err != nil {
			return Dashboard{}, err
		}
		for _, e := range evs {
			byCoord[e.CoordinatorID] = e
		}
	}

	for _, c := range coords {
		row := DashboardRow{Coordinator: c}
		if e, ok := byCoord[c.ID]; ok {
			resp, err := s.Store.Responses(ctx, e.ID)
			if err != nil {
				return Dashboard{}, err
			}
			row.Evaluation = &e
			row.Result = resp.Score()
		}
		d.Rows = append(d.Rows, row)
	}
	return d, nil
}
