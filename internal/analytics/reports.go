package analytics

import (
	"context"
	"sort"

	"stealthcompany.com/medicapi/internal/apierr"
)

// Report names served by Run
const (
	ReportActivePregnancies    = "active-pregnancies"
	ReportUpcomingAppointments = "upcoming-appointments"
	ReportMissedAppointments   = "missed-appointments"
	ReportUpcomingDueDates     = "upcoming-due-dates"
	ReportTotalBirths          = "total-births"
)

type reportFunc func(e *Engine, ctx context.Context, district string) (interface{}, error)

var reports = map[string]reportFunc{
	ReportActivePregnancies: func(e *Engine, ctx context.Context, district string) (interface{}, error) {
		return e.ActivePregnancies(ctx, district)
	},
	ReportUpcomingAppointments: func(e *Engine, ctx context.Context, district string) (interface{}, error) {
		return e.UpcomingAppointments(ctx, district)
	},
	ReportMissedAppointments: func(e *Engine, ctx context.Context, district string) (interface{}, error) {
		return e.MissedAppointments(ctx, district)
	},
	ReportUpcomingDueDates: func(e *Engine, ctx context.Context, district string) (interface{}, error) {
		return e.UpcomingDueDates(ctx, district)
	},
	ReportTotalBirths: func(e *Engine, ctx context.Context, district string) (interface{}, error) {
		return e.TotalBirths(ctx, district)
	},
}

// ReportNames lists the reports Run accepts, sorted
func ReportNames() []string {
	names := make([]string, 0, len(reports))
	for name := range reports {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run executes the named report scoped to district (empty for all districts)
func (e *Engine) Run(ctx context.Context, name, district string) (interface{}, error) {
	report, ok := reports[name]
	if !ok {
		return nil, apierr.Validation("unknown report %q", name)
	}
	return report(e, ctx, district)
}
