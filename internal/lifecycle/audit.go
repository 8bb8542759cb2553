package lifecycle

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/mycelian/relic-service/internal/eventlog"
	"github.com/mycelian/relic-service/internal/model"
)

// Audit classifies the relic items seen by a world scan against the ids
// being tracked. It changes nothing.
func (e *Engine) Audit(ctx context.Context, seen []model.Observation) (model.AuditReport, error) {
	return call(ctx, e.sched.RunNow, func() (model.AuditReport, error) {
		report := model.AuditReport{
			Findings: make([]model.AuditFinding, 0, len(seen)),
			Missing:  []uuid.UUID{},
		}
		counted := make(map[uuid.UUID]int)
		for _, obs := range seen {
			class := model.AuditReal
			switch {
			case obs.Relic == uuid.Nil:
				class = model.AuditUntagged
				report.Untagged++
			case !e.store.Registry().Contains(obs.Relic):
				class = model.AuditUnknown
				report.Unknown++
			case counted[obs.Relic] > 0:
				class = model.AuditDuplicate
				report.Duplicate++
			default:
				report.Real++
			}
			if obs.Relic != uuid.Nil {
				counted[obs.Relic]++
			}
			report.Findings = append(report.Findings, model.AuditFinding{Observation: obs, Class: class})
		}

		for _, id := range e.store.Registry().IDs() {
			if counted[id] == 0 {
				report.Missing = append(report.Missing, id)
			}
		}
		sort.Slice(report.Missing, func(i, j int) bool { return report.Missing[i].String() < report.Missing[j].String() })

		e.record(eventlog.Entry{Event: "AUDIT", Context: map[string]any{
			"observed":  len(seen),
			"real":      report.Real,
			"untagged":  report.Untagged,
			"duplicate": report.Duplicate,
			"unknown":   report.Unknown,
			"missing":   len(report.Missing),
		}})
		return report, nil
	})
}
