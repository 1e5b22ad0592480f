package workflow

import (
	"quizqa/internal/checkpoint"
	"quizqa/internal/checks"
	"quizqa/internal/dispatch"
	"quizqa/internal/evaluation"
	"quizqa/internal/fingerprint"
	"quizqa/internal/items"
)

// Plan is the classification of every loaded item against the checkpoint.
type Plan struct {
	Items int
	// Unchecked counts items whose type no check applies to.
	Unchecked int
	Counts    map[evaluation.Classification]int
	// Calls maps backend name to the number of calls pending for it.
	Calls map[string]int
	// Checks maps backend name to the number of check results pending for it.
	Checks map[string]int
	Tasks  []dispatch.Task
}

// TotalCalls returns the number of backend calls the plan needs.
func (p Plan) TotalCalls() int {
	n := 0
	for _, c := range p.Calls {
		n += c
	}
	return n
}

// BuildPlan classifies list against store. Complete items produce no task.
func BuildPlan(list []items.Item, catalog *checks.Catalog, store *checkpoint.Store, policy evaluation.Policy) Plan {
	plan := Plan{
		Items:  len(list),
		Counts: make(map[evaluation.Classification]int),
		Calls:  make(map[string]int),
		Checks: make(map[string]int),
	}
	for _, item := range list {
		required := catalog.Requirements(item.Type)
		if required.Total() == 0 {
			plan.Unchecked++
			continue
		}
		fp := fingerprint.Of(item)
		verdict := store.Classify(item.ID, fp, required, policy)
		plan.Counts[verdict.Class]++
		if verdict.Class == evaluation.Complete {
			continue
		}
		for name, pending := range verdict.Pending {
			if len(pending) == 0 {
				continue
			}
			plan.Calls[name]++
			plan.Checks[name] += len(pending)
		}
		plan.Tasks = append(plan.Tasks, dispatch.Task{
			Item:        item,
			Fingerprint: fp,
			Class:       verdict.Class,
			Required:    required,
			Pending:     verdict.Pending,
		})
	}
	return plan
}
