package dispatch

import (
	"strconv"

	"quizqa/internal/evaluation"
	"quizqa/internal/items"
)

// Task is one item that still owes checks to at least one backend.
type Task struct {
	Item        items.Item
	Fingerprint string
	Class       evaluation.Classification
	// Required is the full backend-to-checks requirement for the item's type.
	Required evaluation.Requirements
	// Pending is the subset that must be (re)run now.
	Pending evaluation.Requirements
}

// Calls returns the number of backend calls the task needs.
func (t Task) Calls() int {
	return len(t.Pending.Backends())
}

// Partition orders tasks so items sharing a group key run next to each other,
// then cuts the sequence into sub-batches of at most size tasks. Groups keep
// the order in which they first appear; items without a group key stay in
// input order after the grouped ones that precede them.
func Partition(tasks []Task, size int) [][]Task {
	if len(tasks) == 0 {
		return nil
	}
	if size <= 0 {
		size = len(tasks)
	}

	var order []string
	grouped := make(map[string][]Task)
	for i, task := range tasks {
		key := task.Item.Group
		if key == "" {
			// Ungrouped items get a unique slot so they are never merged.
			key = "\x00" + strconv.Itoa(i)
		}
		if _, seen := grouped[key]; !seen {
			order = append(order, key)
		}
		grouped[key] = append(grouped[key], task)
	}

	ordered := make([]Task, 0, len(tasks))
	for _, key := range order {
		ordered = append(ordered, grouped[key]...)
	}

	batches := make([][]Task, 0, (len(ordered)+size-1)/size)
	for start := 0; start < len(ordered); start += size {
		end := min(start+size, len(ordered))
		batches = append(batches, ordered[start:end])
	}
	return batches
}
