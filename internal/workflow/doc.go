// Package workflow runs one evaluation pass end to end.
//
// A Runner loads the item source, fingerprints every item, classifies it
// against the checkpoint and hands the unfinished ones to the dispatcher.
// Each run builds its own rate governors and retry controllers, so several
// runs can share a process. When the context ends the runner stops
// admitting calls, flushes what was collected and writes a partial report;
// re-running the same command resumes from the checkpoint. Run milestones
// go to the configured notifier.
//
// Plan performs the same classification without contacting any backend.
package workflow
