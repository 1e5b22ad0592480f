package dispatch

import (
	"quizqa/internal/backend"
	"quizqa/internal/evaluation"
	"quizqa/internal/services"
)

// Observer receives dispatch events for metrics. Implementations must be safe
// for concurrent use.
type Observer interface {
	CallStarted(backend string)
	CallFinished(backend string, kind services.Kind)
	Throttled(backend string)
	Retried(backend string, kind services.Kind)
	Usage(backend string, usage backend.Usage)
	CheckRecorded(backend, check string, passed bool, failure evaluation.Failure)
	RecordCommitted(status evaluation.Classification)
	Flushed(ok bool)
}

type nopObserver struct{}

func (nopObserver) CallStarted(string)                                     {}
func (nopObserver) CallFinished(string, services.Kind)                     {}
func (nopObserver) Throttled(string)                                       {}
func (nopObserver) Retried(string, services.Kind)                          {}
func (nopObserver) Usage(string, backend.Usage)                            {}
func (nopObserver) CheckRecorded(string, string, bool, evaluation.Failure) {}
func (nopObserver) RecordCommitted(evaluation.Classification)              {}
func (nopObserver) Flushed(bool)                                           {}
