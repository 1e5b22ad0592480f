// Command quizqa evaluates assessment items against a battery of quality
// checks run by external evaluation backends.
//
// Results are checkpointed per item, so an interrupted run resumes where it
// stopped and a finished item is never sent to a backend again unless its
// content changes.
//
//	quizqa run [--items FILE] [--checkpoint FILE] [--retry-failed] [--json]
//	quizqa plan [--items FILE] [--checkpoint FILE] [--retry-failed]
//	quizqa report [REPORT.json] [--from-checkpoint] [--json]
//	quizqa checkpoint stats | show ITEM_ID
//	quizqa config init [--path P] [--overwrite] | validate
//	quizqa test-notify
//
// run exits with status 2 when it was interrupted and 3 when the checkpoint
// could not be saved.
package main
