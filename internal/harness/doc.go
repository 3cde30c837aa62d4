// Package harness executes statement streams concurrently and classifies
// every statement attempt.
//
// A Worker runs one stream strictly in order on one connection. The Scheduler
// starts one execution unit per Worker, either a goroutine or a child
// process depending on the isolation mode, and joins them all. Statement
// errors never escape a Worker; they become Outcomes. Only errors that make a
// whole run impossible (target setup, opening a shared session) are returned
// as errors.
//
// No cancellation is imposed unless a run timeout is configured. When it
// fires, the run context is cancelled with ErrHang as its cause: in-flight
// statements are interrupted, child processes are killed, and every worker
// that had not finished is reported with a hang outcome.
package harness
