// Package engine provides the core build orchestration engine for
// Poltergeist (C7, the daemon supervisor's in-process driver): the
// target state machine, dependency wiring, and the per-target build
// scheduling that ties C2 (watchman), C3/C4 (priority engine and build
// queue, in pkg/queue), and C9 (builders) together.
package engine

// The implementation is split across:
// - poltergeist.go: core orchestration engine, the target state machine
// - factory.go: dependency injection factory
// - safegroup.go: panic-safe concurrency utilities
