// Package harness runs conformance scenarios against the reentrant
// dispatcher.
//
// A scenario carries its own script, drives a real dispatcher with the
// action evaluator, journals every outcome into an in-memory store, and
// checks per-event expectations plus assertions over the final state.
//
// # Scenario Format
//
//	name: recursion_limit
//	description: "A bounded routine refuses its third nested instance"
//	script: |
//	  routine: Recur: {
//	    params: ["n"]
//	    max_instances: 2
//	    body: [["dispatch", "Recur"], ["return", "%n%"]]
//	  }
//	settings:
//	  max_depth: 10
//	  backup_budget: 0
//	events:
//	  - routine: Recur
//	    params: [1]
//	    expect: { outcome: invoked, return: 1 }
//	  - interruptible: false
//	  - routine: Recur
//	    expect: { outcome: dropped, reason: not_interruptible }
//	assertions:
//	  - type: depth_max
//	    value: 2
//	  - type: trace_count
//	    where: "outcome = dropped AND reason = instance_limit"
//	    count: 1
//
// # Assertion Types
//
//   - depth_max: peak nesting depth equals value
//   - active_after: routine has count active instances after the run
//   - trace_count: count journal rows match the where filter
//   - trace_order: invoked routines, in seq order, equal routines
//   - balanced: depth, snapshot stack and live backups all returned to zero
//   - error_level: the global error indicator equals value
//
// # Deterministic Testing
//
// Each run gets a fresh logical clock, event IDs ev-1, ev-2, ... and a
// fresh in-memory journal, so traces are byte-identical across runs and
// can be compared against golden files (see RunWithGolden).
package harness
