// Package service implements the long running side of the worker.
//
// The Supervisor owns a spool directory. Task requests arrive as
// *.task.json files, each holding one model.TaskRequest. A sweep reads
// the spool in name order and processes requests one at a time through
// worker.Analyzer, so there is never more than one chopchopgo child
// process alive.
//
// Each processed request is tracked in the sqlite run ledger
// (internal/store): Start before the analysis, FinishOK with the encoded
// result or FinishErr with the failure reason after. Results are then
// published through the configured uploaders and the request file is
// removed from the spool.
//
// Modes:
//   - manual: a single sweep, the first error ends the run.
//   - timer: sweeps are triggered by a gocron job on the configured
//     schedule until the context is cancelled; errors are only logged.
//
// Data flow:
//
//	spool/*.task.json --> Supervisor.sweep --> worker.Analyzer.Do
//	       |                    |                    |
//	    removed            store.Start          chopchopgo child
//	                       store.Finish*            per file
//	                           |
//	                      uploaders (stdout / dir / HTTP)
package service
