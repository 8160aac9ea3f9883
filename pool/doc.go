// Package pool provides a small process pool for running batches of
// independent commands with OS-level parallelism.
//
// The primary type is Pool: jobs (an executable plus its argument list)
// are queued with Submit, executed as child processes by Run with at most
// a configured number running simultaneously, and reported afterwards as
// one completion record per job. Terminated children are collected by a
// SIGCHLD-driven reaper, so a run never leaves zombies behind and never
// misses an exit, including the case where a child terminates before the
// pool finished registering its pid.
//
// # Basic Usage
//
//	p := pool.New(pool.WithConcurrency(4))
//	if _, err := p.Submit("gzip", "-9", "big.log"); err != nil {
//	    // program could not be resolved
//	}
//	if err := p.Run(context.Background()); err != nil {
//	    // a child process could not be started
//	}
//	for _, line := range p.Log() {
//	    fmt.Println(line) // "<pid> exited with status <code>"
//	}
//
// # Outcome Reporting
//
// Log returns the run's records in the order the children terminated,
// which with concurrent jobs is generally not the submission order. A
// job's success is its process exit status: 0 for success, the child's
// own code otherwise, and 128+signal for a child killed by a signal.
// Completions returns the same outcomes as typed records carrying the
// job id Submit returned, for callers that need to correlate.
//
// # Hooks
//
// Spawn and exit hooks observe the run as it happens, e.g. for progress
// reporting or for probing how many children are live:
//
//	var live, peak atomic.Int64
//	p := pool.New(
//	    pool.WithConcurrency(3),
//	    pool.WithOnSpawn(func(pool.Job, int) { live.Add(1) }),
//	    pool.WithOnExit(func(pool.Completion) { live.Add(-1) }),
//	)
//
// The exit hook runs on the reaper goroutine, concurrently with the
// caller's control flow.
//
// # Configuration Options
//
//   - WithConcurrency(n): Ceiling on simultaneous children (default: GOMAXPROCS)
//   - WithPollInterval(d): Reaper re-check interval (default: 100ms)
//   - WithStdio(stdout, stderr): Files children inherit (default: parent's)
//   - WithOnSpawn(fn), WithOnExit(fn): Run observation hooks
//
// # Limits
//
// The pool runs jobs to completion: there is no per-job cancellation, and
// cancelling the Run context only stops further admissions. The reaper
// waits on any child of the process, so a process should drive one pool
// at a time. The package requires a Unix-like OS (SIGCHLD and wait4).
package pool
