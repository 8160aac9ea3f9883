package pool

import (
	"os"
	"runtime"
	"time"
)

// Option is a functional option for configuring the process pool.
type Option func(*poolConfig)

type poolConfig struct {
	concurrency  int
	pollInterval time.Duration
	stdout       *os.File
	stderr       *os.File
	onSpawn      func(Job, int)
	onExit       func(Completion)
}

// WithConcurrency sets the maximum number of simultaneously running child
// processes. If not specified, defaults to runtime.GOMAXPROCS(0).
// Non-positive values are ignored.
func WithConcurrency(n int) Option {
	return func(cfg *poolConfig) {
		if n > 0 {
			cfg.concurrency = n
		}
	}
}

// WithPollInterval sets how often the reaper re-checks for terminated
// children in addition to SIGCHLD wakeups. A shorter interval lowers the
// worst-case completion-detection latency at the cost of more wakeups.
// If not specified, defaults to 100ms. Non-positive values are ignored.
func WithPollInterval(d time.Duration) Option {
	return func(cfg *poolConfig) {
		if d > 0 {
			cfg.pollInterval = d
		}
	}
}

// WithStdio sets the files child processes inherit as stdout and stderr.
// If not specified, children write to the parent's stdout and stderr.
// A nil file is ignored, keeping the previous value.
func WithStdio(stdout, stderr *os.File) Option {
	return func(cfg *poolConfig) {
		if stdout != nil {
			cfg.stdout = stdout
		}
		if stderr != nil {
			cfg.stderr = stderr
		}
	}
}

// WithOnSpawn sets a hook invoked from the run loop right after a child
// process was started, with the job and the pid it runs under.
func WithOnSpawn(fn func(Job, int)) Option {
	return func(cfg *poolConfig) {
		cfg.onSpawn = fn
	}
}

// WithOnExit sets a hook invoked once per job when its exit is observed.
// The hook runs on the reaper goroutine, concurrently with the run loop,
// so it must be safe to call from a goroutine other than the caller's.
func WithOnExit(fn func(Completion)) Option {
	return func(cfg *poolConfig) {
		cfg.onExit = fn
	}
}

func defaultConfig() *poolConfig {
	return &poolConfig{
		concurrency:  runtime.GOMAXPROCS(0),
		pollInterval: 100 * time.Millisecond,
		stdout:       os.Stdout,
		stderr:       os.Stderr,
	}
}
