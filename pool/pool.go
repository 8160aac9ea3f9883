//go:build unix

package pool

import (
	"context"
	"os"
	"os/exec"
	"os/signal"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Pool runs submitted jobs as OS child processes, at most a configured
// number of them simultaneously, and reports one completion record per job
// once every child has terminated.
//
// A Pool is reusable: after Run returns, new jobs can be submitted and run
// again. The previous run's log stays readable until the next run starts.
// Only one Run may be active per Pool at a time, but a single process
// should also not run several Pools concurrently: the reaper collects any
// terminated child of the process, so two concurrent pools would steal
// each other's exits.
type Pool struct {
	pollInterval time.Duration
	stdout       *os.File
	stderr       *os.File
	onSpawn      func(Job, int)
	onExit       func(Completion)

	mu          sync.Mutex // guards concurrency and completions
	concurrency int
	completions []Completion

	queue   jobQueue
	log     RunLog
	running atomic.Bool
}

// New creates a process pool with the given options.
// Default configuration: concurrency = GOMAXPROCS, poll interval = 100ms,
// children inherit the parent's stdout and stderr.
func New(opts ...Option) *Pool {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	return &Pool{
		pollInterval: cfg.pollInterval,
		stdout:       cfg.stdout,
		stderr:       cfg.stderr,
		onSpawn:      cfg.onSpawn,
		onExit:       cfg.onExit,
		concurrency:  cfg.concurrency,
	}
}

// Submit queues a job for the next run. name is resolved through the PATH
// the way the shell would; args become the child's argument list. If name
// does not resolve to an executable the submission is rejected with
// ErrNotRunnable and the queue is left unchanged.
//
// Returns the id the job's Completion will carry.
func (p *Pool) Submit(name string, args ...string) (uuid.UUID, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return uuid.Nil, errors.Wrapf(ErrNotRunnable, "%q: %v", name, err)
	}

	job := Job{ID: uuid.New(), Path: path, Args: args}
	p.queue.push(job)
	return job.ID, nil
}

// SetConcurrency changes the ceiling on simultaneously running children.
// Values < 1 are rejected with ErrInvalidConcurrency and the previous
// ceiling stays in effect. A change takes effect at the next run.
func (p *Pool) SetConcurrency(n int) error {
	if n < 1 {
		return errors.Wrapf(ErrInvalidConcurrency, "got %d", n)
	}
	p.mu.Lock()
	p.concurrency = n
	p.mu.Unlock()
	return nil
}

// Pending returns the number of jobs waiting for the next run.
func (p *Pool) Pending() int {
	return p.queue.len()
}

// Run executes every queued job and blocks until all of them have
// terminated and been reaped. Jobs are admitted in submission order; when
// the number of running children is at the ceiling, admission waits for an
// exit. With an empty queue Run returns immediately, with an empty log and
// without spawning anything.
//
// A failure to start a child process is fatal for the run: Run returns the
// error right away, without retrying, and without killing children that
// are already running. Those children finish naturally and are still
// reaped in the background; their completions remain observable through
// Log and Completions. Cancelling ctx has the same effect as a start
// failure: no further jobs are admitted, running children are unaffected.
func (p *Pool) Run(ctx context.Context) error {
	if !p.running.CompareAndSwap(false, true) {
		return ErrRunInProgress
	}

	// A new run owns the outcome state; the previous run's log was
	// readable up to this point.
	p.log.Clear()
	p.mu.Lock()
	p.completions = nil
	ceiling := int64(p.concurrency)
	p.mu.Unlock()

	if p.queue.len() == 0 {
		p.running.Store(false)
		return nil
	}

	rs := newRunState(ceiling)

	// The handler must be installed before the first fork, or an exit
	// could slip by unobserved.
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, unix.SIGCHLD)
	go p.reapLoop(rs, sigc)

	for {
		job, ok := p.queue.pop()
		if !ok {
			break
		}
		if err := rs.sem.Acquire(ctx, 1); err != nil {
			return p.abort(rs, errors.Wrap(err, "waiting for a free slot"))
		}

		pid, err := p.spawn(job)
		if err != nil {
			rs.sem.Release(1)
			return p.abort(rs, errors.Wrapf(err, "starting %q", job.Path))
		}
		debugLog("spawned pid %d for job %s", pid, job.ID)

		if p.onSpawn != nil {
			p.onSpawn(job, pid)
		}
		p.register(rs, job, pid)
	}

	// Barrier: holding the full weight means every admitted child has
	// been reaped.
	if err := rs.sem.Acquire(ctx, rs.weight); err != nil {
		return p.abort(rs, errors.Wrap(err, "waiting for running jobs"))
	}
	rs.sem.Release(rs.weight)

	close(rs.done)
	<-rs.idle
	return nil
}

// abort ends a run early. Remaining queued jobs are discarded; children
// already running are left alone and the reaper keeps collecting them in
// the background until none remain.
func (p *Pool) abort(rs *runState, err error) error {
	p.queue.reset()
	close(rs.done)
	return err
}

// Log returns the completion records of the most recent run, one
// "<pid> exited with status <code>" entry per job, in the order the exits
// were observed. The records stay available until the next run starts.
func (p *Pool) Log() []string {
	return p.log.Entries()
}

// Completions returns the typed counterpart of Log for the most recent
// run, tying each exit back to the job id Submit returned.
func (p *Pool) Completions() []Completion {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Completion, len(p.completions))
	copy(out, p.completions)
	return out
}

// spawn starts one child process for the job. The returned *os.Process is
// released immediately: the pool never calls its Wait, reaping happens
// exclusively through the reaper's wait4 loop.
func (p *Pool) spawn(job Job) (int, error) {
	attr := &os.ProcAttr{
		Files: []*os.File{os.Stdin, p.stdout, p.stderr},
		Env:   os.Environ(),
	}
	argv := append([]string{job.Path}, job.Args...)

	proc, err := os.StartProcess(job.Path, argv, attr)
	if err != nil {
		return 0, err
	}
	pid := proc.Pid
	_ = proc.Release()
	return pid, nil
}
