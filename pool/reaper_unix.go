//go:build unix

package pool

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sys/unix"
)

const exitSignalOffset = 128

// runState is the shared mutable state of one run: the pid -> job mapping
// of live children, the buffer for exits observed before the run loop
// registered the pid, and the admission semaphore. The reaper goroutine
// mutates it concurrently with the run loop, hence the mutex.
type runState struct {
	mu      sync.Mutex
	active  map[int]uuid.UUID
	orphans map[int]unix.WaitStatus
	sem     *semaphore.Weighted
	weight  int64
	done    chan struct{} // closed by the run loop: no further spawns
	idle    chan struct{} // closed by the reaper: every child reaped
}

func newRunState(concurrency int64) *runState {
	return &runState{
		active:  make(map[int]uuid.UUID),
		orphans: make(map[int]unix.WaitStatus),
		sem:     semaphore.NewWeighted(concurrency),
		weight:  concurrency,
		done:    make(chan struct{}),
		idle:    make(chan struct{}),
	}
}

func (rs *runState) activeCount() int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return len(rs.active)
}

// reapLoop runs once per Run on its own goroutine. It wakes on SIGCHLD and
// additionally on a fixed tick, then reaps every terminated child it can.
// Once the run loop has signalled that no further children will be spawned
// it keeps reaping until the active set is empty, so children left running
// by an aborted run still get collected.
func (p *Pool) reapLoop(rs *runState, sigc chan os.Signal) {
	defer close(rs.idle)
	defer p.running.Store(false)
	defer signal.Stop(sigc)

	tick := time.NewTicker(p.pollInterval)
	defer tick.Stop()

	for {
		select {
		case <-sigc:
		case <-tick.C:
		case <-rs.done:
			for {
				p.drainExited(rs)
				if rs.activeCount() == 0 {
					return
				}
				select {
				case <-sigc:
				case <-tick.C:
				}
			}
		}
		p.drainExited(rs)
	}
}

// drainExited collects every terminated, not yet reaped child. One SIGCHLD
// can stand for several exits, so this loops until wait4 reports nothing
// left; a single non-blocking wait per wakeup would leak zombies and stall
// the run barrier.
func (p *Pool) drainExited(rs *runState) {
	for {
		var ws unix.WaitStatus
		pid, err := unix.Wait4(-1, &ws, unix.WNOHANG, nil)
		if err == unix.EINTR {
			continue
		}
		if err != nil || pid <= 0 {
			// ECHILD: no children at all. pid 0: children exist
			// but none have terminated yet.
			return
		}
		p.observeExit(rs, pid, ws)
	}
}

// observeExit routes one reaped exit. A pid in the active set completes
// its job; a pid the run loop has not registered yet is buffered, and the
// run loop replays it right after registration. The first observation of a
// pid wins, so a completion is never buffered twice.
func (p *Pool) observeExit(rs *runState, pid int, ws unix.WaitStatus) {
	rs.mu.Lock()
	id, ok := rs.active[pid]
	if !ok {
		if _, buffered := rs.orphans[pid]; !buffered {
			debugLog("exit of pid %d arrived before registration, buffering", pid)
			rs.orphans[pid] = ws
		}
		rs.mu.Unlock()
		return
	}
	delete(rs.active, pid)
	rs.mu.Unlock()
	p.finish(rs, id, pid, ws)
}

// register records a freshly spawned child in the active set, unless its
// exit was already reaped, in which case the buffered status is consumed
// and the job completes through the same path the reaper uses.
func (p *Pool) register(rs *runState, job Job, pid int) {
	rs.mu.Lock()
	if ws, ok := rs.orphans[pid]; ok {
		delete(rs.orphans, pid)
		rs.mu.Unlock()
		debugLog("replaying buffered exit for pid %d", pid)
		p.finish(rs, job.ID, pid, ws)
		return
	}
	rs.active[pid] = job.ID
	rs.mu.Unlock()
}

// finish is the single completion path for a reaped child: log entry,
// typed record, exit hook, and the release of the admission permit the
// job was holding.
func (p *Pool) finish(rs *runState, id uuid.UUID, pid int, ws unix.WaitStatus) {
	code := exitCode(ws)
	c := Completion{JobID: id, Pid: pid, Status: code, At: time.Now()}

	p.log.Record(fmt.Sprintf("%d exited with status %d", pid, code))
	p.mu.Lock()
	p.completions = append(p.completions, c)
	p.mu.Unlock()

	if p.onExit != nil {
		p.onExit(c)
	}
	rs.sem.Release(1)
}

// exitCode maps a wait status to the status recorded in the log: the
// child's own exit code, or 128+signal when it was killed by a signal.
func exitCode(ws unix.WaitStatus) int {
	if ws.Signaled() {
		return exitSignalOffset + int(ws.Signal())
	}
	return ws.ExitStatus()
}
