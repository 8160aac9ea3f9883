package pool

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var (
	// ErrNotRunnable is returned by Submit when the program reference
	// cannot be resolved to an executable.
	ErrNotRunnable = errors.New("job is not runnable")

	// ErrInvalidConcurrency is returned by SetConcurrency for values < 1.
	// The previous ceiling stays in effect.
	ErrInvalidConcurrency = errors.New("concurrency must be a positive integer")

	// ErrRunInProgress is returned by Run when the pool is already running.
	ErrRunInProgress = errors.New("a run is already in progress")
)

// Job is a unit of work: an executable program plus its ordered argument
// list. Jobs are immutable once submitted; the pool never inspects the
// program beyond resolving it, it only observes the process exit status.
type Job struct {
	ID   uuid.UUID
	Path string   // absolute path, resolved at submission time
	Args []string // argv tail, passed to the child verbatim
}

// Completion is the typed record of one finished child process. The string
// run log carries the same information in its fixed format; Completion
// additionally ties the exit back to the submitted job.
//
// Fields:
//   - JobID: The id returned by Submit for this job
//   - Pid: The OS process id the job ran under
//   - Status: The exit status; 0 on success, the child's exit code
//     otherwise, or 128+signal if the child was killed by a signal
//   - At: When the exit was observed (completions are ordered by this,
//     not by submission order)
type Completion struct {
	JobID  uuid.UUID
	Pid    int
	Status int
	At     time.Time
}
