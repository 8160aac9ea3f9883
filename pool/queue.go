package pool

import "sync"

// jobQueue is the ordered set of pending jobs. Submissions append, the run
// loop pops front-first, so jobs are admitted in submission order. The
// queue is guarded because submissions may race with a draining run.
type jobQueue struct {
	mu   sync.Mutex
	jobs []Job
}

func (q *jobQueue) push(j Job) {
	q.mu.Lock()
	q.jobs = append(q.jobs, j)
	q.mu.Unlock()
}

// pop removes and returns the oldest pending job. The second return value
// is false when the queue is empty.
func (q *jobQueue) pop() (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.jobs) == 0 {
		return Job{}, false
	}
	j := q.jobs[0]
	q.jobs = q.jobs[1:]
	return j, true
}

func (q *jobQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

func (q *jobQueue) reset() {
	q.mu.Lock()
	q.jobs = nil
	q.mu.Unlock()
}
