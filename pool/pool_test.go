//go:build unix

package pool

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
)

func waitForIdle(t *testing.T, p *Pool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for p.running.Load() {
		if time.Now().After(deadline) {
			t.Fatal("pool did not become idle")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestPool_Run_BasicCompletion(t *testing.T) {
	p := New(WithConcurrency(4))

	const jobs = 5
	for i := 0; i < jobs; i++ {
		if _, err := p.Submit("true"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entries := p.Log()
	if len(entries) != jobs {
		t.Fatalf("expected %d log entries, got %d", jobs, len(entries))
	}
	for i, e := range entries {
		if !strings.HasSuffix(e, "exited with status 0") {
			t.Errorf("entry %d: expected status 0, got %q", i, e)
		}
	}
}

func TestPool_Run_EmptyQueue(t *testing.T) {
	p := New(WithConcurrency(2))

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := len(p.Log()); got != 0 {
		t.Fatalf("expected empty log, got %d entries", got)
	}
}

func TestPool_Run_RecordsFailureStatus(t *testing.T) {
	p := New(WithConcurrency(1))

	if _, err := p.Submit("sh", "-c", "exit 3"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	comps := p.Completions()
	if len(comps) != 1 {
		t.Fatalf("expected 1 completion, got %d", len(comps))
	}
	if comps[0].Status != 3 {
		t.Errorf("expected status 3, got %d", comps[0].Status)
	}
	if want := fmt.Sprintf("%d exited with status 3", comps[0].Pid); p.Log()[0] != want {
		t.Errorf("expected log entry %q, got %q", want, p.Log()[0])
	}
}

func TestPool_Run_SignaledChild(t *testing.T) {
	p := New(WithConcurrency(1))

	if _, err := p.Submit("sh", "-c", "kill -KILL $$"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	comps := p.Completions()
	if len(comps) != 1 {
		t.Fatalf("expected 1 completion, got %d", len(comps))
	}
	if comps[0].Status != 137 { // 128 + SIGKILL
		t.Errorf("expected status 137, got %d", comps[0].Status)
	}
}

func TestPool_Run_TerminationOrder(t *testing.T) {
	p := New(WithConcurrency(2))

	slowID, err := p.Submit("sleep", "0.4")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fastID, err := p.Submit("true")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	comps := p.Completions()
	if len(comps) != 2 {
		t.Fatalf("expected 2 completions, got %d", len(comps))
	}
	if comps[0].JobID != fastID {
		t.Errorf("expected the fast job to finish first, got job %s", comps[0].JobID)
	}
	if comps[1].JobID != slowID {
		t.Errorf("expected the slow job to finish last, got job %s", comps[1].JobID)
	}
}

func TestPool_Run_LogReadableUntilNextRun(t *testing.T) {
	p := New(WithConcurrency(2))

	for i := 0; i < 2; i++ {
		if _, err := p.Submit("true"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := len(p.Log()); got != 2 {
		t.Fatalf("expected 2 entries after first run, got %d", got)
	}

	if _, err := p.Submit("true"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := len(p.Log()); got != 1 {
		t.Fatalf("expected the second run to replace the log, got %d entries", got)
	}
}

func TestPool_Run_Scenario(t *testing.T) {
	// 4 jobs with staggered runtimes, job 2 fails, ceiling 2: every job
	// gets exactly one record, only job 2 is non-zero, and no more than
	// 2 children are ever live.
	var cur, peak atomic.Int64
	p := New(
		WithConcurrency(2),
		WithOnSpawn(func(Job, int) { updatePeak(&cur, &peak) }),
		WithOnExit(func(Completion) { cur.Add(-1) }),
	)

	jobNum := make(map[uuid.UUID]int)
	for i := 1; i <= 4; i++ {
		script := fmt.Sprintf("sleep 0.%d", i)
		if i == 2 {
			script += "; exit 1"
		}
		id, err := p.Submit("sh", "-c", script)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		jobNum[id] = i
	}

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	comps := p.Completions()
	if len(comps) != 4 {
		t.Fatalf("expected 4 completions, got %d", len(comps))
	}
	for _, c := range comps {
		want := 0
		if jobNum[c.JobID] == 2 {
			want = 1
		}
		if c.Status != want {
			t.Errorf("job %d: expected status %d, got %d", jobNum[c.JobID], want, c.Status)
		}
	}
	if got := peak.Load(); got > 2 {
		t.Errorf("expected at most 2 live children, observed %d", got)
	}
}

func TestPool_Run_SecondRunWhileRunning(t *testing.T) {
	started := make(chan struct{})
	p := New(
		WithConcurrency(1),
		WithOnSpawn(func(Job, int) { close(started) }),
	)

	if _, err := p.Submit("sleep", "0.3"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	errc := make(chan error, 1)
	go func() { errc <- p.Run(context.Background()) }()

	<-started
	if err := p.Run(context.Background()); err != ErrRunInProgress {
		t.Fatalf("expected ErrRunInProgress, got %v", err)
	}

	if err := <-errc; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPool_Run_Reusable(t *testing.T) {
	p := New(WithConcurrency(2))

	for run := 0; run < 3; run++ {
		for i := 0; i < 2; i++ {
			if _, err := p.Submit("true"); err != nil {
				t.Fatalf("run %d: unexpected error: %v", run, err)
			}
		}
		if err := p.Run(context.Background()); err != nil {
			t.Fatalf("run %d: unexpected error: %v", run, err)
		}
		if got := len(p.Log()); got != 2 {
			t.Fatalf("run %d: expected 2 entries, got %d", run, got)
		}
		waitForIdle(t, p)
	}
}
