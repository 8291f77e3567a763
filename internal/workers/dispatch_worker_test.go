package workers

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/goleak"
)

type fakeEngine struct {
	runs int32
	err  error
}

func (f *fakeEngine) RunOnce(ctx context.Context) error {
	atomic.AddInt32(&f.runs, 1)
	return f.err
}

func TestWorkerRunsAndStops(t *testing.T) {
	defer goleak.VerifyNone(t)

	engine := &fakeEngine{}
	worker := NewDispatchWorker(engine, 10*time.Millisecond, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		worker.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for atomic.LoadInt32(&engine.runs) < 2 {
		select {
		case <-deadline:
			t.Fatal("worker never ticked")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop on cancellation")
	}
}

func TestWorkerSurvivesFailedPass(t *testing.T) {
	defer goleak.VerifyNone(t)

	engine := &fakeEngine{err: errors.New("store unreachable")}
	worker := NewDispatchWorker(engine, 10*time.Millisecond, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		worker.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for atomic.LoadInt32(&engine.runs) < 3 {
		select {
		case <-deadline:
			t.Fatal("worker stopped retrying after failures")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	<-done
}
