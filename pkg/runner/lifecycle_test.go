package runner

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func waitState(t *testing.T, r *LifecycleRunner, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if r.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("state = %d, want %d", r.State(), want)
}

func TestRunnerLifecycle(t *testing.T) {
	var started, stopped, drained atomic.Bool
	r := NewLifecycleRunner(DrainerFunc(func() error {
		drained.Store(true)
		return nil
	}), Hooks{
		OnStart: func() { started.Store(true) },
		OnStop:  func() { stopped.Store(true) },
	}, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	waitState(t, r, StateRunning)
	if !started.Load() {
		t.Fatalf("OnStart not called")
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run returned %v", err)
	}
	if !drained.Load() {
		t.Fatalf("drainer not called")
	}
	if !stopped.Load() {
		t.Fatalf("OnStop not called")
	}
	if r.State() != StateStopped {
		t.Fatalf("state = %d, want stopped", r.State())
	}
}

func TestRunnerDrainTimeout(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	r := NewLifecycleRunner(DrainerFunc(func() error {
		<-block
		return nil
	}), Hooks{}, 50*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	waitState(t, r, StateRunning)

	cancel()
	err := <-done
	if err == nil || err.Error() != "drain timeout" {
		t.Fatalf("err = %v, want drain timeout", err)
	}
}

func TestRunnerRejectsSecondRun(t *testing.T) {
	r := NewLifecycleRunner(nil, Hooks{}, time.Second)
	if err := r.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := r.Run(context.Background()); err == nil {
		t.Fatalf("Run after Stop should fail")
	}
}
