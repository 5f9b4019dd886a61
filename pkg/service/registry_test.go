package service

import (
	"context"
	"testing"
)

func TestRegistryBeginSupersedesPreviousRun(t *testing.T) {
	reg := NewRunRegistry()

	ctx1, cancel1 := context.WithCancel(context.Background())
	if superseded := reg.Begin("conv", "run-1", cancel1); superseded != "" {
		t.Fatalf("first run superseded %q, want none", superseded)
	}

	_, cancel2 := context.WithCancel(context.Background())
	defer cancel2()
	if superseded := reg.Begin("conv", "run-2", cancel2); superseded != "run-1" {
		t.Fatalf("superseded = %q, want run-1", superseded)
	}
	select {
	case <-ctx1.Done():
	default:
		t.Fatal("superseded run was not cancelled")
	}
	if !reg.IsActive("conv") {
		t.Fatal("replacement run not registered")
	}
}

func TestRegistryLateCompletionDoesNotEvictReplacement(t *testing.T) {
	reg := NewRunRegistry()
	_, cancel1 := context.WithCancel(context.Background())
	_, cancel2 := context.WithCancel(context.Background())
	defer cancel2()

	reg.Begin("conv", "run-1", cancel1)
	reg.Begin("conv", "run-2", cancel2)

	if reg.Complete("conv", "run-1") {
		t.Fatal("stale token completed the live run")
	}
	if !reg.IsActive("conv") {
		t.Fatal("live run evicted by stale completion")
	}
	if !reg.Complete("conv", "run-2") {
		t.Fatal("live token failed to complete")
	}
	if reg.IsActive("conv") {
		t.Fatal("run still active after completion")
	}
}

func TestRegistryCancelIdempotent(t *testing.T) {
	reg := NewRunRegistry()
	cancelled := 0
	reg.Begin("conv", "run-1", func() { cancelled++ })

	if !reg.Cancel("conv") {
		t.Fatal("expected live run to cancel")
	}
	if reg.Cancel("conv") {
		t.Fatal("second cancel reported a live run")
	}
	if cancelled != 1 {
		t.Fatalf("cancel fired %d times, want exactly once", cancelled)
	}
}

func TestRegistryConversationsAreIndependent(t *testing.T) {
	reg := NewRunRegistry()
	ctxA, cancelA := context.WithCancel(context.Background())
	_, cancelB := context.WithCancel(context.Background())
	defer cancelA()
	defer cancelB()

	reg.Begin("conv-a", "run-a", cancelA)
	reg.Begin("conv-b", "run-b", cancelB)

	reg.Cancel("conv-b")
	select {
	case <-ctxA.Done():
		t.Fatal("cancelling one conversation cancelled another")
	default:
	}
	if !reg.IsActive("conv-a") {
		t.Fatal("unrelated conversation lost its run")
	}
}
