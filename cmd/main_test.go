package main

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestRunClientShutsDown(t *testing.T) {
	t.Run("quit", func(t *testing.T) {
		c, _, _ := newTestCLI(t)

		lines := make(chan string, 1)
		lines <- "/quit"

		var stops atomic.Int32
		if err := runClient(context.Background(), c, lines, func() { stops.Add(1) }); err != nil {
			t.Errorf("runClient = %v", err)
		}
		if n := stops.Load(); n != 1 {
			t.Errorf("shutdown calls = %d, want 1", n)
		}
	})

	t.Run("cancel", func(t *testing.T) {
		c, _, _ := newTestCLI(t)

		ctx, cancel := context.WithCancel(context.Background())
		var stops atomic.Int32
		done := make(chan error, 1)
		go func() { done <- runClient(ctx, c, make(chan string), func() { stops.Add(1) }) }()

		cancel()
		select {
		case err := <-done:
			if !errors.Is(err, context.Canceled) {
				t.Errorf("runClient = %v, want context.Canceled", err)
			}
		case <-time.After(3 * time.Second):
			t.Fatal("runClient did not return after cancel")
		}
		if n := stops.Load(); n != 1 {
			t.Errorf("shutdown calls = %d, want 1", n)
		}
	})
}
