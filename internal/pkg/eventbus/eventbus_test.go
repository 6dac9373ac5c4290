package eventbus

import "testing"

func TestPublishOrderAndUnsubscribe(t *testing.T) {
	bus := New[int]("test")

	var got []string
	a := bus.Subscribe(func(v int) { got = append(got, "a") })
	bus.Subscribe(func(v int) { got = append(got, "b") })

	bus.Publish(1)
	a.Unsubscribe()
	a.Unsubscribe()
	bus.Publish(2)

	want := []string{"a", "b", "b"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
	if bus.Len() != 1 {
		t.Fatalf("Len = %d, want 1", bus.Len())
	}
}

func TestPanickingListenerIsIsolated(t *testing.T) {
	bus := New[string]("test")

	var before, after []string
	bus.Subscribe(func(v string) { before = append(before, v) })
	bus.Subscribe(func(v string) { panic("boom") })
	bus.Subscribe(func(v string) { after = append(after, v) })

	bus.Publish("x")
	bus.Publish("y")

	if len(before) != 2 || len(after) != 2 {
		t.Fatalf("before=%v after=%v, want both to see 2 values", before, after)
	}
}

func TestUnsubscribeDuringPublish(t *testing.T) {
	bus := New[int]("test")

	var sub *Subscription
	calls := 0
	sub = bus.Subscribe(func(int) {
		calls++
		sub.Unsubscribe()
	})

	bus.Publish(1)
	bus.Publish(2)

	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}
