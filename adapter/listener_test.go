package adapter

import "testing"

type orderListener struct {
	DefaultStatusListener
	id   int
	seen *[]int
}

func (l orderListener) DiscoveringChanged(bool) { *l.seen = append(*l.seen, l.id) }

func TestListenerListRegistrationOrder(t *testing.T) {
	var ll listenerList
	var seen []int
	ll.add(orderListener{id: 1, seen: &seen})
	ll.add(orderListener{id: 2, seen: &seen})
	ll.add(orderListener{id: 3, seen: &seen})

	for _, l := range ll.snapshot() {
		l.DiscoveringChanged(true)
	}
	want := []int{1, 2, 3}
	if len(seen) != len(want) {
		t.Fatalf("expected %v, got %v", want, seen)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, seen)
		}
	}
}

func TestListenerListRemove(t *testing.T) {
	var ll listenerList
	var seen []int
	h1 := ll.add(orderListener{id: 1, seen: &seen})
	ll.add(orderListener{id: 2, seen: &seen})
	ll.remove(h1)

	for _, l := range ll.snapshot() {
		l.DiscoveringChanged(true)
	}
	if len(seen) != 1 || seen[0] != 2 {
		t.Fatalf("expected only listener 2 to fire, got %v", seen)
	}
}

func TestListenerListSnapshotIsolatedFromConcurrentAdd(t *testing.T) {
	var ll listenerList
	var seen []int
	ll.add(orderListener{id: 1, seen: &seen})

	snap := ll.snapshot()
	ll.add(orderListener{id: 2, seen: &seen})

	for _, l := range snap {
		l.DiscoveringChanged(true)
	}
	if len(seen) != 1 {
		t.Fatalf("snapshot should not observe listeners added after it was taken, got %v", seen)
	}
}
