package events

import "testing"

func TestOnEmit(t *testing.T) {
	h := NewHub[string]()
	var got []string
	h.On("message", func(v string) { got = append(got, v) })
	h.Emit("message", "a")
	h.Emit("message", "b")
	h.Emit("other", "c")

	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("got %v", got)
	}
}

func TestMultipleHandlersRunInOrder(t *testing.T) {
	h := NewHub[int]()
	var order []int
	h.On("n", func(v int) { order = append(order, v*10) })
	h.On("n", func(v int) { order = append(order, v*100) })
	h.Emit("n", 1)
	if len(order) != 2 || order[0] != 10 || order[1] != 100 {
		t.Fatalf("unexpected order: %v", order)
	}
}

func TestOffRemovesHandlers(t *testing.T) {
	h := NewHub[int]()
	h.On("n", func(int) {})
	h.On("n", func(int) {})
	if h.ListenerCount("n") != 2 {
		t.Fatalf("expected 2 listeners")
	}
	h.Off("n")
	if h.ListenerCount("n") != 0 {
		t.Fatalf("expected 0 listeners after Off")
	}
}

func TestEmitWithNoListenersIsNoop(t *testing.T) {
	h := NewHub[int]()
	h.Emit("missing", 1) // must not panic
}
