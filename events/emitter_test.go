package events

import "testing"

type testEvent string

func TestEmitInvokesRegisteredHandler(t *testing.T) {
	var e Emitter[testEvent]
	var got any
	e.On("loaded", func(data any) { got = data })

	e.Emit("loaded", "payload")
	if got != "payload" {
		t.Fatalf("unexpected payload: %v", got)
	}
}

func TestOnReplacesHandler(t *testing.T) {
	var e Emitter[testEvent]
	first, second := 0, 0
	e.On("loaded", func(any) { first++ })
	e.On("loaded", func(any) { second++ })

	e.Emit("loaded", nil)
	if first != 0 || second != 1 {
		t.Fatalf("expected only the replacement handler to run, got first=%d second=%d", first, second)
	}
}

func TestEmitWithoutHandler(t *testing.T) {
	var e Emitter[testEvent]
	e.Emit("missing", nil)

	calls := 0
	e.On("loaded", func(any) { calls++ })
	e.On("loaded", nil)
	e.Emit("loaded", nil)
	if calls != 0 {
		t.Fatalf("expected nil handler to unregister, got %d calls", calls)
	}
}
