package emit

import "testing"

func TestBufferedEmitter_History(t *testing.T) {
	b := NewBufferedEmitter()
	b.Emit(Event{RunID: "run-1", Step: 1, NodeID: "router", Msg: NodeStart})
	b.Emit(Event{RunID: "run-2", Step: 1, NodeID: "router", Msg: NodeStart})
	b.Emit(Event{RunID: "run-1", Step: 1, NodeID: "router", Msg: NodeEnd})
	b.Emit(Event{RunID: "run-1", Step: 1, NodeID: "router", Msg: Route, Meta: map[string]any{"label": "useLLm"}})
	b.Emit(Event{RunID: "run-1", Step: 2, NodeID: "retrieve", Msg: NodeStart})

	t.Run("events in emission order", func(t *testing.T) {
		got := b.GetHistory("run-1")
		want := []string{NodeStart, NodeEnd, Route, NodeStart}
		if len(got) != len(want) {
			t.Fatalf("expected %d events, got %d", len(want), len(got))
		}
		for i, msg := range want {
			if got[i].Msg != msg {
				t.Errorf("event %d: expected %q, got %q", i, msg, got[i].Msg)
			}
		}
	})

	t.Run("unknown run is empty not nil", func(t *testing.T) {
		got := b.GetHistory("missing")
		if got == nil || len(got) != 0 {
			t.Errorf("expected empty slice, got %#v", got)
		}
	})

	t.Run("filter by node and message", func(t *testing.T) {
		got := b.GetHistoryWithFilter("run-1", HistoryFilter{NodeID: "router", Msg: Route})
		if len(got) != 1 {
			t.Fatalf("expected 1 event, got %d", len(got))
		}
		if got[0].Meta["label"] != "useLLm" {
			t.Errorf("expected label useLLm, got %v", got[0].Meta["label"])
		}
	})

	t.Run("filter by step range", func(t *testing.T) {
		minStep := 2
		got := b.GetHistoryWithFilter("run-1", HistoryFilter{MinStep: &minStep})
		if len(got) != 1 || got[0].NodeID != "retrieve" {
			t.Errorf("expected only the retrieve event, got %+v", got)
		}
		maxStep := 1
		got = b.GetHistoryWithFilter("run-1", HistoryFilter{MaxStep: &maxStep})
		if len(got) != 3 {
			t.Errorf("expected 3 events, got %d", len(got))
		}
	})

	t.Run("runs in first-seen order", func(t *testing.T) {
		runs := b.Runs()
		if len(runs) != 2 || runs[0] != "run-1" || runs[1] != "run-2" {
			t.Errorf("unexpected runs %v", runs)
		}
	})

	t.Run("returned slice is a copy", func(t *testing.T) {
		got := b.GetHistory("run-1")
		got[0].Msg = "mutated"
		if b.GetHistory("run-1")[0].Msg != NodeStart {
			t.Error("history was modified through returned slice")
		}
	})
}

func TestBufferedEmitter_Clear(t *testing.T) {
	b := NewBufferedEmitter()
	b.Emit(Event{RunID: "a", Msg: NodeStart})
	b.Emit(Event{RunID: "b", Msg: NodeStart})

	b.Clear("a")
	if len(b.GetHistory("a")) != 0 {
		t.Error("expected run a to be cleared")
	}
	if len(b.GetHistory("b")) != 1 {
		t.Error("expected run b to survive")
	}
	if runs := b.Runs(); len(runs) != 1 || runs[0] != "b" {
		t.Errorf("unexpected runs after clear: %v", runs)
	}

	b.Clear("")
	if len(b.Runs()) != 0 {
		t.Error("expected every run to be cleared")
	}
}
