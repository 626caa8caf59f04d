package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"
	"time"
)

type ragState struct {
	Question  string   `json:"question"`
	Documents []string `json:"documents"`
}

// runStoreContract exercises the behaviour every Store implementation shares.
func runStoreContract(t *testing.T, st Store[ragState]) {
	t.Helper()
	ctx := context.Background()
	suffix := fmt.Sprintf("%d", time.Now().UnixNano())
	runA := "run-a-" + suffix
	runB := "run-b-" + suffix

	t.Run("unknown run is not found", func(t *testing.T) {
		if _, _, err := st.LoadLatest(ctx, "missing-"+suffix); !errors.Is(err, ErrNotFound) {
			t.Errorf("LoadLatest() error = %v, want ErrNotFound", err)
		}
		if _, err := st.LoadSteps(ctx, "missing-"+suffix); !errors.Is(err, ErrNotFound) {
			t.Errorf("LoadSteps() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("steps come back in step order", func(t *testing.T) {
		saves := []struct {
			step int
			node string
			docs []string
		}{
			{2, "retrieveFromDocument", []string{"d1", "d2"}},
			{1, "router", nil},
			{3, "gradeGeneratedDocuments", []string{"d1"}},
		}
		for _, s := range saves {
			state := ragState{Question: "q", Documents: s.docs}
			if err := st.SaveStep(ctx, runA, s.step, s.node, state); err != nil {
				t.Fatalf("SaveStep(%d) error = %v", s.step, err)
			}
		}

		state, step, err := st.LoadLatest(ctx, runA)
		if err != nil {
			t.Fatalf("LoadLatest() error = %v", err)
		}
		if step != 3 {
			t.Errorf("latest step = %d, want 3", step)
		}
		if !slices.Equal(state.Documents, []string{"d1"}) {
			t.Errorf("latest documents = %v, want [d1]", state.Documents)
		}

		records, err := st.LoadSteps(ctx, runA)
		if err != nil {
			t.Fatalf("LoadSteps() error = %v", err)
		}
		var nodes []string
		for i, r := range records {
			if r.Step != i+1 {
				t.Errorf("record %d has step %d", i, r.Step)
			}
			nodes = append(nodes, r.NodeID)
		}
		want := []string{"router", "retrieveFromDocument", "gradeGeneratedDocuments"}
		if !slices.Equal(nodes, want) {
			t.Errorf("nodes = %v, want %v", nodes, want)
		}
	})

	t.Run("saving a step twice overwrites it", func(t *testing.T) {
		if err := st.SaveStep(ctx, runA, 2, "webSearch", ragState{Question: "q", Documents: []string{"w1"}}); err != nil {
			t.Fatalf("SaveStep() error = %v", err)
		}
		records, err := st.LoadSteps(ctx, runA)
		if err != nil {
			t.Fatalf("LoadSteps() error = %v", err)
		}
		if len(records) != 3 {
			t.Fatalf("expected 3 records, got %d", len(records))
		}
		if records[1].NodeID != "webSearch" || !slices.Equal(records[1].State.Documents, []string{"w1"}) {
			t.Errorf("step 2 not overwritten: %+v", records[1])
		}
	})

	t.Run("runs are listed oldest first", func(t *testing.T) {
		if err := st.SaveStep(ctx, runB, 1, "router", ragState{Question: "other"}); err != nil {
			t.Fatalf("SaveStep() error = %v", err)
		}
		runs, err := st.ListRuns(ctx)
		if err != nil {
			t.Fatalf("ListRuns() error = %v", err)
		}
		a, b := slices.Index(runs, runA), slices.Index(runs, runB)
		if a < 0 || b < 0 {
			t.Fatalf("runs %v missing %s or %s", runs, runA, runB)
		}
		if a > b {
			t.Errorf("expected %s before %s in %v", runA, runB, runs)
		}
	})
}
