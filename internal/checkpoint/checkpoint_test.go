package checkpoint

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"prospector/internal/model"
)

func testAssignment() model.Assignment {
	return model.Assignment{
		Objective:   "find industrial automation companies in Bavaria",
		TargetCount: 5,
		MaxCycles:   4,
	}
}

func testCheckpoint(a model.Assignment) *model.Checkpoint {
	return &model.Checkpoint{
		RunID:      "run-1",
		Signature:  a.Signature(),
		State:      model.StateRunning,
		Assignment: a,
		Cycles: []model.Cycle{
			{Index: 0, Queries: []string{"q1", "q2"}, Accepted: 3, Rejected: 1, NewFindings: 2},
		},
		Findings: []model.Finding{
			{Kind: model.KindCompany, Name: "Acme Robotics", Attributes: map[string]string{model.AttrLocation: "Munich"}},
		},
		IssuedQueries: []string{"q1", "q2"},
	}
}

func TestSaveAndLoadLatest(t *testing.T) {
	store := NewStore(t.TempDir())
	a := testAssignment()
	cp := testCheckpoint(a)

	if err := store.Save(cp); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := store.LoadLatest(a.Signature())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded == nil {
		t.Fatal("expected checkpoint, got nil")
	}
	if loaded.Version != model.CheckpointVersion {
		t.Errorf("version not stamped: %d", loaded.Version)
	}
	if len(loaded.Cycles) != 1 || loaded.Cycles[0].Accepted != 3 {
		t.Errorf("cycles not round-tripped: %+v", loaded.Cycles)
	}
	if len(loaded.Findings) != 1 || loaded.Findings[0].Name != "Acme Robotics" {
		t.Errorf("findings not round-tripped: %+v", loaded.Findings)
	}
}

func TestLoadLatest_MissingIsNotError(t *testing.T) {
	store := NewStore(t.TempDir())
	cp, err := store.LoadLatest("deadbeef00000000")
	if err != nil {
		t.Fatalf("missing checkpoint must not error: %v", err)
	}
	if cp != nil {
		t.Errorf("expected nil checkpoint, got %+v", cp)
	}
}

func TestSave_OverwritesAtomically(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	a := testAssignment()

	cp := testCheckpoint(a)
	if err := store.Save(cp); err != nil {
		t.Fatalf("save 1: %v", err)
	}

	cp.Cycles = append(cp.Cycles, model.Cycle{Index: 1, Accepted: 2})
	if err := store.Save(cp); err != nil {
		t.Fatalf("save 2: %v", err)
	}

	loaded, err := store.LoadLatest(a.Signature())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded.Cycles) != 2 {
		t.Errorf("expected overwrite with 2 cycles, got %d", len(loaded.Cycles))
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".checkpoint-") {
			t.Errorf("leftover temp file: %s", e.Name())
		}
	}
	if len(entries) != 1 {
		t.Errorf("expected a single checkpoint file, got %d", len(entries))
	}
}

func TestLoadLatest_UnknownFieldsIgnored(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	a := testAssignment()
	cp := testCheckpoint(a)
	if err := store.Save(cp); err != nil {
		t.Fatalf("save: %v", err)
	}

	// Simulate a future minor schema addition
	path := filepath.Join(dir, a.Signature()+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	raw["future_field"] = map[string]any{"nested": true}
	data, _ = json.Marshal(raw)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	loaded, err := store.LoadLatest(a.Signature())
	if err != nil {
		t.Fatalf("unknown fields must be ignored: %v", err)
	}
	if loaded.RunID != "run-1" {
		t.Errorf("known fields lost: %+v", loaded)
	}
}

func TestLoadLatest_SignatureMismatchRejected(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	a := testAssignment()
	cp := testCheckpoint(a)
	cp.Signature = "0123456789abcdef" // different assignment's snapshot
	data, _ := json.Marshal(cp)
	if err := os.WriteFile(filepath.Join(dir, a.Signature()+".json"), data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if _, err := store.LoadLatest(a.Signature()); err == nil {
		t.Error("mismatched signature must be rejected")
	}
}

func TestSignature_BudgetsExcluded(t *testing.T) {
	a := testAssignment()
	b := a
	b.MaxCycles = 10
	b.SourcesPerCycle = 20
	if a.Signature() != b.Signature() {
		t.Error("budget changes must not change the signature")
	}

	c := a
	c.Objective = "something else entirely"
	if a.Signature() == c.Signature() {
		t.Error("different objectives must produce different signatures")
	}

	d := a
	d.Constraints.Geography = "Bavaria"
	if a.Signature() == d.Signature() {
		t.Error("constraint changes must produce different signatures")
	}
}
