package store

import (
	"reflect"
	"testing"
	"time"

	"prospector/internal/model"
)

func companyFinding(name, location string) model.Finding {
	f := model.Finding{
		Kind:           model.KindCompany,
		Name:           name,
		Attributes:     map[string]string{},
		AttrConfidence: map[string]float64{},
	}
	if location != "" {
		f.Attributes[model.AttrLocation] = location
		f.AttrConfidence[model.AttrLocation] = 0.8
	}
	return f
}

func TestMerge_CreatesThenMerges(t *testing.T) {
	s := New()

	f := companyFinding("Acme Robotics", "Munich")
	f.Signals = []string{"hiring platform engineers"}
	f.Provenance = []model.Provenance{{URL: "https://a.example/1", Cycle: 0, Confidence: 0.8}}

	if got := s.Merge(f); got != MergeCreated {
		t.Fatalf("first merge: expected MergeCreated, got %v", got)
	}
	if s.Len() != 1 {
		t.Fatalf("expected 1 entity, got %d", s.Len())
	}

	// Same company, different source, new signal
	g := companyFinding("Acme Robotics GmbH", "Munich")
	g.Signals = []string{"legacy ERP migration"}
	g.Provenance = []model.Provenance{{URL: "https://b.example/2", Cycle: 1, Confidence: 0.7}}

	if got := s.Merge(g); got != MergeUpdated {
		t.Fatalf("second merge: expected MergeUpdated, got %v", got)
	}
	if s.Len() != 1 {
		t.Fatalf("corporate suffix must not split identity, got %d entities", s.Len())
	}

	merged, _ := s.Get(f.IdentityKey())
	if len(merged.Signals) != 2 {
		t.Errorf("expected both signals, got %v", merged.Signals)
	}
	if merged.SourceCount() != 2 {
		t.Errorf("expected 2 distinct sources, got %d", merged.SourceCount())
	}
}

func TestMerge_Idempotent(t *testing.T) {
	f := companyFinding("Acme Robotics", "Munich")
	f.Signals = []string{"hiring platform engineers"}
	f.Contacts = []model.Contact{{Name: "Jane Doe", Title: "CTO"}}
	f.Provenance = []model.Provenance{{URL: "https://a.example/1", Cycle: 0, Confidence: 0.8}}

	once := New()
	once.Merge(f)

	twice := New()
	twice.Merge(f)
	if got := twice.Merge(f); got != MergeNoop {
		t.Errorf("repeat merge of identical record: expected MergeNoop, got %v", got)
	}

	if !reflect.DeepEqual(once.All(), twice.All()) {
		t.Errorf("merging twice must equal merging once:\nonce:  %+v\ntwice: %+v", once.All(), twice.All())
	}
}

func TestMerge_IdentityUniqueness(t *testing.T) {
	s := New()
	variants := []string{"Acme Robotics", "ACME ROBOTICS", "Acme  Robotics,", "Acme Robotics Inc."}
	for _, name := range variants {
		s.Merge(companyFinding(name, "Munich"))
	}
	if s.Len() != 1 {
		t.Fatalf("formatting variants must collapse to one entity, got %d", s.Len())
	}

	seen := make(map[string]bool)
	for _, key := range s.Keys() {
		if seen[key] {
			t.Errorf("duplicate identity key: %s", key)
		}
		seen[key] = true
	}
}

func TestMerge_SameNameDifferentLocationStaysDistinct(t *testing.T) {
	s := New()
	s.Merge(companyFinding("Northwind", "Berlin"))
	s.Merge(companyFinding("Northwind", "Hamburg"))
	if s.Len() != 2 {
		t.Errorf("different locations must stay distinct, got %d entities", s.Len())
	}
}

func TestMerge_MissingLocationJoinsExistingEntity(t *testing.T) {
	s := New()
	s.Merge(companyFinding("Northwind", "Berlin"))

	g := companyFinding("Northwind", "")
	g.Signals = []string{"seeking automation vendor"}
	s.Merge(g)

	if s.Len() != 1 {
		t.Fatalf("location-less record should join the single named entity, got %d", s.Len())
	}
}

func TestMerge_LocationUpgradesKey(t *testing.T) {
	s := New()
	s.Merge(companyFinding("Northwind", ""))
	s.Merge(companyFinding("Northwind", "Berlin"))

	if s.Len() != 1 {
		t.Fatalf("expected 1 entity after upgrade, got %d", s.Len())
	}
	f, ok := s.Get(model.IdentityKey("Northwind", "Berlin"))
	if !ok {
		t.Fatal("entity should be stored under the location-qualified key")
	}
	if f.Attributes[model.AttrLocation] != "Berlin" {
		t.Errorf("location attribute not merged: %v", f.Attributes)
	}
}

func TestMerge_ConfidenceControlsFieldOverride(t *testing.T) {
	s := New()

	f := companyFinding("Acme", "Munich")
	f.Attributes[model.AttrSize] = "200-500"
	f.AttrConfidence[model.AttrSize] = 0.9
	s.Merge(f)

	low := companyFinding("Acme", "Munich")
	low.Attributes[model.AttrSize] = "50-100"
	low.AttrConfidence[model.AttrSize] = 0.4
	s.Merge(low)

	got, _ := s.Get(f.IdentityKey())
	if got.Attributes[model.AttrSize] != "200-500" {
		t.Errorf("lower confidence must not override: %v", got.Attributes)
	}

	high := companyFinding("Acme", "Munich")
	high.Attributes[model.AttrSize] = "250"
	high.AttrConfidence[model.AttrSize] = 0.95
	s.Merge(high)

	got, _ = s.Get(f.IdentityKey())
	if got.Attributes[model.AttrSize] != "250" {
		t.Errorf("strictly higher confidence must override: %v", got.Attributes)
	}
}

func TestMerge_ContactEnrichment(t *testing.T) {
	s := New()

	f := companyFinding("Acme", "Munich")
	f.Contacts = []model.Contact{{Name: "Jane Doe", Title: "CTO"}}
	s.Merge(f)

	g := companyFinding("Acme", "Munich")
	g.Contacts = []model.Contact{
		{Name: "jane doe", Email: "jane@acme.example"},
		{Name: "John Roe", Title: "VP Ops"},
	}
	s.Merge(g)

	got, _ := s.Get(f.IdentityKey())
	if len(got.Contacts) != 2 {
		t.Fatalf("expected 2 contacts, got %v", got.Contacts)
	}
	jane := got.Contacts[0]
	if jane.Title != "CTO" || jane.Email != "jane@acme.example" {
		t.Errorf("contact not enriched: %+v", jane)
	}
}

func TestSnapshot_TierProgression(t *testing.T) {
	s := New()

	// Name + location + a decision-maker + a need signal, one source
	f := companyFinding("Acme Robotics", "Munich")
	f.Contacts = []model.Contact{{Name: "Jane Doe", Title: "CTO"}}
	f.Signals = []string{"hiring platform engineers"}
	f.Provenance = []model.Provenance{{URL: "https://a.example/1", Cycle: 0, Confidence: 0.8}}
	s.Merge(f)

	snap := s.Snapshot("run", model.Assignment{}, model.StateRunning, nil, 0)
	if len(snap.Warm) != 1 || len(snap.Hot) != 0 {
		t.Fatalf("expected Warm classification, got hot=%d warm=%d cold=%d",
			len(snap.Hot), len(snap.Warm), len(snap.Cold))
	}

	// Corroborating second source plus a full contact record
	g := companyFinding("Acme Robotics", "Munich")
	g.Contacts = []model.Contact{{Name: "Jane Doe", Title: "CTO", Email: "jane@acme.example"}}
	g.Provenance = []model.Provenance{{URL: "https://b.example/2", Cycle: 1, Confidence: 0.7}}
	s.Merge(g)

	snap = s.Snapshot("run", model.Assignment{}, model.StateRunning, nil, 0)
	if len(snap.Hot) != 1 {
		t.Fatalf("expected Hot after corroboration, got hot=%d warm=%d cold=%d",
			len(snap.Hot), len(snap.Warm), len(snap.Cold))
	}
}

func TestSnapshot_ColdForWeakSignal(t *testing.T) {
	s := New()
	s.Merge(model.Finding{Kind: model.KindCompany, Name: "Mystery Co"})

	snap := s.Snapshot("run", model.Assignment{}, model.StateRunning, nil, 0)
	if len(snap.Cold) != 1 {
		t.Errorf("name-only entity should be Cold, got hot=%d warm=%d cold=%d",
			len(snap.Hot), len(snap.Warm), len(snap.Cold))
	}
}

func TestRestore_ReproducesState(t *testing.T) {
	s := New()
	f := companyFinding("Acme", "Munich")
	f.Signals = []string{"sig"}
	s.Merge(f)
	s.Merge(companyFinding("Northwind", "Berlin"))

	restored := Restore(s.All())
	if !reflect.DeepEqual(s.All(), restored.All()) {
		t.Errorf("restore mismatch:\noriginal: %+v\nrestored: %+v", s.All(), restored.All())
	}
	if !reflect.DeepEqual(s.Keys(), restored.Keys()) {
		t.Errorf("key order mismatch: %v vs %v", s.Keys(), restored.Keys())
	}
}

func TestSnapshot_IsACopy(t *testing.T) {
	s := New()
	f := companyFinding("Acme", "Munich")
	f.Signals = []string{"original"}
	s.Merge(f)

	snap := s.Snapshot("run", model.Assignment{}, model.StateComplete, nil, time.Second)
	snap.Warm[0].Signals[0] = "mutated"

	got, _ := s.Get(f.IdentityKey())
	if got.Signals[0] != "original" {
		t.Error("snapshot mutation leaked into store")
	}
}
