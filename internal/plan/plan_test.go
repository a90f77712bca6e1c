package plan

import "testing"

func TestFirstOpenEpic(t *testing.T) {
	obj := &Objective{Epics: []Epic{
		{ID: 1, Completed: true},
		{ID: 2},
		{ID: 3},
	}}

	got := obj.FirstOpenEpic()
	if got == nil || got.ID != 2 {
		t.Fatalf("FirstOpenEpic() = %+v, want epic 2", got)
	}

	var none *Objective
	if none.FirstOpenEpic() != nil {
		t.Fatal("FirstOpenEpic() on nil objective should be nil")
	}

	allDone := &Objective{Epics: []Epic{{ID: 1, Completed: true}}}
	if allDone.FirstOpenEpic() != nil {
		t.Fatal("FirstOpenEpic() with every epic completed should be nil")
	}
}

func TestStoriesDone(t *testing.T) {
	e := Epic{Stories: []StorySummary{{Completed: true}, {}, {Completed: true}}}
	if got := e.StoriesDone(); got != 2 {
		t.Fatalf("StoriesDone() = %d, want 2", got)
	}
}

func TestRepoKey(t *testing.T) {
	a := Repo{FullName: "Acme/Web"}
	b := Repo{Owner: "acme", Name: "web"}
	if a.Key() != b.Key() {
		t.Fatalf("Key() mismatch: %q vs %q", a.Key(), b.Key())
	}
}
