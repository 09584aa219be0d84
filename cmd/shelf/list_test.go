package main

import (
	"testing"

	"github.com/matsen/papershelf/internal/apperr"
)

func TestBuildFilter(t *testing.T) {
	f, err := buildFilter(" phylo ", true, false, true, 10)
	if err != nil {
		t.Fatalf("buildFilter() error = %v", err)
	}
	if f.Topic != "phylo" || f.Limit != 10 {
		t.Errorf("filter = %+v", f)
	}
	if f.Summarized == nil || !*f.Summarized {
		t.Error("Summarized should be true")
	}
	if f.Imported == nil || !*f.Imported {
		t.Error("Imported should be true")
	}

	f, err = buildFilter("", false, true, false, 0)
	if err != nil {
		t.Fatal(err)
	}
	if f.Summarized == nil || *f.Summarized || f.Imported != nil {
		t.Errorf("filter = %+v", f)
	}

	if _, err := buildFilter("", false, false, false, -1); !apperr.Is(err, apperr.InvalidArgument) {
		t.Errorf("negative limit error = %v", err)
	}
}

func TestSortTopicCounts(t *testing.T) {
	got := sortTopicCounts(map[string]int{"b": 2, "a": 2, "c": 5})
	want := []string{"c", "a", "b"}
	if len(got) != len(want) {
		t.Fatalf("got %d topics", len(got))
	}
	for i, w := range want {
		if got[i].Topic != w {
			t.Errorf("topics[%d] = %q, want %q", i, got[i].Topic, w)
		}
	}
}

func TestListFromCache(t *testing.T) {
	st := newTestStore(t)
	db, err := st.OpenCache()
	if err != nil {
		t.Fatalf("OpenCache() error = %v", err)
	}
	defer db.Close()

	filter, err := buildFilter("phylo", true, false, false, 0)
	if err != nil {
		t.Fatal(err)
	}
	rows, err := db.ListPapers(filter)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].ID != "2401.00001" {
		t.Errorf("ListPapers(summarized) = %+v", rows)
	}
}
