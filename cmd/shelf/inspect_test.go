package main

import (
	"path/filepath"
	"testing"

	"github.com/matsen/papershelf/internal/bundle"
	"github.com/matsen/papershelf/internal/exchange"
	"github.com/matsen/papershelf/internal/store"
)

func TestSummarizePackage(t *testing.T) {
	src := newTestStore(t)
	out := filepath.Join(t.TempDir(), "papers.zip")
	if _, err := bundle.Build(src, bundle.BuildOptions{
		IncludeSummaries: true,
		Creator:          "alice",
		OutputPath:       out,
	}); err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	pkg, err := exchange.InspectPackage(out, bundle.Limits{})
	if err != nil {
		t.Fatalf("InspectPackage() error = %v", err)
	}

	empty, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	resp := summarizePackage(pkg, empty)
	if resp.Manifest.CreatedBy.String() != "alice" || len(resp.Papers) != 2 {
		t.Fatalf("summary = %+v", resp)
	}
	if resp.Papers[0].ID != "2401.00001" || !resp.Papers[0].HasSummary || resp.Papers[1].HasSummary {
		t.Errorf("papers = %+v", resp.Papers)
	}
	for _, p := range resp.Papers {
		if p.Collected {
			t.Errorf("%s reported as collected in an empty store", p.ID)
		}
	}
	if resp.Dropped == nil {
		t.Error("Dropped should encode as [] not null")
	}

	for _, p := range summarizePackage(pkg, src).Papers {
		if !p.Collected {
			t.Errorf("%s should be reported as collected in its source store", p.ID)
		}
	}
}
