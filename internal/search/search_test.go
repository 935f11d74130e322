package search

import (
	"testing"

	"github.com/mmcdole/anikino/internal/domain"
)

type staticSource []domain.Item

func (s staticSource) Items() []domain.Item { return s }

func TestSearch_Ranking(t *testing.T) {
	ix := NewIndex(staticSource{
		{ID: "1", Title: "Sousou no Frieren"},
		{ID: "2", Title: "Frieren"},
		{ID: "3", Title: "Frieren: Beyond Journey's End"},
		{ID: "4", Title: "Fire Force"},
		{ID: "5", Title: "Spy x Family"},
	}, nil)

	results := ix.Search("frieren", 0)
	if len(results) != 3 {
		t.Fatalf("expected 3 matches, got %d: %+v", len(results), results)
	}
	want := []string{"2", "3", "1"}
	for i, id := range want {
		if results[i].Item.ID != id {
			t.Fatalf("position %d: expected id %s, got %s", i, id, results[i].Item.ID)
		}
	}
}

func TestSearch_SubsequenceAndLimit(t *testing.T) {
	ix := NewIndex(staticSource{
		{ID: "1", Title: "Fire Force"},
		{ID: "2", Title: "Frieren"},
	}, nil)

	results := ix.Search("frn", 0)
	if len(results) != 1 || results[0].Item.ID != "2" {
		t.Fatalf("expected subsequence match on Frieren, got %+v", results)
	}

	if got := ix.Search("f", 1); len(got) != 1 {
		t.Fatalf("expected limit 1, got %d", len(got))
	}
}

func TestSearch_EmptyQuery(t *testing.T) {
	ix := NewIndex(staticSource{{ID: "1", Title: "Frieren"}}, nil)
	if got := ix.Search("   ", 0); got != nil {
		t.Fatalf("expected nil, got %+v", got)
	}
}

func TestSearch_CJKTitles(t *testing.T) {
	ix := NewIndex(staticSource{
		{ID: "1", Title: "葬送的芙莉莲"},
		{ID: "2", Title: "间谍过家家"},
	}, nil)
	results := ix.Search("芙莉莲", 0)
	if len(results) != 1 || results[0].Item.ID != "1" {
		t.Fatalf("expected CJK match, got %+v", results)
	}
}
