package types

import (
	"fmt"
	"testing"
)

func TestMergeAreasRecencyDedupAndCap(t *testing.T) {
	existing := []string{"articles", "prepositions", "word order"}
	incoming := []string{"subjunctive", "articles"}

	merged := MergeAreas(existing, incoming)
	want := []string{"subjunctive", "articles", "prepositions", "word order"}
	if len(merged) != len(want) {
		t.Fatalf("merged length: want=%d got=%d (%v)", len(want), len(merged), merged)
	}
	for i := range want {
		if merged[i] != want[i] {
			t.Fatalf("merged[%d]: want=%q got=%q", i, want[i], merged[i])
		}
	}
}

func TestMergeAreasCap(t *testing.T) {
	var many []string
	for i := 0; i < AreaListCap+5; i++ {
		many = append(many, fmt.Sprintf("area %d", i))
	}
	merged := MergeAreas(nil, many)
	if len(merged) != AreaListCap {
		t.Fatalf("capped length: want=%d got=%d", AreaListCap, len(merged))
	}
	// Incoming order survives the cap; the newest areas win.
	if merged[0] != "area 0" {
		t.Fatalf("merged[0]: want=%q got=%q", "area 0", merged[0])
	}
}

func TestMergeAreasSkipsEmptyStrings(t *testing.T) {
	merged := MergeAreas([]string{"", "articles"}, []string{"", "gender"})
	want := []string{"gender", "articles"}
	if len(merged) != len(want) {
		t.Fatalf("merged length: want=%d got=%d (%v)", len(want), len(merged), merged)
	}
}
