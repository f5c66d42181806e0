package types

import (
	"fmt"
	"testing"
)

func TestNormalizeErrorCategory(t *testing.T) {
	cases := []struct {
		raw  string
		want ErrorCategory
	}{
		{"grammar", ErrorCategoryGrammar},
		{"verb_tense", ErrorCategoryVerbTense},
		{"made_up_type", ErrorCategoryOther},
		{"", ErrorCategoryOther},
	}
	for _, tc := range cases {
		if got := NormalizeErrorCategory(tc.raw); got != tc.want {
			t.Fatalf("NormalizeErrorCategory(%q): want=%q got=%q", tc.raw, tc.want, got)
		}
	}
}

func TestAppendExampleDedupAndCap(t *testing.T) {
	p := &ErrorPattern{}
	p.AppendExample("el problema es")
	p.AppendExample("el problema es") // exact duplicate skipped
	if got := len(p.ExampleList()); got != 1 {
		t.Fatalf("examples after duplicate: want=1 got=%d", got)
	}

	for i := 0; i < ErrorExampleCap+5; i++ {
		p.AppendExample(fmt.Sprintf("example %d", i))
	}
	examples := p.ExampleList()
	if len(examples) != ErrorExampleCap {
		t.Fatalf("examples: want=%d got=%d", ErrorExampleCap, len(examples))
	}
	if examples[len(examples)-1] != fmt.Sprintf("example %d", ErrorExampleCap+4) {
		t.Fatalf("newest example missing, got last=%q", examples[len(examples)-1])
	}
}

func TestAppendCorrectionCap(t *testing.T) {
	p := &ErrorPattern{}
	for i := 0; i < ErrorCorrectionCap+3; i++ {
		p.AppendCorrection(fmt.Sprintf("correction %d", i))
	}
	if got := len(p.CorrectionList()); got != ErrorCorrectionCap {
		t.Fatalf("corrections: want=%d got=%d", ErrorCorrectionCap, got)
	}
}
