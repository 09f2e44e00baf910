// SPDX-License-Identifier: MIT

package petscan

import (
	"context"
	"testing"
)

// TestParseCombinationScenario4 covers §8 scenario 4.
func TestParseCombinationScenario4(t *testing.T) {
	c, err := ParseCombination("categories NOT (sparql OR pagepile)")
	if err != nil {
		t.Fatalf("ParseCombination: %v", err)
	}
	if c.Op != CombinationNot {
		t.Fatalf("top-level op = %v, want CombinationNot", c.Op)
	}
	if c.Left.Op != CombinationSource || c.Left.SourceName != "categories" {
		t.Fatalf("left = %+v, want Source(categories)", c.Left)
	}
	if c.Right.Op != CombinationUnion {
		t.Fatalf("right op = %v, want CombinationUnion", c.Right.Op)
	}
	if c.Right.Left.SourceName != "sparql" || c.Right.Right.SourceName != "pagepile" {
		t.Fatalf("right operands = %+v / %+v, want sparql / pagepile", c.Right.Left, c.Right.Right)
	}
}

func TestParseCombinationBareSource(t *testing.T) {
	c, err := ParseCombination("categories")
	if err != nil {
		t.Fatalf("ParseCombination: %v", err)
	}
	if c.Op != CombinationSource || c.SourceName != "categories" {
		t.Errorf("ParseCombination(\"categories\") = %+v, want Source(categories)", c)
	}
}

func TestParseCombinationRejectsUnbalancedParens(t *testing.T) {
	if _, err := ParseCombination("(categories AND sparql"); err == nil {
		t.Error("ParseCombination: want error for unbalanced parentheses, got nil")
	}
}

func TestParseCombinationRejectsEmpty(t *testing.T) {
	if _, err := ParseCombination(""); err == nil {
		t.Error("ParseCombination(\"\"): want error, got nil")
	}
}

func TestParseCombinationRoundTrip(t *testing.T) {
	trees := []*Combination{
		sourceCombination("categories"),
		binaryCombination(CombinationUnion, sourceCombination("sparql"), sourceCombination("pagepile")),
		binaryCombination(CombinationNot, sourceCombination("categories"),
			binaryCombination(CombinationUnion, sourceCombination("sparql"), sourceCombination("pagepile"))),
		binaryCombination(CombinationIntersection, sourceCombination("wikidata"), sourceCombination("manual")),
	}
	for _, want := range trees {
		s := want.String()
		got, err := ParseCombination(s)
		if err != nil {
			t.Fatalf("ParseCombination(%q): %v", s, err)
		}
		if got.String() != s {
			t.Errorf("round trip: String()=%q, reparsed.String()=%q", s, got.String())
		}
	}
}

func TestDefaultCombinationIsLeftLeaning(t *testing.T) {
	c := DefaultCombination([]string{"a", "b", "c"})
	// Intersection(c, Intersection(b, a))
	if c.Op != CombinationIntersection || c.Left.SourceName != "c" {
		t.Fatalf("DefaultCombination top level = %+v, want Intersection(c, ...)", c)
	}
	inner := c.Right
	if inner.Op != CombinationIntersection || inner.Left.SourceName != "b" || inner.Right.SourceName != "a" {
		t.Fatalf("DefaultCombination inner = %+v, want Intersection(b, a)", inner)
	}
}

func TestEvaluateUnionWithNoneOperand(t *testing.T) {
	results := map[string]*PageList{
		"a": titles("enwiki", "Foo"),
	}
	c := binaryCombination(CombinationUnion, sourceCombination("a"), sourceCombination("missing"))
	got, err := Evaluate(context.Background(), c, nil, results)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if got.Len() != 1 {
		t.Errorf("Evaluate(Union(a, None)) has %d entries, want 1", got.Len())
	}
}

func TestEvaluateIntersectionWithNoneOperandErrors(t *testing.T) {
	results := map[string]*PageList{
		"a": titles("enwiki", "Foo"),
	}
	c := binaryCombination(CombinationIntersection, sourceCombination("a"), sourceCombination("missing"))
	if _, err := Evaluate(context.Background(), c, nil, results); err == nil {
		t.Error("Evaluate(Intersection(a, None)): want error, got nil")
	}
}

func TestEvaluateNotWithNoneRightOperand(t *testing.T) {
	results := map[string]*PageList{
		"a": titles("enwiki", "Foo"),
	}
	c := binaryCombination(CombinationNot, sourceCombination("a"), sourceCombination("missing"))
	got, err := Evaluate(context.Background(), c, nil, results)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if got.Len() != 1 {
		t.Errorf("Evaluate(Not(a, None)) has %d entries, want 1", got.Len())
	}
}
