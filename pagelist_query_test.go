// SPDX-License-Identifier: MIT

package petscan

import "testing"

func TestRegexpFilterKeepsMatchingTitles(t *testing.T) {
	pl := titles("enwiki", "Apple pie", "Banana bread", "Apple sauce")
	if err := pl.RegexpFilter("Apple.*"); err != nil {
		t.Fatalf("RegexpFilter: %v", err)
	}
	got := titleSet(pl)
	if len(got) != 2 || !got["Apple_pie"] || !got["Apple_sauce"] {
		t.Errorf("RegexpFilter(\"Apple.*\") left %v, want {Apple pie, Apple sauce}", got)
	}
}

func TestRegexpFilterEmptyPatternIsNoOp(t *testing.T) {
	pl := titles("enwiki", "Foo", "Bar")
	before := pl.Len()
	if err := pl.RegexpFilter(""); err != nil {
		t.Fatalf("RegexpFilter: %v", err)
	}
	if pl.Len() != before {
		t.Errorf("RegexpFilter(\"\") changed entry count from %d to %d", before, pl.Len())
	}
}

func TestRegexpFilterRejectsUncompilablePattern(t *testing.T) {
	pl := titles("enwiki", "Foo")
	if err := pl.RegexpFilter("("); err == nil {
		t.Error("RegexpFilter(\"(\"): want a compile error, got nil")
	}
}

func TestParseIntRoundTrip(t *testing.T) {
	tests := []struct {
		s    string
		want int
		ok   bool
	}{
		{"0", 0, true},
		{"42", 42, true},
		{"-17", -17, true},
		{"", 0, false},
		{"4a2", 0, false},
	}
	for _, tc := range tests {
		got, err := parseInt(tc.s)
		if tc.ok && (err != nil || got != tc.want) {
			t.Errorf("parseInt(%q) = (%d, %v), want (%d, nil)", tc.s, got, err, tc.want)
		}
		if !tc.ok && err == nil {
			t.Errorf("parseInt(%q): want error, got nil", tc.s)
		}
	}
}
